package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/htmlmailer/internal/config"
	"github.com/foxzi/htmlmailer/internal/tls"
)

var tlsCmd = &cobra.Command{
	Use:   "tls",
	Short: "TLS certificate commands",
}

var tlsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the certificates the server would use",
	RunE:  runTLSStatus,
}

func init() {
	tlsCmd.AddCommand(tlsStatusCmd)
	rootCmd.AddCommand(tlsCmd)
}

func runTLSStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return printTLSStatus(cmd.Context(), cmd.OutOrStdout(), cfg.Server.TLS)
}

func printTLSStatus(ctx context.Context, out io.Writer, cfg config.TLSConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.ACME.Enabled {
		acmeManager := tls.NewACMEManager(cfg.ACME.Email, cfg.ACME.Domains, cfg.ACME.CacheDir)
		certs := acmeManager.CachedCertificates(ctx)
		if len(certs) == 0 {
			fmt.Fprintln(out, "ACME certificates not found in cache.")
			fmt.Fprintln(out, "They are obtained on the first TLS handshake after 'htmlmailer serve' starts.")
			return nil
		}

		fmt.Fprintln(out, "ACME certificates:")
		for _, cert := range certs {
			printCertificate(out, cert)
		}
		return nil
	}

	if cfg.CertFile == "" {
		fmt.Fprintln(out, "TLS is not configured")
		return nil
	}

	info, err := tls.ReadCertificateInfo(cfg.CertFile)
	if err != nil {
		return fmt.Errorf("failed to read certificate: %w", err)
	}

	fmt.Fprintf(out, "TLS certificate (manual): %s\n", cfg.CertFile)
	printCertificate(out, *info)
	return nil
}

func printCertificate(out io.Writer, cert tls.CertificateInfo) {
	status := "OK"
	if cert.DaysLeft < 0 {
		status = "EXPIRED"
	} else if cert.ExpiresSoon() {
		status = "EXPIRING SOON"
	}

	fmt.Fprintf(out, "  %s:\n", cert.Domain)
	fmt.Fprintf(out, "    Issuer: %s\n", cert.Issuer)
	fmt.Fprintf(out, "    Valid until: %s\n", cert.NotAfter.Format(time.RFC3339))
	fmt.Fprintf(out, "    Days left: %d\n", cert.DaysLeft)
	fmt.Fprintf(out, "    Status: %s\n", status)
}
