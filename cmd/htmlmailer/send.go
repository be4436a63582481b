package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/htmlmailer/internal/app"
	"github.com/foxzi/htmlmailer/internal/config"
	"github.com/foxzi/htmlmailer/internal/mailer"
	"github.com/foxzi/htmlmailer/internal/provider"
	"github.com/foxzi/htmlmailer/internal/proxy"
	"github.com/foxzi/htmlmailer/internal/settings"
)

const envAPIKey = "RESEND_API_KEY"

var (
	sendTemplate   string
	sendHTMLFile   string
	sendTo         []string
	sendSubject    string
	sendAPIKey     string
	sendProxyURL   string
	sendAdminToken string
	sendFromEmail  string
	sendFromName   string
	sendDirect     bool
	sendTimeout    time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send an HTML email",
	Long: `Send a stored template or an HTML file to one or more recipients.

By default the email is submitted to a running proxy (see 'serve'), which
checks it again and records the send in its history. With --direct the
email is checked locally and sent straight to Resend with the SDK; the
proxy must not be running on the same database.`,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendTemplate, "template", "t", "", "stored template ID or name")
	sendCmd.Flags().StringVar(&sendHTMLFile, "html", "", "HTML file to send")
	sendCmd.Flags().StringSliceVar(&sendTo, "to", nil, "recipient address (repeatable or comma-separated)")
	sendCmd.Flags().StringVarP(&sendSubject, "subject", "s", "", "email subject (required)")
	sendCmd.Flags().StringVar(&sendAPIKey, "api-key", "", "Resend API key (default $RESEND_API_KEY)")
	sendCmd.Flags().StringVar(&sendProxyURL, "proxy", "http://localhost:3000", "proxy base URL")
	sendCmd.Flags().StringVar(&sendAdminToken, "admin-token", "", "proxy admin token for template and settings lookups (default $HTMLMAILER_ADMIN_TOKEN)")
	sendCmd.Flags().StringVar(&sendFromEmail, "from-email", "", "sender address (default: saved sender settings)")
	sendCmd.Flags().StringVar(&sendFromName, "from-name", "", "sender display name")
	sendCmd.Flags().BoolVar(&sendDirect, "direct", false, "send with the Resend SDK instead of through the proxy")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 30*time.Second, "request timeout")
	sendCmd.MarkFlagsMutuallyExclusive("template", "html")
	sendCmd.MarkFlagsOneRequired("template", "html")

	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	// Read here rather than as flag defaults so values from .env apply
	if sendAPIKey == "" {
		sendAPIKey = os.Getenv(envAPIKey)
	}
	if sendAdminToken == "" {
		sendAdminToken = os.Getenv(config.EnvAdminToken)
	}

	recipients := mailer.ValidateEmails(splitList(sendTo))
	if !recipients.IsValid {
		return fmt.Errorf("invalid email addresses: %s", strings.Join(recipients.Invalid, ", "))
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	req := mailer.Request{
		APIKey:  sendAPIKey,
		To:      recipients.Valid,
		Subject: sendSubject,
	}
	if sendFromEmail != "" {
		req.Sender = &settings.Sender{FromEmail: sendFromEmail, FromName: sendFromName}
		if err := req.Sender.Validate(); err != nil {
			return err
		}
	}
	if sendHTMLFile != "" {
		data, err := os.ReadFile(sendHTMLFile)
		if err != nil {
			return fmt.Errorf("failed to read HTML file: %w", err)
		}
		req.HTML = string(data)
	}

	if sendDirect {
		return sendDirectly(ctx, req)
	}
	return sendViaProxy(ctx, req)
}

func sendViaProxy(ctx context.Context, req mailer.Request) error {
	client := mailer.NewClient(sendProxyURL, sendTimeout)
	client.SetAdminToken(sendAdminToken)

	if req.Sender == nil {
		sender, err := client.Sender(ctx)
		if err != nil {
			return err
		}
		req.Sender = sender
	}
	if sendTemplate != "" {
		tmpl, err := client.Template(ctx, sendTemplate)
		if err != nil {
			return fmt.Errorf("failed to get template: %w", err)
		}
		req.HTML = tmpl.Content
		req.TemplateName = tmpl.Name
	}

	res, err := client.Send(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("%s (id: %s)\n", res.Message, res.EmailID)
	return nil
}

func sendDirectly(ctx context.Context, req mailer.Request) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg.Logging, os.Stderr)

	stores, err := app.OpenStores(cfg.Storage.Path, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	if req.Sender == nil {
		req.Sender, err = stores.Settings.Sender(ctx)
		if err != nil {
			return fmt.Errorf("failed to load sender settings: %w", err)
		}
	}
	if sendTemplate != "" {
		tmpl, err := stores.Library.Find(ctx, sendTemplate)
		if err != nil {
			return fmt.Errorf("failed to get template: %w", err)
		}
		req.HTML = tmpl.Content
		req.TemplateName = tmpl.Name
	}

	email, err := mailer.Build(req)
	if err != nil {
		return err
	}

	gate := proxy.NewGate(provider.NewSDKSender(), stores.History, logger.With("component", "send"), "direct")
	res, err := gate.Forward(ctx, req.APIKey, email)
	if err != nil {
		return err
	}

	fmt.Printf("Email sent successfully to %d recipient(s) (id: %s)\n", len(email.To), res.ID)
	return nil
}
