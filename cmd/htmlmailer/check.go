package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/foxzi/htmlmailer/internal/htmlguard"
	"github.com/foxzi/htmlmailer/internal/template"
)

var previewOutput string

var checkCmd = &cobra.Command{
	Use:   "check <file>...",
	Short: "Check HTML templates against the upload rules",
	Long: `Run the same size, file name and content checks an upload goes
through. Exits non-zero if any file is rejected.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

var previewCmd = &cobra.Command{
	Use:   "preview <file>",
	Short: "Print the sanitized preview of an HTML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreview,
}

func init() {
	previewCmd.Flags().StringVarP(&previewOutput, "output", "o", "", "write the preview to a file instead of stdout")

	rootCmd.AddCommand(checkCmd, previewCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	validator := template.NewValidator()
	rejected := 0

	for _, path := range args {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		name := filepath.Base(path)
		if err := validator.Precheck(name, info.Size()); err != nil {
			fmt.Fprintf(out, "REJECTED  %s: %s\n", path, err)
			rejected++
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		result := validator.Validate(name, string(data), int64(len(data)))
		if !result.Accepted {
			fmt.Fprintf(out, "REJECTED  %s: %s\n", path, result.Reason)
			rejected++
			continue
		}

		fmt.Fprintf(out, "OK        %s\n", path)
		for _, w := range result.Warnings {
			fmt.Fprintf(out, "  warning: %s\n", w)
		}
	}

	if rejected > 0 {
		return fmt.Errorf("%d of %d file(s) rejected", rejected, len(args))
	}
	return nil
}

func runPreview(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	preview := htmlguard.BuildPreview(string(data))

	if previewOutput != "" {
		if err := os.WriteFile(previewOutput, []byte(preview.Content), 0644); err != nil {
			return fmt.Errorf("failed to write preview: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Preview of %q written to %s\n", preview.Title, previewOutput)
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), preview.Content)
	return nil
}
