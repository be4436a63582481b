package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/htmlmailer/internal/app"
	"github.com/foxzi/htmlmailer/internal/template"
)

var (
	templateReplace     bool
	templateSearch      string
	templateLimit       int
	templateShowContent bool
	templateClearYes    bool
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Template management commands",
}

var templateImportCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Import HTML templates",
	Args:  cobra.RangeArgs(1, template.MaxBatchFiles),
	RunE:  runTemplateImport,
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates",
	RunE:  runTemplateList,
}

var templateShowCmd = &cobra.Command{
	Use:   "show <id|name>",
	Short: "Show template details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateShow,
}

var templateDeleteCmd = &cobra.Command{
	Use:   "delete <id|name>",
	Short: "Delete a template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateDelete,
}

var templateClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all templates",
	RunE:  runTemplateClear,
}

func init() {
	templateImportCmd.Flags().BoolVar(&templateReplace, "replace", false, "replace templates with the same name instead of renaming")

	templateListCmd.Flags().StringVar(&templateSearch, "search", "", "filter by name or title")
	templateListCmd.Flags().IntVar(&templateLimit, "limit", 0, "maximum number of templates")

	templateShowCmd.Flags().BoolVar(&templateShowContent, "content", false, "print the raw template content")

	templateClearCmd.Flags().BoolVar(&templateClearYes, "yes", false, "confirm deleting all templates")

	templateCmd.AddCommand(
		templateImportCmd,
		templateListCmd,
		templateShowCmd,
		templateDeleteCmd,
		templateClearCmd,
	)
	rootCmd.AddCommand(templateCmd)
}

// openStores opens the local database named by the configuration
func openStores() (*app.Stores, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := app.NewLogger(cfg.Logging, os.Stderr)
	return app.OpenStores(cfg.Storage.Path, logger)
}

func runTemplateImport(cmd *cobra.Command, args []string) error {
	stores, err := openStores()
	if err != nil {
		return err
	}
	defer stores.Close()

	ctx := context.Background()
	failed := 0

	for _, path := range args {
		tmpl, err := importFile(ctx, stores.Library, path)
		if err != nil {
			fmt.Printf("FAILED    %s: %v\n", path, err)
			failed++
			continue
		}

		fmt.Printf("IMPORTED  %s as %q (%s)\n", path, tmpl.Name, tmpl.ID)
		for _, w := range tmpl.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) not imported", failed, len(args))
	}
	return nil
}

func importFile(ctx context.Context, library *template.Library, path string) (*template.Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	return library.Import(ctx, filepath.Base(path), info.Size(), f, template.ImportOptions{Replace: templateReplace})
}

func runTemplateList(cmd *cobra.Command, args []string) error {
	stores, err := openStores()
	if err != nil {
		return err
	}
	defer stores.Close()

	templates, err := stores.Library.List(context.Background(), template.ListFilter{
		Search: templateSearch,
		Limit:  templateLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}

	if len(templates) == 0 {
		fmt.Println("No templates found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTITLE\tSIZE\tCREATED\tWARNINGS")
	for _, t := range templates {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			t.ID,
			truncate(t.Name, 40),
			truncate(t.Preview.Title, 40),
			formatSize(t.Size),
			t.CreatedAt.Format("2006-01-02 15:04"),
			len(t.Warnings),
		)
	}
	w.Flush()

	return nil
}

func runTemplateShow(cmd *cobra.Command, args []string) error {
	stores, err := openStores()
	if err != nil {
		return err
	}
	defer stores.Close()

	tmpl, err := stores.Library.Find(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get template: %w", err)
	}

	if templateShowContent {
		fmt.Print(tmpl.Content)
		return nil
	}

	fmt.Printf("ID:       %s\n", tmpl.ID)
	fmt.Printf("Name:     %s\n", tmpl.Name)
	fmt.Printf("Title:    %s\n", tmpl.Preview.Title)
	fmt.Printf("Size:     %s\n", formatSize(tmpl.Size))
	fmt.Printf("Created:  %s\n", tmpl.CreatedAt.Format("2006-01-02 15:04:05"))
	if len(tmpl.Warnings) > 0 {
		fmt.Printf("Warnings:\n")
		for _, w := range tmpl.Warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	return nil
}

func runTemplateDelete(cmd *cobra.Command, args []string) error {
	stores, err := openStores()
	if err != nil {
		return err
	}
	defer stores.Close()

	ctx := context.Background()
	tmpl, err := stores.Library.Find(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get template: %w", err)
	}

	if err := stores.Library.Delete(ctx, tmpl.ID); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	fmt.Printf("Template %q deleted\n", tmpl.Name)
	return nil
}

func runTemplateClear(cmd *cobra.Command, args []string) error {
	if !templateClearYes {
		return fmt.Errorf("refusing to delete all templates without --yes")
	}

	stores, err := openStores()
	if err != nil {
		return err
	}
	defer stores.Close()

	deleted, err := stores.Library.Clear(context.Background())
	if err != nil {
		return fmt.Errorf("failed to clear templates: %w", err)
	}

	fmt.Printf("Deleted %d template(s)\n", deleted)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// splitList flattens repeated and comma-separated flag values
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
