package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	historyLimit    int
	historyClearYes bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Send history commands",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sends, newest first",
	RunE:  runHistoryList,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the send history",
	RunE:  runHistoryClear,
}

func init() {
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of records")
	historyClearCmd.Flags().BoolVar(&historyClearYes, "yes", false, "confirm deleting the history")

	historyCmd.AddCommand(historyListCmd, historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	stores, err := openStores()
	if err != nil {
		return err
	}
	defer stores.Close()

	records, err := stores.History.List(context.Background(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No sends recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SENT\tTEMPLATE\tSUBJECT\tRECIPIENTS\tEMAIL ID")
	for _, r := range records {
		name := r.TemplateName
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.SentAt.Format("2006-01-02 15:04:05"),
			truncate(name, 30),
			truncate(r.Subject, 40),
			truncate(strings.Join(r.Recipients, ", "), 50),
			r.EmailID,
		)
	}
	w.Flush()

	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	if !historyClearYes {
		return fmt.Errorf("refusing to delete the history without --yes")
	}

	stores, err := openStores()
	if err != nil {
		return err
	}
	defer stores.Close()

	deleted, err := stores.History.Clear(context.Background())
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}

	fmt.Printf("Deleted %d record(s)\n", deleted)
	return nil
}
