package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/htmlmailer/internal/settings"
)

var (
	senderEmail string
	senderName  string
)

var senderCmd = &cobra.Command{
	Use:   "sender",
	Short: "Sender settings commands",
}

var senderShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved sender",
	RunE:  runSenderShow,
}

var senderSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Save the sender address and display name",
	RunE:  runSenderSet,
}

var senderClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the saved sender",
	RunE:  runSenderClear,
}

func init() {
	senderSetCmd.Flags().StringVar(&senderEmail, "email", "", "sender address (required)")
	senderSetCmd.Flags().StringVar(&senderName, "name", "", "sender display name")
	senderSetCmd.MarkFlagRequired("email")

	senderCmd.AddCommand(senderShowCmd, senderSetCmd, senderClearCmd)
	rootCmd.AddCommand(senderCmd)
}

func runSenderShow(cmd *cobra.Command, args []string) error {
	stores, err := openStores()
	if err != nil {
		return err
	}
	defer stores.Close()

	sender, err := stores.Settings.Sender(context.Background())
	if err != nil {
		return fmt.Errorf("failed to load sender settings: %w", err)
	}
	if sender == nil {
		fmt.Println("No sender configured")
		return nil
	}

	fmt.Printf("From:   %s\n", sender.From())
	fmt.Printf("Saved:  %s\n", sender.SavedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func runSenderSet(cmd *cobra.Command, args []string) error {
	stores, err := openStores()
	if err != nil {
		return err
	}
	defer stores.Close()

	sender := &settings.Sender{FromEmail: senderEmail, FromName: senderName}
	if err := stores.Settings.SaveSender(context.Background(), sender); err != nil {
		return err
	}

	fmt.Printf("Sender saved: %s\n", sender.From())
	return nil
}

func runSenderClear(cmd *cobra.Command, args []string) error {
	stores, err := openStores()
	if err != nil {
		return err
	}
	defer stores.Close()

	if err := stores.Settings.ClearSender(context.Background()); err != nil {
		return fmt.Errorf("failed to clear sender settings: %w", err)
	}

	fmt.Println("Sender cleared")
	return nil
}
