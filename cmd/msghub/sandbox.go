package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/msghub/internal/models"
	"github.com/foxzi/msghub/internal/sandbox"
)

var (
	sandboxOrg       string
	sandboxChannel   string
	sandboxProvider  string
	sandboxLimit     int
	sandboxOlderThan time.Duration
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Inspect messages captured in sandbox mode",
}

var sandboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List captured messages",
	RunE:  runSandboxList,
}

var sandboxShowCmd = &cobra.Command{
	Use:   "show <message_id>",
	Short: "Show a captured message",
	Args:  cobra.ExactArgs(1),
	RunE:  runSandboxShow,
}

var sandboxClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete captured messages",
	RunE:  runSandboxClear,
}

var sandboxStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show sandbox statistics",
	RunE:  runSandboxStats,
}

func init() {
	sandboxListCmd.Flags().StringVar(&sandboxOrg, "org", "", "Filter by organization")
	sandboxListCmd.Flags().StringVar(&sandboxChannel, "channel", "", "Filter by channel (sms, email, whatsapp)")
	sandboxListCmd.Flags().StringVar(&sandboxProvider, "provider", "", "Filter by provider")
	sandboxListCmd.Flags().IntVar(&sandboxLimit, "limit", 50, "Maximum number of messages")

	sandboxClearCmd.Flags().StringVar(&sandboxChannel, "channel", "", "Clear only one channel")
	sandboxClearCmd.Flags().DurationVar(&sandboxOlderThan, "older-than", 0, "Clear messages older than this (e.g. 72h)")

	sandboxCmd.AddCommand(sandboxListCmd, sandboxShowCmd, sandboxClearCmd, sandboxStatsCmd)
	rootCmd.AddCommand(sandboxCmd)
}

func openSandboxStorage() (*sandbox.Storage, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	storage, err := sandbox.Open(cfg.Dispatch.Sandbox.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sandbox storage (is the server running?): %w", err)
	}
	return storage, nil
}

func runSandboxList(cmd *cobra.Command, args []string) error {
	storage, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	messages, err := storage.List(context.Background(), sandbox.ListFilter{
		OrganizationID: sandboxOrg,
		Channel:        models.Channel(sandboxChannel),
		Provider:       sandboxProvider,
		Limit:          sandboxLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	if len(messages) == 0 {
		fmt.Println("No messages in sandbox")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tORG\tCHANNEL\tPROVIDER\tTO\tSUBJECT\tCAPTURED")
	fmt.Fprintln(w, "--\t---\t-------\t--------\t--\t-------\t--------")

	for _, msg := range messages {
		subject := msg.Subject
		if subject == "" {
			subject = truncate(msg.Body, 30)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			msg.ID, msg.OrganizationID, msg.Channel, msg.Provider, msg.To,
			truncate(subject, 40), msg.CapturedAt.Format("2006-01-02 15:04:05"))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d messages\n", len(messages))
	return nil
}

func runSandboxShow(cmd *cobra.Command, args []string) error {
	storage, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	msg, err := storage.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get message: %w", err)
	}
	if msg == nil {
		return fmt.Errorf("message not found: %s", args[0])
	}

	fmt.Printf("ID:           %s\n", msg.ID)
	fmt.Printf("Organization: %s\n", msg.OrganizationID)
	fmt.Printf("Channel:      %s\n", msg.Channel)
	fmt.Printf("Provider:     %s\n", msg.Provider)
	fmt.Printf("To:           %s\n", msg.To)
	fmt.Printf("Captured:     %s\n", msg.CapturedAt.Format(time.RFC3339))
	if msg.Subject != "" {
		fmt.Printf("Subject:      %s\n", msg.Subject)
	}
	if msg.Template != "" {
		fmt.Printf("Template:     %s %v\n", msg.Template, msg.TemplateParams)
	}
	if msg.SimulatedErr != "" {
		fmt.Printf("Simulated:    %s\n", msg.SimulatedErr)
	}
	fmt.Printf("\n%s\n", msg.Body)
	return nil
}

func runSandboxClear(cmd *cobra.Command, args []string) error {
	storage, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	count, err := storage.Clear(context.Background(), models.Channel(sandboxChannel), sandboxOlderThan)
	if err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	fmt.Printf("Cleared %d messages\n", count)
	return nil
}

func runSandboxStats(cmd *cobra.Command, args []string) error {
	storage, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	stats, err := storage.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	fmt.Printf("Total messages: %d\n", stats.Total)
	fmt.Printf("Total size:     %d bytes\n", stats.TotalSize)
	if stats.Total == 0 {
		return nil
	}
	fmt.Printf("Oldest:         %s\n", stats.OldestAt.Format(time.RFC3339))
	fmt.Printf("Newest:         %s\n", stats.NewestAt.Format(time.RFC3339))

	printCounts("By channel", stats.ByChannel)
	printCounts("By provider", stats.ByProvider)
	return nil
}

func printCounts(title string, counts map[string]int64) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("\n%s:\n", title)
	for _, k := range keys {
		fmt.Printf("  %-12s %d\n", k, counts[k])
	}
}
