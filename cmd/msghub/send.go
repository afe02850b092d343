package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/msghub/internal/app"
	"github.com/foxzi/msghub/internal/db"
	"github.com/foxzi/msghub/internal/dispatch"
)

var (
	sendFile     string
	sendCampaign string
	sendJSON     bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Dispatch a request file once and print the per-recipient results",
	Long: `Read a dispatch request (organization_id, template, recipients, variables)
from a JSON file, or stdin with -f -, and send it with the configured providers.`,
	RunE: runSend,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE:  runMigrate,
}

func init() {
	sendCmd.Flags().StringVarP(&sendFile, "file", "f", "", "request JSON file, - for stdin (required)")
	sendCmd.Flags().StringVar(&sendCampaign, "campaign", "", "track the send as a campaign with this name")
	sendCmd.Flags().BoolVar(&sendJSON, "json", false, "print the result as JSON")
	sendCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(sendCmd, migrateCmd)
}

// readRequest decodes a dispatch request from path, or stdin for "-"
func readRequest(path string, stdin io.Reader) (dispatch.Request, error) {
	var req dispatch.Request

	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return req, fmt.Errorf("failed to open request file: %w", err)
		}
		defer f.Close()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("failed to parse request: %w", err)
	}
	return req, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	req, err := readRequest(sendFile, os.Stdin)
	if err != nil {
		return err
	}
	if sendCampaign != "" {
		req.Campaign = &dispatch.CampaignOptions{Name: sendCampaign}
	}

	cfg, env, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg, app.Options{
		Env:     env,
		Logger:  app.NewLogger(cfg.Logging),
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer application.Close()

	res, err := application.Dispatcher().Dispatch(ctx, req)
	if res != nil {
		if sendJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.Encode(res)
		} else {
			printResult(os.Stdout, res)
		}
	}
	if err != nil {
		return fmt.Errorf("dispatch failed: %w", err)
	}
	return nil
}

func printResult(out io.Writer, res *dispatch.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CONTACT\tNAME\tPROVIDER\tSTATUS\tMESSAGE ID / ERROR")
	fmt.Fprintln(w, "-------\t----\t--------\t------\t------------------")

	for _, d := range res.Details {
		status := "sent"
		detail := d.MessageID
		if !d.Success {
			status = "failed"
			detail = d.Error
		}
		provider := d.Provider
		if d.Fallback {
			provider += " (fallback)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.ContactID, d.ContactName, provider, status, truncate(detail, 60))
	}
	w.Flush()

	fmt.Fprintf(out, "\nSent: %d  Failed: %d\n", res.SentCount, res.FailedCount)
	if res.CampaignID != "" {
		fmt.Fprintf(out, "Campaign: %s\n", res.CampaignID)
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	d, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Migrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Printf("Database migrated (%s)\n", cfg.Database.Driver)
	return nil
}
