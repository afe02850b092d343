package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/foxzi/msghub/internal/app"
	"github.com/foxzi/msghub/internal/config"
)

var (
	cfgFile   string
	envFile   string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "msghub",
	Short: "msghub - multi-tenant message dispatch",
	Long:  `msghub sends personalized SMS, email and WhatsApp messages through per-organization providers and tracks campaign engagement.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("msghub version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file with provider credentials (default .env when present)")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(serveCmd, configCmd, versionCmd)
}

// loadConfig reads the dotenv file, the environment credential layer and the config file
func loadConfig() (*config.Config, *config.Env, error) {
	if cfgFile == "" {
		return nil, nil, fmt.Errorf("config file is required (use -c flag)")
	}

	if err := loadDotenv(envFile); err != nil {
		return nil, nil, err
	}

	env, err := config.LoadEnv()
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.LoadWithEnv(cfgFile, env)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, env, nil
}

// loadDotenv loads path, or .env when path is empty and the file exists.
// Variables already set in the process win.
func loadDotenv(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
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

	return application.Run(ctx)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Hostname: %s\n", cfg.Server.Hostname)
	fmt.Printf("  API: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  Public URL: %s\n", cfg.Server.PublicURL)
	fmt.Printf("  Database: %s\n", cfg.Database.Driver)
	fmt.Printf("  Events: %s\n", cfg.Events.Driver)
	fmt.Printf("  TLS: %t\n", cfg.HasTLS())
	fmt.Printf("  Sandbox: %t\n", cfg.Dispatch.Sandbox.Enabled)
	fmt.Printf("  Rate limits: %t\n", cfg.Dispatch.RateLimit.Enabled)
	fmt.Printf("  Organizations: %d\n", len(cfg.Organizations))

	for id, org := range cfg.Organizations {
		fmt.Printf("    %s: sms=%s email=%s whatsapp=%s\n", id,
			orNone(org.SMS.Provider), orNone(org.Email.Provider), orNone(org.WhatsApp.Provider))
	}

	return nil
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
