package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	msghubTLS "github.com/foxzi/msghub/internal/tls"
)

var tlsCmd = &cobra.Command{
	Use:   "tls",
	Short: "API listener certificate management",
}

var tlsRenewCmd = &cobra.Command{
	Use:   "renew",
	Short: "Obtain or renew certificates via ACME",
	Long: `Start a temporary HTTP server on the ACME challenge address to answer
HTTP-01 challenges and obtain or renew certificates from Let's Encrypt.

The server stops once certificates are obtained.`,
	RunE: runTLSRenew,
}

var tlsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show certificate status",
	RunE:  runTLSStatus,
}

var (
	tlsRenewTimeout time.Duration
	tlsForceRenew   bool
)

func init() {
	tlsRenewCmd.Flags().DurationVar(&tlsRenewTimeout, "timeout", 2*time.Minute, "timeout for certificate renewal")
	tlsRenewCmd.Flags().BoolVar(&tlsForceRenew, "force", false, "renew even if certificates are valid")

	tlsCmd.AddCommand(tlsRenewCmd, tlsStatusCmd)
	rootCmd.AddCommand(tlsCmd)
}

func loadTLSSource() (*msghubTLS.Source, string, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, "", err
	}

	src, err := msghubTLS.New(cfg.Server.TLS)
	if err != nil {
		return nil, "", err
	}
	return src, cfg.Server.TLS.ACME.ChallengeAddr, nil
}

func runTLSRenew(cmd *cobra.Command, args []string) error {
	src, addr, err := loadTLSSource()
	if err != nil {
		return err
	}
	if src == nil || !src.ACME() {
		return fmt.Errorf("ACME is not enabled in configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !tlsForceRenew {
		certs, err := src.Certificates(ctx)
		if err == nil && len(certs) == len(src.Domains()) && allValid(certs) {
			printCertificates(os.Stdout, certs)
			fmt.Println("\nAll certificates are valid. Use --force to renew anyway.")
			return nil
		}
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           src.ChallengeHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		fmt.Printf("Starting ACME HTTP challenge server on %s...\n", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// give the listener a moment to fail on a busy port
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("failed to start HTTP server: %w (is %s available?)", err, addr)
		}
	case <-time.After(100 * time.Millisecond):
	}

	fmt.Println("Obtaining certificates...")
	certCtx, certCancel := context.WithTimeout(ctx, tlsRenewTimeout)
	certs, err := src.Obtain(certCtx)
	certCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		fmt.Printf("Warning: HTTP server shutdown error: %v\n", shutdownErr)
	}

	if err != nil {
		return fmt.Errorf("failed to obtain certificates: %w", err)
	}

	fmt.Println()
	printCertificates(os.Stdout, certs)
	return nil
}

func runTLSStatus(cmd *cobra.Command, args []string) error {
	src, _, err := loadTLSSource()
	if err != nil {
		return err
	}
	if src == nil {
		fmt.Println("TLS is not configured")
		return nil
	}

	certs, err := src.Certificates(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read certificates: %w", err)
	}
	if len(certs) == 0 {
		fmt.Println("ACME certificates not found in cache.")
		fmt.Println("Run 'msghub tls renew' to obtain certificates.")
		return nil
	}

	printCertificates(os.Stdout, certs)
	return nil
}

func allValid(certs []msghubTLS.CertificateInfo) bool {
	for _, c := range certs {
		if c.Status() != "OK" {
			return false
		}
	}
	return true
}

func printCertificates(w io.Writer, certs []msghubTLS.CertificateInfo) {
	fmt.Fprintln(w, "Certificates:")
	for _, c := range certs {
		fmt.Fprintf(w, "  %s:\n", c.Domain)
		fmt.Fprintf(w, "    Issuer: %s\n", c.Issuer)
		fmt.Fprintf(w, "    Valid until: %s\n", c.NotAfter.Format(time.RFC3339))
		fmt.Fprintf(w, "    Days left: %d\n", c.DaysLeft)
		fmt.Fprintf(w, "    Status: %s\n", c.Status())
	}
}
