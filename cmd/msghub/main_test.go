package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/foxzi/msghub/internal/dispatch"
	"github.com/foxzi/msghub/internal/models"
	msghubTLS "github.com/foxzi/msghub/internal/tls"
)

func TestReadRequestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "request.json")
	body := `{
		"organization_id": "acme",
		"template": {"channel": "sms", "body": "Hi {first_name}"},
		"recipients": [{"id": "c1", "first_name": "Ana", "phone": "+15550100"}],
		"variables": {"code": "SAVE10"}
	}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write request: %v", err)
	}

	req, err := readRequest(path, nil)
	if err != nil {
		t.Fatalf("readRequest() error = %v", err)
	}
	if req.OrganizationID != "acme" || req.Template.Channel != models.ChannelSMS {
		t.Errorf("unexpected request %+v", req)
	}
	if len(req.Recipients) != 1 || req.Recipients[0].Phone != "+15550100" {
		t.Errorf("recipients = %+v", req.Recipients)
	}
	if req.Variables["code"] != "SAVE10" {
		t.Errorf("variables = %v", req.Variables)
	}
}

func TestReadRequestStdin(t *testing.T) {
	req, err := readRequest("-", strings.NewReader(`{"organization_id": "acme"}`))
	if err != nil {
		t.Fatalf("readRequest() error = %v", err)
	}
	if req.OrganizationID != "acme" {
		t.Errorf("organization = %q", req.OrganizationID)
	}
}

func TestReadRequestErrors(t *testing.T) {
	if _, err := readRequest(filepath.Join(t.TempDir(), "missing.json"), nil); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := readRequest("-", strings.NewReader(`{"organisation": "typo"}`)); err == nil {
		t.Error("expected error for unknown field")
	}
	if _, err := readRequest("-", strings.NewReader(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestPrintResult(t *testing.T) {
	var out bytes.Buffer
	printResult(&out, &dispatch.Result{
		Success:     true,
		SentCount:   1,
		FailedCount: 1,
		CampaignID:  "camp-1",
		Details: []dispatch.Detail{
			{ContactID: "c1", ContactName: "Ana", Success: true, MessageID: "SM123", Provider: "twilio", Fallback: true},
			{ContactID: "c2", ContactName: "Bo", Error: "no sms recipient", Provider: "msg91"},
		},
	})

	got := out.String()
	for _, want := range []string{"SM123", "twilio (fallback)", "no sms recipient", "Sent: 1  Failed: 1", "Campaign: camp-1"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a long line of text", 10, "a long ..."},
		{"two\nlines", 20, "two lines"},
	}

	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestLoadDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("MSGHUB_TEST_DOTENV=from-file\n"), 0644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("MSGHUB_TEST_DOTENV") })

	if err := loadDotenv(path); err != nil {
		t.Fatalf("loadDotenv() error = %v", err)
	}
	if got := os.Getenv("MSGHUB_TEST_DOTENV"); got != "from-file" {
		t.Errorf("MSGHUB_TEST_DOTENV = %q", got)
	}

	if err := loadDotenv(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected error for explicit missing env file")
	}
}

func TestPrintCertificates(t *testing.T) {
	certs := []msghubTLS.CertificateInfo{
		{Domain: "api.example.com", Issuer: "R11", NotAfter: time.Now().Add(60 * 24 * time.Hour), DaysLeft: 60},
		{Domain: "t.example.com", Issuer: "R11", NotAfter: time.Now().Add(5 * 24 * time.Hour), DaysLeft: 5},
	}

	var out bytes.Buffer
	printCertificates(&out, certs)

	got := out.String()
	for _, want := range []string{"api.example.com:", "Days left: 60", "Status: OK", "Status: EXPIRING SOON"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	if allValid(certs) {
		t.Error("allValid() = true with an expiring certificate")
	}
	if !allValid(certs[:1]) {
		t.Error("allValid() = false for a valid certificate")
	}
}
