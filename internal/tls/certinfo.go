package tls

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"
)

// CertificateInfo describes one certificate
type CertificateInfo struct {
	Domain    string
	Subject   string
	Issuer    string
	NotBefore time.Time
	NotAfter  time.Time
	DaysLeft  int
	DNSNames  []string
}

// Status classifies the remaining validity
func (c CertificateInfo) Status() string {
	switch {
	case c.DaysLeft < 0:
		return "EXPIRED"
	case c.DaysLeft < 14:
		return "EXPIRING SOON"
	case c.DaysLeft < 30:
		return "RENEWAL NEEDED"
	default:
		return "OK"
	}
}

// ReadCertificateFile reads the first certificate of a PEM file
func ReadCertificateFile(certFile string) (*CertificateInfo, error) {
	data, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	info, err := parseDER(block.Bytes)
	if err != nil {
		return nil, err
	}
	if len(info.DNSNames) > 0 {
		info.Domain = info.DNSNames[0]
	} else {
		info.Domain = info.Subject
	}
	return info, nil
}

func parseDER(der []byte) (*CertificateInfo, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &CertificateInfo{
		Subject:   cert.Subject.CommonName,
		Issuer:    cert.Issuer.CommonName,
		NotBefore: cert.NotBefore,
		NotAfter:  cert.NotAfter,
		DaysLeft:  int(time.Until(cert.NotAfter).Hours() / 24),
		DNSNames:  cert.DNSNames,
	}, nil
}
