package dkim

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/emersion/go-msgauth/dkim"
)

// Signer adds DKIM-Signature headers to outgoing email
type Signer struct {
	key      *rsa.PrivateKey
	domain   string
	selector string
}

// NewSigner creates a signer for domain/selector
func NewSigner(key *rsa.PrivateKey, domain, selector string) *Signer {
	return &Signer{key: key, domain: domain, selector: selector}
}

// NewSignerFromConfig builds a signer from an organization's settings.
// keyRef is either inline PEM or a path to a PEM file.
func NewSignerFromConfig(keyRef, domain, selector string) (*Signer, error) {
	if domain == "" || selector == "" {
		return nil, fmt.Errorf("dkim domain and selector are required")
	}

	var (
		key *rsa.PrivateKey
		err error
	)
	if strings.HasPrefix(strings.TrimSpace(keyRef), "-----BEGIN") {
		key, err = ParsePrivateKey([]byte(keyRef))
	} else {
		key, err = LoadPrivateKey(keyRef)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load DKIM key: %w", err)
	}

	return NewSigner(key, domain, selector), nil
}

// Sign returns message with a relaxed/relaxed SHA-256 signature prepended
func (s *Signer) Sign(message []byte) ([]byte, error) {
	options := &dkim.SignOptions{
		Domain:                 s.domain,
		Selector:               s.selector,
		Signer:                 s.key,
		Hash:                   crypto.SHA256,
		HeaderCanonicalization: dkim.CanonicalizationRelaxed,
		BodyCanonicalization:   dkim.CanonicalizationRelaxed,
	}

	var out bytes.Buffer
	if err := dkim.Sign(&out, bytes.NewReader(message), options); err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return out.Bytes(), nil
}

func (s *Signer) Domain() string   { return s.domain }
func (s *Signer) Selector() string { return s.selector }
