// Package did serves pre-provisioned decentralized-identity artifacts: the
// per-resource verifiable credential JWT and the verifier configuration
// derived from the issuer DID.
package did

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/flyvercity/c2ng/internal/config"
)

// ErrUnknownResource marks a resource identifier with no provisioned
// credential.
var ErrUnknownResource = errors.New("did: unknown resource")

// VerifierConfig is the document a credential verifier consumes.
type VerifierConfig struct {
	Resources map[string]Resource `json:"resources"`
}

// Resource holds the authorization rules for one protected resource.
type Resource struct {
	Authorization Authorization `json:"authorization"`
}

// Authorization names the credential type, the trusted issuers, and the
// claim filters a presented credential must satisfy.
type Authorization struct {
	Type           string                   `json:"type"`
	TrustedIssuers map[string]TrustedIssuer `json:"trusted_issuers"`
	Filters        [][]string               `json:"filters"`
}

// TrustedIssuer is one entry of the trusted issuer set, keyed by DID.
type TrustedIssuer struct {
	IssuerKey     string `json:"issuer_key"`
	IssuerKeyType string `json:"issuer_key_type"`
}

// Provider loads DID artifacts from the files named by the configuration.
type Provider struct {
	cfg config.DIDConfig
}

// NewProvider creates a Provider over the did configuration section.
func NewProvider(cfg config.DIDConfig) *Provider {
	return &Provider{cfg: cfg}
}

// IssueJWT returns the pre-provisioned verifiable credential for the
// resource, with surrounding whitespace stripped.
func (p *Provider) IssueJWT(resourceID string) (string, error) {
	res, ok := p.cfg.Resources[resourceID]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownResource, resourceID)
	}

	raw, err := os.ReadFile(res.JWT)
	if err != nil {
		return "", fmt.Errorf("did: cannot read credential for %q: %w", resourceID, err)
	}

	return strings.TrimSpace(string(raw)), nil
}

// GenerateConfig builds the verifier configuration that authorizes CONTROL
// over the resource for credentials signed by the issuer DID.
func (p *Provider) GenerateConfig(resourceID string) (*VerifierConfig, error) {
	raw, err := os.ReadFile(p.cfg.IssuerDID)
	if err != nil {
		return nil, fmt.Errorf("did: cannot read issuer DID: %w", err)
	}
	issuerDID := strings.TrimSpace(string(raw))

	filter := fmt.Sprintf("$.vc.credentialSubject.capabilities.'%s'[*]", resourceID)

	return &VerifierConfig{
		Resources: map[string]Resource{
			"sim-drone-id": {
				Authorization: Authorization{
					Type: "jwt-vc",
					TrustedIssuers: map[string]TrustedIssuer{
						issuerDID: {
							IssuerKey:     issuerDID,
							IssuerKeyType: "did",
						},
					},
					Filters: [][]string{{filter, "CONTROL"}},
				},
			},
		},
	}, nil
}
