// Package slice allocates network addresses for C2 endpoints on the
// underlying cellular slice. Aerial units are identified by IMSI, ground
// clients by an opaque uid; both receive an IP and a gateway.
package slice

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/flyvercity/c2ng/internal/config"
)

// Creds is one allocated address pair.
type Creds struct {
	IP      string
	Gateway string
}

// Provider allocates slice addresses for aerial and ground endpoints.
type Provider interface {
	// Establish prepares the slice before the service starts accepting
	// sessions.
	Establish(ctx context.Context) error

	// UECreds allocates an address for the aerial unit identified by imsi.
	UECreds(ctx context.Context, imsi string) (*Creds, error)

	// ADXCreds allocates an address for the ground client identified by
	// uid.
	ADXCreds(ctx context.Context, uid string) (*Creds, error)
}

// New selects a provider implementation by cfg.Provider.
func New(cfg config.SliceConfig) (Provider, error) {
	switch cfg.Provider {
	case "simulated":
		return &Simulated{cfg: cfg.Simulated}, nil
	case "cucumore":
		return &Cucumore{endpoint: cfg.Cucumore.Endpoint}, nil
	}
	return nil, fmt.Errorf("slice: unknown network provider %q", cfg.Provider)
}

// Simulated returns fixed addresses from configuration. It backs development
// and integration environments that run without a live 5G core.
type Simulated struct {
	cfg config.SimulatedSliceConfig
}

// Establish is a no-op for the simulated slice.
func (s *Simulated) Establish(ctx context.Context) error {
	return nil
}

// UECreds returns the configured aerial address.
func (s *Simulated) UECreds(ctx context.Context, imsi string) (*Creds, error) {
	return &Creds{IP: s.cfg.UE, Gateway: s.cfg.Gateway}, nil
}

// ADXCreds returns the configured ground address.
func (s *Simulated) ADXCreds(ctx context.Context, uid string) (*Creds, error) {
	return &Creds{IP: s.cfg.ADX, Gateway: s.cfg.Gateway}, nil
}

// ErrNotImplemented is returned by the cucumore provider's allocation calls
// until the orchestrator integration lands.
var ErrNotImplemented = errors.New("slice: cucumore provider not implemented")

// Cucumore drives an external cucumore slice orchestrator. Only endpoint
// validation is wired up; allocation calls fail with ErrNotImplemented.
type Cucumore struct {
	endpoint string
}

// Establish verifies that the configured orchestrator endpoint is a usable
// URL.
func (c *Cucumore) Establish(ctx context.Context) error {
	u, err := url.Parse(c.endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("slice: invalid cucumore endpoint %q", c.endpoint)
	}
	return nil
}

// UECreds is not implemented for the cucumore provider.
func (c *Cucumore) UECreds(ctx context.Context, imsi string) (*Creds, error) {
	return nil, ErrNotImplemented
}

// ADXCreds is not implemented for the cucumore provider.
func (c *Cucumore) ADXCreds(ctx context.Context, uid string) (*Creds, error) {
	return nil, ErrNotImplemented
}
