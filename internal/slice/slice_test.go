package slice_test

import (
	"context"
	"errors"
	"testing"

	"github.com/flyvercity/c2ng/internal/config"
	"github.com/flyvercity/c2ng/internal/slice"
)

func simulatedConfig() config.SliceConfig {
	return config.SliceConfig{
		Provider: "simulated",
		Simulated: config.SimulatedSliceConfig{
			UE:      "10.0.0.2",
			ADX:     "10.0.0.3",
			Gateway: "10.0.0.1",
		},
	}
}

func TestNew_Simulated(t *testing.T) {
	provider, err := slice.New(simulatedConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := provider.Establish(ctx); err != nil {
		t.Fatalf("Establish: %v", err)
	}

	ue, err := provider.UECreds(ctx, "123456789012345")
	if err != nil {
		t.Fatalf("UECreds: %v", err)
	}
	if ue.IP != "10.0.0.2" || ue.Gateway != "10.0.0.1" {
		t.Errorf("UECreds = %+v, want IP 10.0.0.2 gateway 10.0.0.1", ue)
	}

	adx, err := provider.ADXCreds(ctx, "drone-1")
	if err != nil {
		t.Fatalf("ADXCreds: %v", err)
	}
	if adx.IP != "10.0.0.3" || adx.Gateway != "10.0.0.1" {
		t.Errorf("ADXCreds = %+v, want IP 10.0.0.3 gateway 10.0.0.1", adx)
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := slice.New(config.SliceConfig{Provider: "metropolis"})
	if err == nil {
		t.Fatal("expected error for unknown provider, got nil")
	}
}

func TestCucumore_EstablishValidatesEndpoint(t *testing.T) {
	provider, err := slice.New(config.SliceConfig{
		Provider: "cucumore",
		Cucumore: config.CucumoreSliceConfig{Endpoint: "http://cucumore:8080"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := provider.Establish(context.Background()); err != nil {
		t.Errorf("Establish with valid endpoint: %v", err)
	}

	bad, err := slice.New(config.SliceConfig{
		Provider: "cucumore",
		Cucumore: config.CucumoreSliceConfig{Endpoint: "not a url"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := bad.Establish(context.Background()); err == nil {
		t.Error("expected error for invalid endpoint, got nil")
	}
}

func TestCucumore_AllocationNotImplemented(t *testing.T) {
	provider, err := slice.New(config.SliceConfig{
		Provider: "cucumore",
		Cucumore: config.CucumoreSliceConfig{Endpoint: "http://cucumore:8080"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if _, err := provider.UECreds(ctx, "123456789012345"); !errors.Is(err, slice.ErrNotImplemented) {
		t.Errorf("UECreds error = %v, want ErrNotImplemented", err)
	}
	if _, err := provider.ADXCreds(ctx, "drone-1"); !errors.Is(err, slice.ErrNotImplemented) {
		t.Errorf("ADXCreds error = %v, want ErrNotImplemented", err)
	}
}
