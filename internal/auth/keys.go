package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/flyvercity/c2ng/internal/config"
)

// FetchKeys downloads the identity provider's JWKS and keeps only its
// signature keys. The service cannot authenticate anything without them, so
// the fetch retries forever with the configured pause; cancel ctx to give
// up.
func FetchKeys(ctx context.Context, cfg config.KeycloakConfig, logger *slog.Logger) (jwk.Set, error) {
	url := cfg.CertsURL()
	pause := time.Duration(cfg.RetryTimeout) * time.Second

	for {
		logger.Info("auth: fetching identity provider keys", slog.String("url", url))

		set, err := jwk.Fetch(ctx, url)
		if err == nil {
			keys := signatureKeys(set)
			logger.Info("auth: identity provider keys loaded", slog.Int("count", keys.Len()))
			return keys, nil
		}

		logger.Warn("auth: cannot fetch identity provider keys, retrying",
			slog.Any("error", err),
			slog.Duration("pause", pause),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pause):
		}
	}
}

// signatureKeys filters a JWKS down to the keys marked for signing use.
func signatureKeys(set jwk.Set) jwk.Set {
	sig := jwk.NewSet()
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		if key.KeyUsage() == "sig" {
			_ = sig.AddKey(key)
		}
	}
	return sig
}
