// Package config provides YAML configuration loading and validation for the
// C2NG service.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPort is the HTTP listen port used when service.port is omitted.
const DefaultPort = 9090

// Config is the top-level configuration structure for the C2NG service.
// Secrets are never stored here: the UAS credential passphrase, the USS
// client secret, and the WebSocket ticket secret come from the environment
// (C2NG_UAS_CLIENT_SECRET, C2NG_USS_CLIENT_SECRET, C2NG_WS_AUTH_SECRET).
type Config struct {
	// Service holds the HTTP listener settings.
	Service ServiceConfig `yaml:"service"`

	// Logging controls log verbosity.
	Logging LoggingConfig `yaml:"logging"`

	// Mongo holds the session store connection settings. Required.
	Mongo MongoConfig `yaml:"mongo"`

	// USS describes the UAS Service Supplier approval endpoint and the
	// OAuth client used to authenticate against it. Required.
	USS USSConfig `yaml:"uss"`

	// Slice selects and configures the network slice provider. Required.
	Slice SliceConfig `yaml:"sliceman"`

	// Security holds the root certificate material used to mint client
	// credentials. Required.
	Security SecurityConfig `yaml:"security"`

	// Influx holds the telemetry store connection settings. Required.
	Influx InfluxConfig `yaml:"influx"`

	// DID configures the verifiable credential lookup for drone identity.
	DID DIDConfig `yaml:"did"`

	// OAuth describes the identity provider used to verify inbound bearer
	// tokens. Required.
	OAuth OAuthConfig `yaml:"oauth"`
}

// ServiceConfig holds HTTP listener settings.
type ServiceConfig struct {
	// Port is the TCP port the service listens on. Defaults to 9090 when
	// omitted.
	Port int `yaml:"port"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Verbose enables debug-level logging when true.
	Verbose bool `yaml:"verbose"`
}

// MongoConfig holds session store connection settings.
type MongoConfig struct {
	// URI is the MongoDB connection string
	// (e.g. "mongodb://mongo:27017"). Required.
	URI string `yaml:"uri"`
}

// USSConfig describes the external UAS Service Supplier.
type USSConfig struct {
	// Endpoint is the base URL of the USS approval API
	// (e.g. "http://uss-sim:9091"). Required.
	Endpoint string `yaml:"endpoint"`

	// OAuth is the identity provider the service authenticates against
	// when calling the USS. Required.
	OAuth OAuthConfig `yaml:"oauth"`
}

// OAuthConfig wraps the Keycloak settings of an identity provider.
type OAuthConfig struct {
	// Keycloak holds the provider endpoint coordinates. Required.
	Keycloak KeycloakConfig `yaml:"keycloak"`
}

// KeycloakConfig locates a Keycloak realm and the client used against it.
type KeycloakConfig struct {
	// Base is the provider base URL (e.g. "http://keycloak:8080").
	// Required.
	Base string `yaml:"base"`

	// Realm is the Keycloak realm name (e.g. "c2ng"). Required.
	Realm string `yaml:"realm"`

	// AuthClientID is the OAuth client id used for client-credentials
	// grants. Only used for outbound calls (uss.oauth).
	AuthClientID string `yaml:"auth-client-id"`

	// RetryTimeout is the delay in seconds between retries when the
	// provider is unreachable. Defaults to 5 when omitted.
	RetryTimeout int `yaml:"retry-timeout"`
}

// TokenURL returns the realm's OAuth2 token endpoint.
func (k KeycloakConfig) TokenURL() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", k.Base, k.Realm)
}

// CertsURL returns the realm's JWKS endpoint.
func (k KeycloakConfig) CertsURL() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", k.Base, k.Realm)
}

// SliceConfig selects the network slice provider implementation.
type SliceConfig struct {
	// Provider is one of "simulated" or "cucumore". Required.
	Provider string `yaml:"provider"`

	// Simulated holds the fixed addresses returned by the simulated
	// provider. Required when Provider is "simulated".
	Simulated SimulatedSliceConfig `yaml:"simulated"`

	// Cucumore holds the external slice orchestrator settings. Required
	// when Provider is "cucumore".
	Cucumore CucumoreSliceConfig `yaml:"cucumore"`
}

// SimulatedSliceConfig holds the fixed addresses of the simulated provider.
type SimulatedSliceConfig struct {
	// UE is the IP address assigned to aerial (UA) clients. Required.
	UE string `yaml:"ue"`

	// ADX is the IP address assigned to ground (ADX) clients. Required.
	ADX string `yaml:"adx"`

	// Gateway is the gateway IP address reported to both sides. Required.
	Gateway string `yaml:"gateway"`
}

// CucumoreSliceConfig holds the external slice orchestrator settings.
type CucumoreSliceConfig struct {
	// Endpoint is the base URL of the orchestrator API. Required when the
	// cucumore provider is selected.
	Endpoint string `yaml:"endpoint"`
}

// SecurityConfig holds the root credential material.
type SecurityConfig struct {
	// Certificate is the path to the PEM-encoded root certificate.
	// Required.
	Certificate string `yaml:"certificate"`

	// Private is the path to the PEM-encoded, passphrase-protected root
	// private key. The passphrase comes from C2NG_UAS_CLIENT_SECRET.
	// Required.
	Private string `yaml:"private"`

	// DefaultTTL is the client certificate lifetime in seconds. Defaults
	// to 86400 (one day) when omitted.
	DefaultTTL int `yaml:"default-ttl"`
}

// InfluxConfig holds telemetry store connection settings. The API token
// comes from the DOCKER_INFLUXDB_INIT_ADMIN_TOKEN environment variable.
type InfluxConfig struct {
	// URI is the InfluxDB base URL (e.g. "http://influxdb:8086").
	// Required.
	URI string `yaml:"uri"`

	// Org is the InfluxDB organization name. Required.
	Org string `yaml:"org"`

	// Bucket is the bucket telemetry points are written to. Required.
	Bucket string `yaml:"bucket"`
}

// DIDConfig configures decentralized identity lookups.
type DIDConfig struct {
	// IssuerDID is the path to a file holding the issuer DID string.
	IssuerDID string `yaml:"issuer-did"`

	// Resources maps a resource identifier to its credential material.
	Resources map[string]DIDResource `yaml:"resources"`
}

// DIDResource locates the credential material of a single resource.
type DIDResource struct {
	// JWT is the path to a file holding the resource's verifiable
	// credential in JWT form.
	JWT string `yaml:"jwt"`
}

// validProviders is the set of accepted slice provider names.
var validProviders = map[string]bool{
	"simulated": true,
	"cucumore":  true,
}

// LoadConfig reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates all required fields. It returns a typed error
// describing every validation failure encountered.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

// applyDefaults fills in zero-value optional fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Service.Port == 0 {
		cfg.Service.Port = DefaultPort
	}
	if cfg.Security.DefaultTTL == 0 {
		cfg.Security.DefaultTTL = 86400
	}
	if cfg.USS.OAuth.Keycloak.RetryTimeout == 0 {
		cfg.USS.OAuth.Keycloak.RetryTimeout = 5
	}
	if cfg.OAuth.Keycloak.RetryTimeout == 0 {
		cfg.OAuth.Keycloak.RetryTimeout = 5
	}
}

// validate checks that all required fields are populated and that enumerated
// fields contain only valid values.
func validate(cfg *Config) error {
	var errs []error

	if cfg.Service.Port < 1 || cfg.Service.Port > 65535 {
		errs = append(errs, fmt.Errorf("service.port %d is out of range", cfg.Service.Port))
	}
	if cfg.Mongo.URI == "" {
		errs = append(errs, errors.New("mongo.uri is required"))
	}
	if cfg.USS.Endpoint == "" {
		errs = append(errs, errors.New("uss.endpoint is required"))
	}
	if cfg.USS.OAuth.Keycloak.Base == "" {
		errs = append(errs, errors.New("uss.oauth.keycloak.base is required"))
	}
	if cfg.USS.OAuth.Keycloak.Realm == "" {
		errs = append(errs, errors.New("uss.oauth.keycloak.realm is required"))
	}
	if cfg.USS.OAuth.Keycloak.AuthClientID == "" {
		errs = append(errs, errors.New("uss.oauth.keycloak.auth-client-id is required"))
	}
	if !validProviders[cfg.Slice.Provider] {
		errs = append(errs, fmt.Errorf("sliceman.provider %q must be one of: simulated, cucumore", cfg.Slice.Provider))
	}
	if cfg.Slice.Provider == "simulated" {
		if cfg.Slice.Simulated.UE == "" {
			errs = append(errs, errors.New("sliceman.simulated.ue is required"))
		}
		if cfg.Slice.Simulated.ADX == "" {
			errs = append(errs, errors.New("sliceman.simulated.adx is required"))
		}
		if cfg.Slice.Simulated.Gateway == "" {
			errs = append(errs, errors.New("sliceman.simulated.gateway is required"))
		}
	}
	if cfg.Slice.Provider == "cucumore" && cfg.Slice.Cucumore.Endpoint == "" {
		errs = append(errs, errors.New("sliceman.cucumore.endpoint is required"))
	}
	if cfg.Security.Certificate == "" {
		errs = append(errs, errors.New("security.certificate is required"))
	}
	if cfg.Security.Private == "" {
		errs = append(errs, errors.New("security.private is required"))
	}
	if cfg.Security.DefaultTTL < 0 {
		errs = append(errs, fmt.Errorf("security.default-ttl %d must be positive", cfg.Security.DefaultTTL))
	}
	if cfg.Influx.URI == "" {
		errs = append(errs, errors.New("influx.uri is required"))
	}
	if cfg.Influx.Org == "" {
		errs = append(errs, errors.New("influx.org is required"))
	}
	if cfg.Influx.Bucket == "" {
		errs = append(errs, errors.New("influx.bucket is required"))
	}
	if cfg.OAuth.Keycloak.Base == "" {
		errs = append(errs, errors.New("oauth.keycloak.base is required"))
	}
	if cfg.OAuth.Keycloak.Realm == "" {
		errs = append(errs, errors.New("oauth.keycloak.realm is required"))
	}

	return errors.Join(errs...)
}
