package settled

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for settled.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	DatabasePath  string          `yaml:"database"`
	Ledger        LedgerConfig    `yaml:"ledger"`
	Authority     AuthorityConfig `yaml:"authority"`
	Engine        EngineConfig    `yaml:"engine"`
	Admin         AdminConfig     `yaml:"admin"`
	Log           LogConfig       `yaml:"log"`
}

// LedgerConfig points the daemon at the ledger node RPC endpoint.
type LedgerConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Timeout  Duration `yaml:"timeout"`
}

// AuthorityConfig carries the settlement authority signing key. Exactly one
// of key, key_file, or key_env must yield a hex-encoded private key.
type AuthorityConfig struct {
	Key     string `yaml:"key"`
	KeyFile string `yaml:"key_file"`
	KeyEnv  string `yaml:"key_env"`
	// Keystore points at an encrypted v3 keystore file; when set it takes the
	// place of the raw hex key sources above.
	Keystore              string `yaml:"keystore"`
	KeystorePassphraseEnv string `yaml:"keystore_passphrase_env"`
}

// EngineConfig tunes batch planning, dispatch, and fee estimation.
type EngineConfig struct {
	MaxGroupItems      int     `yaml:"max_group_items"`
	MaxGroupAmount     uint64  `yaml:"max_group_amount"`
	MaxBatchClaims     int     `yaml:"max_batch_claims"`
	MaxInFlight        int     `yaml:"max_in_flight"`
	SubmitRate         float64 `yaml:"submit_rate"`
	BaseFee            uint64  `yaml:"base_fee"`
	AccountCreationFee uint64  `yaml:"account_creation_fee"`
}

// AdminConfig captures API authentication settings.
type AdminConfig struct {
	BearerToken     string `yaml:"bearer_token"`
	BearerTokenFile string `yaml:"bearer_token_file"`
}

// LogConfig selects an optional rotated file sink alongside stdout.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Authority.normalise(); err != nil {
		return cfg, fmt.Errorf("authority key: %w", err)
	}
	if err := cfg.Admin.normalise(); err != nil {
		return cfg, fmt.Errorf("admin security: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.Ledger.Timeout.Duration == 0 {
		cfg.Ledger.Timeout.Duration = 15 * time.Second
	}
	if cfg.Engine.MaxGroupItems <= 0 {
		cfg.Engine.MaxGroupItems = 64
	}
	if cfg.Engine.MaxGroupAmount == 0 {
		cfg.Engine.MaxGroupAmount = 1_000_000_000_000
	}
	if cfg.Engine.MaxBatchClaims <= 0 {
		cfg.Engine.MaxBatchClaims = 1024
	}
	if cfg.Engine.MaxInFlight <= 0 {
		cfg.Engine.MaxInFlight = 4
	}
	if cfg.Engine.BaseFee == 0 {
		cfg.Engine.BaseFee = 5_000
	}
	if cfg.Engine.AccountCreationFee == 0 {
		cfg.Engine.AccountCreationFee = 1_000_000
	}
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return fmt.Errorf("database path must be configured")
	}
	if strings.TrimSpace(cfg.Ledger.Endpoint) == "" {
		return fmt.Errorf("ledger endpoint must be configured")
	}
	if strings.TrimSpace(cfg.Authority.Key) == "" && strings.TrimSpace(cfg.Authority.Keystore) == "" {
		return fmt.Errorf("authority key must be configured")
	}
	if cfg.Admin.BearerToken == "" {
		return fmt.Errorf("bearer_token must be configured for API authentication")
	}
	return nil
}

func (a *AuthorityConfig) normalise() error {
	if a == nil {
		return fmt.Errorf("authority configuration missing")
	}
	a.Key = strings.TrimSpace(a.Key)
	a.KeyEnv = strings.TrimSpace(a.KeyEnv)
	a.KeyFile = strings.TrimSpace(a.KeyFile)
	a.Keystore = strings.TrimSpace(a.Keystore)
	a.KeystorePassphraseEnv = strings.TrimSpace(a.KeystorePassphraseEnv)
	if a.Key != "" || a.Keystore != "" {
		return nil
	}
	switch {
	case a.KeyEnv != "":
		value := strings.TrimSpace(os.Getenv(a.KeyEnv))
		if value == "" {
			return fmt.Errorf("key_env %s is empty", a.KeyEnv)
		}
		a.Key = value
	case a.KeyFile != "":
		contents, err := os.ReadFile(a.KeyFile)
		if err != nil {
			return fmt.Errorf("read key_file: %w", err)
		}
		a.Key = strings.TrimSpace(string(contents))
	default:
		return fmt.Errorf("key is required")
	}
	return nil
}

func (a *AdminConfig) normalise() error {
	if a == nil {
		return fmt.Errorf("admin configuration missing")
	}
	token := strings.TrimSpace(a.BearerToken)
	if path := strings.TrimSpace(a.BearerTokenFile); path != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read bearer_token_file: %w", err)
		}
		token = strings.TrimSpace(string(contents))
	}
	a.BearerToken = token
	return nil
}
