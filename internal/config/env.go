package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"

	"github.com/AlexZinkM/local-keystore/internal/store"
)

const (
	ProfileDevelopment = "development"
	ProfileProduction  = "production"

	BackendFile = store.BackendFile
	BackendBolt = store.BackendBolt
)

// Config contains all configuration parameters for the application.
// Note: the keystore secret is kept out of this struct - use KeystoreSecret()
type Config struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	Profile         string        `envconfig:"APP_PROFILE" default:"development"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	KeystoreBackend string        `envconfig:"KEYSTORE_BACKEND" default:"file"`
	KeystorePath    string        `envconfig:"KEYSTORE_PATH"`
	KeystoreSalt    string        `envconfig:"KEYSTORE_SALT" default:"local-keystore/v1"`
	ScryptN         int           `envconfig:"KEYSTORE_SCRYPT_N" default:"262144"`
	IOTimeout       time.Duration `envconfig:"KEYSTORE_IO_TIMEOUT" default:"5s"`
	KeygenWorkers   int           `envconfig:"KEYGEN_WORKERS" default:"0"`
	SolanaRPCURL    string        `envconfig:"SOLANA_RPC_URL" default:"https://api.mainnet-beta.solana.com"`
	RefreshInterval time.Duration `envconfig:"BALANCE_REFRESH_INTERVAL" default:"1m"`
	BalanceRPS      float64       `envconfig:"BALANCE_RPS" default:"2"`
}

// cfg is the global configuration instance
var cfg *Config

// Init loads configuration from environment variables.
func Init() error {
	c, err := Load()
	if err != nil {
		return err
	}
	cfg = c
	return nil
}

// Load reads and validates configuration from environment variables without
// touching the global instance. overrides run after the environment is read
// and before validation.
func Load(overrides ...func(*Config)) (*Config, error) {
	c := &Config{}
	if err := envconfig.Process("", c); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	for _, o := range overrides {
		o(c)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks enumerated and ranged values.
func (c *Config) Validate() error {
	switch c.Profile {
	case ProfileDevelopment, ProfileProduction:
	default:
		return fmt.Errorf("APP_PROFILE must be %q or %q, got %q", ProfileDevelopment, ProfileProduction, c.Profile)
	}
	switch c.KeystoreBackend {
	case BackendFile, BackendBolt:
	default:
		return fmt.Errorf("KEYSTORE_BACKEND must be %q or %q, got %q", BackendFile, BackendBolt, c.KeystoreBackend)
	}
	if c.KeystorePath == "" {
		return errors.New("KEYSTORE_PATH is required")
	}
	if c.KeystoreSalt == "" {
		return errors.New("KEYSTORE_SALT cannot be empty")
	}
	if c.ScryptN < 2 || c.ScryptN&(c.ScryptN-1) != 0 {
		return fmt.Errorf("KEYSTORE_SCRYPT_N must be a power of two, got %d", c.ScryptN)
	}
	if c.BalanceRPS <= 0 {
		return fmt.Errorf("BALANCE_RPS must be positive, got %v", c.BalanceRPS)
	}
	return nil
}

// IsProduction reports whether the production profile is active.
func (c *Config) IsProduction() bool {
	return c.Profile == ProfileProduction
}

// Get returns the global configuration instance.
// Panics if Init() was not called.
func Get() *Config {
	if cfg == nil {
		panic("config not initialized, call Init() first")
	}
	return cfg
}

// SecretSource says where the keystore secret came from.
type SecretSource string

const (
	SecretFromEnv      SecretSource = "env"
	SecretFromPrompt   SecretSource = "prompt"
	SecretFromFallback SecretSource = "development-fallback"
)

var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// StdinIsTerminal reports whether the secret can be prompted for.
func StdinIsTerminal() bool {
	return stdinIsTerminal()
}

// ErrSecretMissing is returned in production when KEYSTORE_SECRET is not set.
var ErrSecretMissing = errors.New("KEYSTORE_SECRET is not set: refusing to start the production profile without a keystore secret")

// KeystoreSecret returns the secret the process key is derived from.
//
// KEYSTORE_SECRET wins when set. Without it, production fails; development
// prompts on a terminal and otherwise falls back to fallback. The caller must
// log a loud warning for SecretFromFallback and zero the returned slice after use.
func KeystoreSecret(c *Config, fallback string) ([]byte, SecretSource, error) {
	if v, ok := os.LookupEnv("KEYSTORE_SECRET"); ok && v != "" {
		return []byte(v), SecretFromEnv, nil
	}
	if c.IsProduction() {
		return nil, "", ErrSecretMissing
	}
	if stdinIsTerminal() {
		secret, err := PromptForSecret()
		if err != nil {
			return nil, "", err
		}
		return secret, SecretFromPrompt, nil
	}
	return []byte(fallback), SecretFromFallback, nil
}

// PromptForSecret prompts the user for the keystore secret in the terminal.
// The secret is read without echoing (hidden input).
func PromptForSecret() ([]byte, error) {
	if !stdinIsTerminal() {
		return nil, errors.New("stdin is not a terminal: set KEYSTORE_SECRET or run interactively")
	}
	fmt.Fprint(os.Stderr, "Enter keystore secret: ")
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("secret cannot be empty")
	}

	secret := make([]byte, len(raw))
	copy(secret, raw)
	clear(raw)
	return secret, nil
}
