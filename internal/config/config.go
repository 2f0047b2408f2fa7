package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "Renmo"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultLedgerURL       = "wss://s.altnet.rippletest.net:51233"
	defaultFaucetURL       = "https://faucet.altnet.rippletest.net"
	defaultTokenCurrency   = "USD"
	defaultTokenIssuer     = "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"
	defaultLookahead       = 10
	defaultPollInterval    = 3 * time.Second
	defaultPollAttempts    = 20
	defaultWalletFile      = "renmo_wallets.json"
	defaultWalletSlot      = "renmo_wallets"
	defaultPinataAPIURL    = "https://api.pinata.cloud"
	defaultPinataGateway   = "https://gateway.pinata.cloud"
	defaultMetadataDB      = "renmo_metadata.db"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Ledger backends.
const (
	LedgerXRPL   = "xrpl"
	LedgerMemory = "memory"
)

// Wallet store backends.
const (
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Metadata backends.
const (
	MetadataPinata = "pinata"
	MetadataSQLite = "sqlite"
	MetadataMemory = "memory"
	MetadataNone   = "none"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	AppEnv   string
	Port     string
	LogLevel string

	LedgerBackend string
	LedgerURL     string
	FaucetURL     string
	TokenCurrency string
	TokenIssuer   string
	Lookahead     uint32
	PollInterval  time.Duration
	PollAttempts  int

	WalletStore      string
	WalletFile       string
	WalletSlot       string
	WalletPassphrase string

	MetadataBackend  string
	PinataJWT        string
	PinataAPIURL     string
	PinataGatewayURL string
	MetadataDB       string

	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:  getEnv("APP_NAME", defaultAppName),
		AppEnv:   getEnv("APP_ENV", defaultAppEnv),
		Port:     getEnv("PORT", defaultPort),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),

		LedgerBackend: strings.ToLower(getEnv("LEDGER_BACKEND", LedgerXRPL)),
		LedgerURL:     getEnv("LEDGER_URL", defaultLedgerURL),
		FaucetURL:     getEnv("FAUCET_URL", defaultFaucetURL),
		TokenCurrency: getEnv("TOKEN_CURRENCY", defaultTokenCurrency),
		TokenIssuer:   getEnv("TOKEN_ISSUER", defaultTokenIssuer),
		Lookahead:     defaultLookahead,
		PollInterval:  defaultPollInterval,
		PollAttempts:  defaultPollAttempts,

		WalletStore:      strings.ToLower(getEnv("WALLET_STORE", StoreFile)),
		WalletFile:       getEnv("WALLET_FILE", defaultWalletFile),
		WalletSlot:       getEnv("WALLET_SLOT", defaultWalletSlot),
		WalletPassphrase: os.Getenv("WALLET_PASSPHRASE"),

		MetadataBackend:  strings.ToLower(getEnv("METADATA_BACKEND", MetadataSQLite)),
		PinataJWT:        os.Getenv("PINATA_JWT"),
		PinataAPIURL:     getEnv("PINATA_API_URL", defaultPinataAPIURL),
		PinataGatewayURL: getEnv("PINATA_GATEWAY_URL", defaultPinataGateway),
		MetadataDB:       getEnv("METADATA_DB", defaultMetadataDB),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   os.Getenv("API_JWT_SECRET"),

		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("LEDGER_LOOKAHEAD"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return Config{}, fmt.Errorf("invalid LEDGER_LOOKAHEAD: %q", v)
		}
		cfg.Lookahead = uint32(n)
	}
	if v := os.Getenv("FUNDING_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid FUNDING_POLL_INTERVAL: %q", v)
		}
		cfg.PollInterval = d
	}
	if v := os.Getenv("FUNDING_POLL_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid FUNDING_POLL_ATTEMPTS: %q", v)
		}
		cfg.PollAttempts = n
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.LedgerBackend {
	case LedgerXRPL, LedgerMemory:
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}

	switch c.WalletStore {
	case StoreFile, StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set when WALLET_STORE=redis")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when WALLET_STORE=postgres")
		}
	default:
		return fmt.Errorf("unknown WALLET_STORE %q", c.WalletStore)
	}

	switch c.MetadataBackend {
	case MetadataSQLite, MetadataMemory, MetadataNone:
	case MetadataPinata:
		if c.PinataJWT == "" {
			return fmt.Errorf("PINATA_JWT must be set when METADATA_BACKEND=pinata")
		}
	default:
		return fmt.Errorf("unknown METADATA_BACKEND %q", c.MetadataBackend)
	}

	if c.TokenCurrency == "" || c.TokenIssuer == "" {
		return fmt.Errorf("TOKEN_CURRENCY and TOKEN_ISSUER must not be empty")
	}
	return nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
