// Package config defines the configuration contract and handles loading and
// validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken     = "TELEGRAM_TOKEN"
	KeyMongoURI          = "MONGO_URI"
	KeyMongoDB           = "MONGO_DB"
	KeyRedisAddr         = "REDIS_ADDR"
	KeyRedisPassword     = "REDIS_PASSWORD"
	KeyRedisDB           = "REDIS_DB"
	KeyAppEnv            = "APP_ENV"
	KeyLogLevel          = "LOG_LEVEL"
	KeyHTTPPort          = "HTTP_PORT"
	KeyStrictCommands    = "STRICT_COMMANDS"
	KeyPrayerCity        = "PRAYER_CITY"
	KeyDownloadProviders = "DOWNLOAD_PROVIDERS"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv     = EnvProduction
	DefaultLogLevel   = "info"
	DefaultHTTPPort   = 8080
	DefaultRedisAddr  = "localhost:6379"
	DefaultRedisDB    = 0
	DefaultPrayerCity = "Istanbul"

	// Recommended database names by environment.
	DefaultMongoDBProd = "assistant_bot"
	DefaultMongoDBDev  = "assistant_bot_dev"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Required:    true,
		Description: "MongoDB connection string for the ledger store.",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Required:    true,
		Description: "MongoDB database name.",
		Notes:       "Recommended: production=" + DefaultMongoDBProd + ", development=" + DefaultMongoDBDev + ".",
	},
	{
		Key:         KeyRedisAddr,
		Example:     DefaultRedisAddr,
		Default:     DefaultRedisAddr,
		Description: "Redis address for the resolved-link cache.",
	},
	{
		Key:         KeyRedisPassword,
		Example:     "secret",
		Description: "Redis password; empty when the deployment does not require auth.",
	},
	{
		Key:         KeyRedisDB,
		Example:     strconv.Itoa(DefaultRedisDB),
		Default:     strconv.Itoa(DefaultRedisDB),
		Description: "Redis logical database index.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP health/diagnostics port.",
	},
	{
		Key:         KeyStrictCommands,
		Example:     "true",
		Default:     "true",
		Description: "Fail startup when two commands register the same name or alias.",
		Notes:       "Set to false to restore last-registration-wins behavior.",
	},
	{
		Key:         KeyPrayerCity,
		Example:     DefaultPrayerCity,
		Default:     DefaultPrayerCity,
		Description: "Default city for /prayer lookups when no argument is given.",
	},
	{
		Key:         KeyDownloadProviders,
		Example:     "https://dl-one.example/api,https://dl-two.example/api",
		Description: "Comma-separated download resolver endpoints raced by /auto.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken     string
	MongoURI          string
	MongoDB           string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	AppEnv            string
	LogLevel          string
	HTTPPort          int
	StrictCommands    bool
	PrayerCity        string
	DownloadProviders []string
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:         firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken:  strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		MongoURI:       strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:        strings.TrimSpace(os.Getenv(KeyMongoDB)),
		RedisAddr:      firstNonEmpty(strings.TrimSpace(os.Getenv(KeyRedisAddr)), DefaultRedisAddr),
		RedisPassword:  strings.TrimSpace(os.Getenv(KeyRedisPassword)),
		RedisDB:        DefaultRedisDB,
		LogLevel:       firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:       DefaultHTTPPort,
		StrictCommands: true,
		PrayerCity:     firstNonEmpty(strings.TrimSpace(os.Getenv(KeyPrayerCity)), DefaultPrayerCity),
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}

	if cfg.MongoURI == "" {
		missing = append(missing, KeyMongoURI)
	} else if !strings.HasPrefix(cfg.MongoURI, "mongodb://") && !strings.HasPrefix(cfg.MongoURI, "mongodb+srv://") {
		return Config{}, fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURI)
	}

	if cfg.MongoDB == "" {
		missing = append(missing, KeyMongoDB)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	redisDBRaw := strings.TrimSpace(os.Getenv(KeyRedisDB))
	if redisDBRaw != "" {
		db, parseErr := strconv.Atoi(redisDBRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyRedisDB, parseErr)
		}
		if db < 0 {
			return Config{}, fmt.Errorf("%s must not be negative", KeyRedisDB)
		}
		cfg.RedisDB = db
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	strictRaw := strings.TrimSpace(os.Getenv(KeyStrictCommands))
	if strictRaw != "" {
		strict, parseErr := strconv.ParseBool(strictRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyStrictCommands, parseErr)
		}
		cfg.StrictCommands = strict
	}

	providersRaw := strings.TrimSpace(os.Getenv(KeyDownloadProviders))
	if providersRaw != "" {
		for _, provider := range strings.Split(providersRaw, ",") {
			provider = strings.TrimSpace(provider)
			if provider == "" {
				continue
			}
			if !strings.HasPrefix(provider, "http://") && !strings.HasPrefix(provider, "https://") {
				return Config{}, fmt.Errorf("invalid %s: endpoint %q must be an http(s) URL", KeyDownloadProviders, provider)
			}
			cfg.DownloadProviders = append(cfg.DownloadProviders, provider)
		}
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// FormatRedacted renders the configuration for diagnostics with secrets masked.
func FormatRedacted(cfg Config) string {
	var b strings.Builder

	fmt.Fprintf(&b, "app_env: %s\n", cfg.AppEnv)
	fmt.Fprintf(&b, "telegram_token: %s\n", maskToken(cfg.TelegramToken))
	fmt.Fprintf(&b, "mongo_uri: %s\n", redactURI(cfg.MongoURI))
	fmt.Fprintf(&b, "mongo_db: %s\n", cfg.MongoDB)
	fmt.Fprintf(&b, "redis_addr: %s\n", cfg.RedisAddr)
	fmt.Fprintf(&b, "redis_db: %d\n", cfg.RedisDB)
	fmt.Fprintf(&b, "log_level: %s\n", cfg.LogLevel)
	fmt.Fprintf(&b, "http_port: %d\n", cfg.HTTPPort)
	fmt.Fprintf(&b, "strict_commands: %t\n", cfg.StrictCommands)
	fmt.Fprintf(&b, "prayer_city: %s\n", cfg.PrayerCity)
	fmt.Fprintf(&b, "download_providers: %d configured\n", len(cfg.DownloadProviders))

	return b.String()
}

func maskToken(token string) string {
	if len(token) <= 4 {
		return "redacted"
	}
	return token[:4] + "...redacted"
}

// redactURI strips the userinfo portion from a connection string so credentials
// never reach logs.
func redactURI(uri string) string {
	schemeEnd := strings.Index(uri, "://")
	if schemeEnd < 0 {
		return uri
	}
	rest := uri[schemeEnd+3:]
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return uri
	}
	return uri[:schemeEnd+3] + rest[at+1:]
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
