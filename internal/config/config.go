package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/Alturino/storefront/internal/constants"
)

type Application struct {
	Env       string `mapstructure:"env"        json:"env"`
	Host      string `mapstructure:"host"       json:"host"`
	SecretKey string `mapstructure:"secret_key" json:"-"`
	LogFile   string `mapstructure:"log_file"   json:"log_file"`
	Port      int    `mapstructure:"port"       json:"port"`
}

type Database struct {
	Name           string `mapstructure:"name"            json:"name"`
	Host           string `mapstructure:"host"            json:"host"`
	MigrationPath  string `mapstructure:"migration_path"  json:"migration_path"`
	Password       string `mapstructure:"password"        json:"-"`
	Username       string `mapstructure:"username"        json:"username"`
	MaxConnections int    `mapstructure:"max_connections" json:"max_connections"`
	MinConnections int    `mapstructure:"min_connections" json:"min_connections"`
	Port           uint16 `mapstructure:"port"            json:"port"`
}

type Cache struct {
	Host     string `mapstructure:"host"     json:"host"`
	Password string `mapstructure:"password" json:"-"`
	Database int    `mapstructure:"database" json:"database"`
	Port     uint16 `mapstructure:"port"     json:"port"`
}

type Otel struct {
	Host    string `mapstructure:"host"    json:"host"`
	Port    int    `mapstructure:"port"    json:"port"`
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
}

type Firebase struct {
	ProjectID       string `mapstructure:"project_id"       json:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file" json:"credentials_file"`
}

type Storage struct {
	Remote   string `mapstructure:"remote"    json:"remote"`
	LocalDir string `mapstructure:"local_dir" json:"local_dir"`
}

type Sync struct {
	MaxRetries      uint64        `mapstructure:"max_retries"      json:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval" json:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"     json:"max_interval"`
	MergeGuestCart  bool          `mapstructure:"merge_guest_cart" json:"merge_guest_cart"`
}

type Checkout struct {
	ProcessingDelay time.Duration `mapstructure:"processing_delay" json:"processing_delay"`
	TaxRate         string        `mapstructure:"tax_rate"         json:"tax_rate"`
}

type Auth struct {
	Provider string        `mapstructure:"provider"  json:"provider"`
	TokenTTL time.Duration `mapstructure:"token_ttl" json:"token_ttl"`
}

type Config struct {
	Database    `mapstructure:"db"          json:"db"`
	Cache       `mapstructure:"cache"       json:"cache"`
	Application `mapstructure:"application" json:"application"`
	Otel        `mapstructure:"otel"        json:"otel"`
	Firebase    `mapstructure:"firebase"    json:"firebase"`
	Storage     `mapstructure:"storage"     json:"storage"`
	Sync        `mapstructure:"sync"        json:"sync"`
	Checkout    `mapstructure:"checkout"    json:"checkout"`
	Auth        `mapstructure:"auth"        json:"auth"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("application.env", constants.ENV_DEVELOPMENT)
	v.SetDefault("application.host", "0.0.0.0")
	v.SetDefault("application.port", 8080)
	v.SetDefault("storage.remote", constants.REMOTE_MEMORY)
	v.SetDefault("storage.local_dir", ".storefront")
	v.SetDefault("sync.max_retries", 5)
	v.SetDefault("sync.initial_interval", 200*time.Millisecond)
	v.SetDefault("sync.max_interval", 5*time.Second)
	v.SetDefault("sync.merge_guest_cart", false)
	v.SetDefault("checkout.processing_delay", 3*time.Second)
	v.SetDefault("checkout.tax_rate", "0.1")
	v.SetDefault("auth.provider", constants.AUTH_PROVIDER_JWT)
	v.SetDefault("auth.token_ttl", 30*time.Minute)
	v.SetDefault("db.migration_path", "file://migrations")
	v.SetDefault("db.max_connections", 10)
	v.SetDefault("db.min_connections", 2)
}

// Load reads env/<filename>.yaml. A missing file is not an error: defaults
// and environment variables (STOREFRONT_SYNC_MAX_RETRIES, ...) still apply.
func Load(c context.Context, filename string, paths ...string) (*Config, error) {
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "config Load").
		Str(constants.KEY_PROCESS, "loading config").
		Str("filename", filename).
		Logger()

	v := viper.New()
	v.SetConfigName(filename)
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./env"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix(constants.APP_STOREFRONT)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	logger = logger.With().Str(constants.KEY_PROCESS, "reading config").Logger()
	logger.Debug().Msg("reading config")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			err = fmt.Errorf("failed reading config with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
			return nil, err
		}
		logger.Debug().Msg("config file not found using defaults")
	} else {
		logger.Debug().Msg("read config")
	}

	logger = logger.With().Str(constants.KEY_PROCESS, "unmarshaling config").Logger()
	logger.Debug().Msg("unmarshaling config")
	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		err = fmt.Errorf("failed unmarshaling config with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Debug().Any(constants.KEY_CONFIG, cfg).Msg("unmarshaled config")

	return &cfg, nil
}
