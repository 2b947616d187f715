// Package config loads dispatch-plane configuration from a file plus
// environment overrides, using spf13/viper the way cmd/cobra_cli.go wires
// it. Configuration is loaded once at startup and passed explicitly into
// each component: no singletons.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Database holds the Task Store connection settings.
type Database struct {
	ConnectionString string `mapstructure:"connection_string"`
}

// ObjectStorage holds the Artifact Store (S3-compatible) connection
// settings.
type ObjectStorage struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
}

// Auth holds signing-key and OAuth settings for user authentication.
type Auth struct {
	EncodingKey       string `mapstructure:"encoding_key"`
	OAuthClientID     string `mapstructure:"oauth_client_id"`
	OAuthClientSecret string `mapstructure:"oauth_client_secret"`
	OAuthRedirectURL  string `mapstructure:"oauth_redirect_url"`
}

// Token holds the token-verification settings workers and users share the
// x-access-token header with.
type Token struct {
	DecodingKey string `mapstructure:"decoding_key"`
	WorkerToken string `mapstructure:"worker_token"`
}

// Server holds the Dispatcher API's listen settings.
type Server struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	GRPCPort    int    `mapstructure:"grpc_port"`
	Environment string `mapstructure:"environment"`
}

// Worker holds Worker Client settings.
type Worker struct {
	Endpoint       string        `mapstructure:"endpoint"`
	StallThreshold time.Duration `mapstructure:"stall_threshold"`
}

// MetricsPush holds the optional outbound metrics-push-loop settings.
type MetricsPush struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Config is the fully resolved dispatch-plane configuration.
type Config struct {
	Database      Database      `mapstructure:"database"`
	ObjectStorage ObjectStorage `mapstructure:"object_storage"`
	Auth          Auth          `mapstructure:"auth"`
	Token         Token         `mapstructure:"token"`
	Server        Server        `mapstructure:"server"`
	Worker        Worker        `mapstructure:"worker"`
	MetricsPush   MetricsPush   `mapstructure:"metrics_push"`
}

// envPrefix namespaces environment-variable overrides, e.g.
// DISPATCH_DATABASE_CONNECTION_STRING.
const envPrefix = "DISPATCH"

// Load reads configFile (if it exists) and layers environment-variable
// overrides on top, returning the resolved Config.
func Load(configFile string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// With an explicit SetConfigFile path, a missing file surfaces as
		// an fs.ErrNotExist path error rather than ConfigFileNotFoundError.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 8081)
	v.SetDefault("server.environment", "production")
	v.SetDefault("worker.endpoint", "http://localhost:8080")
	v.SetDefault("worker.stall_threshold", 5*time.Minute)
	v.SetDefault("object_storage.bucket", "sandbox")
	v.SetDefault("metrics_push.enabled", false)
}
