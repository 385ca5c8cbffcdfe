package config

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common"
	"github.com/hertarr/ordi/pkg/logger"
	"github.com/hertarr/ordi/pkg/logger/slogx"
	"github.com/hertarr/ordi/pkg/middleware/requestlogger"
	ordinalsconfig "github.com/hertarr/ordi/modules/ordinals/config"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	configOnce sync.Once
	config     = &Config{
		Logger: logger.Config{
			Output: "text",
		},
		BitcoinNode: BitcoinNodeClient{
			User: "user",
			Pass: "pass",
		},
		Network: common.NetworkMainnet,
		HTTPServer: HTTPServerConfig{
			Port: 8080,
		},
		Ordinals: ordinalsconfig.Default(),
	}
)

type Config struct {
	Logger      logger.Config         `mapstructure:"logger"`
	BitcoinNode BitcoinNodeClient     `mapstructure:"bitcoin_node"`
	Network     common.Network        `mapstructure:"network"`
	HTTPServer  HTTPServerConfig      `mapstructure:"http_server"`
	Ordinals    ordinalsconfig.Config `mapstructure:"ordinals"`
}

type BitcoinNodeClient struct {
	Host       string `mapstructure:"host"`
	User       string `mapstructure:"user"`
	Pass       string `mapstructure:"pass"`
	DisableTLS bool   `mapstructure:"disable_tls"`
}

// HTTPServerConfig controls the metrics and health endpoint.
type HTTPServerConfig struct {
	Enabled bool                 `mapstructure:"enabled"`
	Port    int                  `mapstructure:"port"`
	Logger  requestlogger.Config `mapstructure:"logger"`
}

// Parse reads the configuration once, from configFile when given or
// ./config.yaml otherwise, overlaid with environment variables and bound flags.
func Parse(configFile string) Config {
	ctx := logger.WithContext(context.Background(), slogx.String("package", "config"))
	configOnce.Do(func() {
		if configFile != "" {
			viper.SetConfigFile(configFile)
		} else {
			viper.AddConfigPath("./")
			viper.SetConfigName("config")
		}

		viper.AutomaticEnv()
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		if err := viper.ReadInConfig(); err != nil {
			var errNotfound viper.ConfigFileNotFoundError
			if errors.As(err, &errNotfound) {
				logger.WarnContext(ctx, "Config file not found, use default value", slogx.Error(err))
			} else {
				logger.FatalContext(ctx, "Invalid config file", slogx.Error(err))
			}
		}

		if err := viper.Unmarshal(&config); err != nil {
			logger.FatalContext(ctx, "Failed to unmarshal config", slogx.Error(err))
		}
		logger.DebugContext(ctx, "Loaded config", slogx.String("file", viper.ConfigFileUsed()))
	})

	return *config
}

// Load returns the configuration read by Parse.
func Load() Config {
	return *config
}

// BindPFlag binds a configuration key to a command line flag.
func BindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		logger.Fatal("Failed to bind flag", slogx.String("key", key), slogx.Error(err))
	}
}
