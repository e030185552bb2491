package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/marcelsud/dmz-exchange/message"
	"github.com/spf13/viper"
)

/* Config is loaded with precedence: environment > config file > defaults
 * The config file is CONFIG_FILE if set, otherwise ./config.json when present.
 */

const defaultConfigFile = "./config.json"

type Config struct {
	Port        string `mapstructure:"PORT"`
	NodeVariant string `mapstructure:"NODE_VARIANT"`

	MasterDir string `mapstructure:"MASTER_DIR"`
	TmpDir    string `mapstructure:"TMP_DIR"`

	GatewayURL           string        `mapstructure:"GATEWAY_URL"`
	GatewayTimeout       time.Duration `mapstructure:"GATEWAY_TIMEOUT"`
	GatewaySigningSecret string        `mapstructure:"GATEWAY_SIGNING_SECRET"`

	WhitelistFilePath string `mapstructure:"WHITELIST_FILE_PATH"`
	WhitelistSeedFile string `mapstructure:"WHITELIST_SEED_FILE"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	MaxBodyBytes    int64         `mapstructure:"MAX_BODY_BYTES"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

var defaults = map[string]any{
	"PORT":                   "8000",
	"NODE_VARIANT":           "corporate",
	"MASTER_DIR":             "./data/messages",
	"TMP_DIR":                "./data/tmp",
	"GATEWAY_URL":            "http://localhost:8080",
	"GATEWAY_TIMEOUT":        30 * time.Second,
	"GATEWAY_SIGNING_SECRET": "",
	"WHITELIST_FILE_PATH":    "./data/whitelist.json",
	"WHITELIST_SEED_FILE":    "",
	"REDIS_ADDR":             "",
	"REDIS_PASSWORD":         "",
	"REDIS_DB":               0,
	"MAX_BODY_BYTES":         int64(1 << 20),
	"REQUEST_TIMEOUT":        2 * time.Minute,
	"SHUTDOWN_TIMEOUT":       30 * time.Second,
}

func GetConfig() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	file := os.Getenv("CONFIG_FILE")
	if file == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			file = defaultConfigFile
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &config, nil
}

// Variant returns the schema variant the node speaks
func (c *Config) Variant() (message.Variant, error) {
	return message.ParseVariant(c.NodeVariant)
}

// Validate checks the settings the node cannot start without
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Variant(); err != nil {
		errs = append(errs, err)
	}
	required := map[string]string{
		"PORT":                c.Port,
		"MASTER_DIR":          c.MasterDir,
		"TMP_DIR":             c.TmpDir,
		"GATEWAY_URL":         c.GatewayURL,
		"WHITELIST_FILE_PATH": c.WhitelistFilePath,
	}
	for key, value := range required {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}
	if c.GatewayTimeout <= 0 {
		errs = append(errs, fmt.Errorf("GATEWAY_TIMEOUT must be positive"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_BODY_BYTES must be positive"))
	}
	return errors.Join(errs...)
}
