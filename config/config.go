package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"CODStatusChecker/logger"

	"github.com/spf13/viper"
)

const (
	ConfigFileName = "config.json"

	DefaultLoginSiteKey  = "6LfjPWwbAAAAAKhf5D1Ag5nIS-QO2M4rX52LcnDt"
	DefaultStatusSiteKey = "6LdB2NUpAAAAANcdcy9YcjBOBD4rY-TIHOeolkkk"
	DefaultLoginURL      = "https://s.activision.com/do_login?new_SiteId=activision"
	DefaultPageURL       = "https://support.activision.com"

	// Hard cap on the worker pool regardless of configuration.
	MaxConcurrentChecks = 25
)

// Config holds the process-wide settings. The JSON-tagged fields are the ones
// persisted to config.json; the rest are runtime tuning read from the
// environment.
type Config struct {
	EZCaptchaKey     string `json:"ez_captcha_key" mapstructure:"ez_captcha_key"`
	LoginSiteKey     string `json:"login_site_key" mapstructure:"login_site_key"`
	StatusSiteKey    string `json:"status_site_key" mapstructure:"status_site_key"`
	LoginURL         string `json:"login_url" mapstructure:"login_url"`
	PageURL          string `json:"page_url" mapstructure:"page_url"`
	ExtraOptionsMode bool   `json:"extra_options_mode" mapstructure:"extra_options_mode"`

	CaptchaPollInterval time.Duration `json:"-" mapstructure:"-"`
	CaptchaTimeout      time.Duration `json:"-" mapstructure:"-"`
	MaxWorkers          int           `json:"-" mapstructure:"-"`
	CheckCooldown       time.Duration `json:"-" mapstructure:"-"`
}

// Load reads config.json, falling back to defaults when the file is missing
// or malformed. A bad config file is never fatal.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(ConfigFileName)
	v.SetConfigType("json")

	v.SetDefault("ez_captcha_key", "")
	v.SetDefault("login_site_key", DefaultLoginSiteKey)
	v.SetDefault("status_site_key", DefaultStatusSiteKey)
	v.SetDefault("login_url", DefaultLoginURL)
	v.SetDefault("page_url", DefaultPageURL)
	v.SetDefault("extra_options_mode", false)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			logger.Log.Warnf("Config file %s not found, using default values", ConfigFileName)
		} else {
			logger.Log.WithError(err).Warnf("Error reading %s, using default values", ConfigFileName)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		logger.Log.WithError(err).Warnf("Error parsing %s, using default values", ConfigFileName)
		cfg = Config{
			LoginSiteKey:  DefaultLoginSiteKey,
			StatusSiteKey: DefaultStatusSiteKey,
			LoginURL:      DefaultLoginURL,
			PageURL:       DefaultPageURL,
		}
	}

	if key := os.Getenv("EZCAPTCHA_CLIENT_KEY"); key != "" {
		cfg.EZCaptchaKey = key
	}

	cfg.CaptchaPollInterval = time.Duration(getEnvAsInt("CAPTCHA_POLL_INTERVAL", 10)) * time.Second
	cfg.CaptchaTimeout = time.Duration(getEnvAsInt("CAPTCHA_TIMEOUT", 120)) * time.Second
	cfg.MaxWorkers = getEnvAsInt("MAX_CONCURRENT_CHECKS", 1)
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	if cfg.MaxWorkers > MaxConcurrentChecks {
		cfg.MaxWorkers = MaxConcurrentChecks
	}
	cfg.CheckCooldown = time.Duration(getEnvAsInt("CHECK_COOLDOWN_MS", 1000)) * time.Millisecond

	return &cfg, nil
}

// Save writes the persisted fields back to config.json. Used by the
// change-API-key action.
func (c *Config) Save() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(ConfigFileName, data, 0644); err != nil {
		return err
	}

	logger.Log.Info("Configuration saved successfully")
	return nil
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
