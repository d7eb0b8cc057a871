package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr               string
	RequestTimeout         time.Duration
	LogLevel               string
	LogFormat              string
	UserAgent              string
	PirateBayEndpoint      string
	X1337Endpoint          string
	RutrackerEndpoint      string
	RutrackerCookies       string
	YTSEndpoint            string
	NyaaEndpoint           string
	HostRPS                float64
	RedisURL               string
	MongoURI               string
	MongoDB                string
	SettingsPath           string
	MaxResults             int
	RateLimitRPS           float64
	RateLimitBurst         int
	ProviderBlockThreshold int
	OTelEndpoint           string
}

var defaults = map[string]any{
	"http_addr":                          ":8090",
	"search_timeout_seconds":             15,
	"log_level":                          "info",
	"log_format":                         "text",
	"search_user_agent":                  "torrent-stream-search/1.0",
	"search_provider_piratebay_endpoint": "https://apibay.org/q.php",
	"search_provider_1337x_endpoint":     "https://x1337x.ws,https://1337x.to,https://1377x.to",
	"search_provider_rutracker_endpoint": "https://rutracker.org/forum/tracker.php",
	"search_provider_rutracker_cookie":   "",
	"search_provider_yts_endpoint":       "https://yts.mx/api/v2/list_movies.json",
	"search_provider_nyaa_endpoint":      "https://nyaa.si",
	"search_host_rps":                    2.0,
	"redis_url":                          "",
	"mongo_uri":                          "",
	"mongo_db":                           "torrentstream",
	"search_settings_path":               defaultSettingsPath(),
	"search_max_results":                 0,
	"search_rate_limit_rps":              20.0,
	"search_rate_limit_burst":            40,
	"search_provider_block_threshold":    0,
	"otel_exporter_otlp_endpoint":        "",
}

// LoadConfig reads defaults, an optional YAML file and the environment, in
// increasing order of precedence.
func LoadConfig() (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if err := readConfigFile(v); err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTPAddr:               getString(v, "http_addr"),
		RequestTimeout:         time.Duration(getPositiveInt(v, "search_timeout_seconds")) * time.Second,
		LogLevel:               strings.ToLower(getString(v, "log_level")),
		LogFormat:              strings.ToLower(getString(v, "log_format")),
		UserAgent:              getString(v, "search_user_agent"),
		PirateBayEndpoint:      getString(v, "search_provider_piratebay_endpoint"),
		X1337Endpoint:          getString(v, "search_provider_1337x_endpoint"),
		RutrackerEndpoint:      getString(v, "search_provider_rutracker_endpoint"),
		RutrackerCookies:       buildRutrackerCookies(v),
		YTSEndpoint:            getString(v, "search_provider_yts_endpoint"),
		NyaaEndpoint:           getString(v, "search_provider_nyaa_endpoint"),
		HostRPS:                v.GetFloat64("search_host_rps"),
		RedisURL:               getString(v, "redis_url"),
		MongoURI:               getString(v, "mongo_uri"),
		MongoDB:                getString(v, "mongo_db"),
		SettingsPath:           getString(v, "search_settings_path"),
		MaxResults:             v.GetInt("search_max_results"),
		RateLimitRPS:           v.GetFloat64("search_rate_limit_rps"),
		RateLimitBurst:         v.GetInt("search_rate_limit_burst"),
		ProviderBlockThreshold: v.GetInt("search_provider_block_threshold"),
		OTelEndpoint:           getString(v, "otel_exporter_otlp_endpoint"),
	}
	if cfg.MaxResults < 0 {
		return Config{}, fmt.Errorf("SEARCH_MAX_RESULTS must be >= 0, got %d", cfg.MaxResults)
	}
	return cfg, nil
}

func readConfigFile(v *viper.Viper) error {
	if path := strings.TrimSpace(os.Getenv("SEARCH_CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName("torrsearch")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config file: %w", err)
		}
	}
	return nil
}

func getString(v *viper.Viper, key string) string {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		if fallback, ok := defaults[key].(string); ok {
			return fallback
		}
	}
	return value
}

func getPositiveInt(v *viper.Viper, key string) int {
	parsed := v.GetInt(key)
	if parsed <= 0 {
		fallback, _ := defaults[key].(int)
		return fallback
	}
	return parsed
}

func buildRutrackerCookies(v *viper.Viper) string {
	raw := strings.TrimSpace(v.GetString("search_provider_rutracker_cookie"))
	if raw != "" {
		return raw
	}
	parts := make([]string, 0, 4)
	for _, item := range []struct {
		Env  string
		Name string
	}{
		{Env: "SEARCH_PROVIDER_RUTRACKER_BB_SESSION", Name: "bb_session"},
		{Env: "SEARCH_PROVIDER_RUTRACKER_BB_GUID", Name: "bb_guid"},
		{Env: "SEARCH_PROVIDER_RUTRACKER_BB_SSL", Name: "bb_ssl"},
		{Env: "SEARCH_PROVIDER_RUTRACKER_CF_CLEARANCE", Name: "cf_clearance"},
	} {
		value := strings.TrimSpace(os.Getenv(item.Env))
		if value == "" {
			continue
		}
		parts = append(parts, item.Name+"="+value)
	}
	return strings.Join(parts, "; ")
}

func defaultSettingsPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "torrsearch", "settings.db")
	}
	return "torrsearch-settings.db"
}
