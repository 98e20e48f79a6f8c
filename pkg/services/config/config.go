// Package config loads service configuration from the environment. The
// service runs on platforms like Render where everything is env vars, so
// there is no config file beyond an optional .env in development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const rateOverridePrefix = "SALES_RATE_"

type Config struct {
	Host string
	Port string

	// AllowedOrigins is the CORS allow-list; ["*"] allows everything.
	AllowedOrigins []string

	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
	Scope        string

	PageLimit int
	PageDelay time.Duration

	// DefaultRate applies to properties without an override; overrides
	// come from SALES_RATE_<LISTING_ID> env entries.
	DefaultRate   float64
	RateOverrides map[string]float64
}

func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("PORT", "3000")
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("GUESTY_BASE_URL", "https://open-api.guesty.com")
	v.SetDefault("GUESTY_PAGE_LIMIT", 100)
	v.SetDefault("GUESTY_PAGE_DELAY_MS", 0)
	v.SetDefault("SALES_RATE_DEFAULT", 0.05)

	cfg := &Config{
		Host:           v.GetString("SERVER_HOST"),
		Port:           v.GetString("PORT"),
		AllowedOrigins: splitOrigins(v.GetString("ALLOWED_ORIGINS")),
		ClientID:       v.GetString("GUESTY_CLIENT_ID"),
		ClientSecret:   v.GetString("GUESTY_CLIENT_SECRET"),
		BaseURL:        v.GetString("GUESTY_BASE_URL"),
		TokenURL:       v.GetString("GUESTY_TOKEN_URL"),
		Scope:          v.GetString("GUESTY_SCOPE"),
		PageLimit:      v.GetInt("GUESTY_PAGE_LIMIT"),
		PageDelay:      time.Duration(v.GetInt("GUESTY_PAGE_DELAY_MS")) * time.Millisecond,
		DefaultRate:    v.GetFloat64("SALES_RATE_DEFAULT"),
		RateOverrides:  rateOverridesFromEnv(os.Environ()),
	}

	return cfg, nil
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return origins
}

// rateOverridesFromEnv scans SALES_RATE_<LISTING_ID>=<rate> entries.
// Viper cannot enumerate unknown keys, so this walks the raw environment.
func rateOverridesFromEnv(environ []string) map[string]float64 {
	overrides := map[string]float64{}
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, rateOverridePrefix) {
			continue
		}
		listingID := strings.TrimPrefix(key, rateOverridePrefix)
		if listingID == "" || listingID == "DEFAULT" {
			continue
		}
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		overrides[listingID] = rate
	}
	return overrides
}
