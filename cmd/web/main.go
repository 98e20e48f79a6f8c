package main

import (
	"fmt"
	"net"
	"os"

	"github.com/de-tools/pmc-commission/pkg/server"
	"github.com/de-tools/pmc-commission/pkg/services/commission"
	"github.com/de-tools/pmc-commission/pkg/services/config"
	"github.com/de-tools/pmc-commission/pkg/store/guesty"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "web",
		Short: "Start the Guesty PMC commission web server",
		RunE:  runServer,
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("No .env file loaded: %v\n", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	client, err := guesty.NewClient(guesty.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		BaseURL:      cfg.BaseURL,
		TokenURL:     cfg.TokenURL,
		Scope:        cfg.Scope,
		PageLimit:    cfg.PageLimit,
		PageDelay:    cfg.PageDelay,
	})
	if err != nil {
		return fmt.Errorf("failed to create guesty client: %w", err)
	}

	rates := commission.NewRateLookup(cfg.DefaultRate, cfg.RateOverrides)
	reporter := commission.NewReporter(client, rates)

	logger.Info().
		Str("base_url", cfg.BaseURL).
		Int("page_limit", cfg.PageLimit).
		Float64("default_rate", cfg.DefaultRate).
		Int("rate_overrides", len(cfg.RateOverrides)).
		Msg("configuration loaded")

	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	api := server.NewWebAPI(logger, server.Config{
		Addr:           addr,
		AllowedOrigins: cfg.AllowedOrigins,
		Dependencies: server.Dependencies{
			Reporter: reporter,
		},
	})

	return api.Start()
}
