package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/raaihank/vibeguard/internal/privacy"
	"github.com/spf13/cobra"
)

var healthURL string

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Load the configuration and report the rules it produces",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		set := privacy.BuildPatternSet(privacy.ParsePatternConfig(cfg.Patterns))
		out := cmd.OutOrStdout()

		source := cfg.LoadedFrom
		if source == "" {
			source = "(none found, using defaults)"
		}
		fmt.Fprintf(out, "config file:     %s\n", source)
		fmt.Fprintf(out, "enabled:         %t\n", cfg.Enabled)
		fmt.Fprintf(out, "prefix:          %s\n", cfg.Prefix())
		fmt.Fprintf(out, "mapping ttl:     %s\n", cfg.Session.TTLDuration())
		fmt.Fprintf(out, "max mappings:    %d\n", cfg.Session.MappingLimit())
		fmt.Fprintf(out, "keyword rules:   %d\n", len(set.Keywords))
		fmt.Fprintf(out, "regex rules:     %d\n", len(set.Regex))
		fmt.Fprintf(out, "excluded values: %d\n", len(set.Exclude))

		for _, skipped := range set.Skipped {
			fmt.Fprintf(out, "skipped rule %q (%s): %v\n", skipped.Pattern, skipped.Category, skipped.Err)
		}
		if len(set.Skipped) > 0 {
			return fmt.Errorf("%d regex rule(s) failed to compile", len(set.Skipped))
		}
		return nil
	},
}

var healthCheckCmd = &cobra.Command{
	Use:   "health-check",
	Short: "Check that a running server is healthy",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{
			Timeout: 5 * time.Second,
		}

		resp, err := client.Get(healthURL)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health check failed: HTTP %d", resp.StatusCode)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Health check passed")
		return nil
	},
}

func init() {
	healthCheckCmd.Flags().StringVar(&healthURL, "url", "http://localhost:8080/health", "health endpoint to probe")
}
