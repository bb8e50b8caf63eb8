package main

import (
	"context"
	"fmt"
	"time"

	rentaly "github.com/rentaly/storefront/sdk/golang"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and token status",
	Long:  "Display the current configuration, check whether the token is expired, and probe the API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Base URL:    %s\n", valueOrDefault(cfg.Default.BaseURL, rentaly.DefaultBaseURL))
		fmt.Printf("  Role:        %s\n", valueOrDefault(cfg.Default.Role, string(rentaly.RoleUser)))

		fmt.Println()
		fmt.Println("Auth:")
		fmt.Printf("  Token:       %s\n", tokenStatus(cfg.Auth.Token, time.Now()))
		if cfg.Auth.Token == "" {
			return nil
		}

		fmt.Println()
		fmt.Println("Live status:")
		client, _ := getClient(zap.NewNop(), nil)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		list, err := client.Contacts().List(ctx, &rentaly.ListOptions{Limit: 1})
		if err != nil {
			fmt.Printf("  Error: %v\n", err)
			return nil
		}
		total := len(list.Contacts)
		if list.Pagination != nil {
			total = list.Pagination.Total
		}
		fmt.Printf("  API:           reachable\n")
		fmt.Printf("  Conversations: %d\n", total)
		return nil
	},
}

// tokenStatus describes a token for humans: masked, with its expiry if it
// is a JWT.
func tokenStatus(token string, now time.Time) string {
	if token == "" {
		return "(not set)"
	}
	masked := maskToken(token)
	info, err := rentaly.ParseToken(token)
	if err != nil {
		return masked + " (opaque)"
	}
	if info.ExpiresAt.IsZero() {
		return masked + " (no expiry)"
	}
	if info.Expired(now) {
		return fmt.Sprintf("%s EXPIRED (expired %s)", masked, info.ExpiresAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s valid (expires %s)", masked, info.ExpiresAt.Format(time.RFC3339))
}

// maskToken shows the first 8 and last 4 characters of a token.
func maskToken(token string) string {
	if len(token) <= 12 {
		return "****"
	}
	return token[:8] + "..." + token[len(token)-4:]
}
