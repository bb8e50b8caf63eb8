package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	rentaly "github.com/rentaly/storefront/sdk/golang"
	"go.uber.org/zap"
)

// getClient creates an authenticated client from the config file.
func getClient(logger *zap.Logger, metrics *rentaly.Metrics) (*rentaly.Client, *Config) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.Token == "" {
		fmt.Fprintln(os.Stderr, "No token. Run 'rentaly init <token>' first.")
		os.Exit(1)
	}

	opts := []rentaly.ClientOption{rentaly.WithLogger(logger)}
	if cfg.Default.BaseURL != "" {
		opts = append(opts, rentaly.WithBaseURL(cfg.Default.BaseURL))
	}
	if metrics != nil {
		opts = append(opts, rentaly.WithMetrics(metrics))
	}
	return rentaly.NewClient(cfg.Auth.Token, opts...), cfg
}

// sessionConfig maps the [realtime] section onto the SDK config.
func sessionConfig(cfg *Config, role rentaly.Role, logger *zap.Logger, metrics *rentaly.Metrics) rentaly.Config {
	sc := rentaly.Config{
		Token:                cfg.Auth.Token,
		Role:                 role,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		Logger:               logger,
		Metrics:              metrics,
	}
	if d, err := time.ParseDuration(cfg.Realtime.NotificationDuration); err == nil {
		sc.NotificationDuration = d
	}
	if d, err := time.ParseDuration(cfg.Realtime.TypingExpiry); err == nil {
		sc.TypingExpiry = d
	}
	return sc
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printContact(c *rentaly.Contact) {
	fmt.Printf("ID:       %s\n", c.ID)
	fmt.Printf("Subject:  %s\n", c.Subject)
	fmt.Printf("From:     %s <%s>\n", c.Name, c.Email)
	fmt.Printf("Status:   %s\n", c.Status)
	if c.Priority != "" {
		fmt.Printf("Priority: %s\n", c.Priority)
	}
	fmt.Printf("Created:  %s\n", c.CreatedAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Println(c.Message)
	for _, r := range c.Responses {
		printResponse(r)
	}
}

func printResponse(r rentaly.Response) {
	who := string(r.SentBy)
	if r.SenderName != "" {
		who = r.SenderName
	}
	marker := ""
	if r.Pending {
		marker = " (sending)"
	}
	fmt.Printf("  [%s] %s: %s%s\n", r.SentAt.Format("2006-01-02 15:04"), who, r.Message, marker)
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
