package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	rentaly "github.com/rentaly/storefront/sdk/golang"
	"github.com/spf13/cobra"
)

var configShowRaw bool

func init() {
	configShowCmd.Flags().BoolVar(&configShowRaw, "raw", false, "Print the config file as stored")
	configCmd.AddCommand(configShowCmd, configSetCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Rentaly configuration",
	Long:  "Inspect or change the settings the CLI reads from ~/.rentaly/config.toml (or $RENTALY_CONFIG_DIR).",
}

// setting is one resolved configuration value and where it came from.
type setting struct {
	Key    string
	Value  string
	Source string
}

// effectiveSettings resolves every key the CLI uses, falling back to the SDK
// defaults for missing or unparsable values.
func effectiveSettings(cfg *Config) []setting {
	out := []setting{
		fromFile("default.base_url", cfg.Default.BaseURL, rentaly.DefaultBaseURL),
		fromFile("default.role", cfg.Default.Role, string(rentaly.RoleUser)),
	}

	token := setting{Key: "auth.token", Value: "(not set)", Source: "file"}
	if cfg.Auth.Token != "" {
		token.Value = maskToken(cfg.Auth.Token)
	}
	out = append(out, token)

	attempts := setting{Key: "realtime.max_reconnect_attempts", Source: "file"}
	switch n := cfg.Realtime.MaxReconnectAttempts; {
	case n < 0:
		attempts.Value = "disabled"
	case n == 0:
		attempts.Value, attempts.Source = strconv.Itoa(rentaly.DefaultMaxReconnectAttempts), "default"
	default:
		attempts.Value = strconv.Itoa(n)
	}
	out = append(out,
		attempts,
		durationSetting("realtime.notification_duration", cfg.Realtime.NotificationDuration, rentaly.DefaultNotificationDuration),
		durationSetting("realtime.typing_expiry", cfg.Realtime.TypingExpiry, rentaly.DefaultTypingExpiry),
	)
	return out
}

func fromFile(key, value, def string) setting {
	if value == "" {
		return setting{Key: key, Value: def, Source: "default"}
	}
	return setting{Key: key, Value: value, Source: "file"}
}

func durationSetting(key, raw string, def time.Duration) setting {
	if raw == "" {
		return setting{Key: key, Value: def.String(), Source: "default"}
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return setting{Key: key, Value: def.String(), Source: fmt.Sprintf("default (ignored %q)", raw)}
	}
	return setting{Key: key, Value: d.String(), Source: "file"}
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  "Print every setting the CLI will use, marking whether it came from the config file or the SDK default. Use --raw for the file itself.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if configShowRaw {
			path, err := configPath()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if os.IsNotExist(err) {
				fmt.Println("No configuration file found. Run 'rentaly init <token>' to create one.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("cannot read config file: %w", err)
			}
			fmt.Print(string(data))
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		for _, s := range effectiveSettings(cfg) {
			fmt.Printf("%-34s %-28s %s\n", s.Key, s.Value, s.Source)
		}
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:     "set <key> <value>",
	Short:   "Change one setting",
	Example: "  rentaly config set realtime.max_reconnect_attempts 8\n  rentaly config set default.role agent",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := setConfigValue(cfg, key, value); err != nil {
			return err
		}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		shown := value
		if key == "auth.token" {
			shown = maskToken(value)
		}
		fmt.Printf("%s = %s\n", key, shown)
		return nil
	},
}
