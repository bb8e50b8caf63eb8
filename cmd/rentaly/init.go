package main

import (
	"fmt"

	rentaly "github.com/rentaly/storefront/sdk/golang"
	"github.com/spf13/cobra"
)

var initBaseURL string

func init() {
	initCmd.Flags().StringVar(&initBaseURL, "base-url", "", "API base URL")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init <token>",
	Short: "Store the bearer token in ~/.rentaly/config.toml",
	Long:  "Initialize the Rentaly CLI by storing your login token in the local configuration file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		cfg.Auth.Token = token
		if initBaseURL != "" {
			cfg.Default.BaseURL = initBaseURL
		}
		if cfg.Default.BaseURL == "" {
			cfg.Default.BaseURL = rentaly.DefaultBaseURL
		}
		if cfg.Default.Role == "" {
			cfg.Default.Role = string(rentaly.RoleUser)
			if info, err := rentaly.ParseToken(token); err == nil && info.Role == "admin" {
				cfg.Default.Role = string(rentaly.RoleAgent)
			}
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		path, _ := configPath()
		fmt.Printf("Token saved to %s\n", path)
		return nil
	},
}
