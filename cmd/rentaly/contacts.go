package main

import (
	"context"
	"fmt"
	"time"

	rentaly "github.com/rentaly/storefront/sdk/golang"
	"github.com/spf13/cobra"
)

// ============================================================================
// Flag variables
// ============================================================================

var (
	contactsJSON bool

	// contacts list
	contactsListStatus   string
	contactsListPriority string
	contactsListSearch   string
	contactsListPage     int
	contactsListLimit    int

	// contacts create
	contactsCreateName     string
	contactsCreateEmail    string
	contactsCreatePhone    string
	contactsCreateSubject  string
	contactsCreatePriority string

	// contacts update
	contactsUpdateStatus   string
	contactsUpdatePriority string
	contactsUpdateSubject  string
)

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Support conversation commands",
	Long:  "List, read, answer and manage contact-support conversations.",
}

var contactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient(newLogger(verbose), nil)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		list, err := client.Contacts().List(ctx, &rentaly.ListOptions{
			Status:   rentaly.ContactStatus(contactsListStatus),
			Priority: rentaly.Priority(contactsListPriority),
			Search:   contactsListSearch,
			Page:     contactsListPage,
			Limit:    contactsListLimit,
		})
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if contactsJSON {
			return printJSON(list)
		}
		if len(list.Contacts) == 0 {
			fmt.Println("No conversations.")
			return nil
		}
		for _, c := range list.Contacts {
			fmt.Printf("%-26s %-12s %-8s %s\n", c.ID, c.Status, valueOrDefault(string(c.Priority), "-"), c.Subject)
		}
		if p := list.Pagination; p != nil {
			fmt.Printf("\nPage %d/%d (%d total)\n", p.Page, p.TotalPages, p.Total)
		}
		return nil
	},
}

var contactsGetCmd = &cobra.Command{
	Use:   "get <contact-id>",
	Short: "Show one conversation with its responses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient(newLogger(verbose), nil)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		c, err := client.Contacts().Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if contactsJSON {
			return printJSON(c)
		}
		printContact(c)
		return nil
	},
}

var contactsReplyCmd = &cobra.Command{
	Use:   "reply <contact-id> <message>",
	Short: "Post a response to a conversation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient(newLogger(verbose), nil)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		// Load through the reconciler so a closed conversation is refused
		// before anything is posted.
		d := rentaly.NewDispatcher(nil, nil)
		rec := rentaly.NewReconciler(client.Contacts(), d, nil,
			rentaly.Config{Token: cfg.Auth.Token, Role: rentaly.Role(cfg.Default.Role)})
		defer rec.Close()

		if _, err := rec.LoadConversation(ctx, args[0]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		resp, err := rec.SendResponse(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if contactsJSON {
			return printJSON(resp)
		}
		fmt.Println("Response sent.")
		printResponse(*resp)
		return nil
	},
}

var contactsCreateCmd = &cobra.Command{
	Use:   "create <message>",
	Short: "Open a new conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient(newLogger(verbose), nil)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		c, err := client.Contacts().Create(ctx, &rentaly.CreateContactOptions{
			Name:     contactsCreateName,
			Email:    contactsCreateEmail,
			Phone:    contactsCreatePhone,
			Subject:  contactsCreateSubject,
			Message:  args[0],
			Priority: rentaly.Priority(contactsCreatePriority),
		})
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if contactsJSON {
			return printJSON(c)
		}
		fmt.Printf("Conversation created: %s\n", c.ID)
		return nil
	},
}

var contactsUpdateCmd = &cobra.Command{
	Use:   "update <contact-id>",
	Short: "Change status, priority or subject",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient(newLogger(verbose), nil)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		c, err := client.Contacts().Update(ctx, args[0], &rentaly.UpdateContactOptions{
			Status:   rentaly.ContactStatus(contactsUpdateStatus),
			Priority: rentaly.Priority(contactsUpdatePriority),
			Subject:  contactsUpdateSubject,
		})
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if contactsJSON {
			return printJSON(c)
		}
		fmt.Printf("Updated %s: status=%s priority=%s\n", c.ID, c.Status, valueOrDefault(string(c.Priority), "-"))
		return nil
	},
}

var contactsDeleteCmd = &cobra.Command{
	Use:   "delete <contact-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient(newLogger(verbose), nil)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := client.Contacts().Delete(ctx, args[0]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	contactsCmd.PersistentFlags().BoolVar(&contactsJSON, "json", false, "Output raw JSON")

	contactsListCmd.Flags().StringVar(&contactsListStatus, "status", "", "Filter by status (pending, in-progress, resolved, closed)")
	contactsListCmd.Flags().StringVar(&contactsListPriority, "priority", "", "Filter by priority (low, medium, high, urgent)")
	contactsListCmd.Flags().StringVar(&contactsListSearch, "search", "", "Full-text search")
	contactsListCmd.Flags().IntVar(&contactsListPage, "page", 1, "Page number")
	contactsListCmd.Flags().IntVar(&contactsListLimit, "limit", 20, "Page size")

	contactsCreateCmd.Flags().StringVar(&contactsCreateName, "name", "", "Your name")
	contactsCreateCmd.Flags().StringVar(&contactsCreateEmail, "email", "", "Reply-to email")
	contactsCreateCmd.Flags().StringVar(&contactsCreatePhone, "phone", "", "Phone number")
	contactsCreateCmd.Flags().StringVar(&contactsCreateSubject, "subject", "", "Subject line (required)")
	contactsCreateCmd.Flags().StringVar(&contactsCreatePriority, "priority", "", "Priority")

	contactsUpdateCmd.Flags().StringVar(&contactsUpdateStatus, "status", "", "New status")
	contactsUpdateCmd.Flags().StringVar(&contactsUpdatePriority, "priority", "", "New priority")
	contactsUpdateCmd.Flags().StringVar(&contactsUpdateSubject, "subject", "", "New subject")

	contactsCmd.AddCommand(contactsListCmd, contactsGetCmd, contactsReplyCmd,
		contactsCreateCmd, contactsUpdateCmd, contactsDeleteCmd)
	rootCmd.AddCommand(contactsCmd)
}
