package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	rentaly "github.com/rentaly/storefront/sdk/golang"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchMetricsAddr string

var watchCmd = &cobra.Command{
	Use:   "watch <contact-id>",
	Short: "Follow one conversation live",
	Long:  "Connect to the realtime channel, join the conversation room and print replies, status changes and typing activity until interrupted.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contactID := args[0]
		return runSession(func(ctx context.Context, s *rentaly.Session) error {
			if _, err := s.Conversations.LoadConversation(ctx, contactID); err != nil {
				return fmt.Errorf("load conversation: %w", err)
			}
			printContact(s.Conversations.Current())

			rentaly.On(s.Events, rentaly.EventConnect, func(rentaly.ConnectedInfo) {
				if err := s.Rooms.JoinConversation(ctx, contactID); err != nil {
					fmt.Fprintf(os.Stderr, "join failed: %v\n", err)
				}
			})
			s.Conversations.OnUpdate(func(c *rentaly.Contact) {
				if c == nil || len(c.Responses) == 0 {
					return
				}
				printResponse(c.Responses[len(c.Responses)-1])
			})
			s.Typing.OnChange(func(id string, typers []rentaly.Typer) {
				if id != contactID {
					return
				}
				if len(typers) == 0 {
					fmt.Println("  ...")
					return
				}
				names := make([]string, len(typers))
				for i, t := range typers {
					names[i] = valueOrDefault(t.Name, string(t.Role))
				}
				fmt.Printf("  %s typing...\n", strings.Join(names, ", "))
			})
			return nil
		})
	},
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Support agent commands",
}

var adminWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the admin room live",
	Long:  "Connect as a support agent, join the admin room and print new conversations and customer replies until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessionAs(rentaly.RoleAgent, func(ctx context.Context, s *rentaly.Session) error {
			rentaly.On(s.Events, rentaly.EventNewContactMessage, func(c rentaly.Contact) {
				fmt.Printf("new conversation %s from %s: %s\n", c.ID, c.Email, c.Subject)
			})
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{watchCmd, adminWatchCmd} {
		c.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	}
	adminCmd.AddCommand(adminWatchCmd)
	rootCmd.AddCommand(watchCmd, adminCmd)
}

func runSession(setup func(context.Context, *rentaly.Session) error) error {
	return runSessionAs("", setup)
}

// runSessionAs opens a realtime session, runs setup, and blocks until the
// process is interrupted or reconnects are exhausted.
func runSessionAs(role rentaly.Role, setup func(context.Context, *rentaly.Session) error) error {
	logger := newLogger(verbose)
	defer logger.Sync() //nolint:errcheck

	var metrics *rentaly.Metrics
	if watchMetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = rentaly.NewMetrics(reg)
		srv := &http.Server{Addr: watchMetricsAddr, Handler: metricsMux(reg)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	client, cfg := getClient(logger, metrics)
	if role == "" {
		role = rentaly.Role(valueOrDefault(cfg.Default.Role, string(rentaly.RoleUser)))
	}
	session := rentaly.NewSession(client, sessionConfig(cfg, role, logger, metrics))
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := setup(ctx, session); err != nil {
		return err
	}

	failed := make(chan error, 1)
	rentaly.On(session.Events, rentaly.EventReconnectFailed, func(info rentaly.ReconnectFailedInfo) {
		select {
		case failed <- info.Err:
		default:
		}
	})
	rentaly.On(session.Events, rentaly.EventDisconnect, func(info rentaly.DisconnectInfo) {
		fmt.Fprintf(os.Stderr, "offline (%s)\n", info.Reason)
	})
	session.Notifications.OnChange(func(list []rentaly.Notification) {
		if len(list) > 0 && !list[0].Read {
			n := list[0]
			fmt.Printf("* %s: %s\n", n.Title, n.Message)
			session.Notifications.MarkRead(n.ID)
		}
	})

	if err := session.Start(ctx); err != nil {
		if rentaly.CodeOf(err) == rentaly.ErrorInvalidToken {
			return err
		}
		logger.Warn("initial connect failed, retrying", zap.Error(err))
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-failed:
		return err
	}
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}
