// Command notifyctl is the operator CLI for the wellness notification service.
//
// Usage:
//
//	notifyctl initdb --seed
//	notifyctl seed-tips --file tips.json
//	notifyctl run-once
//	notifyctl due --at 2026-07-01T13:20:00Z
//	notifyctl send-test --token 'ExponentPushToken[xxx]'
//	notifyctl trigger --reason backfill
//	notifyctl purge-logs --days 30
//	notifyctl preferences get <user-id>
//	notifyctl preferences set <user-id> --time 09:00 --timezone America/New_York --local
//	notifyctl preferences register-device <user-id> <token>
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wellnessapp/notification-service/internal/app"
	"github.com/wellnessapp/notification-service/internal/config"
	"github.com/wellnessapp/notification-service/internal/db"
	"github.com/wellnessapp/notification-service/internal/maintenance"
	"github.com/wellnessapp/notification-service/internal/notifications"
	"github.com/wellnessapp/notification-service/internal/push"
	"github.com/wellnessapp/notification-service/internal/tips"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "notifyctl",
		Short:        "Wellness notification operator CLI",
		SilenceUsage: true,
	}

	root.AddCommand(initDBCmd())
	root.AddCommand(seedTipsCmd())
	root.AddCommand(runOnceCmd())
	root.AddCommand(dueCmd())
	root.AddCommand(sendTestCmd())
	root.AddCommand(triggerCmd())
	root.AddCommand(purgeLogsCmd())
	root.AddCommand(preferencesCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// Schema and catalog
// --------------------------------------------------------------------------

func initDBCmd() *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "initdb",
		Short: "Create the notification tables if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := db.ApplySchema(ctx, cfg.DatabaseURL); err != nil {
				return err
			}
			logger.Info("Schema applied")

			if !seed {
				return nil
			}
			return runWithDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				return seedTips(ctx, pool, "")
			})
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "Also seed the default tip catalog")
	return cmd
}

func seedTipsCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed-tips",
		Short: "Insert tips into the catalog, skipping existing content",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				return seedTips(ctx, pool, file)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON tip file (default: built-in catalog)")
	return cmd
}

func seedTips(ctx context.Context, pool *db.Pool, file string) error {
	entries, err := loadTips(file)
	if err != nil {
		return err
	}

	store := notifications.NewStore(pool.Pool, 0, logger)
	inserted, err := store.SeedTips(ctx, entries)
	if err != nil {
		return err
	}
	logger.Info("Tip catalog seeded", "offered", len(entries), "inserted", inserted)

	return maintenance.AnalyzeTables(ctx, pool.Pool, logger)
}

func loadTips(file string) ([]tips.Tip, error) {
	if file == "" {
		return tips.Defaults()
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	return tips.Parse(data)
}

// --------------------------------------------------------------------------
// Cycles
// --------------------------------------------------------------------------

func runOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-once",
		Short: "Run a single notification cycle now and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				svc, err := app.New(ctx, cfg, pool, logger)
				if err != nil {
					return err
				}
				stats, err := svc.Scheduler.RunCycle(ctx)
				logger.Info("Cycle finished", "summary", stats.Summary())
				return err
			})
		},
	}
}

func dueCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "due",
		Short: "List users a cycle would notify, without sending",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				now = t.UTC()
			}

			return runWithDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				svc, err := app.New(ctx, cfg, pool, logger)
				if err != nil {
					return err
				}
				var stats notifications.CycleStats
				due, err := svc.Scheduler.GetUsersDueForNotification(ctx, now, &stats)
				if err != nil {
					return err
				}
				for _, u := range due {
					fmt.Printf("%s\t%s\t%s\t%s\n", u.UserID, u.Timezone,
						notifications.FormatTimeOfDay(u.PreferredTimeUTC),
						now.In(u.Location).Format(time.RFC3339))
				}
				logger.Info("Due users", "at", now, "candidates", stats.Candidates,
					"due", len(due), "skipped", stats.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "RFC3339 instant to evaluate (default: now)")
	return cmd
}

func sendTestCmd() *cobra.Command {
	var token, title, body string
	cmd := &cobra.Command{
		Use:   "send-test",
		Short: "Send one push through the configured gateway with retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			gateway, err := app.NewGateway(ctx, cfg, logger)
			if err != nil {
				return err
			}
			sender := push.NewSender(gateway, cfg.RetryPolicy(), nil, logger)

			res := sender.Deliver(ctx, push.Message{To: token, Title: title, Body: body})
			if !res.OK {
				return fmt.Errorf("delivery failed after %d attempts: %w", res.Attempts, res.Err)
			}
			logger.Info("Test push delivered", "attempts", res.Attempts, "ticket_id", res.TicketID)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Device push token")
	cmd.Flags().StringVar(&title, "title", notifications.NotificationTitle, "Notification title")
	cmd.Flags().StringVar(&body, "body", "This is a test wellness tip.", "Notification body")
	cmd.MarkFlagRequired("token")
	return cmd
}

func triggerCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Ask running notifiers to start a cycle (pg_notify)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				payload, err := json.Marshal(map[string]string{
					"reason":       reason,
					"requested_by": "notifyctl",
				})
				if err != nil {
					return err
				}
				if _, err := pool.Exec(ctx, "SELECT pg_notify($1, $2)", cfg.ListenChannel, string(payload)); err != nil {
					return fmt.Errorf("pg_notify: %w", err)
				}
				logger.Info("Cycle requested", "channel", cfg.ListenChannel, "reason", reason)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual", "Reason recorded in notifier logs")
	return cmd
}

func purgeLogsCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "purge-logs",
		Short: "Delete delivery log rows past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				retention := cfg.LogRetention
				if days > 0 {
					retention = time.Duration(days) * 24 * time.Hour
				}
				n, err := maintenance.PurgeLogs(ctx, pool.Pool, retention, logger)
				if err != nil {
					return err
				}
				logger.Info("Purge finished", "deleted", n)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Retention in days (default: LOG_RETENTION_DAYS)")
	return cmd
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// runWithDB loads config, connects to the database, and runs fn.
func runWithDB(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}
