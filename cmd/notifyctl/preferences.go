package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wellnessapp/notification-service/internal/config"
	"github.com/wellnessapp/notification-service/internal/db"
	"github.com/wellnessapp/notification-service/internal/notifications"
)

func preferencesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preferences",
		Short: "Read and write user notification preferences",
	}
	cmd.AddCommand(prefGetCmd())
	cmd.AddCommand(prefSetCmd())
	cmd.AddCommand(prefRegisterDeviceCmd())
	return cmd
}

func prefGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <user-id>",
		Short: "Show a user's preferences",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("user id: %w", err)
			}
			return runWithDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				p, err := notifications.NewStore(pool.Pool, cfg.TipRepeatWindow, logger).GetPreferences(ctx, userID)
				if err != nil {
					return err
				}
				if p == nil {
					return fmt.Errorf("no preferences for user %s", userID)
				}
				printPreference(p)
				return nil
			})
		},
	}
}

func prefSetCmd() *cobra.Command {
	var (
		at       string
		timezone string
		enabled  bool
		token    string
		local    bool
	)
	cmd := &cobra.Command{
		Use:   "set <user-id>",
		Short: "Create or update a user's preferences",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("user id: %w", err)
			}
			in, err := buildPreferenceInput(userID, at, timezone, enabled, local, time.Now())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("token") {
				in.DeviceToken = &token
			}

			return runWithDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				p, err := notifications.NewStore(pool.Pool, cfg.TipRepeatWindow, logger).UpsertPreferences(ctx, in)
				if err != nil {
					return err
				}
				printPreference(p)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&at, "time", "09:00:00", "Preferred time of day (HH:MM or HH:MM:SS)")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "IANA timezone")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "Whether tips are sent")
	cmd.Flags().StringVar(&token, "token", "", "Device push token (unchanged when omitted)")
	cmd.Flags().BoolVar(&local, "local", false, "Interpret --time in --timezone and store its UTC equivalent")
	return cmd
}

// buildPreferenceInput parses flags. With local set, the time is converted
// to UTC using timezone's offset on now's date.
func buildPreferenceInput(userID uuid.UUID, at, timezone string, enabled, local bool, now time.Time) (notifications.PreferenceInput, error) {
	tod, err := notifications.ParseTimeOfDay(at)
	if err != nil {
		return notifications.PreferenceInput{}, err
	}
	if local {
		loc, err := notifications.LoadZone(timezone)
		if err != nil {
			return notifications.PreferenceInput{}, err
		}
		tod = notifications.LocalToUTCTimeOfDay(tod, loc, now)
	}
	return notifications.PreferenceInput{
		UserID:           userID,
		IsEnabled:        enabled,
		PreferredTimeUTC: tod,
		Timezone:         timezone,
	}, nil
}

func prefRegisterDeviceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register-device <user-id> <token>",
		Short: "Store a device token, creating default preferences if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("user id: %w", err)
			}
			return runWithDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				p, err := notifications.NewStore(pool.Pool, cfg.TipRepeatWindow, logger).RegisterDeviceToken(ctx, userID, args[1])
				if err != nil {
					return err
				}
				printPreference(p)
				return nil
			})
		},
	}
}

func printPreference(p *notifications.Preference) {
	token := "(none)"
	if p.DeviceToken != "" {
		token = p.DeviceToken
	}
	fmt.Printf("user_id:            %s\n", p.UserID)
	fmt.Printf("is_enabled:         %t\n", p.IsEnabled)
	fmt.Printf("preferred_time_utc: %s\n", p.PreferredTime())
	fmt.Printf("timezone:           %s\n", p.Timezone)
	fmt.Printf("device_token:       %s\n", token)
	fmt.Printf("updated_at:         %s\n", p.UpdatedAt.Format(time.RFC3339))
}
