package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"link2ur.backend/pkg/redis"
	"link2ur.backend/pkg/utils"
)

// newSessionCmd issues sessions for existing users. Login lives in the
// auth service; this covers local development and support access.
func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage user sessions",
	}

	var ttl time.Duration
	create := &cobra.Command{
		Use:   "create <user_id>",
		Short: "Create a session for a user and print its cookies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(cmd.Context()))

			if ttl <= 0 {
				ttl = cfg.Security.SessionTTL
			}
			sessionID, csrf, err := createSession(cmd.Context(), a, args[0], ttl)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session_id=%s\n", sessionID)
			fmt.Fprintf(out, "csrf_token=%s\n", csrf)
			fmt.Fprintf(out, "expires_in=%s\n", ttl)
			return nil
		},
	}
	create.Flags().DurationVar(&ttl, "ttl", 0, "session lifetime (defaults to SESSION_TTL)")

	revoke := &cobra.Command{
		Use:   "revoke <user_id>",
		Short: "Revoke every session of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(cmd.Context()))

			n, err := a.sessions.DeleteUserSessions(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("revoke sessions: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %d sessions\n", n)
			return nil
		},
	}

	cmd.AddCommand(create, revoke)
	return cmd
}

func createSession(ctx context.Context, a *app, userID string, ttl time.Duration) (string, string, error) {
	if !utils.IsUserID(userID) {
		return "", "", fmt.Errorf("invalid user id %q", userID)
	}
	if _, err := a.store.Users.GetByID(ctx, userID); err != nil {
		return "", "", fmt.Errorf("load user %s: %w", userID, err)
	}
	sessionID, err := utils.NewSessionID()
	if err != nil {
		return "", "", err
	}
	csrf, err := utils.RandomHex(16)
	if err != nil {
		return "", "", err
	}
	now := time.Now().UTC()
	data := &redis.SessionData{UserID: userID, CreatedAt: now, LastActivity: now}
	if err := a.sessions.CreateSession(ctx, sessionID, data, ttl); err != nil {
		return "", "", fmt.Errorf("create session: %w", err)
	}
	return sessionID, csrf, nil
}
