package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/pkg/utils"
)

// userIDAttempts bounds retries when a random user id is already taken.
const userIDAttempts = 5

// newUserCmd seeds marketplace users. Registration lives in the auth
// service; this covers local development and support tooling.
func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage marketplace users",
	}

	var email string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a user and print its id",
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

			user, err := createUser(cmd.Context(), a, args[0], email)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user_id=%s\n", user.ID)
			return nil
		},
	}
	create.Flags().StringVar(&email, "email", "", "contact email")

	cmd.AddCommand(create)
	return cmd
}

// newStaffCmd registers admin and customer-service reviewers.
func newStaffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staff",
		Short: "Manage admin and customer-service accounts",
	}

	var (
		seq     int
		email   string
		service bool
	)
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a staff account (A#### or CS####) and print its id",
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

			staff, err := createStaff(cmd.Context(), a, args[0], email, seq, service)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "staff_id=%s\n", staff.ID)
			return nil
		},
	}
	create.Flags().IntVar(&seq, "seq", 0, "staff sequence number (required)")
	create.Flags().StringVar(&email, "email", "", "staff email")
	create.Flags().BoolVar(&service, "service", false, "create a customer-service account instead of an admin")
	_ = create.MarkFlagRequired("seq")

	cmd.AddCommand(create)
	return cmd
}

func createUser(ctx context.Context, a *app, name, email string) (*entities.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("name is required")
	}
	now := time.Now().UTC()
	user := &entities.User{
		Name:      name,
		UserLevel: entities.UserTierNormal,
		Timezone:  "Europe/London",
		Language:  "en",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if email = strings.TrimSpace(email); email != "" {
		user.Email = &email
	}
	for i := 0; i < userIDAttempts; i++ {
		id, err := utils.NewUserID()
		if err != nil {
			return nil, err
		}
		user.ID = id
		err = a.store.Users.Create(ctx, user)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, domainerrors.ErrAlreadyExists) {
			return nil, fmt.Errorf("create user: %w", err)
		}
	}
	return nil, fmt.Errorf("create user: no free id after %d attempts", userIDAttempts)
}

func createStaff(ctx context.Context, a *app, name, email string, seq int, service bool) (*entities.Staff, error) {
	if seq <= 0 || seq > 9999 {
		return nil, fmt.Errorf("seq must be within 1..9999, got %d", seq)
	}
	id := utils.FormatAdminID(seq)
	if service {
		id = utils.FormatServiceID(seq)
	}
	staff := &entities.Staff{
		ID:        id,
		Name:      strings.TrimSpace(name),
		Email:     strings.TrimSpace(email),
		IsActive:  true,
		IsService: service,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.Staff.Create(ctx, staff); err != nil {
		if errors.Is(err, domainerrors.ErrAlreadyExists) {
			return nil, fmt.Errorf("staff %s already exists", id)
		}
		return nil, fmt.Errorf("create staff: %w", err)
	}
	return staff, nil
}
