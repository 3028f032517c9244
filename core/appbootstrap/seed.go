package appbootstrap

import (
	"context"

	"lungsod-rms/config"
	"lungsod-rms/core/auth"
	"lungsod-rms/core/store"
	"lungsod-rms/core/utils"
)

const (
	defaultAdminUsername = "admin"
	defaultAdminPassword = "ChangeMe-2024"
)

// EnsureDefaultAdmin seeds the first admin account on an empty install. The
// account is created with a forced password change.
func EnsureDefaultAdmin(ctx context.Context, users store.UsersStore, cfg *config.AppConfig, logger *utils.Logger) error {
	n, err := users.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	hash, err := auth.HashPassword(defaultAdminPassword, cfg.Pepper)
	if err != nil {
		return err
	}
	admin := &store.User{
		Username:              defaultAdminUsername,
		FullName:              "Administrator",
		PasswordHash:          hash,
		RequirePasswordChange: true,
		Active:                true,
	}
	if _, err := users.Create(ctx, admin, []string{"admin"}); err != nil {
		return err
	}
	if logger != nil {
		logger.Printf("bootstrap: seeded default admin account, password change required on first login")
	}
	return nil
}
