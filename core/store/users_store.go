package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"lungsod-rms/core/utils"
)

type User struct {
	ID                    int64  `json:"id"`
	Username              string `json:"username"`
	FullName              string `json:"full_name"`
	Email                 string `json:"email"`
	PasswordHash          string `json:"-"`
	Salt                  string `json:"-"`
	RequirePasswordChange bool   `json:"require_password_change"`
	Active                bool   `json:"active"`
}

// UserWithRoles is the listing shape for the accounts screens.
type UserWithRoles struct {
	User
	Roles []string `json:"roles"`
}

type UsersStore interface {
	Create(ctx context.Context, u *User, roles []string) (int64, error)
	Get(ctx context.Context, id int64) (*User, []string, error)
	FindByUsername(ctx context.Context, username string) (*User, []string, error)
	List(ctx context.Context) ([]UserWithRoles, error)
	Update(ctx context.Context, u *User, roles []string) error
	SetActive(ctx context.Context, id int64, active bool) error
	SetPassword(ctx context.Context, id int64, hash, salt string, requireChange bool) error
	Count(ctx context.Context) (int64, error)
}

type usersStore struct {
	db *sql.DB
}

func NewUsersStore(db *sql.DB) UsersStore {
	return &usersStore{db: db}
}

func (s *usersStore) Create(ctx context.Context, u *User, roles []string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	now := utils.NowUTC()
	var id int64
	err = tx.QueryRowContext(ctx, rebind(`
		INSERT INTO users(username, full_name, email, password_hash, salt, require_password_change, active, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?) RETURNING id`),
		strings.ToLower(strings.TrimSpace(u.Username)), u.FullName, u.Email, u.PasswordHash, u.Salt,
		boolToInt(u.RequirePasswordChange), boolToInt(u.Active), now, now).Scan(&id)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, rebind(`INSERT INTO user_roles(user_id, role) VALUES(?,?)`), id, role); err != nil {
			tx.Rollback()
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	u.ID = id
	return id, nil
}

func (s *usersStore) Get(ctx context.Context, id int64) (*User, []string, error) {
	row := s.db.QueryRowContext(ctx, rebind(`
		SELECT id, username, full_name, email, password_hash, salt, require_password_change, active
		FROM users WHERE id=?`), id)
	return s.scanUserWithRoles(ctx, row)
}

func (s *usersStore) FindByUsername(ctx context.Context, username string) (*User, []string, error) {
	row := s.db.QueryRowContext(ctx, rebind(`
		SELECT id, username, full_name, email, password_hash, salt, require_password_change, active
		FROM users WHERE username=?`), strings.ToLower(strings.TrimSpace(username)))
	return s.scanUserWithRoles(ctx, row)
}

func (s *usersStore) scanUserWithRoles(ctx context.Context, row *sql.Row) (*User, []string, error) {
	var u User
	var reqChange, active int
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.PasswordHash, &u.Salt, &reqChange, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	u.RequirePasswordChange = reqChange == 1
	u.Active = active == 1
	roles, err := s.rolesFor(ctx, u.ID)
	if err != nil {
		return nil, nil, err
	}
	return &u, roles, nil
}

func (s *usersStore) rolesFor(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, rebind(`SELECT role FROM user_roles WHERE user_id=? ORDER BY role`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func (s *usersStore) List(ctx context.Context) ([]UserWithRoles, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, full_name, email, password_hash, salt, require_password_change, active
		FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UserWithRoles
	for rows.Next() {
		var u User
		var reqChange, active int
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.PasswordHash, &u.Salt, &reqChange, &active); err != nil {
			return nil, err
		}
		u.RequirePasswordChange = reqChange == 1
		u.Active = active == 1
		out = append(out, UserWithRoles{User: u})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		roles, err := s.rolesFor(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Roles = roles
	}
	return out, nil
}

// Update rewrites the profile fields and, when roles is non-nil, replaces the
// role set in the same transaction.
func (s *usersStore) Update(ctx context.Context, u *User, roles []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, rebind(`
		UPDATE users SET full_name=?, email=?, require_password_change=?, active=?, updated_at=? WHERE id=?`),
		u.FullName, u.Email, boolToInt(u.RequirePasswordChange), boolToInt(u.Active), utils.NowUTC(), u.ID)
	if err != nil {
		tx.Rollback()
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		tx.Rollback()
		return ErrNotFound
	}
	if roles != nil {
		if _, err := tx.ExecContext(ctx, rebind(`DELETE FROM user_roles WHERE user_id=?`), u.ID); err != nil {
			tx.Rollback()
			return err
		}
		for _, role := range roles {
			role = strings.ToLower(strings.TrimSpace(role))
			if role == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, rebind(`INSERT INTO user_roles(user_id, role) VALUES(?,?)`), u.ID, role); err != nil {
				tx.Rollback()
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *usersStore) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx, rebind(`UPDATE users SET active=?, updated_at=? WHERE id=?`),
		boolToInt(active), utils.NowUTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *usersStore) SetPassword(ctx context.Context, id int64, hash, salt string, requireChange bool) error {
	res, err := s.db.ExecContext(ctx, rebind(`
		UPDATE users SET password_hash=?, salt=?, require_password_change=?, updated_at=? WHERE id=?`),
		hash, salt, boolToInt(requireChange), utils.NowUTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *usersStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
