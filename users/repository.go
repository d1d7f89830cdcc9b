package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/stokaro/userbase/dbschema"
)

const (
	// DefaultPerPage is used by ListUsers when perPage is not positive.
	DefaultPerPage = 20
	// MaxPerPage caps the page size of ListUsers.
	MaxPerPage = 100

	maxListOffset = math.MaxInt32
)

const selectUserSQL = `SELECT u.user_id, u.email, u.password_hash, u.role, u.created_at, u.updated_at,
	i.info_id, i.user_id, i.first_name, i.middle_name, i.last_name, i.username, i.avatar_url, i.bio, i.created_at, i.updated_at
FROM users u
JOIN user_infos i ON i.user_id = u.user_id`

const selectInfoSQL = `SELECT info_id, user_id, first_name, middle_name, last_name, username, avatar_url, bio, created_at, updated_at
FROM user_infos`

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Repository reads and writes users and their profiles. Every write runs in
// a single transaction; when the context deadline expires the transaction is
// rolled back and dbschema.ErrTimeout is returned.
type Repository struct {
	conn   *dbschema.DatabaseConnection
	logger *slog.Logger
}

// NewRepository returns a repository backed by conn. The schema from package
// schema must have been applied.
func NewRepository(conn *dbschema.DatabaseConnection) *Repository {
	return &Repository{
		conn:   conn,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the repository
func (r *Repository) WithLogger(l *slog.Logger) *Repository {
	tmp := *r
	tmp.logger = l
	return &tmp
}

// CreateUser inserts a user together with its profile. The email is
// normalized with NormalizeEmail before it is stored.
func (r *Repository) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	in.Email = NormalizeEmail(in.Email)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	userID, infoID := uuid.New(), uuid.New()

	var user *User
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		insertUser := r.conn.Rebind("INSERT INTO users (user_id, email, password_hash, role) VALUES (?, ?, ?, ?)")
		if _, err := tx.ExecContext(ctx, insertUser, userID, in.Email, in.PasswordHash, in.Role); err != nil {
			return err
		}

		insertInfo := r.conn.Rebind(`INSERT INTO user_infos (info_id, user_id, first_name, middle_name, last_name, username, avatar_url, bio)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		info := in.Info
		if _, err := tx.ExecContext(ctx, insertInfo, infoID, userID,
			nullable(info.FirstName), nullable(info.MiddleName), nullable(info.LastName),
			nullable(info.Username), nullable(info.AvatarURL), nullable(info.Bio)); err != nil {
			return err
		}

		var err error
		user, err = r.getUser(ctx, tx, "u.user_id = ?", userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", classify(err))
	}

	r.logger.Info("User created", "userID", user.ID, "role", user.Role)
	return user, nil
}

// GetUser returns the user with id.
func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := r.getUser(ctx, r.conn.DB(), "u.user_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, classify(err))
	}
	return user, nil
}

// GetUserByEmail looks a user up by email, ignoring case and surrounding space.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	user, err := r.getUser(ctx, r.conn.DB(), "u.email = ?", NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", classify(err))
	}
	return user, nil
}

// ListUsers returns one page of users, newest first. Pages start at 1.
func (r *Repository) ListUsers(ctx context.Context, page, perPage int) ([]User, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	perPage = min(perPage, MaxPerPage)
	// Keep the offset representable; pages past it are simply empty.
	page = min(page, maxListOffset/perPage+1)

	query := r.conn.Rebind(selectUserSQL + " ORDER BY u.created_at DESC, u.user_id DESC LIMIT ? OFFSET ?")
	rows, err := r.conn.QueryContext(ctx, query, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", classify(err))
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", classify(err))
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", classify(err))
	}
	return users, nil
}

// CountUsers returns the number of users.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := r.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", classify(err))
	}
	return count, nil
}

// UpdateUserInfo applies patch to the profile of userID and refreshes its
// updated_at. Fields left nil in patch keep their value.
func (r *Repository) UpdateUserInfo(ctx context.Context, userID uuid.UUID, patch InfoPatch) (*UserInfo, error) {
	if err := validateStruct(patch); err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	for _, f := range []struct {
		column string
		value  *string
	}{
		{"first_name", patch.FirstName},
		{"middle_name", patch.MiddleName},
		{"last_name", patch.LastName},
		{"username", patch.Username},
		{"avatar_url", patch.AvatarURL},
		{"bio", patch.Bio},
	} {
		if f.value != nil {
			sets = append(sets, f.column+" = ?")
			args = append(args, nullable(f.value))
		}
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, userID)

	var info *UserInfo
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.ensureUser(ctx, tx, userID); err != nil {
			return err
		}

		query := r.conn.Rebind("UPDATE user_infos SET " + strings.Join(sets, ", ") + " WHERE user_id = ?")
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}

		var err error
		info, err = scanInfo(tx.QueryRowContext(ctx, r.conn.Rebind(selectInfoSQL+" WHERE user_id = ?"), userID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update info of user %s: %w", userID, classify(err))
	}

	r.logger.Debug("User info updated", "userID", userID, "fields", len(sets)-1)
	return info, nil
}

// UpdateRole changes the role of userID.
func (r *Repository) UpdateRole(ctx context.Context, userID uuid.UUID, role Role) (*User, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: %w: %d", ErrInvalidInput, ErrInvalidRole, uint8(role))
	}

	var user *User
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.ensureUser(ctx, tx, userID); err != nil {
			return err
		}

		query := r.conn.Rebind("UPDATE users SET role = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?")
		if _, err := tx.ExecContext(ctx, query, role, userID); err != nil {
			return err
		}

		var err error
		user, err = r.getUser(ctx, tx, "u.user_id = ?", userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update role of user %s: %w", userID, classify(err))
	}

	r.logger.Info("User role updated", "userID", userID, "role", role)
	return user, nil
}

// DeleteUser removes a user. The store removes its profile in the same
// transaction.
func (r *Repository) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, r.conn.Rebind("DELETE FROM users WHERE user_id = ?"), userID)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete user %s: %w", userID, classify(err))
	}

	r.logger.Info("User deleted", "userID", userID)
	return nil
}

// VerifyCredentials returns the user when password matches the stored hash.
// An unknown email and a wrong password both yield ErrInvalidCredentials.
func (r *Repository) VerifyCredentials(ctx context.Context, email, password string) (*User, error) {
	user, err := r.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password of user %s: %w", user.ID, err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ensureUser fails with ErrNotFound unless userID exists. Checking first
// keeps NotFound independent of how the driver counts unchanged rows.
func (r *Repository) ensureUser(ctx context.Context, q queryer, userID uuid.UUID) error {
	var found int
	err := q.QueryRowContext(ctx, r.conn.Rebind("SELECT 1 FROM users WHERE user_id = ?"), userID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *Repository) getUser(ctx context.Context, q queryer, where string, arg any) (*User, error) {
	return scanUser(q.QueryRowContext(ctx, r.conn.Rebind(selectUserSQL+" WHERE "+where), arg))
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Role,
		dbschema.ScanTimestamp(&u.CreatedAt), dbschema.ScanTimestamp(&u.UpdatedAt),
		&u.Info.ID, &u.Info.UserID, &u.Info.FirstName, &u.Info.MiddleName, &u.Info.LastName,
		&u.Info.Username, &u.Info.AvatarURL, &u.Info.Bio,
		dbschema.ScanTimestamp(&u.Info.CreatedAt), dbschema.ScanTimestamp(&u.Info.UpdatedAt),
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func scanInfo(row rowScanner) (*UserInfo, error) {
	var i UserInfo
	err := row.Scan(
		&i.ID, &i.UserID, &i.FirstName, &i.MiddleName, &i.LastName,
		&i.Username, &i.AvatarURL, &i.Bio,
		dbschema.ScanTimestamp(&i.CreatedAt), dbschema.ScanTimestamp(&i.UpdatedAt),
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// classify maps store errors onto the package's sentinel errors.
func classify(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if name, ok := dbschema.UniqueViolation(err); ok {
		switch {
		case isConstraint(name, "uq_users_email", "users.email"):
			return fmt.Errorf("%w: %w", ErrDuplicateEmail, err)
		case isConstraint(name, "uq_user_infos_username", "user_infos.username"):
			return fmt.Errorf("%w: %w", ErrDuplicateUsername, err)
		}
	}
	return dbschema.WrapError(err)
}

// isConstraint matches a violated constraint as reported by
// dbschema.UniqueViolation: by name, by table-qualified name or by column.
func isConstraint(name, constraint, column string) bool {
	return name == constraint || strings.HasSuffix(name, "."+constraint) || name == column
}
