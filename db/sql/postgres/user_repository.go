package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrUserNotFound   = errors.New("postgres: user not found")
	ErrUserEmailInUse = errors.New("postgres: email already in use")
)

// User is the account record behind an access token's subject.
type User struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	Name         string            `json:"name"`
	PasswordHash string            `json:"-"`
	Enabled      bool              `json:"enabled"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// UserRepository persists User records inside PostgreSQL.
type UserRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewUserRepository wraps an existing *sql.DB connection.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

const userColumns = `id, email, name, password_hash, metadata, enabled, created_at, updated_at`

// CreateUser inserts user. A missing ID is generated and zero timestamps
// are set to the current time.
func (r *UserRepository) CreateUser(ctx context.Context, user User) (User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := r.now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}
	user.Email = strings.TrimSpace(user.Email)

	metadataJSON, err := marshalMetadata(user.Metadata)
	if err != nil {
		return User{}, err
	}
	const query = `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.db.ExecContext(ctx, query, user.ID, user.Email, user.Name, user.PasswordHash, metadataJSON, user.Enabled, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return User{}, translateUserError(err)
	}
	return user, nil
}

func (r *UserRepository) UpdateUser(ctx context.Context, user User) (User, error) {
	user.UpdatedAt = r.now().UTC()
	metadataJSON, err := marshalMetadata(user.Metadata)
	if err != nil {
		return User{}, err
	}
	const query = `UPDATE users SET email = $2, name = $3, password_hash = $4, metadata = $5, enabled = $6, updated_at = $7 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, user.ID, user.Email, user.Name, user.PasswordHash, metadataJSON, user.Enabled, user.UpdatedAt)
	if err != nil {
		return User{}, translateUserError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

// SetEnabled toggles whether the user may authenticate.
func (r *UserRepository) SetEnabled(ctx context.Context, id string, enabled bool) (User, error) {
	user, err := r.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	user.Enabled = enabled
	return r.UpdateUser(ctx, user)
}

// SetPasswordHash replaces the stored hash, e.g. after a rehash at a higher
// cost.
func (r *UserRepository) SetPasswordHash(ctx context.Context, id, hash string) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, hash, r.now().UTC())
	if err != nil {
		return translateUserError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.getUser(ctx, query, strings.TrimSpace(email))
}

func (r *UserRepository) GetUserByID(ctx context.Context, id string) (User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getUser(ctx, query, id)
}

func (r *UserRepository) getUser(ctx context.Context, query string, arg any) (User, error) {
	var (
		metadataJSON []byte
		user         User
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&metadataJSON,
		&user.Enabled,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, translateUserError(err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &user.Metadata); err != nil {
			return User{}, err
		}
	}
	return user, nil
}

func marshalMetadata(metadata map[string]string) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	return json.Marshal(metadata)
}

func translateUserError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return ErrUserEmailInUse
		case "22P02":
			// Malformed UUID in a lookup.
			return ErrUserNotFound
		}
	}
	return err
}
