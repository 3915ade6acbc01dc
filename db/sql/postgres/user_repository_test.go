package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/adeilh/corekit/auth"
	testpg "github.com/adeilh/corekit/internal/testutil/postgrescontainer"
)

const testTimeout = 10 * time.Second

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	inst := testpg.Run(t)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	db, err := Connect(ctx, Settings{
		Host:     inst.Host,
		Port:     inst.Port,
		User:     inst.User,
		Password: inst.Password,
		Name:     inst.Name,
	})
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := ApplyMigrations(ctx, db, Migrations...); err != nil {
		t.Fatalf("ApplyMigrations error: %v", err)
	}
	return db
}

func TestUserRepositoryCRUD(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	created, err := repo.CreateUser(ctx, User{
		Email:        "Test@Example.com",
		Name:         "Test User",
		PasswordHash: "$2a$04$hash",
		Enabled:      true,
		Metadata:     map[string]string{"role": "admin"},
	})
	if err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("CreateUser did not fill defaults: %+v", created)
	}

	// citext makes the lookup case-insensitive.
	fetched, err := repo.GetUserByEmail(ctx, "test@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail error: %v", err)
	}
	if fetched.ID != created.ID || fetched.Metadata["role"] != "admin" {
		t.Fatalf("fetched = %+v", fetched)
	}

	if _, err := repo.CreateUser(ctx, User{Email: "test@example.com", PasswordHash: "x"}); !errors.Is(err, ErrUserEmailInUse) {
		t.Fatalf("expected ErrUserEmailInUse got %v", err)
	}

	fetched.Metadata["role"] = "user"
	if _, err := repo.UpdateUser(ctx, fetched); err != nil {
		t.Fatalf("UpdateUser error: %v", err)
	}

	disabled, err := repo.SetEnabled(ctx, created.ID, false)
	if err != nil {
		t.Fatalf("SetEnabled error: %v", err)
	}
	if disabled.Enabled {
		t.Fatalf("expected user to be disabled")
	}

	if err := repo.SetPasswordHash(ctx, created.ID, "$2a$05$newhash"); err != nil {
		t.Fatalf("SetPasswordHash error: %v", err)
	}

	final, err := repo.GetUserByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetUserByID error: %v", err)
	}
	if final.Metadata["role"] != "user" || final.Enabled || final.PasswordHash != "$2a$05$newhash" {
		t.Fatalf("final = %+v", final)
	}

	if _, err := repo.GetUserByID(ctx, "not-a-uuid"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for malformed id got %v", err)
	}
	if _, err := repo.SetEnabled(ctx, "00000000-0000-0000-0000-000000000000", true); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound on missing user got %v", err)
	}
}

func TestUserResolverWithManager(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	mgr, err := auth.NewManager[User](auth.Config{Secret: "integration-secret"}, NewUserResolver(repo))
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	hash, err := mgr.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	user, err := repo.CreateUser(ctx, User{Email: "resolver@example.com", PasswordHash: hash, Enabled: true})
	if err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}

	token, err := mgr.IssueToken(auth.Claims{"sub": user.ID}, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	got, err := mgr.VerifyToken(ctx, token)
	if err != nil {
		t.Fatalf("VerifyToken error: %v", err)
	}
	if got.ID != user.ID || !mgr.VerifyPassword("hunter2", got.PasswordHash) {
		t.Fatalf("resolved user = %+v", got)
	}

	if _, err := repo.SetEnabled(ctx, user.ID, false); err != nil {
		t.Fatalf("SetEnabled error: %v", err)
	}
	if _, err := mgr.VerifyToken(ctx, token); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("expected disabled user to be rejected, got %v", err)
	}
}
