// Package postgrescontainer starts a disposable PostgreSQL server for
// repository tests.
package postgrescontainer

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	image    = "postgres:16-alpine"
	user     = "corekit"
	password = "secret"
	dbName   = "corekit_test"
)

// Instance describes a running container.
type Instance struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

// DSN returns a lib/pq connection URL.
func (i Instance) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(i.User, i.Password),
		Host:     fmt.Sprintf("%s:%d", i.Host, i.Port),
		Path:     "/" + i.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Run starts PostgreSQL and terminates it when t finishes. The test is
// skipped when no container runtime is reachable.
func Run(t *testing.T) Instance {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        image,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     user,
			"POSTGRES_PASSWORD": password,
			"POSTGRES_DB":       dbName,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("postgres container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("postgres container port: %v", err)
	}

	inst := Instance{Host: host, Port: port.Int(), User: user, Password: password, Name: dbName}
	if err := waitForPing(ctx, inst.DSN()); err != nil {
		t.Fatalf("postgres container not ready: %v", err)
	}
	return inst
}

func waitForPing(ctx context.Context, dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
