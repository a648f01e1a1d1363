//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/onboard"
	"github.com/xraph/onboard/id"
	"github.com/xraph/onboard/progress"
	pgstore "github.com/xraph/onboard/store/postgres"
)

// setupTestStore creates a Postgres container and returns a migrated Store.
func setupTestStore(t *testing.T) *pgstore.Store {
	t.Helper()

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("onboard_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	testcontainers.CleanupContainer(t, container)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	store, err := pgstore.New(ctx, connStr)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(store.Close)

	if migErr := store.Migrate(ctx); migErr != nil {
		t.Fatalf("migrate: %v", migErr)
	}
	return store
}

func TestStore_KVContract(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	v, err := s.Get(ctx, "absent")
	if err != nil {
		t.Fatalf("Get(absent): %v", err)
	}
	if v != nil {
		t.Errorf("Get(absent) = %v, want nil", v)
	}

	if err := s.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, err = s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "v2" {
		t.Errorf("Get = %q, want %q", v, "v2")
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if v, _ := s.Get(ctx, "k"); v != nil {
		t.Error("Get after Delete should be nil")
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete(absent): %v", err)
	}
}

func TestStore_ProgressRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	sess := id.NewSessionID()

	st := progress.NewState()
	st.Current = 5
	for i := 1; i <= 4; i++ {
		st.MarkCompleted(i)
	}
	if err := progress.New(s, sess).Save(ctx, st, onboard.Answers{"phone": "+15551234567"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, answers, ok, err := progress.New(s, sess).Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got.Current != 5 || !got.IsCompleted(4) {
		t.Errorf("state = %+v", got)
	}
	if answers["phone"] != "+15551234567" {
		t.Errorf("answers = %v", answers)
	}
}
