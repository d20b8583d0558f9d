// Package testutil provides test utilities for the learning pipeline.
// It offers isolated in-memory databases and fluent seeding of test data.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/the-model-must-learn/internal/storage"
	"github.com/Veraticus/the-model-must-learn/internal/testutil/fixtures"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
	Seeded  fixtures.Seeded
}

// SetupTestDB creates a new migrated in-memory test database.
// It automatically handles cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// SetupTestDBWithBuilder creates a test database seeded by a fixtures builder.
//
// Example:
//
//	db := testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
//		return b.WithExamples("greet", 3, model.DispositionAutoApproved).
//			WithCorrections("greet", "goodbye", 3)
//	})
func SetupTestDBWithBuilder(t *testing.T, configure func(fixtures.Builder) fixtures.Builder) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{Configure: configure})
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	Configure      func(fixtures.Builder) fixtures.Builder
	CustomSetup    func(context.Context, *storage.SQLiteStorage) error
	SkipMigrations bool
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	db := &TestDB{Storage: store, t: t}

	if opts.SkipMigrations {
		return db
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	if opts.Configure != nil {
		builder := opts.Configure(fixtures.NewBuilder(t))
		seeded, err := builder.Build(ctx, store)
		if err != nil {
			t.Fatalf("failed to seed fixtures: %v", err)
		}
		db.Seeded = seeded
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return db
}
