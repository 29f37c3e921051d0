package backend

import (
	"context"
	"path/filepath"
	"testing"

	"piggybank/internal/config"
)

func TestBackendTypeIsValid(t *testing.T) {
	for _, bt := range GetBackendTypes() {
		if !bt.IsValid() {
			t.Fatalf("%s should be valid", bt)
		}
	}
	if BackendType("sheets").IsValid() {
		t.Fatalf("sheets is no longer a gateway backend")
	}
	if MemoryBackend.IsPersistent() || !SQLiteBackend.IsPersistent() || !PostgresBackend.IsPersistent() {
		t.Fatalf("unexpected persistence flags")
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"memory", Config{Type: MemoryBackend}, true},
		{"memory seeded without user", Config{Type: MemoryBackend, SeedDemoData: true}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, true},
		{"postgres without url", Config{Type: PostgresBackend}, false},
		{"unknown", Config{Type: "mongo"}, false},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: expected ok, got %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(&config.Config{
		DataBackend:  "sqlite",
		SQLiteDBPath: "data/piggybank.db",
		DemoUserID:   "demo",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "data/piggybank.db" || cfg.SeedUserID != "demo" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestCreateBackend(t *testing.T) {
	f := NewFactory(nil)
	ctx := context.Background()

	res, err := f.CreateBackend(ctx, Config{Type: MemoryBackend, SeedDemoData: true, SeedUserID: "demo"})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	txs, _ := res.Gateway.ListTransactions(ctx, "demo")
	if len(txs) == 0 {
		t.Fatalf("expected seeded demo transactions")
	}

	res, err = f.CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "pb.db")})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	if err := res.Gateway.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := res.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}
