package brokerconfig

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE broker_config (
			id             INTEGER PRIMARY KEY CHECK (id = 1),
			host           TEXT    NOT NULL,
			port           INTEGER NOT NULL,
			topic_wildcard TEXT    NOT NULL,
			updated_at     TEXT    NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestStore_GetSeedsBuiltInDefaults(t *testing.T) {
	store := NewStore(setupTestDB(t), Config{})

	cfg, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if cfg.Host != "broker.emqx.io" || cfg.Port != 1883 || cfg.TopicWildcard != "vigilant/data/#" {
		t.Errorf("Get() = %+v, want built-in seed", cfg)
	}
	if cfg.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set on seeded row")
	}
}

func TestStore_GetSeedsConfiguredDefaults(t *testing.T) {
	store := NewStore(setupTestDB(t), Config{Host: "test.broker", TopicWildcard: "acme/data/#"})

	cfg, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if cfg.Host != "test.broker" || cfg.Port != DefaultPort || cfg.TopicWildcard != "acme/data/#" {
		t.Errorf("Get() = %+v", cfg)
	}
}

func TestStore_UpdateThenGet(t *testing.T) {
	store := NewStore(setupTestDB(t), Config{})
	ctx := context.Background()

	if _, err := store.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	want := Config{Host: "test.broker", Port: 1884, TopicWildcard: "vigilant/data/#"}
	if _, err := store.Update(ctx, want); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Host != want.Host || got.Port != want.Port || got.TopicWildcard != want.TopicWildcard {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestStore_UpdateWithoutSeed(t *testing.T) {
	store := NewStore(setupTestDB(t), Config{})
	ctx := context.Background()

	if _, err := store.Update(ctx, Config{Host: "h", Port: 1, TopicWildcard: "ns/#"}); err != nil {
		t.Fatalf("Update() on empty table error = %v", err)
	}
	got, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Host != "h" {
		t.Errorf("Host = %q, want h (update must not be replaced by seed)", got.Host)
	}
}

func TestStore_UpdateRejectsInvalid(t *testing.T) {
	store := NewStore(setupTestDB(t), Config{})

	_, err := store.Update(context.Background(), Config{Host: "", Port: 0, TopicWildcard: "#"})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Update() error = %v, want ErrInvalidConfig", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default seed", Config{Host: DefaultHost, Port: DefaultPort, TopicWildcard: DefaultTopicWildcard}, false},
		{"single level wildcard", Config{Host: "h", Port: 1883, TopicWildcard: "vigilant/+/temperature"}, false},
		{"literal topic", Config{Host: "h", Port: 1883, TopicWildcard: "vigilant/data/SENS_01"}, false},
		{"empty host", Config{Host: " ", Port: 1883, TopicWildcard: "a/#"}, true},
		{"host with path", Config{Host: "tcp://h/x", Port: 1883, TopicWildcard: "a/#"}, true},
		{"port zero", Config{Host: "h", Port: 0, TopicWildcard: "a/#"}, true},
		{"port too high", Config{Host: "h", Port: 65536, TopicWildcard: "a/#"}, true},
		{"empty wildcard", Config{Host: "h", Port: 1883}, true},
		{"hash not last", Config{Host: "h", Port: 1883, TopicWildcard: "a/#/b"}, true},
		{"hash inside level", Config{Host: "h", Port: 1883, TopicWildcard: "a/data#"}, true},
		{"plus inside level", Config{Host: "h", Port: 1883, TopicWildcard: "a/da+ta/#"}, true},
		{"wildcard namespace", Config{Host: "h", Port: 1883, TopicWildcard: "+/data/#"}, true},
		{"leading slash", Config{Host: "h", Port: 1883, TopicWildcard: "/data/#"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_NamespaceAndAddress(t *testing.T) {
	cfg := Config{Host: "test.broker", Port: 1883, TopicWildcard: "vigilant/data/#"}

	if got := cfg.Namespace(); got != "vigilant" {
		t.Errorf("Namespace() = %q, want vigilant", got)
	}
	if got := cfg.Address(); got != "test.broker:1883" {
		t.Errorf("Address() = %q, want test.broker:1883", got)
	}
	if got := (Config{TopicWildcard: "plant"}).Namespace(); got != "plant" {
		t.Errorf("Namespace() single level = %q, want plant", got)
	}
}
