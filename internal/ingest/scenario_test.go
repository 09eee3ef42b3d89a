package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/vigilant-core/internal/device"
	"github.com/nerrad567/vigilant-core/internal/infrastructure/database"
	"github.com/nerrad567/vigilant-core/internal/realtime"
	_ "github.com/nerrad567/vigilant-core/migrations"
)

// TestScenario_RegisteredSensorReading drives a reading through the real
// registry and SQLite schema.
func TestScenario_RegisteredSensorReading(t *testing.T) {
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "vigilant.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registered, err := registry.Connect(ctx, "SENS_01")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if registered.Status != device.StatusAwaitingData {
		t.Fatalf("registered status = %v, want AwaitingData", registered.Status)
	}

	hub := &fakeBroadcaster{}
	p, err := New(Options{
		Registry:    registry,
		Broadcaster: hub,
		Location:    time.UTC,
		Now:         func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	p.Handle(ctx, "vigilant/data/SENS_01", []byte(validPayload))

	// Read back through a fresh registry so the assertion hits SQLite.
	fresh := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	if err := fresh.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	stored, err := fresh.GetByExternalID(ctx, "SENS_01")
	if err != nil {
		t.Fatalf("GetByExternalID() error = %v", err)
	}
	if stored.Status != device.StatusConnected || stored.LastMeasurement != "120.5" {
		t.Errorf("stored = %+v, want Connected with 120.5", stored)
	}
	if stored.Name != "Sensor Sala A" || stored.Location != "Sala A" {
		t.Errorf("stored descriptive fields = %q / %q", stored.Name, stored.Location)
	}
	if !stored.UpdatedAt.Equal(fixedNow) {
		t.Errorf("UpdatedAt = %v, want %v", stored.UpdatedAt, fixedNow)
	}

	if len(hub.sent) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(hub.sent))
	}
	update, ok := hub.sent[0].payload.(realtime.EquipmentUpdate)
	if !ok {
		t.Fatalf("payload type = %T", hub.sent[0].payload)
	}
	if update.ID != registered.ID || update.Measurement != "120.5" {
		t.Errorf("broadcast = %+v, want id %d with 120.5", update, registered.ID)
	}

	// A malformed follow-up changes nothing and broadcasts nothing.
	p.Handle(ctx, "vigilant/data/SENS_01", []byte(`{"identificador":"SENS_01","status":3}`))
	after, err := registry.GetByExternalID(ctx, "SENS_01")
	if err != nil {
		t.Fatalf("GetByExternalID() error = %v", err)
	}
	if after.Status != device.StatusConnected || len(hub.sent) != 1 {
		t.Errorf("malformed payload changed state: status %v, broadcasts %d", after.Status, len(hub.sent))
	}
}
