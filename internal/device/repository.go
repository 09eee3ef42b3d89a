package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines device persistence operations.
// The SQLite implementation is used in production; tests use a mock.
type Repository interface {
	// GetByID returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id int64) (*Device, error)

	// GetByExternalID returns ErrDeviceNotFound if no device uses externalID.
	GetByExternalID(ctx context.Context, externalID string) (*Device, error)

	// List returns all devices ordered by ID.
	List(ctx context.Context) ([]Device, error)

	// NextID returns the lowest positive ID not currently in use.
	NextID(ctx context.Context) (int64, error)

	// Create inserts a device with its ID already assigned.
	// Returns ErrDeviceExists if the ID or external ID is taken.
	Create(ctx context.Context, device *Device) error

	// ApplyReading overwrites the measurement fields of a device.
	// Returns ErrDeviceNotFound if the device does not exist.
	ApplyReading(ctx context.Context, id int64, reading Reading) error

	// Delete returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id int64) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectDeviceColumns = `
	SELECT id, external_id, name, location, sensor_kind, status,
		last_measurement, created_at, updated_at
	FROM devices`

// GetByID retrieves a device by its numeric identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectDeviceColumns+" WHERE id = ?", id)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// GetByExternalID retrieves a device by its broker-facing identifier.
func (r *SQLiteRepository) GetByExternalID(ctx context.Context, externalID string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectDeviceColumns+" WHERE external_id = ?", externalID)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by external id: %w", err)
	}
	return device, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, selectDeviceColumns+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// NextID finds the first gap in the ID sequence, so IDs freed by deletes are
// reused before the sequence grows.
func (r *SQLiteRepository) NextID(ctx context.Context) (int64, error) {
	query := `
		SELECT CASE
			WHEN NOT EXISTS (SELECT 1 FROM devices WHERE id = 1) THEN 1
			ELSE (SELECT MIN(d.id) + 1 FROM devices d
				WHERE NOT EXISTS (SELECT 1 FROM devices n WHERE n.id = d.id + 1))
		END`

	var id int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&id); err != nil {
		return 0, fmt.Errorf("allocating device id: %w", err)
	}
	return id, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	if device.UpdatedAt.IsZero() {
		device.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (
			id, external_id, name, location, sensor_kind, status,
			last_measurement, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		device.ID,
		device.ExternalID,
		device.Name,
		device.Location,
		int(device.SensorKind),
		int(device.Status),
		device.LastMeasurement,
		device.CreatedAt.UTC().Format(time.RFC3339),
		device.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// ApplyReading overwrites name, location, sensor kind, status, measurement
// and update time. The external ID is never touched.
func (r *SQLiteRepository) ApplyReading(ctx context.Context, id int64, reading Reading) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET name = ?, location = ?, sensor_kind = ?, status = ?,
			last_measurement = ?, updated_at = ?
		WHERE id = ?`,
		reading.Name,
		reading.Location,
		int(reading.SensorKind),
		int(reading.Status),
		reading.Measurement,
		reading.At.UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device reading: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var sensorKind, status int
	var createdAt, updatedAt string

	if err := scanner.Scan(
		&d.ID,
		&d.ExternalID,
		&d.Name,
		&d.Location,
		&sensorKind,
		&status,
		&d.LastMeasurement,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	d.SensorKind = SensorKind(sensorKind)
	d.Status = Status(status)

	var err error
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at %q: %w", updatedAt, err)
	}

	return &d, nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
