package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Placeholder values for a device that has been registered but has not
// reported yet. They are shown to operators until the first reading
// overwrites them.
const (
	placeholderNamePrefix  = "Equipamento NOVO - "
	placeholderLocation    = "Aguardando dados iniciais do Broker"
	placeholderMeasurement = "N/A - Aguardando 1ª Medição"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides device management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups,
// indexed both by ID and by external ID.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by every write that goes through the registry.
//
// All public methods are thread-safe.
type Registry struct {
	repo Repository

	cache      map[int64]*Device
	byExternal map[string]int64
	loaded     bool
	cacheMu    sync.RWMutex

	// createMu makes ID allocation and insert one step.
	createMu sync.Mutex

	logger Logger
	now    func() time.Time
}

// NewRegistry creates a new device registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:       repo,
		cache:      make(map[int64]*Device),
		byExternal: make(map[string]int64),
		logger:     noopLogger{},
		now:        time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[int64]*Device, len(devices))
	r.byExternal = make(map[string]int64, len(devices))
	for i := range devices {
		r.storeLocked(&devices[i])
	}
	r.loaded = true

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// Connect registers a device that is expected to start reporting on the
// broker as externalID. The new device is AwaitingData until its first
// reading is ingested.
//
// Returns ErrInvalidExternalID or ErrDeviceExists.
func (r *Registry) Connect(ctx context.Context, externalID string) (*Device, error) {
	if err := ValidateExternalID(externalID); err != nil {
		return nil, err
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	_, err := r.GetByExternalID(ctx, externalID)
	switch {
	case err == nil:
		return nil, ErrDeviceExists
	case !errors.Is(err, ErrDeviceNotFound):
		return nil, err
	}

	id, err := r.repo.NextID(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now()
	device := &Device{
		ID:              id,
		ExternalID:      externalID,
		Name:            fmt.Sprintf("%s%d", placeholderNamePrefix, id),
		Location:        placeholderLocation,
		SensorKind:      SensorKindLoading,
		Status:          StatusAwaitingData,
		LastMeasurement: placeholderMeasurement,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := r.repo.Create(ctx, device); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.storeLocked(device)
	r.cacheMu.Unlock()

	r.logger.Info("device registered", "id", device.ID, "external_id", externalID)
	return device.DeepCopy(), nil
}

// GetDevice retrieves a device by ID.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) GetDevice(ctx context.Context, id int64) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	device, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.storeLocked(device)
	r.cacheMu.Unlock()

	return device, nil
}

// GetByExternalID retrieves a device by its broker-facing identifier.
// Returns ErrDeviceNotFound for unregistered identifiers.
func (r *Registry) GetByExternalID(ctx context.Context, externalID string) (*Device, error) {
	r.cacheMu.RLock()
	id, ok := r.byExternal[externalID]
	var cached *Device
	if ok {
		cached = r.cache[id]
	}
	loaded := r.loaded
	r.cacheMu.RUnlock()

	if cached != nil {
		return cached.DeepCopy(), nil
	}
	// A loaded cache is authoritative for misses; every write goes through it.
	if loaded {
		return nil, ErrDeviceNotFound
	}

	device, err := r.repo.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.storeLocked(device)
	r.cacheMu.Unlock()

	return device, nil
}

// ListDevices retrieves all devices ordered by ID.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	if !r.loaded {
		r.cacheMu.RUnlock()
		return r.repo.List(ctx)
	}

	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		devices = append(devices, *d.DeepCopy())
	}
	r.cacheMu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID < devices[j].ID
	})
	return devices, nil
}

// ApplyReading records an ingested measurement against device id and
// returns the updated device.
func (r *Registry) ApplyReading(ctx context.Context, id int64, reading Reading) (*Device, error) {
	if err := ValidateReading(reading); err != nil {
		return nil, err
	}

	if err := r.repo.ApplyReading(ctx, id, reading); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	cached, ok := r.cache[id]
	var updated *Device
	if ok {
		updated = cached.DeepCopy()
		updated.Name = reading.Name
		updated.Location = reading.Location
		updated.SensorKind = reading.SensorKind
		updated.Status = reading.Status
		updated.LastMeasurement = reading.Measurement
		updated.UpdatedAt = reading.At
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	if !ok {
		return r.GetDevice(ctx, id)
	}

	r.logger.Debug("device reading applied", "id", id, "status", reading.Status.String())
	return updated.DeepCopy(), nil
}

// DeleteDevice removes a device. Nothing is sent to the broker.
func (r *Registry) DeleteDevice(ctx context.Context, id int64) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if d, ok := r.cache[id]; ok {
		delete(r.byExternal, d.ExternalID)
		delete(r.cache, id)
	}
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "id", id)
	return nil
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices int            `json:"total_devices"`
	ByStatus     map[string]int `json:"by_status"`
	BySensorKind map[string]int `json:"by_sensor_kind"`
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		TotalDevices: len(r.cache),
		ByStatus:     make(map[string]int),
		BySensorKind: make(map[string]int),
	}
	for _, d := range r.cache {
		stats.ByStatus[d.Status.String()]++
		stats.BySensorKind[d.SensorKind.String()]++
	}
	return stats
}

// storeLocked caches a copy of d. cacheMu must be held for writing.
func (r *Registry) storeLocked(d *Device) {
	r.cache[d.ID] = d.DeepCopy()
	r.byExternal[d.ExternalID] = d.ID
}
