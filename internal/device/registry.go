package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger is the logging subset the catalogue needs. *logging.Logger
// satisfies it.
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

// Filter narrows ListDevices. Zero fields match everything.
type Filter struct {
	Type       DeviceType
	AutoBridge *bool
}

func (f Filter) matches(d *Device) bool {
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	if f.AutoBridge != nil && d.AutoBridge != *f.AutoBridge {
		return false
	}
	return true
}

// Registry is the catalogue of devices the bridge may expose: a Repository
// behind a read-through cache.
//
// Once RefreshCache has run, reads are served from memory and every write
// goes to the repository first and then to the cache. A Gray Logic Core
// device (SourceID) appears in the catalogue at most once, so it can hold at
// most one Matter endpoint.
//
// All methods are safe for concurrent use. Devices handed out are deep
// copies.
type Registry struct {
	repo   Repository
	logger Logger

	mu       sync.RWMutex
	loaded   bool
	byID     map[string]*Device
	bySource map[string]string // source id -> device id
}

// NewRegistry creates a catalogue over repo. Call RefreshCache before use.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:     repo,
		logger:   noopLogger{},
		byID:     make(map[string]*Device),
		bySource: make(map[string]string),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads every device from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	byID := make(map[string]*Device, len(devices))
	bySource := make(map[string]string)
	for i := range devices {
		d := devices[i].DeepCopy()
		byID[d.ID] = d
		if src := sourceOf(d); src != "" {
			if other, dup := bySource[src]; dup {
				r.logger.Warn("catalogue has two devices for one source",
					"source_id", src, "device_id", d.ID, "other_device_id", other)
				continue
			}
			bySource[src] = d.ID
		}
	}

	r.mu.Lock()
	r.byID, r.bySource, r.loaded = byID, bySource, true
	r.mu.Unlock()

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice returns the device with the given id, or ErrDeviceNotFound.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.mu.RLock()
	cached, ok := r.byID[id]
	loaded := r.loaded
	r.mu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}
	if loaded {
		return nil, ErrDeviceNotFound
	}
	return r.repo.GetByID(ctx, id)
}

// FindBySource returns the device mirroring the given Gray Logic Core
// device, if any.
func (r *Registry) FindBySource(sourceID string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySource[sourceID]
	if !ok {
		return nil, false
	}
	return r.byID[id].DeepCopy(), true
}

// ListDevices returns the devices matching f, ordered by name then id.
func (r *Registry) ListDevices(ctx context.Context, f Filter) ([]Device, error) {
	var devices []Device

	r.mu.RLock()
	if r.loaded {
		devices = make([]Device, 0, len(r.byID))
		for _, d := range r.byID {
			if f.matches(d) {
				devices = append(devices, *d.DeepCopy())
			}
		}
		r.mu.RUnlock()
	} else {
		r.mu.RUnlock()
		all, err := r.repo.List(ctx)
		if err != nil {
			return nil, err
		}
		for i := range all {
			if f.matches(&all[i]) {
				devices = append(devices, all[i])
			}
		}
	}

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].ID < devices[j].ID
	})
	return devices, nil
}

// ListAutoBridged returns the devices marked for bridging on startup.
func (r *Registry) ListAutoBridged(ctx context.Context) ([]Device, error) {
	auto := true
	return r.ListDevices(ctx, Filter{AutoBridge: &auto})
}

// CreateDevice validates and stores a new device, filling in a generated
// id and slug when they are empty.
//
// Returns:
//   - error: a validation error, ErrDeviceExists if the id, slug or source
//     is taken, or a repository error
func (r *Registry) CreateDevice(ctx context.Context, device *Device) error {
	if device == nil {
		return ErrInvalidDevice
	}
	if device.ID == "" {
		device.ID = GenerateID()
	}
	if device.Slug == "" {
		device.Slug = GenerateSlug(device.Name)
	}
	if err := ValidateDevice(device); err != nil {
		return err
	}
	if err := r.checkSource(device); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, device); err != nil {
		return err
	}
	r.store(device)

	r.logger.Info("device created", "id", device.ID, "name", device.Name, "type", device.Type)
	return nil
}

// UpdateDevice replaces a stored device. The slug follows a renamed device
// unless the caller set one, and CreatedAt is preserved.
func (r *Registry) UpdateDevice(ctx context.Context, device *Device) error {
	existing, err := r.GetDevice(ctx, device.ID)
	if err != nil {
		return err
	}
	if device.Name != existing.Name && device.Slug == existing.Slug {
		device.Slug = GenerateSlug(device.Name)
	}
	device.CreatedAt = existing.CreatedAt

	if err := ValidateDevice(device); err != nil {
		return err
	}
	if err := r.checkSource(device); err != nil {
		return err
	}

	if err := r.repo.Update(ctx, device); err != nil {
		return err
	}

	r.mu.Lock()
	if src := sourceOf(existing); src != "" && r.bySource[src] == existing.ID {
		delete(r.bySource, src)
	}
	r.mu.Unlock()
	r.store(device)

	r.logger.Info("device updated", "id", device.ID, "name", device.Name)
	return nil
}

// DeleteDevice removes a device.
func (r *Registry) DeleteDevice(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	if d, ok := r.byID[id]; ok {
		if src := sourceOf(d); src != "" && r.bySource[src] == id {
			delete(r.bySource, src)
		}
		delete(r.byID, id)
	}
	r.mu.Unlock()

	r.logger.Info("device deleted", "id", id)
	return nil
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Stats summarises the catalogue for /metrics and /devices/stats.
type Stats struct {
	TotalDevices int
	AutoBridged  int
	ByType       map[DeviceType]int
}

// GetStats returns current catalogue statistics.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalDevices: len(r.byID),
		ByType:       make(map[DeviceType]int),
	}
	for _, d := range r.byID {
		stats.ByType[d.Type]++
		if d.AutoBridge {
			stats.AutoBridged++
		}
	}
	return stats
}

// checkSource rejects a device whose SourceID already belongs to another
// catalogue entry.
func (r *Registry) checkSource(device *Device) error {
	src := sourceOf(device)
	if src == "" {
		return nil
	}

	r.mu.RLock()
	owner, taken := r.bySource[src]
	r.mu.RUnlock()

	if taken && owner != device.ID {
		return fmt.Errorf("%w: source %q is bridged as device %s", ErrDeviceExists, src, owner)
	}
	return nil
}

func (r *Registry) store(device *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[device.ID] = device.DeepCopy()
	if src := sourceOf(device); src != "" {
		r.bySource[src] = device.ID
	}
}

func sourceOf(d *Device) string {
	if d == nil || d.SourceID == nil {
		return ""
	}
	return *d.SourceID
}
