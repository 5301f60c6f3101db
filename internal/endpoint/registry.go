package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Options configures a Registry.
type Options struct {
	// Capacity is the number of dynamic slots. Required.
	Capacity int

	// MaxEndpointID is the highest identifier the cursor may reach before it
	// wraps back to the first dynamic identifier. Zero means DefaultMaxID.
	MaxEndpointID ID

	// LockTimeout bounds stack lock acquisition. Zero waits for ctx only.
	LockTimeout time.Duration

	Logger   Logger
	Recorder EventRecorder
}

// slot is one entry of the dynamic slot table.
type slot struct {
	device Device
	id     ID
	used   bool
}

// Registry maps devices onto dynamic endpoint identifiers.
//
// It owns a fixed-size slot table whose indices are the slot positions used
// by the stack, and a cursor holding the next identifier to try. Identifiers
// come from [firstDynamicID, maxEndpointID]; the stack owns the namespace and
// reports collisions, which the registry resolves by advancing the cursor.
//
// Init, Add and Remove run entirely under the stack Locker, which also
// serialises them against each other. mu guards only the slot table and
// cursor and is never held across a stack call, so DeviceAt and the
// diagnostics neither wait on stack work nor deadlock when the stack looks a
// device up while registering it.
//
// All public methods are thread-safe.
type Registry struct {
	stack       Stack
	lock        Locker
	maxID       ID
	lockTimeout time.Duration
	logger      Logger
	recorder    EventRecorder

	mu          sync.RWMutex
	slots       []slot
	first       ID
	cursor      ID
	initialised bool
}

// New creates a registry in front of stack. Init must be called before Add
// or Remove.
//
// Parameters:
//   - stack: The endpoint table that owns identifier uniqueness
//   - lock: The primitive serialising stack mutations
//   - opts: Slot capacity and tuning
//
// Returns:
//   - *Registry: Registry with every slot empty
//   - error: ErrInvalidOptions if any argument is unusable
func New(stack Stack, lock Locker, opts Options) (*Registry, error) {
	if stack == nil {
		return nil, fmt.Errorf("%w: stack is required", ErrInvalidOptions)
	}
	if lock == nil {
		return nil, fmt.Errorf("%w: lock is required", ErrInvalidOptions)
	}
	if opts.Capacity < 1 {
		return nil, fmt.Errorf("%w: capacity must be at least 1, got %d", ErrInvalidOptions, opts.Capacity)
	}
	if opts.MaxEndpointID == 0 {
		opts.MaxEndpointID = DefaultMaxID
	}
	if opts.MaxEndpointID == InvalidID {
		return nil, fmt.Errorf("%w: max endpoint id %#04x is reserved", ErrInvalidOptions, uint16(InvalidID))
	}
	if opts.LockTimeout < 0 {
		return nil, fmt.Errorf("%w: lock timeout must not be negative", ErrInvalidOptions)
	}

	r := &Registry{
		stack:       stack,
		lock:        lock,
		maxID:       opts.MaxEndpointID,
		lockTimeout: opts.LockTimeout,
		logger:      opts.Logger,
		recorder:    opts.Recorder,
		slots:       make([]slot, opts.Capacity),
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	return r, nil
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// SetRecorder sets the event recorder. Nil disables recording.
func (r *Registry) SetRecorder(rec EventRecorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorder = rec
}

// Init clears every slot, derives the dynamic range from the last static
// endpoint and disables that endpoint, which only exists as a placeholder.
//
// Returns:
//   - error: ErrNoStaticEndpoints, ErrNoCapacity when the last static
//     identifier leaves no dynamic range, ErrAlreadyInitialised on a second
//     call, or ErrLockTimeout
func (r *Registry) Init(ctx context.Context) error {
	if err := r.acquire(ctx); err != nil {
		return err
	}
	defer r.lock.Release()

	if r.Initialised() {
		return ErrAlreadyInitialised
	}

	count := r.stack.StaticEndpointCount()
	if count < 1 {
		return ErrNoStaticEndpoints
	}

	last := r.stack.StaticEndpointIDAt(count - 1)
	if last >= r.maxID {
		return fmt.Errorf("%w: last static endpoint %d leaves no room below %d", ErrNoCapacity, last, r.maxID)
	}

	r.stack.SetEndpointEnabled(last, false)

	r.mu.Lock()
	for i := range r.slots {
		r.slots[i] = slot{}
	}
	r.first = last + 1
	r.cursor = r.first
	r.initialised = true
	r.mu.Unlock()

	r.log().Info("dynamic endpoint registry initialised",
		"capacity", len(r.slots),
		"first_dynamic_id", r.first,
		"max_endpoint_id", r.maxID,
		"placeholder", last,
	)
	return nil
}

// Add registers dev on the first free slot under the current cursor
// identifier, advancing the cursor past identifiers the stack reports in
// use. The cursor is left unchanged on success.
//
// Parameters:
//   - ctx: Bounds stack lock acquisition
//   - dev: The device to bridge; must not already be registered
//   - desc: Server cluster descriptor passed through to the stack
//   - types: Device type list passed through to the stack
//   - versions: Data version storage, one entry per cluster
//   - parent: Parent endpoint identifier (normally the aggregator)
//
// Returns:
//   - int: The slot index the device now occupies
//   - error: ErrNoCapacity, ErrRegistrationFailed, ErrNotInitialised,
//     ErrLockTimeout or ErrNilDevice
func (r *Registry) Add(ctx context.Context, dev Device, desc *Descriptor, types []DeviceType, versions []DataVersion, parent ID) (int, error) {
	if dev == nil {
		return -1, ErrNilDevice
	}
	if err := r.acquire(ctx); err != nil {
		return -1, err
	}

	idx, events, err := r.addLocked(dev, desc, types, versions, parent)
	r.lock.Release()

	r.emit(ctx, events)
	return idx, err
}

// addLocked runs with the stack lock held and returns the events to emit
// once it is released.
func (r *Registry) addLocked(dev Device, desc *Descriptor, types []DeviceType, versions []DataVersion, parent ID) (int, []Event, error) {
	logger := r.log()
	name := dev.Name()

	r.mu.Lock()
	if !r.initialised {
		r.mu.Unlock()
		return -1, nil, ErrNotInitialised
	}
	idx := r.firstFree()
	if idx < 0 {
		r.mu.Unlock()
		logger.Warn("failed to add dynamic endpoint: no endpoints available", "device", name, "capacity", len(r.slots))
		return -1, []Event{r.event(EventFailed, -1, InvalidID, name, ErrNoCapacity)}, ErrNoCapacity
	}
	// Reserve before touching the stack so the slot cannot be handed out twice.
	r.slots[idx] = slot{device: dev, used: true}
	attempts := int(r.maxID-r.first) + 1
	r.mu.Unlock()

	var events []Event
	for attempt := 0; attempt < attempts; attempt++ {
		id := r.Cursor()
		dev.SetEndpointID(id)
		dev.SetParentEndpointID(parent)

		err := r.stack.RegisterDynamicEndpoint(idx, id, desc, versions, types, parent)
		if err == nil {
			r.mu.Lock()
			r.slots[idx].id = id
			r.mu.Unlock()
			logger.Info("added device to dynamic endpoint",
				"device", name,
				"endpoint_id", id,
				"index", idx,
			)
			return idx, append(events, r.event(EventAdded, idx, id, name, nil)), nil
		}

		if !errors.Is(err, ErrEndpointExists) {
			r.release(idx, dev)
			logger.Error("failed to add dynamic endpoint", "device", name, "endpoint_id", id, "index", idx, "error", err)
			wrapped := fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
			return -1, append(events, r.event(EventFailed, idx, id, name, wrapped)), wrapped
		}

		logger.Debug("dynamic endpoint id in use, advancing", "device", name, "endpoint_id", id)
		events = append(events, r.event(EventCollision, idx, id, name, err))
		r.advance()
	}

	r.release(idx, dev)
	logger.Error("failed to add dynamic endpoint: identifier range exhausted", "device", name, "attempts", attempts)
	exhausted := fmt.Errorf("%w: all %d identifiers in use", ErrNoCapacity, attempts)
	return -1, append(events, r.event(EventFailed, idx, InvalidID, name, exhausted)), exhausted
}

// Remove deregisters dev and clears its slot.
//
// Returns:
//   - int: The slot index the device occupied
//   - error: ErrDeviceNotFound, ErrNotInitialised, ErrLockTimeout or ErrNilDevice
func (r *Registry) Remove(ctx context.Context, dev Device) (int, error) {
	if dev == nil {
		return -1, ErrNilDevice
	}
	if err := r.acquire(ctx); err != nil {
		return -1, err
	}

	idx, ev, err := r.removeLocked(dev)
	r.lock.Release()

	if err == nil {
		r.emit(ctx, []Event{ev})
	}
	return idx, err
}

func (r *Registry) removeLocked(dev Device) (int, Event, error) {
	if !r.Initialised() {
		return -1, Event{}, ErrNotInitialised
	}

	idx := r.IndexOf(dev)
	if idx < 0 {
		return -1, Event{}, ErrDeviceNotFound
	}

	id := r.stack.DeregisterDynamicEndpoint(idx)
	r.release(idx, dev)

	name := dev.Name()
	r.log().Info("removed device from dynamic endpoint",
		"device", name,
		"endpoint_id", id,
		"index", idx,
	)
	return idx, r.event(EventRemoved, idx, id, name, nil), nil
}

// DeviceAt returns the device in slot index. It reports false for an empty
// slot or an index outside [0, Capacity).
func (r *Registry) DeviceAt(index int) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if index < 0 || index >= len(r.slots) || !r.slots[index].used {
		return nil, false
	}
	return r.slots[index].device, true
}

// IndexOf returns the slot dev occupies, or -1.
func (r *Registry) IndexOf(dev Device) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.slots {
		if r.slots[i].used && r.slots[i].device == dev {
			return i
		}
	}
	return -1
}

// Slots returns a snapshot of the slot table.
func (r *Registry) Slots() []SlotInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SlotInfo, len(r.slots))
	for i, s := range r.slots {
		out[i] = SlotInfo{Index: i, Used: s.used}
		if s.used {
			out[i].EndpointID = s.id
			out[i].DeviceName = s.device.Name()
		}
	}
	return out
}

// Capacity returns the number of dynamic slots.
func (r *Registry) Capacity() int {
	return len(r.slots)
}

// InUse returns the number of occupied slots.
func (r *Registry) InUse() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.slots {
		if s.used {
			n++
		}
	}
	return n
}

// Cursor returns the next identifier Add will try.
func (r *Registry) Cursor() ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cursor
}

// FirstDynamicID returns the lowest dynamic identifier. It is zero before Init.
func (r *Registry) FirstDynamicID() ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.first
}

// MaxEndpointID returns the highest dynamic identifier.
func (r *Registry) MaxEndpointID() ID {
	return r.maxID
}

// Initialised reports whether Init has completed.
func (r *Registry) Initialised() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialised
}

func (r *Registry) acquire(ctx context.Context) error {
	if r.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.lockTimeout)
		defer cancel()
	}
	if err := r.lock.Acquire(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrLockTimeout, err)
	}
	return nil
}

// firstFree returns the lowest empty slot index, or -1. Caller holds mu.
func (r *Registry) firstFree() int {
	for i := range r.slots {
		if !r.slots[i].used {
			return i
		}
	}
	return -1
}

// advance moves the cursor one step, wrapping to the first dynamic
// identifier past maxID.
func (r *Registry) advance() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor >= r.maxID {
		r.cursor = r.first
		return
	}
	r.cursor++
}

// release clears slot idx and the device's identifier.
func (r *Registry) release(idx int, dev Device) {
	r.mu.Lock()
	r.slots[idx] = slot{}
	r.mu.Unlock()
	dev.SetEndpointID(InvalidID)
}

func (r *Registry) log() Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logger
}

func (r *Registry) event(kind EventKind, idx int, id ID, name string, err error) Event {
	return Event{
		Kind:       kind,
		Slot:       idx,
		EndpointID: id,
		DeviceName: name,
		Err:        err,
		Time:       time.Now().UTC(),
	}
}

func (r *Registry) emit(ctx context.Context, events []Event) {
	r.mu.RLock()
	rec := r.recorder
	r.mu.RUnlock()

	if rec == nil {
		return
	}
	for _, ev := range events {
		rec.RecordEndpointEvent(ctx, ev)
	}
}
