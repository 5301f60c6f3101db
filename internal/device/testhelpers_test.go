package device

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-matter/migrations"
)

// setupTestDB returns an in-memory store with the shipped migrations applied.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db.DB
}

func strPtr(s string) *string { return &s }

// memRepo is an in-memory Repository. Setting fail[op] makes that operation
// return the error; calls counts invocations per operation.
type memRepo struct {
	mu      sync.Mutex
	devices map[string]*Device
	fail    map[string]error
	calls   map[string]int
}

func newMemRepo() *memRepo {
	return &memRepo{
		devices: make(map[string]*Device),
		fail:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

// enter locks the repo and returns the injected failure for op, if any.
// The caller unlocks.
func (m *memRepo) enter(op string) error {
	m.mu.Lock()
	m.calls[op]++
	return m.fail[op]
}

func (m *memRepo) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *memRepo) GetByID(_ context.Context, id string) (*Device, error) {
	err := m.enter("GetByID")
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	d, ok := m.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (m *memRepo) List(_ context.Context) ([]Device, error) {
	err := m.enter("List")
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, *d.DeepCopy())
	}
	return out, nil
}

func (m *memRepo) Create(_ context.Context, device *Device) error {
	err := m.enter("Create")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	if _, taken := m.devices[device.ID]; taken {
		return ErrDeviceExists
	}
	m.devices[device.ID] = device.DeepCopy()
	return nil
}

func (m *memRepo) Update(_ context.Context, device *Device) error {
	err := m.enter("Update")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	if _, ok := m.devices[device.ID]; !ok {
		return ErrDeviceNotFound
	}
	m.devices[device.ID] = device.DeepCopy()
	return nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	err := m.enter("Delete")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	if _, ok := m.devices[id]; !ok {
		return ErrDeviceNotFound
	}
	delete(m.devices, id)
	return nil
}
