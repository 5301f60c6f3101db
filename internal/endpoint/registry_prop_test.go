package endpoint

import (
	"context"
	"errors"
	"testing"

	"pgregory.net/rapid"
)

// TestRegistry_Properties drives random add/remove sequences against a
// model of the slot table and checks slot uniqueness, lookup consistency,
// identifier uniqueness and cursor bounds after every step.
func TestRegistry_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 8).Draw(rt, "capacity")
		staticCount := rapid.IntRange(1, 4).Draw(rt, "static")
		width := rapid.IntRange(capacity, capacity+6).Draw(rt, "width")

		static := make([]ID, staticCount)
		for i := range static {
			static[i] = ID(i)
		}
		maxID := ID(staticCount - 1 + width)

		stack := newMockStack(static...)
		reg, err := New(stack, newChanLock(), Options{Capacity: capacity, MaxEndpointID: maxID})
		if err != nil {
			rt.Fatalf("New() error = %v", err)
		}
		if err := reg.Init(context.Background()); err != nil {
			rt.Fatalf("Init() error = %v", err)
		}

		pool := make([]*testDevice, capacity+2)
		for i := range pool {
			pool[i] = newTestDevice(string(rune('A' + i)))
		}
		model := make(map[*testDevice]int)

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for s := 0; s < steps; s++ {
			dev := pool[rapid.IntRange(0, len(pool)-1).Draw(rt, "device")]
			_, registered := model[dev]

			if rapid.Bool().Draw(rt, "add") {
				if registered {
					continue
				}
				idx, err := reg.Add(context.Background(), dev, testDesc, nil, nil, 1)
				if len(model) == capacity {
					if !errors.Is(err, ErrNoCapacity) {
						rt.Fatalf("Add() on full table error = %v, want ErrNoCapacity", err)
					}
					continue
				}
				if err != nil {
					rt.Fatalf("Add() error = %v", err)
				}
				if idx < 0 || idx >= capacity {
					rt.Fatalf("Add() = %d, outside [0, %d)", idx, capacity)
				}
				for other, i := range model {
					if i == idx {
						rt.Fatalf("slot %d handed to %s while held by %s", idx, dev.name, other.name)
					}
				}
				model[dev] = idx
			} else {
				idx, err := reg.Remove(context.Background(), dev)
				if !registered {
					if !errors.Is(err, ErrDeviceNotFound) {
						rt.Fatalf("Remove() of unknown device error = %v", err)
					}
					continue
				}
				if err != nil || idx != model[dev] {
					rt.Fatalf("Remove() = %d, %v; want %d", idx, err, model[dev])
				}
				delete(model, dev)
			}

			checkInvariants(rt, reg, model)
		}
	})
}

func checkInvariants(rt *rapid.T, reg *Registry, model map[*testDevice]int) {
	if reg.InUse() != len(model) {
		rt.Fatalf("InUse() = %d, model has %d", reg.InUse(), len(model))
	}
	for dev, idx := range model {
		got, ok := reg.DeviceAt(idx)
		if !ok || got != dev {
			rt.Fatalf("DeviceAt(%d) = %v, %v; want %s", idx, got, ok, dev.name)
		}
	}

	seen := make(map[ID]bool)
	for _, s := range reg.Slots() {
		if !s.Used {
			continue
		}
		if s.EndpointID < reg.FirstDynamicID() || s.EndpointID > reg.MaxEndpointID() {
			rt.Fatalf("slot %d id %d outside dynamic range", s.Index, s.EndpointID)
		}
		if seen[s.EndpointID] {
			rt.Fatalf("endpoint id %d assigned twice", s.EndpointID)
		}
		seen[s.EndpointID] = true
	}

	if c := reg.Cursor(); c < reg.FirstDynamicID() || c > reg.MaxEndpointID() {
		rt.Fatalf("Cursor() = %d outside [%d, %d]", c, reg.FirstDynamicID(), reg.MaxEndpointID())
	}
}
