package matter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-matter/internal/endpoint"
)

// FixedEndpoint is a statically configured endpoint.
type FixedEndpoint struct {
	ID          endpoint.ID
	Name        string
	DeviceTypes []endpoint.DeviceType
}

// Kind distinguishes fixed from dynamic endpoints in listings.
type Kind string

const (
	KindFixed   Kind = "fixed"
	KindDynamic Kind = "dynamic"
)

// EndpointInfo is a read-only view of one live endpoint.
type EndpointInfo struct {
	ID          endpoint.ID           `json:"id"`
	Kind        Kind                  `json:"kind"`
	Name        string                `json:"name,omitempty"`
	Index       int                   `json:"index"`
	Parent      endpoint.ID           `json:"parent,omitempty"`
	Enabled     bool                  `json:"enabled"`
	DeviceTypes []endpoint.DeviceType `json:"device_types,omitempty"`
	Clusters    []uint32              `json:"clusters,omitempty"`
}

type fixedEntry struct {
	FixedEndpoint
	enabled bool
}

type dynamicEntry struct {
	used     bool
	id       endpoint.ID
	parent   endpoint.ID
	enabled  bool
	desc     *endpoint.Descriptor
	versions []endpoint.DataVersion
	types    []endpoint.DeviceType
}

// EndpointTable is the node's endpoint table: a contiguous run of fixed
// endpoints followed by a fixed number of dynamic slots. It enforces
// identifier uniqueness across both and implements endpoint.Stack.
//
// Mutations are expected to happen under a StackLock; the table's own mutex
// only guarantees memory safety for concurrent readers.
type EndpointTable struct {
	mu      sync.RWMutex
	fixed   []fixedEntry
	dynamic []dynamicEntry
}

// NewEndpointTable creates a table from the fixed endpoint list and the
// number of dynamic slots.
//
// Parameters:
//   - fixed: Fixed endpoints in ascending, contiguous id order. The last
//     entry is the placeholder the registry disables at init.
//   - dynamicCount: Number of dynamic slots
//
// Returns:
//   - *EndpointTable: Table with every fixed endpoint enabled
//   - error: ErrInvalidFixedEndpoints if the list is empty or not contiguous
func NewEndpointTable(fixed []FixedEndpoint, dynamicCount int) (*EndpointTable, error) {
	if len(fixed) == 0 {
		return nil, fmt.Errorf("%w: at least one fixed endpoint is required", ErrInvalidFixedEndpoints)
	}
	if dynamicCount < 1 {
		return nil, fmt.Errorf("%w: dynamic endpoint count must be at least 1", ErrInvalidFixedEndpoints)
	}

	entries := make([]fixedEntry, len(fixed))
	for i, f := range fixed {
		if f.ID == endpoint.InvalidID {
			return nil, fmt.Errorf("%w: endpoint %d uses the invalid id", ErrInvalidFixedEndpoints, i)
		}
		if i > 0 && f.ID != fixed[i-1].ID+1 {
			return nil, fmt.Errorf("%w: endpoint %d follows %d, ids must be contiguous", ErrInvalidFixedEndpoints, f.ID, fixed[i-1].ID)
		}
		entries[i] = fixedEntry{FixedEndpoint: f, enabled: true}
	}

	return &EndpointTable{
		fixed:   entries,
		dynamic: make([]dynamicEntry, dynamicCount),
	}, nil
}

// RegisterDynamicEndpoint places an endpoint into dynamic slot index.
// It returns endpoint.ErrEndpointExists when id is already live.
func (t *EndpointTable) RegisterDynamicEndpoint(index int, id endpoint.ID, desc *endpoint.Descriptor, versions []endpoint.DataVersion, types []endpoint.DeviceType, parent endpoint.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index < 0 || index >= len(t.dynamic) {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	if t.dynamic[index].used {
		return fmt.Errorf("%w: %d", ErrIndexOccupied, index)
	}
	if id == endpoint.InvalidID {
		return ErrInvalidEndpoint
	}
	if desc.ClusterCount() == 0 {
		return ErrInvalidDescriptor
	}
	if len(versions) < desc.ClusterCount() {
		return fmt.Errorf("%w: %d versions for %d clusters", ErrDataVersionStorage, len(versions), desc.ClusterCount())
	}
	if t.inUse(id) {
		return fmt.Errorf("%w: %d", endpoint.ErrEndpointExists, id)
	}

	t.dynamic[index] = dynamicEntry{
		used:     true,
		id:       id,
		parent:   parent,
		enabled:  true,
		desc:     desc,
		versions: versions,
		types:    types,
	}
	return nil
}

// DeregisterDynamicEndpoint clears dynamic slot index and returns the id it
// held, or endpoint.InvalidID for an empty or out-of-range slot.
func (t *EndpointTable) DeregisterDynamicEndpoint(index int) endpoint.ID {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index < 0 || index >= len(t.dynamic) || !t.dynamic[index].used {
		return endpoint.InvalidID
	}
	id := t.dynamic[index].id
	t.dynamic[index] = dynamicEntry{}
	return id
}

// StaticEndpointCount returns the number of fixed endpoints.
func (t *EndpointTable) StaticEndpointCount() int {
	return len(t.fixed)
}

// StaticEndpointIDAt returns the id of fixed endpoint i.
func (t *EndpointTable) StaticEndpointIDAt(i int) endpoint.ID {
	if i < 0 || i >= len(t.fixed) {
		return endpoint.InvalidID
	}
	return t.fixed[i].ID
}

// SetEndpointEnabled enables or disables a live endpoint. Unknown ids are ignored.
func (t *EndpointTable) SetEndpointEnabled(id endpoint.ID, enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.fixed {
		if t.fixed[i].ID == id {
			t.fixed[i].enabled = enabled
			return
		}
	}
	for i := range t.dynamic {
		if t.dynamic[i].used && t.dynamic[i].id == id {
			t.dynamic[i].enabled = enabled
			return
		}
	}
}

// IsEnabled reports whether id is live and enabled.
func (t *EndpointTable) IsEnabled(id endpoint.ID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, f := range t.fixed {
		if f.ID == id {
			return f.enabled
		}
	}
	for _, d := range t.dynamic {
		if d.used && d.id == id {
			return d.enabled
		}
	}
	return false
}

// DynamicCount returns the number of dynamic slots.
func (t *EndpointTable) DynamicCount() int {
	return len(t.dynamic)
}

// Endpoints lists every live endpoint ordered by id.
func (t *EndpointTable) Endpoints() []EndpointInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]EndpointInfo, 0, len(t.fixed)+len(t.dynamic))
	for i, f := range t.fixed {
		out = append(out, EndpointInfo{
			ID:          f.ID,
			Kind:        KindFixed,
			Name:        f.Name,
			Index:       i,
			Enabled:     f.enabled,
			DeviceTypes: f.DeviceTypes,
		})
	}
	for i, d := range t.dynamic {
		if !d.used {
			continue
		}
		info := EndpointInfo{
			ID:          d.id,
			Kind:        KindDynamic,
			Index:       i,
			Parent:      d.parent,
			Enabled:     d.enabled,
			DeviceTypes: d.types,
		}
		if d.desc != nil {
			info.Name = d.desc.Name
			info.Clusters = d.desc.Clusters
		}
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// inUse reports whether id is held by any fixed or dynamic endpoint.
// Caller holds mu.
func (t *EndpointTable) inUse(id endpoint.ID) bool {
	for _, f := range t.fixed {
		if f.ID == id {
			return true
		}
	}
	for _, d := range t.dynamic {
		if d.used && d.id == id {
			return true
		}
	}
	return false
}
