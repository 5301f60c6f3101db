package device

import (
	"sync"

	"github.com/nerrad567/gray-logic-matter/internal/endpoint"
)

// Bridged is the runtime form of a Device while it is offered to the
// endpoint registry. It owns the endpoint descriptor and the data version
// storage the endpoint table reads for the lifetime of the registration.
//
// Bridged implements endpoint.Device. Always use it by pointer.
type Bridged struct {
	device   *Device
	desc     *endpoint.Descriptor
	types    []endpoint.DeviceType
	versions []endpoint.DataVersion

	mu       sync.RWMutex
	endpoint endpoint.ID
	parent   endpoint.ID
}

// NewBridged prepares d for registration. d is copied.
func NewBridged(d *Device) (*Bridged, error) {
	if d == nil {
		return nil, ErrInvalidDevice
	}
	desc, types, err := d.Endpoint()
	if err != nil {
		return nil, err
	}

	return &Bridged{
		device:   d.DeepCopy(),
		desc:     desc,
		types:    types,
		versions: make([]endpoint.DataVersion, desc.ClusterCount()),
		endpoint: endpoint.InvalidID,
		parent:   endpoint.InvalidID,
	}, nil
}

// Name returns the device display name.
func (b *Bridged) Name() string {
	return b.device.Name
}

// SetEndpointID implements endpoint.Device.
func (b *Bridged) SetEndpointID(id endpoint.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endpoint = id
}

// SetParentEndpointID implements endpoint.Device.
func (b *Bridged) SetParentEndpointID(id endpoint.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parent = id
}

// EndpointID returns the assigned endpoint, or endpoint.InvalidID.
func (b *Bridged) EndpointID() endpoint.ID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.endpoint
}

// ParentEndpointID returns the parent endpoint, or endpoint.InvalidID.
func (b *Bridged) ParentEndpointID() endpoint.ID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.parent
}

// DeviceID returns the catalogue id of the underlying device.
func (b *Bridged) DeviceID() string {
	return b.device.ID
}

// Device returns a copy of the underlying device.
func (b *Bridged) Device() *Device {
	return b.device.DeepCopy()
}

func (b *Bridged) Descriptor() *endpoint.Descriptor     { return b.desc }
func (b *Bridged) DeviceTypes() []endpoint.DeviceType   { return b.types }
func (b *Bridged) DataVersions() []endpoint.DataVersion { return b.versions }
