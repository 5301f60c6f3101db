package device

import (
	"fmt"

	"github.com/nerrad567/gray-logic-matter/internal/endpoint"
)

// Matter cluster identifiers used by bridged endpoints.
const (
	ClusterIdentify           uint32 = 0x0003
	ClusterGroups             uint32 = 0x0004
	ClusterOnOff              uint32 = 0x0006
	ClusterLevelControl       uint32 = 0x0008
	ClusterDescriptor         uint32 = 0x001D
	ClusterBridgedBasicInfo   uint32 = 0x0039
	ClusterBooleanState       uint32 = 0x0045
	ClusterWindowCovering     uint32 = 0x0102
	ClusterThermostat         uint32 = 0x0201
	ClusterColorControl       uint32 = 0x0300
	ClusterIlluminance        uint32 = 0x0400
	ClusterTemperatureMeasure uint32 = 0x0402
	ClusterRelativeHumidity   uint32 = 0x0405
	ClusterOccupancySensing   uint32 = 0x0406
)

// DeviceTypeIDBridgedNode is the Matter Bridged Node device type, listed on
// every bridged endpoint after the application device type.
const DeviceTypeIDBridgedNode uint32 = 0x0013

const (
	bridgedNodeRevision       uint8 = 2
	defaultDeviceTypeRevision uint8 = 1
)

// Profile is the Matter shape of a device type: its device type id and the
// application clusters served on its endpoint.
type Profile struct {
	DeviceTypeID uint32
	Revision     uint8
	Clusters     []uint32
}

// commonClusters are served on every bridged endpoint.
var commonClusters = []uint32{ClusterDescriptor, ClusterBridgedBasicInfo}

var profiles = map[DeviceType]Profile{
	DeviceTypeOnOffLight:       {0x0100, 3, []uint32{ClusterIdentify, ClusterGroups, ClusterOnOff}},
	DeviceTypeDimmableLight:    {0x0101, 3, []uint32{ClusterIdentify, ClusterGroups, ClusterOnOff, ClusterLevelControl}},
	DeviceTypeColorTempLight:   {0x010C, 4, []uint32{ClusterIdentify, ClusterGroups, ClusterOnOff, ClusterLevelControl, ClusterColorControl}},
	DeviceTypeOnOffPlug:        {0x010A, 3, []uint32{ClusterIdentify, ClusterGroups, ClusterOnOff}},
	DeviceTypeTemperatureSense: {0x0302, 2, []uint32{ClusterIdentify, ClusterTemperatureMeasure}},
	DeviceTypeHumiditySensor:   {0x0307, 2, []uint32{ClusterIdentify, ClusterRelativeHumidity}},
	DeviceTypeContactSensor:    {0x0015, defaultDeviceTypeRevision, []uint32{ClusterIdentify, ClusterBooleanState}},
	DeviceTypeOccupancySensor:  {0x0107, 3, []uint32{ClusterIdentify, ClusterOccupancySensing}},
	DeviceTypeLightSensor:      {0x0106, 3, []uint32{ClusterIdentify, ClusterIlluminance}},
	DeviceTypeWindowCovering:   {0x0202, 2, []uint32{ClusterIdentify, ClusterWindowCovering}},
	DeviceTypeThermostat:       {0x0301, 2, []uint32{ClusterIdentify, ClusterThermostat}},
}

// ProfileFor returns the Matter profile for t.
func ProfileFor(t DeviceType) (Profile, error) {
	p, ok := profiles[t]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrInvalidDeviceType, t)
	}
	return p, nil
}

// Endpoint builds the descriptor and device type list for d's endpoint.
// The device type list is the application type followed by Bridged Node.
func (d *Device) Endpoint() (*endpoint.Descriptor, []endpoint.DeviceType, error) {
	p, err := ProfileFor(d.Type)
	if err != nil {
		return nil, nil, err
	}

	clusters := make([]uint32, 0, len(p.Clusters)+len(commonClusters))
	clusters = append(clusters, p.Clusters...)
	clusters = append(clusters, commonClusters...)

	desc := &endpoint.Descriptor{Name: d.Name, Clusters: clusters}
	types := []endpoint.DeviceType{
		{ID: p.DeviceTypeID, Revision: p.Revision},
		{ID: DeviceTypeIDBridgedNode, Revision: bridgedNodeRevision},
	}
	return desc, types, nil
}
