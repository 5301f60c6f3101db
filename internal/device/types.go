package device

import "time"

// Device is a Gray Logic device exposed to the Matter fabric as a bridged
// device. This matches the bridged_devices table in
// migrations/20261001_120000_bridged_devices.up.sql.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`

	// Classification
	Type DeviceType `json:"type"`

	// Location is the room label reported to Matter controllers.
	Location *string `json:"location,omitempty"`

	// SourceID is the Gray Logic Core device this entry mirrors.
	SourceID *string `json:"source_id,omitempty"`

	// Basic information reported on the bridged endpoint
	VendorName  *string `json:"vendor_name,omitempty"`
	ProductName *string `json:"product_name,omitempty"`

	// AutoBridge marks devices bridged on startup.
	AutoBridge bool `json:"auto_bridge"`

	Config Config `json:"config"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the Device.
// Map fields are cloned so modifications to the copy do not affect the
// original, which keeps the registry cache isolated.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	cpy.Config = deepCopyMap(d.Config)

	// Pointer fields (*string) don't need deep copy because strings are immutable.
	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}

// Config holds device-specific configuration as a JSON map.
type Config map[string]any

// DeviceType is the Gray Logic classification of a bridged device.
// Each type maps onto one Matter device type and its server clusters.
type DeviceType string

// Device type constants.
const (
	DeviceTypeOnOffLight       DeviceType = "on_off_light"
	DeviceTypeDimmableLight    DeviceType = "dimmable_light"
	DeviceTypeColorTempLight   DeviceType = "color_temperature_light"
	DeviceTypeOnOffPlug        DeviceType = "on_off_plug"
	DeviceTypeTemperatureSense DeviceType = "temperature_sensor"
	DeviceTypeHumiditySensor   DeviceType = "humidity_sensor"
	DeviceTypeContactSensor    DeviceType = "contact_sensor"
	DeviceTypeOccupancySensor  DeviceType = "occupancy_sensor"
	DeviceTypeLightSensor      DeviceType = "light_sensor"
	DeviceTypeWindowCovering   DeviceType = "window_covering"
	DeviceTypeThermostat       DeviceType = "thermostat"
)

// AllDeviceTypes returns all valid device types.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{
		DeviceTypeOnOffLight,
		DeviceTypeDimmableLight,
		DeviceTypeColorTempLight,
		DeviceTypeOnOffPlug,
		DeviceTypeTemperatureSense,
		DeviceTypeHumiditySensor,
		DeviceTypeContactSensor,
		DeviceTypeOccupancySensor,
		DeviceTypeLightSensor,
		DeviceTypeWindowCovering,
		DeviceTypeThermostat,
	}
}
