// Package device provides the catalogue of Gray Logic devices exposed to a
// Matter fabric through the bridge.
//
// Each catalogued Device has a DeviceType that maps onto a Matter device
// type and the server clusters its endpoint serves (profile.go). When the
// bridge offers a device to the endpoint registry it wraps it in a Bridged,
// which implements endpoint.Device and owns the descriptor and data version
// storage for the lifetime of the registration.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                        Device Catalogue                          │
//	│                                                                  │
//	│  ┌──────────────────┐    ┌──────────────────┐   ┌─────────────┐  │
//	│  │     Registry     │    │    Repository    │   │   Profile   │  │
//	│  │   (registry.go)  │───▶│  (repository.go) │   │ (profile.go)│  │
//	│  │ • CRUD ops       │    │ • SQLite queries │   │ • Matter    │  │
//	│  │ • In-memory cache│    │ • JSON config    │   │   type ids  │  │
//	│  └──────────────────┘    └──────────────────┘   │ • clusters  │  │
//	│                                                 └──────┬──────┘  │
//	│                                    Bridged (bridged.go)◀┘         │
//	└───────────────────────────────────────┬──────────────────────────┘
//	                                        ▼
//	                             endpoint.Registry.Add
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	dev := &device.Device{Name: "Hall Light", Type: device.DeviceTypeDimmableLight}
//	if err := registry.CreateDevice(ctx, dev); err != nil {
//	    return err
//	}
//	b, err := device.NewBridged(dev)
//
// # Thread Safety
//
// Registry and Bridged are safe for concurrent use. The Repository
// implementation must also be thread-safe.
package device
