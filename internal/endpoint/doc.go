// Package endpoint provides the Dynamic Endpoint Registry for the Gray Logic
// Matter bridge.
//
// A Matter node has a small set of fixed endpoints compiled into its
// endpoint table (root node, aggregator, and a trailing placeholder) and a
// fixed number of dynamic slots. Every bridged device occupies one dynamic
// slot under a unique 16-bit endpoint identifier. The registry hands out,
// tracks and reclaims those identifiers.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                         Registry                             │
//	│                                                              │
//	│  slots [0..N)        cursor ─▶ next id to try                │
//	│  ┌───┬───┬───┬───┐   range  [firstDynamicID, maxEndpointID]  │
//	│  │ A │ B │   │   │                                           │
//	│  └───┴───┴───┴───┘                                           │
//	└──────────────┬───────────────────────────────────────────────┘
//	               │  Locker held for every mutation
//	               ▼
//	┌──────────────────────────────────────────────────────────────┐
//	│   Stack (endpoint table): owns identifier uniqueness         │
//	│   RegisterDynamicEndpoint → nil | ErrEndpointExists | error  │
//	└──────────────────────────────────────────────────────────────┘
//
// Add takes the lowest empty slot and offers the cursor identifier to the
// stack. A collision advances the cursor (wrapping to firstDynamicID past
// maxEndpointID) and retries on the same slot. Any other failure releases
// the slot. The cursor is not advanced on success, so the next Add starts
// from the identifier just used and walks past it on collision.
//
// # Thread Safety
//
// Add, Remove and Init hold the stack Locker for their whole duration.
// DeviceAt and the diagnostic accessors only take the registry's read lock.
// Events are delivered to the EventRecorder after the stack lock is released.
package endpoint
