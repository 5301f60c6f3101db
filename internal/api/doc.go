// Package api implements the HTTP REST API for the Gray Logic Matter bridge.
//
// This package provides:
//   - Device catalogue CRUD, with create and delete routed through the bridge
//   - Bridge and unbridge of individual devices
//   - The dynamic endpoint slot table for diagnostics
//   - The endpoint audit log
//   - A WebSocket stream of endpoint events and bridge health
//   - Optional JWT bearer auth with role-based permissions
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Routes
//
//	GET    /api/v1/health
//	GET    /api/v1/metrics
//	GET    /api/v1/metrics/history    ?range= &every=   (needs influxdb.enabled)
//	GET    /api/v1/system/log-level
//	PUT    /api/v1/system/log-level
//	GET    /api/v1/endpoints
//	GET    /api/v1/devices            ?type= &bridged=
//	POST   /api/v1/devices
//	GET    /api/v1/devices/stats
//	GET    /api/v1/devices/{id}
//	PATCH  /api/v1/devices/{id}
//	DELETE /api/v1/devices/{id}
//	POST   /api/v1/devices/{id}/bridge
//	DELETE /api/v1/devices/{id}/bridge
//	GET    /api/v1/audit              ?action= &entity_id= &slot= &endpoint_id= &since= &until= &limit= &offset=
//	POST   /api/v1/ws/ticket
//	GET    /api/v1/ws                 ?ticket=
//
// # Authentication
//
// With security.jwt.enabled every route except /health and /ws needs an
// "Authorization: Bearer" token. Viewers read, operators also bridge and
// unbridge and read the audit log, admins also change the catalogue and the
// log level.
// WebSocket clients first POST /ws/ticket and connect with the ticket.
//
// # WebSocket
//
// Clients send {"type":"subscribe","payload":{"channels":[...]}}. Channels
// are endpoint.added, endpoint.removed, endpoint.failed and bridge.health;
// endpoint.* stands for all three endpoint channels and anything else is
// rejected. Subscribing to bridge.health replays the last health message.
// A client that falls 256 messages behind is disconnected.
//
// # Error Mapping
//
// Validation errors return 400, unknown devices 404, bridge state conflicts
// 409, an exhausted registry 507 and a busy or uninitialised registry 503.
// History queries return 503 when InfluxDB is disabled and 502 when it fails.
package api
