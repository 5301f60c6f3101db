// Package matter bridges Gray Logic devices onto a Matter node as dynamic
// endpoints.
//
// The bridge owns the lifecycle of bridged devices. It reads the device
// catalogue, offers each device to the endpoint registry under the
// aggregator endpoint, and removes endpoints when devices are unbridged or
// deleted. Registry events are fanned out to the audit log, InfluxDB and
// MQTT once the stack lock has been released.
//
// # MQTT Topics
//
//	graylogic/request/matter/{request_id}   Core -> bridge requests
//	graylogic/response/matter/{request_id}  bridge -> Core responses
//	graylogic/event/matter/{kind}           registry events
//	graylogic/health/matter                 retained health status
//
// # Request Actions
//
//   - add_device: create a device and bridge it if auto_bridge is set
//   - remove_device: unbridge and delete a device
//   - bridge_device / unbridge_device: toggle a device's endpoint
//   - list_endpoints: slot and endpoint diagnostics
//
// # Thread Safety
//
// All Bridge methods are safe for concurrent use. Bridge and unbridge
// operations are serialised; reads never wait on the stack lock.
package matter
