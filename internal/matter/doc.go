// Package matter provides the in-process Matter endpoint table used by the
// bridge.
//
// EndpointTable holds the node's fixed endpoints (root node, aggregator and
// a trailing placeholder) and a fixed number of dynamic slots. It is the
// authority on endpoint identifier uniqueness and implements endpoint.Stack.
// StackLock is the context-aware lock that serialises its mutation.
package matter
