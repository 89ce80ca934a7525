// Package actionserver implements the server-side coordination layer for a
// ROS2-style action: the per-goal state machine, the registry that lets
// results reach callers that asked before the goal terminated, the
// cancellation protocol, and expiration of terminated goals.
//
// The package does not speak to a wait-set, a DDS transport, or a node
// directly. It programs against the Middleware interface (middleware.go),
// which an embedder supplies; simmw is an in-memory Middleware used by this
// package's own tests and by cmd/minimal_action_server.
package actionserver
