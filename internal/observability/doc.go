// Package observability provides structured logging and Prometheus metrics
// for the workspace authorization service.
//
// Metrics are registered on a private registry and served by Handler.
package observability
