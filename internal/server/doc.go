// Package server hosts the Fiber HTTP service, request middleware chain, and
// the domain registry glue that wires URL path resolution into bucket
// handlers. A single binary bootstraps Fiber, attaches recover/request-ID
// middlewares, injects the DomainRegistry built from config, and exposes the
// bucket read/write/lifecycle endpoints backed by the disk cache. Keep
// exports narrow and accept explicit dependencies so admin surfaces can be
// added without reworking the wiring.
package server
