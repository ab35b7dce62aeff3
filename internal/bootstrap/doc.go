// Package bootstrap assembles the broker, capability providers and worker
// pool from configuration. The server and worker binaries share it.
package bootstrap
