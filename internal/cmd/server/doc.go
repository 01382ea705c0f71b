// Package serverrun wires configuration, logging, metrics and the runtime
// behind the HTTP server for `rawdata server start`. Run blocks until its
// context ends or the process is signalled.
package serverrun
