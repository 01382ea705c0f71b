// Package metrics exposes rawdata activity as Prometheus metrics.
package metrics
