// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports): model capabilities, record stores, the
// vector index, and configuration loaders.
package driven
