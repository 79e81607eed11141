// Package domain contains the core business entities for the qaforge
// pipeline: chunk records, semantic annotations, vector index artifacts,
// context groups, question/answer candidates and dataset records.
//
// Domain types have no dependencies on adapters or external services.
package domain
