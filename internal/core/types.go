// Package core wires the ingestion pipeline together: backend selection,
// the load service, and operation metrics.
package core

import "biomecore/pkg/domain"

// Aliases re-exporting the domain contracts consumed by callers of this
// package, so cmd code does not import pkg/domain directly.
type (
	PersistentStore  = domain.PersistentStore
	StudyTransaction = domain.StudyTransaction
	StudyAggregate   = domain.StudyAggregate
	Diagnostics      = domain.Diagnostics
)
