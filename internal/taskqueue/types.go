// Package taskqueue is the in-process, channel-backed background worker
// pool that drives ranking recomputation and import processing outside the
// request path (spec §5.1 expansion).
package taskqueue

import (
	"github.com/google/uuid"
)

// Kind tags a Task with the handler that should process it.
type Kind string

const (
	KindRankingRecalc Kind = "ranking_recalc"
	KindImportProcess Kind = "import_process"
)

// RankingRecalcPayload carries the post-commit trigger spec §4.5 describes.
type RankingRecalcPayload struct {
	CourseID    uuid.UUID
	UserID      uuid.UUID
	RunRecordID uuid.UUID
}

// ImportProcessPayload signals that an import row became eligible for
// claiming. ImportID is carried for logging only: the handler claims
// atomically off the pending queue (internal/importpipeline.ProcessNext),
// so it does not necessarily process this exact row first.
type ImportProcessPayload struct {
	ImportID uuid.UUID
}

// Task is the unit of work a worker goroutine dequeues. Exactly one of the
// payload fields is set, matching Kind.
type Task struct {
	Kind          Kind
	RankingRecalc *RankingRecalcPayload
	ImportProcess *ImportProcessPayload

	attempt int
}
