// Package review drives one or more engines over a knowledge.Knowledge
// position graph: each processor decides whether a position is worth its
// attention, analyses it if so, and folds the result back into the graph,
// possibly producing further positions downstream processors should see.
package review

import (
	"context"

	"github.com/kallevik/revline/pkg/knowledge"
	"github.com/kallevik/revline/pkg/position"
)

// WorkItem names a position a processor may be asked to analyze: its
// coordinates within the knowledge graph (which variation, how many
// halfmoves in) plus the position itself, so a processor never has to
// look the position up to know where it lives.
type WorkItem struct {
	VIdx int
	HM   int
	Pos  position.Position
}

// ProcessingResult folds one processor's finished analysis into the
// knowledge graph and names whatever further positions that analysis
// uncovered. Apply is always called from the dispatcher's single writer
// goroutine, so implementations may mutate Knowledge freely.
type ProcessingResult interface {
	Apply(k *knowledge.Knowledge) ([]WorkItem, error)
}

// Processor analyses positions fed to it by a Dispatcher. ShouldProcess is
// called from the dispatcher's single writer goroutine and may read
// Knowledge freely; Process runs concurrently with other processors'
// Process calls and must not touch Knowledge directly. The dispatcher calls
// one processor's Process for one item at a time.
type Processor interface {
	// Name identifies the processor in logs.
	Name() string
	// ShouldProcess reports whether item is worth analysing. A position
	// already analysed by this processor should answer false.
	ShouldProcess(k *knowledge.Knowledge, item WorkItem) (bool, error)
	// Process analyses item and returns the result to apply once it
	// completes. It must be safe to run concurrently with other
	// processors' Process calls.
	Process(ctx context.Context, item WorkItem) (ProcessingResult, error)
}
