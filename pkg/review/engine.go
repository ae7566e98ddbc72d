package review

import (
	"context"
	"fmt"

	"github.com/kallevik/revline/pkg/config"
	"github.com/kallevik/revline/pkg/knowledge"
	"github.com/kallevik/revline/pkg/position"
	"github.com/kallevik/revline/pkg/uci"
)

// EngineProcessor analyses positions by running them through one spawned
// UCI engine. It should_processes a position exactly once: whenever the
// position has no recorded evaluation yet.
type EngineProcessor struct {
	engine *uci.Engine
	time   config.Rev
}

// NewEngineProcessor wraps engine as a Processor bounded by cfg.
func NewEngineProcessor(engine *uci.Engine, cfg config.Rev) *EngineProcessor {
	return &EngineProcessor{engine: engine, time: cfg}
}

// Name identifies the processor by its underlying engine's name.
func (p *EngineProcessor) Name() string {
	return p.engine.Name()
}

// ShouldProcess answers true for any position that has no recorded
// evaluation yet, whichever processor would have recorded it.
func (p *EngineProcessor) ShouldProcess(k *knowledge.Knowledge, item WorkItem) (bool, error) {
	idx, ok := k.IndexOf(item.Pos)
	if !ok {
		return true, nil
	}
	return k.Position(idx).Eval == nil, nil
}

// Process runs a bounded search on item.Pos and returns its result, the
// evaluation normalized to White's perspective.
func (p *EngineProcessor) Process(ctx context.Context, item WorkItem) (ProcessingResult, error) {
	stream, err := p.engine.Go(ctx, item.Pos.FEN(), nil, uci.GoOptions{Depth: p.time.Depth, Movetime: p.time.Time})
	if err != nil {
		return nil, fmt.Errorf("%v: go: %w", p.engine.Name(), err)
	}

	var best position.Move
	var eval knowledge.Score
	var haveEval bool

	for {
		info, ok, err := stream.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("%v: info: %w", p.engine.Name(), err)
		}
		if !ok {
			break
		}
		if len(info.PV) > 0 {
			best = info.PV[0]
		}
		eval = info.Score
		haveEval = true
	}

	bm, err := stream.Best(ctx)
	if err != nil {
		return nil, fmt.Errorf("%v: bestmove: %w", p.engine.Name(), err)
	}
	if bm.Move != "" {
		best = bm.Move
	}
	if best == "" {
		return nil, fmt.Errorf("%v: no move after analysis of %v", p.engine.Name(), item.Pos.FEN())
	}
	if !haveEval {
		return nil, fmt.Errorf("%v: no eval after analysis of %v", p.engine.Name(), item.Pos.FEN())
	}

	// UCI scores are relative to the side to move; this module's
	// evaluations are always carried from White's perspective.
	if item.Pos.Turn() == position.Black {
		eval = eval.Negate()
	}

	return &engineAnalysis{item: item, move: best, eval: eval}, nil
}

type engineAnalysis struct {
	item WorkItem
	move position.Move
	eval knowledge.Score
}

// Apply records the evaluation against item.Pos, extends item's variation
// with the chosen move, and moves the mainline pointer onto the resulting
// variation so it keeps following the principal line, returning the single
// successor position reached, if the knowledge graph doesn't already know
// the variation has concluded there.
func (r *engineAnalysis) Apply(k *knowledge.Knowledge) ([]WorkItem, error) {
	idx, ok := k.IndexOf(r.item.Pos)
	if !ok {
		return nil, fmt.Errorf("apply: unknown position %v", r.item.Pos.FEN())
	}
	k.UpdateEval(idx, r.eval)

	newVIdx, _, next, err := k.AddMove(r.item.VIdx, r.item.HM, r.move)
	if err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}
	k.UpdateMainline(r.item.VIdx, newVIdx)

	return []WorkItem{{VIdx: newVIdx, HM: r.item.HM + 1, Pos: next.Pos}}, nil
}
