package review

import (
	"context"
	"sync"
	"time"

	"github.com/kallevik/revline/pkg/knowledge"
	"github.com/seekerror/logw"
)

const defaultQueueDepth = 10

// Dispatcher fans a review run's positions out to every registered
// processor and folds their results back into a shared Knowledge through
// a single writer goroutine, so none of Knowledge's methods need their
// own synchronization.
type Dispatcher struct {
	processors []Processor
	queueDepth int
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithQueueDepth bounds how many pending WorkItems each processor's
// inbound channel may hold before a scheduling send blocks.
func WithQueueDepth(n int) Option {
	return func(d *Dispatcher) { d.queueDepth = n }
}

// New builds a Dispatcher over processors, applying opts.
func New(processors []Processor, opts ...Option) *Dispatcher {
	d := &Dispatcher{processors: processors, queueDepth: defaultQueueDepth}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type procState struct {
	proc      Processor
	work      chan WorkItem
	total     int
	completed int
}

type shouldReq struct {
	idx   int
	item  WorkItem
	reply chan bool
}

type doneMsg struct {
	idx    int
	item   WorkItem
	result ProcessingResult
	err    error
}

// Run schedules root and every position reachable from it through the
// registered processors, returning once every processor has answered
// false to ShouldProcess (or errored) for everything reachable. It
// returns only when all work is drained or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, k *knowledge.Knowledge, root WorkItem) error {
	states := make([]*procState, len(d.processors))
	for i, p := range d.processors {
		states[i] = &procState{proc: p, work: make(chan WorkItem, d.queueDepth)}
	}

	shouldCh := make(chan shouldReq)
	doneCh := make(chan doneMsg)

	var workers sync.WaitGroup
	for i, st := range states {
		workers.Add(1)
		go runWorker(ctx, i, st, shouldCh, doneCh, &workers)
	}

	var sends sync.WaitGroup
	d.schedule(ctx, k, states, []WorkItem{root}, &sends)

	heartbeat := time.NewTicker(10 * time.Second)
	defer heartbeat.Stop()

	for !allDone(states) {
		select {
		case req := <-shouldCh:
			ok, err := states[req.idx].proc.ShouldProcess(k, req.item)
			if err != nil {
				logw.Warningf(ctx, "%v: should_process %v: %v", states[req.idx].proc.Name(), req.item.Pos.FEN(), err)
			}
			req.reply <- ok

		case msg := <-doneCh:
			states[msg.idx].completed++
			if msg.err != nil {
				logw.Warningf(ctx, "%v: processing %v: %v", states[msg.idx].proc.Name(), msg.item.Pos.FEN(), msg.err)
				continue
			}
			next, err := msg.result.Apply(k)
			if err != nil {
				logw.Warningf(ctx, "%v: applying result for %v: %v", states[msg.idx].proc.Name(), msg.item.Pos.FEN(), err)
				continue
			}
			d.schedule(ctx, k, states, next, &sends)

		case <-heartbeat.C:
			total, completed := totals(states)
			progress := 0
			if total > 0 {
				progress = completed * 100 / total
			}
			logw.Infof(ctx, "dispatch heartbeat: %d/%d (%d%%)", completed, total, progress)

		case <-ctx.Done():
			sends.Wait()
			for _, st := range states {
				close(st.work)
			}
			workers.Wait()
			return ctx.Err()
		}
	}

	sends.Wait()
	for _, st := range states {
		close(st.work)
	}
	workers.Wait()

	total, _ := totals(states)
	logw.Infof(ctx, "dispatch finished: %d positions analysed", total)
	return nil
}

// schedule fans items out to every processor's inbound channel, skipping
// any item whose variation has already concluded (by chess rule or by
// repetition) — those need no further analysis from anyone. Each send
// runs in its own goroutine so a channel at capacity never stalls the
// single writer goroutine driving Run's select loop.
func (d *Dispatcher) schedule(ctx context.Context, k *knowledge.Knowledge, states []*procState, items []WorkItem, sends *sync.WaitGroup) {
	for _, item := range items {
		if k.Variation(item.VIdx).Outcome != nil {
			continue
		}
		for _, st := range states {
			st.total++
			sends.Add(1)
			go func(st *procState, item WorkItem) {
				defer sends.Done()
				select {
				case st.work <- item:
				case <-ctx.Done():
				}
			}(st, item)
		}
	}
}

func runWorker(ctx context.Context, idx int, st *procState, shouldCh chan<- shouldReq, doneCh chan<- doneMsg, wg *sync.WaitGroup) {
	defer wg.Done()

	for item := range st.work {
		reply := make(chan bool, 1)
		select {
		case shouldCh <- shouldReq{idx: idx, item: item, reply: reply}:
		case <-ctx.Done():
			return
		}

		var ok bool
		select {
		case ok = <-reply:
		case <-ctx.Done():
			return
		}

		if !ok {
			select {
			case doneCh <- doneMsg{idx: idx, item: item}:
			case <-ctx.Done():
				return
			}
			continue
		}

		result, err := st.proc.Process(ctx, item)
		select {
		case doneCh <- doneMsg{idx: idx, item: item, result: result, err: err}:
		case <-ctx.Done():
			return
		}
	}
}

func allDone(states []*procState) bool {
	for _, st := range states {
		if st.total != st.completed {
			return false
		}
	}
	return true
}

func totals(states []*procState) (total, completed int) {
	for _, st := range states {
		total += st.total
		completed += st.completed
	}
	return total, completed
}
