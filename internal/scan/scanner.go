package scan

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MJE43/baccarat-roads/internal/engine"
	"github.com/MJE43/baccarat-roads/internal/games"
	"github.com/MJE43/baccarat-roads/internal/table"
)

// EngineVersion is stamped on every result.
const EngineVersion = "baccarat-roads-1.0.0"

// TargetOp represents comparison operations for scanning
type TargetOp string

const (
	OpEqual        TargetOp = "eq"
	OpGreater      TargetOp = "gt"
	OpGreaterEqual TargetOp = "ge"
	OpLess         TargetOp = "lt"
	OpLessEqual    TargetOp = "le"
	OpBetween      TargetOp = "between"
	OpOutside      TargetOp = "outside"
)

// Request represents a scan operation request. Every nonce in
// [NonceStart, NonceEnd] is one shoe shuffled from Seeds and dealt out.
type Request struct {
	Seeds       engine.Seeds `json:"seeds"`
	NonceStart  uint64       `json:"nonce_start"`
	NonceEnd    uint64       `json:"nonce_end"`
	Decks       int          `json:"decks,omitempty"`
	ReshuffleAt int          `json:"reshuffle_at,omitempty"`
	Metric      Metric       `json:"metric"`
	TargetOp    TargetOp     `json:"target_op"`
	TargetVal   float64      `json:"target_val"`
	TargetVal2  float64      `json:"target_val2,omitempty"` // for "between" and "outside"
	Tolerance   float64      `json:"tolerance,omitempty"`
	Limit       int          `json:"limit,omitempty"`
	TimeoutMs   int          `json:"timeout_ms,omitempty"`
}

// Hit represents a single matching shoe
type Hit struct {
	Nonce  uint64  `json:"nonce"`
	Metric float64 `json:"metric"`
}

// Summary contains aggregate statistics over the collected hits
type Summary struct {
	TotalEvaluated uint64  `json:"total_evaluated"`
	HitsFound      int     `json:"hits_found"`
	MinMetric      float64 `json:"min_metric"`
	MaxMetric      float64 `json:"max_metric"`
	MeanMetric     float64 `json:"mean_metric"`
	TimedOut       bool    `json:"timed_out,omitempty"`
}

// Result contains the complete scan results
type Result struct {
	Hits          []Hit   `json:"hits"`
	Summary       Summary `json:"summary"`
	EngineVersion string  `json:"engine_version"`
	Echo          Request `json:"echo"`
}

// TargetEvaluator handles target condition evaluation with tolerance
type TargetEvaluator struct {
	op        TargetOp
	val1      float64
	val2      float64 // for "between" and "outside"
	tolerance float64
}

// NewTargetEvaluator creates a new target evaluator
func NewTargetEvaluator(op TargetOp, val1, val2, tolerance float64) *TargetEvaluator {
	return &TargetEvaluator{
		op:        op,
		val1:      val1,
		val2:      val2,
		tolerance: tolerance,
	}
}

// Validate rejects unknown operators and inverted ranges.
func (te *TargetEvaluator) Validate() error {
	switch te.op {
	case OpEqual, OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
		return nil
	case OpBetween, OpOutside:
		if te.val2 < te.val1 {
			return fmt.Errorf("%w: %s needs target_val <= target_val2", ErrInvalidTarget, te.op)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidTarget, te.op)
	}
}

// Matches checks if a metric matches the target criteria
func (te *TargetEvaluator) Matches(metric float64) bool {
	switch te.op {
	case OpEqual:
		return abs(metric-te.val1) <= te.tolerance
	case OpGreater:
		return metric > te.val1+te.tolerance
	case OpGreaterEqual:
		return metric >= te.val1-te.tolerance
	case OpLess:
		return metric < te.val1-te.tolerance
	case OpLessEqual:
		return metric <= te.val1+te.tolerance
	case OpBetween:
		return metric >= te.val1-te.tolerance && metric <= te.val2+te.tolerance
	case OpOutside:
		return metric < te.val1-te.tolerance || metric > te.val2+te.tolerance
	default:
		return false
	}
}

// job is a batch of nonces for one worker
type job struct {
	start, end uint64
}

// batchSize is small because each nonce deals a whole shoe.
const batchSize = 64

// Scanner deals shoes across nonce ranges in parallel
type Scanner struct {
	workerCount int
}

// NewScanner creates a scanner. A worker count of zero or less uses
// GOMAXPROCS.
func NewScanner(workers int) *Scanner {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Scanner{workerCount: workers}
}

// Workers is the size of the worker pool.
func (s *Scanner) Workers() int { return s.workerCount }

// Scan deals every nonce in the request range and collects the shoes whose
// metric matches the target. Hits are ordered by nonce. If TimeoutMs
// elapses the partial result is returned with Summary.TimedOut set.
func (s *Scanner) Scan(ctx context.Context, req Request) (*Result, error) {
	if req.NonceEnd < req.NonceStart {
		return nil, fmt.Errorf("%w: end %d before start %d", ErrInvalidRange, req.NonceEnd, req.NonceStart)
	}
	fn, ok := metricFuncs[req.Metric]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, req.Metric)
	}
	evaluator := NewTargetEvaluator(req.TargetOp, req.TargetVal, req.TargetVal2, req.Tolerance)
	if err := evaluator.Validate(); err != nil {
		return nil, err
	}

	cfg := table.DefaultConfig()
	if req.Decks != 0 {
		cfg.Decks = req.Decks
	}
	if req.ReshuffleAt != 0 {
		cfg.ReshuffleAt = req.ReshuffleAt
	}
	if cfg.Decks < 1 {
		return nil, fmt.Errorf("%w: %d", games.ErrInvalidDeckCount, cfg.Decks)
	}

	scanCtx := ctx
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	var evaluated uint64
	partials := make([][]Hit, s.workerCount)
	jobs := make(chan job, s.workerCount*2)

	g, gctx := errgroup.WithContext(scanCtx)
	g.Go(func() error {
		generateJobs(gctx, jobs, req.NonceStart, req.NonceEnd)
		return nil
	})
	for i := 0; i < s.workerCount; i++ {
		w := &worker{
			jobs:      jobs,
			seeds:     req.Seeds,
			cfg:       cfg,
			metric:    fn,
			evaluator: evaluator,
			evaluated: &evaluated,
		}
		g.Go(func() error {
			hits, err := w.run(gctx)
			partials[i] = hits
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, err
	}

	result := collect(partials, req.Limit)
	result.Summary.TotalEvaluated = atomic.LoadUint64(&evaluated)
	result.Summary.TimedOut = scanCtx.Err() != nil &&
		result.Summary.TotalEvaluated < req.NonceEnd-req.NonceStart+1
	result.EngineVersion = EngineVersion
	result.Echo = req
	return result, nil
}

type worker struct {
	jobs      <-chan job
	seeds     engine.Seeds
	cfg       table.Config
	metric    metricFunc
	evaluator *TargetEvaluator
	evaluated *uint64 // atomic counter
}

// run drains jobs until the channel closes or ctx is done.
func (w *worker) run(ctx context.Context) ([]Hit, error) {
	var hits []Hit
	for {
		select {
		case j, ok := <-w.jobs:
			if !ok {
				return hits, nil
			}
			for nonce := j.start; nonce <= j.end; nonce++ {
				if ctx.Err() != nil {
					return hits, nil
				}
				metric, err := w.evaluate(nonce)
				if err != nil {
					return hits, fmt.Errorf("nonce %d: %w", nonce, err)
				}
				atomic.AddUint64(w.evaluated, 1)
				if w.evaluator.Matches(metric) {
					hits = append(hits, Hit{Nonce: nonce, Metric: metric})
				}
				if nonce == j.end {
					break // guards uint64 overflow at the top of the range
				}
			}
		case <-ctx.Done():
			return hits, nil
		}
	}
}

func (w *worker) evaluate(nonce uint64) (float64, error) {
	tbl, err := table.New(w.cfg, engine.NewShuffleSource(w.seeds, nonce))
	if err != nil {
		return 0, err
	}
	tbl = tbl.DealShoe(0)
	return w.metric(&shoeView{history: tbl.History()}), nil
}

// generateJobs splits [start, end] into batches
func generateJobs(ctx context.Context, jobs chan<- job, start, end uint64) {
	defer close(jobs)

	for current := start; ; {
		batchEnd := current + batchSize - 1
		if batchEnd > end || batchEnd < current {
			batchEnd = end
		}
		select {
		case jobs <- job{start: current, end: batchEnd}:
		case <-ctx.Done():
			return
		}
		if batchEnd == end {
			return
		}
		current = batchEnd + 1
	}
}

// collect merges worker hits, orders them by nonce and applies the limit.
func collect(partials [][]Hit, limit int) *Result {
	var hits []Hit
	for _, p := range partials {
		hits = append(hits, p...)
	}
	slices.SortFunc(hits, func(a, b Hit) int { return cmp.Compare(a.Nonce, b.Nonce) })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	if hits == nil {
		hits = []Hit{}
	}
	return &Result{Hits: hits, Summary: summarize(hits)}
}

// summarize computes aggregate statistics
func summarize(hits []Hit) Summary {
	summary := Summary{HitsFound: len(hits)}
	if len(hits) == 0 {
		return summary
	}

	lo, hi := hits[0].Metric, hits[0].Metric
	sum := 0.0
	for _, h := range hits {
		lo = min(lo, h.Metric)
		hi = max(hi, h.Metric)
		sum += h.Metric
	}
	summary.MinMetric = lo
	summary.MaxMetric = hi
	summary.MeanMetric = sum / float64(len(hits))
	return summary
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
