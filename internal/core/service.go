package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// OperationTimeout is the maximum duration a background operation driver
// runs before it suspends. The operation stays resumable.
var OperationTimeout = 10 * time.Minute

// Service orchestrates import, clear, and expire operations across the
// configured sources. It owns the chunk loop, per-source serialization
// within the process, progress fan-out to listeners, and the background
// drivers the web layer and scheduler start.
type Service struct {
	store    Store
	fetchers FetcherFactory
	parsers  ParserFactory
	sources  map[string]*SourceSpec
	order    []string
	kinds    map[string]*KindSpec
	spoolDir string
	limiter  *RunLimiter
	log      *slog.Logger

	mu    sync.RWMutex
	runs  map[string]*activeRun  // source/op -> background driver
	gates map[string]*sync.Mutex // source -> in-process invocation gate
}

// activeRun tracks one background operation driver from start to
// completion, including its progress listeners.
type activeRun struct {
	Source     string
	Op         OperationKind
	Cancel     context.CancelFunc
	Progress   ProgressState
	Result     *OperationResult
	Err        error
	Done       chan struct{}
	Listeners  []chan ProgressState
	ListenerMu sync.Mutex
	finished   bool // guarded by ListenerMu; set once listeners are closed
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Store    Store
	Fetchers FetcherFactory
	Parsers  ParserFactory
	Sources  []*SourceSpec
	Kinds    []*KindSpec
	SpoolDir string
	// MaxConcurrentRuns caps parallel background drivers. Zero means the
	// default.
	MaxConcurrentRuns int
	Logger            *slog.Logger
}

// NewService creates a Service. Source and kind names must be unique;
// every source must reference a declared kind.
func NewService(opts ServiceOptions) (*Service, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	kinds := make(map[string]*KindSpec, len(opts.Kinds))
	for _, k := range opts.Kinds {
		if _, dup := kinds[k.Name]; dup {
			return nil, fmt.Errorf("duplicate kind: %s", k.Name)
		}
		kinds[k.Name] = k
	}

	sources := make(map[string]*SourceSpec, len(opts.Sources))
	order := make([]string, 0, len(opts.Sources))
	for _, src := range opts.Sources {
		if _, dup := sources[src.Name]; dup {
			return nil, fmt.Errorf("duplicate source: %s", src.Name)
		}
		if _, ok := kinds[src.Kind]; !ok {
			return nil, fmt.Errorf("source %q: unknown kind %q", src.Name, src.Kind)
		}
		sources[src.Name] = src
		order = append(order, src.Name)
	}

	return &Service{
		store:    opts.Store,
		fetchers: opts.Fetchers,
		parsers:  opts.Parsers,
		sources:  sources,
		order:    order,
		kinds:    kinds,
		spoolDir: opts.SpoolDir,
		limiter:  NewRunLimiter(opts.MaxConcurrentRuns, 0),
		log:      log,
		runs:     make(map[string]*activeRun),
		gates:    make(map[string]*sync.Mutex),
	}, nil
}

// Sources returns the configured sources in declaration order.
func (s *Service) Sources() []*SourceSpec {
	specs := make([]*SourceSpec, len(s.order))
	for i, name := range s.order {
		specs[i] = s.sources[name]
	}
	return specs
}

// Source returns a source spec by name.
func (s *Service) Source(name string) (*SourceSpec, bool) {
	spec, ok := s.sources[name]
	return spec, ok
}

// Kind returns a kind spec by name.
func (s *Service) Kind(name string) (*KindSpec, bool) {
	k, ok := s.kinds[name]
	return k, ok
}

// Store exposes the underlying store for read paths (status, runs,
// export). Mutation goes through operations.
func (s *Service) Store() Store {
	return s.store
}

func runKey(source string, op OperationKind) string {
	return source + "/" + string(op)
}

// StartOperation begins a background driver that invokes RunChunk until
// the operation completes. Returns immediately; use SubscribeProgress for
// updates and WaitResult for the outcome. One driver per source/operation
// pair at a time.
func (s *Service) StartOperation(ctx context.Context, sourceName string, op OperationKind) error {
	if _, ok := s.sources[sourceName]; !ok {
		return fmt.Errorf("unknown source: %s", sourceName)
	}

	key := runKey(sourceName, op)

	s.mu.Lock()
	if _, busy := s.runs[key]; busy {
		s.mu.Unlock()
		return fmt.Errorf("source %s: %s %w", sourceName, op, ErrOperationActive)
	}
	runCtx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	run := &activeRun{
		Source: sourceName,
		Op:     op,
		Cancel: cancel,
		Done:   make(chan struct{}),
	}
	s.runs[key] = run
	s.mu.Unlock()

	go s.drive(runCtx, run)
	return nil
}

// drive invokes RunChunk until the operation completes, fails, or the run
// context ends. Cancellation is honored between chunks; a chunk that has
// started runs to its checkpoint.
func (s *Service) drive(ctx context.Context, run *activeRun) {
	defer run.Cancel()
	defer close(run.Done)
	defer s.cleanup(runKey(run.Source, run.Op), 5*time.Minute)

	if err := s.limiter.Acquire(ctx); err != nil {
		run.Err = err
		s.log.Warn("operation rejected", "source", run.Source, "op", string(run.Op), "error", err)
		run.closeListeners()
		return
	}
	defer s.limiter.Release()

	for {
		res, err := s.RunChunk(ctx, run.Source, run.Op)
		if err != nil {
			run.Err = err
			break
		}
		run.Result = &res
		if res.Status == StatusComplete {
			break
		}
		if ctx.Err() != nil {
			run.Err = ctx.Err()
			s.log.Info("operation suspended, progress is saved",
				"source", run.Source, "op", string(run.Op))
			break
		}
	}
	run.closeListeners()
}

// SubscribeProgress returns a channel that receives progress updates for
// an active run. The channel is closed when the run finishes.
func (s *Service) SubscribeProgress(sourceName string, op OperationKind) (<-chan ProgressState, error) {
	s.mu.RLock()
	run, ok := s.runs[runKey(sourceName, op)]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no active %s for source %s", op, sourceName)
	}

	ch := make(chan ProgressState, 10)

	run.ListenerMu.Lock()
	if run.finished {
		// Run already ended; deliver the final snapshot and close.
		run.ListenerMu.Unlock()
		ch <- run.Progress
		close(ch)
		return ch, nil
	}
	run.Listeners = append(run.Listeners, ch)
	// Send current progress immediately
	select {
	case ch <- run.Progress:
	default:
	}
	run.ListenerMu.Unlock()

	return ch, nil
}

// CancelOperation stops a background driver between chunks. The operation
// stays resumable; its lock remains held by the logical run.
func (s *Service) CancelOperation(sourceName string, op OperationKind) error {
	s.mu.RLock()
	run, ok := s.runs[runKey(sourceName, op)]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no active %s for source %s", op, sourceName)
	}
	run.Cancel()
	return nil
}

// WaitResult blocks until a background run finishes and returns its final
// result.
func (s *Service) WaitResult(sourceName string, op OperationKind) (*OperationResult, error) {
	s.mu.RLock()
	run, ok := s.runs[runKey(sourceName, op)]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no active %s for source %s", op, sourceName)
	}
	<-run.Done
	if run.Err != nil {
		return nil, run.Err
	}
	return run.Result, nil
}

// ActiveRuns lists the source/operation pairs with a live background
// driver, sorted for stable output.
func (s *Service) ActiveRuns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.runs))
	for key, run := range s.runs {
		select {
		case <-run.Done:
		default:
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// RunnerStatus reports how many background drivers are active against the
// concurrency cap.
func (s *Service) RunnerStatus() RunLimiterStatus {
	return s.limiter.Status()
}

// WaitForRuns blocks until every active background driver finishes or the
// context expires. Used during graceful shutdown so a mid-chunk run can
// reach its checkpoint before the process exits.
func (s *Service) WaitForRuns(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// publish updates the active run's snapshot and fans the state out to
// listeners. No-op when the invocation has no background driver (CLI).
func (s *Service) publish(sourceName string, op OperationKind, st ProgressState) {
	s.mu.RLock()
	run, ok := s.runs[runKey(sourceName, op)]
	s.mu.RUnlock()
	if !ok {
		return
	}

	run.ListenerMu.Lock()
	run.Progress = st
	for _, ch := range run.Listeners {
		select {
		case ch <- st:
		default:
			// Listener is slow, skip this update
		}
	}
	run.ListenerMu.Unlock()
}

// closeListeners closes all listener channels and marks the run finished
// so late subscribers get a closed channel instead of a stuck one.
func (run *activeRun) closeListeners() {
	run.ListenerMu.Lock()
	defer run.ListenerMu.Unlock()

	run.finished = true
	for _, ch := range run.Listeners {
		close(ch)
	}
	run.Listeners = nil
}

// cleanup removes the run from tracking after a delay, so late result
// queries still find it.
func (s *Service) cleanup(key string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.runs, key)
		s.mu.Unlock()
	})
}

// gate returns the per-source mutex serializing invocations within this
// process. The persisted lock covers cross-process exclusion.
func (s *Service) gate(sourceName string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.gates[sourceName]
	if !ok {
		g = &sync.Mutex{}
		s.gates[sourceName] = g
	}
	return g
}
