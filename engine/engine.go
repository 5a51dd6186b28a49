// Package engine wires together C2 (source), C3 (operator), C4 (view),
// C5 (planner), C6 (registry), and C7 (scheduler) behind one owned
// value, rather than the package-level globals the spec.md §9 redesign
// note warns against: every call goes through an *Engine a caller holds
// explicitly, the way the teacher threads a *Scope through every
// Resolve call instead of reaching for a singleton.
package engine

import (
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/zerosync/ivmengine/ast"
	"github.com/zerosync/ivmengine/internal/ivmerr"
	"github.com/zerosync/ivmengine/planner"
	"github.com/zerosync/ivmengine/registry"
	"github.com/zerosync/ivmengine/row"
	"github.com/zerosync/ivmengine/scheduler"
	"github.com/zerosync/ivmengine/schema"
	"github.com/zerosync/ivmengine/source"
	"github.com/zerosync/ivmengine/view"
)

// Engine is the single owning value for one logical query-engine
// instance: its schema, its table sources, its query registry, its
// planner statistics, and its scheduler. Nothing here is a package
// global; every method takes the Engine receiver explicitly.
type Engine struct {
	mu sync.Mutex

	schema   *schema.Schema
	sources  map[string]*source.Source
	registry *registry.Registry
	oracle   planner.Oracle
	sched    *scheduler.Scheduler
	log      *zap.Logger

	preloaded map[string]*preloadedView
}

type preloadedView struct {
	v       *view.View
	ttl     time.Duration
	expires time.Time
}

// Option configures an Engine at construction, mirroring the teacher's
// functional-options style (ScopeOption in scope.go).
type Option func(*Engine)

func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithOracle(o planner.Oracle) Option {
	return func(e *Engine) { e.oracle = o }
}

func WithScheduler(s *scheduler.Scheduler) Option {
	return func(e *Engine) { e.sched = s }
}

func New(sch *schema.Schema, opts ...Option) *Engine {
	e := &Engine{
		schema:    sch,
		sources:   make(map[string]*source.Source),
		registry:  registry.New(),
		preloaded: make(map[string]*preloadedView),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.oracle == nil {
		e.oracle = planner.NewStaticOracle()
	}
	if e.sched == nil {
		e.sched = scheduler.New(scheduler.NewTimeSliceTimer(scheduler.RealClock, 250*time.Millisecond), nil, e.log)
	}
	return e
}

func (e *Engine) Registry() *registry.Registry { return e.registry }
func (e *Engine) Schema() *schema.Schema        { return e.schema }

// AddSource registers table's backing Source; the planner and graph
// builder resolve a.Table against this map.
func (e *Engine) AddSource(table string, src *source.Source) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sources[table] = src
}

func (e *Engine) source(table string) (*source.Source, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	src, ok := e.sources[table]
	if !ok {
		return nil, ivmerr.Schema.New("unknown table %q: no source registered", table)
	}
	return src, nil
}

// Materialize plans a, builds its operator graph over the registered
// sources, and returns a View whose ResultType starts Unknown and whose
// snapshot reflects whatever hydration produced synchronously
// (spec.md §4.3).
func (e *Engine) Materialize(a ast.AST) (*view.View, error) {
	if err := ast.Validate(a); err != nil {
		return nil, err
	}
	planned, err := planner.PlanQuery(a, e.schema, e.oracle)
	if err != nil {
		return nil, err
	}

	root, leaves, subs, err := e.buildGraph(planned)
	if err != nil {
		return nil, err
	}

	t, err := e.schema.Table(planned.Table)
	if err != nil {
		return nil, err
	}

	v := view.New(root, t.PrimaryKey, leaves, subs, e.log)
	v.Hydrate()
	return v, nil
}

// Preload materializes a without a consumer subscription and keeps the
// resulting View alive until Close (spec.md §4.3 preload). A repeated
// Preload of an identical AST is a no-op. Materialize does not consult
// preloaded views and always builds a fresh graph; ttl is recorded with
// the view but nothing expires it.
func (e *Engine) Preload(a ast.AST, ttl time.Duration) error {
	key, err := ast.MarshalAST(a)
	if err != nil {
		return ivmerr.Validation.Wrap(err)
	}

	e.mu.Lock()
	if _, exists := e.preloaded[string(key)]; exists {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	v, err := e.Materialize(a)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.preloaded[string(key)] = &preloadedView{v: v, ttl: ttl, expires: time.Now().Add(ttl)}
	e.mu.Unlock()
	return nil
}

// RunPolicyType selects when Run resolves relative to a view's
// ResultType.
type RunPolicyType uint8

const (
	RunUnknown RunPolicyType = iota
	RunComplete
)

// Run materializes a transiently and returns its rows once the
// requested policy is satisfied: RunUnknown resolves as soon as
// synchronous hydration finishes, RunComplete blocks (via a one-shot
// listener) until ResultType reaches Complete.
func (e *Engine) Run(a ast.AST, policy RunPolicyType) ([]row.Row, error) {
	v, err := e.Materialize(a)
	if err != nil {
		return nil, err
	}
	defer v.Destroy()

	if policy == RunUnknown || v.ResultType() == view.Complete {
		return v.Snapshot(), nil
	}

	done := make(chan struct{})
	var out []row.Row
	var once sync.Once
	v.Subscribe(func(snapshot []row.Row, resultType view.ResultType) {
		if resultType == view.Complete {
			out = snapshot
			once.Do(func() { close(done) })
		}
	})
	<-done
	return out, nil
}

// Close tears down every preloaded view, aggregating any teardown
// failures with multierr rather than stopping at the first one.
func (e *Engine) Close() error {
	e.mu.Lock()
	views := make([]*preloadedView, 0, len(e.preloaded))
	for _, p := range e.preloaded {
		views = append(views, p)
	}
	e.preloaded = make(map[string]*preloadedView)
	e.mu.Unlock()

	var err error
	for _, p := range views {
		err = multierr.Append(err, p.v.Destroy())
	}
	return err
}
