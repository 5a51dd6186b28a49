// Package registry implements C6: named, argument-validated query
// definitions. A query definition couples an optional validator, a
// function from (validated args) to an AST, and an identity derived
// from the caller's original, pre-validation args.
package registry

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/zerosync/ivmengine/ast"
	"github.com/zerosync/ivmengine/internal/ivmerr"
)

// Validator is implemented by SyncValidator and AsyncValidator; Register
// accepts either but rejects the async variant, since the core's query
// resolution path is itself synchronous (spec.md §4.5).
type Validator[Args any] interface {
	isValidator()
}

// SyncValidator validates and (optionally) transforms args before the
// query body runs.
type SyncValidator[Args any] func(Args) (Args, error)

func (SyncValidator[Args]) isValidator() {}

// AsyncValidator exists only so Register can detect and reject it with
// AsyncValidatorUnsupported; the core has no facility to await one.
type AsyncValidator[Args any] func(context.Context, Args) (Args, error)

func (AsyncValidator[Args]) isValidator() {}

// BuildFunc produces the AST a query resolves to, from its validated
// args.
type BuildFunc[Args any] func(args Args) (ast.AST, error)

// QueryDef is one named query's definition, generic over its argument
// type.
type QueryDef[Args any] struct {
	Name      string
	Validator Validator[Args] // nil means no validation
	Build     BuildFunc[Args]
}

// boundQuery is QueryDef with Args erased, so heterogeneous query
// definitions can share one registry map.
type boundQuery struct {
	name string
	call func(originalArgs any) (ast.AST, error)
}

// Registry looks queries up by name, mirroring the teacher's
// Provide/Derive registration pattern (executor.go) adapted to named,
// validated query definitions instead of anonymous executors.
type Registry struct {
	mu   sync.Mutex
	defs map[string]boundQuery
}

func New() *Registry {
	return &Registry{defs: make(map[string]boundQuery)}
}

// Register adds def to r. It returns an error (rather than panicking)
// if def.Validator is an AsyncValidator, per spec.md §4.5.
func Register[Args any](r *Registry, def QueryDef[Args]) error {
	if _, isAsync := def.Validator.(AsyncValidator[Args]); isAsync {
		return ivmerr.Validation.New("AsyncValidatorUnsupported: query %q registered an async validator", def.Name)
	}

	call := func(originalArgs any) (ast.AST, error) {
		args, ok := originalArgs.(Args)
		if !ok {
			return ast.AST{}, ivmerr.Validation.New("query %q: args type mismatch", def.Name)
		}
		if sv, ok := def.Validator.(SyncValidator[Args]); ok {
			validated, err := sv(args)
			if err != nil {
				return ast.AST{}, ivmerr.Validation.Wrap(err)
			}
			args = validated
		}
		a, err := def.Build(args)
		if err != nil {
			return ast.AST{}, err
		}
		a.Name = def.Name
		return a, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = boundQuery{name: def.Name, call: call}
	return nil
}

// Resolve builds the AST for a registered query given the caller's
// original args; those original args (not whatever the validator
// transformed them into) become the AST's Args, preserving the
// server-visible identity law of spec.md §4.5/§6.
func (r *Registry) Resolve(name string, args any) (ast.AST, error) {
	r.mu.Lock()
	q, ok := r.defs[name]
	r.mu.Unlock()
	if !ok {
		return ast.AST{}, ivmerr.Schema.New("UnknownQuery: %q is not registered", name)
	}
	a, err := q.call(args)
	if err != nil {
		return ast.AST{}, err
	}
	a.Args = []any{args}
	return a, nil
}

// MustResolve is Resolve but panics on any Resolve error (an unknown
// name or a rejected argument), for call sites that
// have already validated the name exists (e.g. a fixture loader).
func (r *Registry) MustResolve(name string, args any) ast.AST {
	a, err := r.Resolve(name, args)
	if err != nil {
		panic(err)
	}
	return a
}

// CustomQueryID computes the server-visible identity of a query call:
// two calls with the same name and deeply-equal original args must
// dedupe to the same identity even if their built ASTs differ (clients
// may rewrite for their own cost model). JSON-encoding the args gives a
// stable, comparable string without requiring Args to implement a
// custom equality method.
func CustomQueryID(name string, args any) (string, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", ivmerr.Validation.Wrap(err)
	}
	return name + ":" + string(encoded), nil
}
