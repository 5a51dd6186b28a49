// Package source implements C2: an ordered, indexed in-memory table with
// primary-key uniqueness and a change feed. Every operator graph reads
// its base rows through a Source and receives live Changes through a
// Subscription pinned to one ordering.
package source

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/zerosync/ivmengine/ast"
	"github.com/zerosync/ivmengine/change"
	"github.com/zerosync/ivmengine/internal/ivmerr"
	"github.com/zerosync/ivmengine/row"
	"github.com/zerosync/ivmengine/schema"
)

// Listener receives live changes for one ordering a Subscription has
// pinned. Operators implement this directly (TableSource does) rather
// than routing through a channel, preserving the single-threaded,
// cooperative-scheduling discipline of spec.md §5: a push call runs to
// completion on the caller's goroutine.
type Listener interface {
	OnSourceChange(change.Change) error
}

// CommitListener is notified when a transactional boundary closes on
// the source, letting subscribers (ultimately views) batch their
// downstream notifications into one commit per transaction.
type CommitListener interface {
	OnCommit()
}

// FilterHint lets a subscriber tell the source it only cares about rows
// matching a simple predicate. The source applies it when producing the
// subscription's Snapshot; index entries are still built for every row
// and live changes are delivered unfiltered.
type FilterHint func(row.Row) bool

type orderEntry struct {
	key   []row.Value
	pkStr string
}

type ordering struct {
	terms        []ast.OrderTerm
	desc         []bool
	refCount     int
	entries      []orderEntry
	subscribers  []*Subscription
	commitHooks  []CommitListener
}

func orderingID(terms []ast.OrderTerm) string {
	id := ""
	for _, t := range terms {
		if t.Desc {
			id += t.Column + ":desc,"
		} else {
			id += t.Column + ":asc,"
		}
	}
	return id
}

func sortKeyFor(r row.Row, terms []ast.OrderTerm, pk []string) []row.Value {
	key := make([]row.Value, 0, len(terms)+len(pk))
	for _, t := range terms {
		v, _ := r.Get(t.Column)
		key = append(key, v)
	}
	for _, c := range pk {
		v, _ := r.Get(c)
		key = append(key, v)
	}
	return key
}

func descFor(terms []ast.OrderTerm, pk []string) []bool {
	out := make([]bool, 0, len(terms)+len(pk))
	for _, t := range terms {
		out = append(out, t.Desc)
	}
	for range pk {
		out = append(out, false)
	}
	return out
}

// Source owns one table's rows and indexes.
type Source struct {
	mu    sync.Mutex
	table schema.Table
	log   *zap.Logger

	rows      map[string]row.Row
	orderings map[string]*ordering
}

func New(table schema.Table, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{
		table:     table,
		log:       log,
		rows:      make(map[string]row.Row),
		orderings: make(map[string]*ordering),
	}
}

func (s *Source) Table() schema.Table { return s.table }

// Push applies one Add, Remove, or Edit change to the source, per the
// contract in spec.md §4.1.
func (s *Source) Push(c change.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch c.Kind {
	case change.Add:
		key := c.Row.PrimaryKey(s.table.PrimaryKey).String()
		if _, exists := s.rows[key]; exists {
			return ivmerr.Store.New("PrimaryKeyConflict: row with key %s already exists in %s", key, s.table.Name)
		}
		s.rows[key] = c.Row
		s.insertIntoOrderings(key, c.Row)
		s.notify(c)
		return nil

	case change.Remove:
		key := c.Row.PrimaryKey(s.table.PrimaryKey).String()
		existing, exists := s.rows[key]
		if !exists {
			return ivmerr.Store.New("NotFound: no row with key %s in %s", key, s.table.Name)
		}
		delete(s.rows, key)
		s.removeFromOrderings(key)
		s.notify(change.NewRemove(existing))
		return nil

	case change.Edit:
		oldKey := c.OldRow.PrimaryKey(s.table.PrimaryKey)
		newKey := c.NewRow.PrimaryKey(s.table.PrimaryKey)
		if !oldKey.Equal(newKey) {
			return ivmerr.Store.New("NotFound: edit must preserve primary key (%s != %s)", oldKey.String(), newKey.String())
		}
		key := oldKey.String()
		if _, exists := s.rows[key]; !exists {
			return ivmerr.Store.New("NotFound: no row with key %s in %s", key, s.table.Name)
		}
		s.rows[key] = c.NewRow
		s.removeFromOrderings(key)
		s.insertIntoOrderings(key, c.NewRow)
		s.notify(c)
		return nil

	default:
		return ivmerr.Validation.New("source.Push: unsupported change kind %s", c.Kind)
	}
}

// Commit marks a transactional boundary: every ordering's registered
// commit listeners fire once per registration, in registration order
// within each ordering; the order across orderings is not defined.
func (s *Source) Commit() {
	s.mu.Lock()
	orderings := make([]*ordering, 0, len(s.orderings))
	for _, o := range s.orderings {
		orderings = append(orderings, o)
	}
	s.mu.Unlock()

	for _, o := range orderings {
		for _, hook := range o.commitHooks {
			hook.OnCommit()
		}
	}
}

func (s *Source) notify(c change.Change) {
	for _, o := range s.orderings {
		for _, sub := range o.subscribers {
			if err := sub.listener.OnSourceChange(c); err != nil {
				s.log.Warn("subscriber rejected change", zap.Error(err), zap.String("table", s.table.Name))
			}
		}
	}
}

func (s *Source) insertIntoOrderings(pkStr string, r row.Row) {
	for _, o := range s.orderings {
		key := sortKeyFor(r, o.terms, s.table.PrimaryKey)
		idx := sort.Search(len(o.entries), func(i int) bool {
			return row.CompareKeys(o.entries[i].key, key, o.desc) >= 0
		})
		o.entries = append(o.entries, orderEntry{})
		copy(o.entries[idx+1:], o.entries[idx:])
		o.entries[idx] = orderEntry{key: key, pkStr: pkStr}
	}
}

func (s *Source) removeFromOrderings(pkStr string) {
	for _, o := range s.orderings {
		for i, e := range o.entries {
			if e.pkStr == pkStr {
				o.entries = append(o.entries[:i], o.entries[i+1:]...)
				break
			}
		}
	}
}

// Connect returns a Subscription pinned to the ordering described by
// terms: a lazy, restartable snapshot of current contents in that
// order, plus subsequent live changes delivered to listener. Orderings
// are reference-counted so duplicate requests share the same index.
func (s *Source) Connect(terms []ast.OrderTerm, listener Listener, filter FilterHint) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := orderingID(terms)
	o, ok := s.orderings[id]
	if !ok {
		o = &ordering{
			terms: terms,
			desc:  descFor(terms, s.table.PrimaryKey),
		}
		for pkStr, r := range s.rows {
			key := sortKeyFor(r, terms, s.table.PrimaryKey)
			o.entries = append(o.entries, orderEntry{key: key, pkStr: pkStr})
		}
		sort.Slice(o.entries, func(i, j int) bool {
			return row.CompareKeys(o.entries[i].key, o.entries[j].key, o.desc) < 0
		})
		s.orderings[id] = o
	}
	o.refCount++

	sub := &Subscription{
		source:      s,
		orderingID:  id,
		listener:    listener,
		filter:      filter,
	}
	o.subscribers = append(o.subscribers, sub)
	if cl, ok := listener.(CommitListener); ok {
		o.commitHooks = append(o.commitHooks, cl)
	}
	return sub
}

// Snapshot returns the subscription's ordering's current contents, in
// order, applying the subscription's filter hint if any.
func (sub *Subscription) Snapshot() []row.Row {
	s := sub.source
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.orderings[sub.orderingID]
	out := make([]row.Row, 0, len(o.entries))
	for _, e := range o.entries {
		r := s.rows[e.pkStr]
		if sub.filter == nil || sub.filter(r) {
			out = append(out, r)
		}
	}
	return out
}

// Unsubscribe releases the subscription's pin on its ordering,
// dropping the ordering's index once its reference count reaches zero.
// It returns an error to satisfy view.Unsubscriber, whose teardown path
// aggregates failures across several subscriptions with multierr; a
// Source's own bookkeeping never actually fails.
func (sub *Subscription) Unsubscribe() error {
	s := sub.source
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orderings[sub.orderingID]
	if !ok {
		return nil
	}
	for i, other := range o.subscribers {
		if other == sub {
			o.subscribers = append(o.subscribers[:i], o.subscribers[i+1:]...)
			break
		}
	}
	for i, hook := range o.commitHooks {
		if cl, ok := sub.listener.(CommitListener); ok && hook == cl {
			o.commitHooks = append(o.commitHooks[:i], o.commitHooks[i+1:]...)
			break
		}
	}
	o.refCount--
	if o.refCount <= 0 {
		delete(s.orderings, sub.orderingID)
	}
	return nil
}

// Subscription is a live, ordered view onto a Source pinned to one
// ordering.
type Subscription struct {
	source     *Source
	orderingID string
	listener   Listener
	filter     FilterHint
}
