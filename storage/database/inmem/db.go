package inmemdb

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/form"
	"github.com/trezcool/forma/core/moffin"
	"github.com/trezcool/forma/core/organization"
	"github.com/trezcool/forma/core/session"
	"github.com/trezcool/forma/core/user"
)

// DB is an in-memory database. Transactions are serialized and rolled back on error.
type DB struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	users       map[string]user.User
	orgs        map[string]organization.Organization
	templates   map[string]form.Template
	sessions    map[string]session.Session
	submissions map[string]session.Submission
	events      []session.Event
	moffinForms map[string]moffin.Form
}

var _ core.TxRunner = (*DB)(nil)

func New() *DB {
	return &DB{
		users:       make(map[string]user.User),
		orgs:        make(map[string]organization.Organization),
		templates:   make(map[string]form.Template),
		sessions:    make(map[string]session.Session),
		submissions: make(map[string]session.Submission),
		moffinForms: make(map[string]moffin.Form),
	}
}

type snapshot struct {
	users       map[string]user.User
	orgs        map[string]organization.Organization
	templates   map[string]form.Template
	sessions    map[string]session.Session
	submissions map[string]session.Submission
	events      []session.Event
	moffinForms map[string]moffin.Form
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func (db *DB) snapshot() snapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return snapshot{
		users:       copyMap(db.users),
		orgs:        copyMap(db.orgs),
		templates:   copyMap(db.templates),
		sessions:    copyMap(db.sessions),
		submissions: copyMap(db.submissions),
		events:      append([]session.Event(nil), db.events...),
		moffinForms: copyMap(db.moffinForms),
	}
}

func (db *DB) restore(s snapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users = s.users
	db.orgs = s.orgs
	db.templates = s.templates
	db.sessions = s.sessions
	db.submissions = s.submissions
	db.events = s.events
	db.moffinForms = s.moffinForms
}

// RunInTx runs fn with a nil executor; repositories of this package ignore it.
func (db *DB) RunInTx(_ context.Context, fn func(exec core.DBExecutor) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	snap := db.snapshot()
	if err := fn(nil); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

// clone deep-copies v so that callers never share nested maps and slices with the store.
func clone[T any](v T) T {
	var c T
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return v
	}
	return c
}

func compareStrings(a, b string) int  { return strings.Compare(strings.ToLower(a), strings.ToLower(b)) }
func compareTimes(a, b time.Time) int { return a.Compare(b) }
func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

// sortBy sorts items by ordering; compare returns the comparison of two items on a field.
func sortBy[T any](items []T, ordering []core.DBOrdering, compare func(a, b T, field string) int) {
	if len(ordering) == 0 {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, ord := range ordering {
			c := compare(items[i], items[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}
