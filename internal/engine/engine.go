// Package engine owns the project and work-order state machines: transition
// tables, authorization gates, and time accounting. All persistence goes
// through the record store seam; folder provisioning is best-effort.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"orderflow/internal/config"
	"orderflow/internal/domain"
	"orderflow/internal/engine/fault"
	"orderflow/internal/events"
	"orderflow/internal/folders"
	"orderflow/internal/store"
)

type Engine struct {
	Store   store.Store
	Folders folders.Service
	Events  events.Writer
	Config  *config.Config
	Now     func() time.Time

	locks *rowLocks
}

func New(s store.Store, f folders.Service, cfg *config.Config) Engine {
	if f == nil {
		f = folders.Disabled{}
	}
	return Engine{
		Store:   s,
		Folders: f,
		Events:  events.Writer{Store: s},
		Config:  cfg,
		Now:     time.Now,
		locks:   newRowLocks(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// rowLocks serializes read-validate-write per row identifier. The backing
// store has no compare-and-swap, so without this two concurrent operations
// against the same identifier could both validate against a stale read and
// silently overwrite each other.
type rowLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newRowLocks() *rowLocks {
	return &rowLocks{m: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for id and returns its unlock func.
func (l *rowLocks) lock(id string) func() {
	l.mu.Lock()
	m, ok := l.m[id]
	if !ok {
		m = &sync.Mutex{}
		l.m[id] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// storeErr maps a record-store failure onto the fault taxonomy.
func storeErr(collection, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fault.NotFoundError{Collection: collection, ID: id}
	}
	return fault.UpstreamError{System: "record store", Err: err}
}

func (e Engine) getProjectRow(ctx context.Context, id string) (domain.Project, store.Pos, error) {
	row, pos, err := e.Store.Find(ctx, domain.CollectionProjects, domain.FieldProjectID, id)
	if err != nil {
		return domain.Project{}, "", storeErr(domain.CollectionProjects, id, err)
	}
	p, err := domain.ProjectFromRow(row)
	if err != nil {
		return domain.Project{}, "", fault.UpstreamError{System: "record store", Err: err}
	}
	return p, pos, nil
}

func (e Engine) getWorkOrderRow(ctx context.Context, id string) (domain.WorkOrder, store.Pos, error) {
	row, pos, err := e.Store.Find(ctx, domain.CollectionWorkOrders, domain.FieldWorkOrderID, id)
	if err != nil {
		return domain.WorkOrder{}, "", storeErr(domain.CollectionWorkOrders, id, err)
	}
	w, err := domain.WorkOrderFromRow(row)
	if err != nil {
		return domain.WorkOrder{}, "", fault.UpstreamError{System: "record store", Err: err}
	}
	return w, pos, nil
}

// newProjectID allocates an unused proj-NNNN identifier.
func (e Engine) newProjectID(ctx context.Context) (string, error) {
	for range 10 {
		id := fmt.Sprintf("proj-%04d", rand.IntN(9000)+1000)
		_, _, err := e.Store.Find(ctx, domain.CollectionProjects, domain.FieldProjectID, id)
		if errors.Is(err, store.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fault.UpstreamError{System: "record store", Err: err}
		}
	}
	return "", fault.UpstreamError{System: "record store", Err: errors.New("project id space exhausted")}
}

// newWorkOrderID allocates wo-<project suffix>-NNN.
func (e Engine) newWorkOrderID(ctx context.Context, projectID string) (string, error) {
	suffix := projectID
	if i := strings.LastIndexByte(projectID, '-'); i >= 0 {
		suffix = projectID[i+1:]
	}
	for range 10 {
		id := fmt.Sprintf("wo-%s-%03d", suffix, rand.IntN(900)+100)
		_, _, err := e.Store.Find(ctx, domain.CollectionWorkOrders, domain.FieldWorkOrderID, id)
		if errors.Is(err, store.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fault.UpstreamError{System: "record store", Err: err}
		}
	}
	return "", fault.UpstreamError{System: "record store", Err: errors.New("work order id space exhausted")}
}

func formatSeconds(total int64) string {
	return strconv.FormatInt(total, 10)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
