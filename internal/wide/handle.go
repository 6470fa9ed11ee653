package wide

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// AcquireObserver is notified each time a handle opens a new table.
type AcquireObserver interface {
	TableAcquired()
}

// Handle holds the live connection to one table. The underlying client does
// not reconnect on its own, so after a connection failure the handle must be
// reacquired before the operation is retried.
//
// Callers that scan use Lease. A table replaced by Acquire or dropped by
// Close stays open until its last lease is released.
type Handle struct {
	connector Connector
	logger    *zap.Logger
	observer  AcquireObserver

	mu      sync.Mutex
	current *leasedTable
}

type leasedTable struct {
	table   Table
	refs    int
	retired bool
}

// HandleOption customizes a Handle.
type HandleOption func(*Handle)

// WithLogger sets the handle's logger.
func WithLogger(logger *zap.Logger) HandleOption {
	return func(h *Handle) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithAcquireObserver registers an observer for acquisitions.
func WithAcquireObserver(o AcquireObserver) HandleOption {
	return func(h *Handle) {
		h.observer = o
	}
}

// NewHandle returns an unacquired handle for connector.
func NewHandle(connector Connector, opts ...HandleOption) *Handle {
	h := &Handle{connector: connector, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Acquire opens a new table and makes it current. The previous table is
// closed once no lease holds it.
func (h *Handle) Acquire(ctx context.Context) (Table, error) {
	table, err := h.connector.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}

	h.mu.Lock()
	prev := h.current
	h.current = &leasedTable{table: table}
	closePrev := h.retireLocked(prev)
	h.mu.Unlock()

	if closePrev {
		h.closeTable(prev.table)
	}
	if h.observer != nil {
		h.observer.TableAcquired()
	}
	h.logger.Debug("table handle acquired")
	return table, nil
}

// Current returns the live table or ErrNotInitialized. The table may be
// closed by a later Acquire; use Lease to hold it across a scan.
func (h *Handle) Current() (Table, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return nil, ErrNotInitialized
	}
	return h.current.table, nil
}

// Lease returns the live table and a release func that must be called when
// the caller is done with it. Release is safe to call more than once.
func (h *Handle) Lease() (Table, func(), error) {
	h.mu.Lock()
	l := h.current
	if l == nil {
		h.mu.Unlock()
		return nil, nil, ErrNotInitialized
	}
	l.refs++
	h.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			h.mu.Lock()
			l.refs--
			done := l.retired && l.refs == 0
			h.mu.Unlock()
			if done {
				h.closeTable(l.table)
			}
		})
	}
	return l.table, release, nil
}

// Close drops the current table, closing it now unless it is leased. The
// handle can be acquired again.
func (h *Handle) Close() error {
	h.mu.Lock()
	prev := h.current
	h.current = nil
	closeNow := h.retireLocked(prev)
	h.mu.Unlock()
	if closeNow {
		return prev.table.Close()
	}
	return nil
}

// retireLocked marks l as replaced and reports whether it can be closed now.
func (h *Handle) retireLocked(l *leasedTable) bool {
	if l == nil {
		return false
	}
	l.retired = true
	return l.refs == 0
}

func (h *Handle) closeTable(t Table) {
	if err := t.Close(); err != nil {
		h.logger.Debug("close discarded table", zap.Error(err))
	}
}
