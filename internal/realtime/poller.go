// Package realtime delivers import status updates to subscribers.
//
// The production parser writes its progress to the record store, so the
// status channel is implemented as a poll over that store rather than a push
// transport. Per-import ordering holds because each subscription is a single
// goroutine invoking its callback sequentially.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kieranpgray/coinbag-sub006/internal/core"
)

// ImportGetter is the slice of the record store the poller needs.
type ImportGetter interface {
	Get(ctx context.Context, id string) (*core.StatementImport, error)
}

// Poller implements core.StatusSource by polling the record store.
type Poller struct {
	store    ImportGetter
	interval time.Duration
	log      *slog.Logger
}

// NewPoller builds a poller. interval <= 0 selects one second; log may be
// nil.
func NewPoller(store ImportGetter, interval time.Duration, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{store: store, interval: interval, log: log}
}

// Subscribe starts watching an import. The current snapshot is delivered
// first, then one snapshot per observed change, in order. The watch ends on
// unsubscribe or when a terminal status has been delivered. The returned
// unsubscribe function is safe to call any number of times.
func (p *Poller) Subscribe(importID string, onUpdate func(core.StatementImport)) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())

	first, err := p.store.Get(ctx, importID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open status subscription for %s: %w", importID, err)
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(cancel)
	}

	go p.watch(ctx, importID, *first, onUpdate)
	return unsubscribe, nil
}

func (p *Poller) watch(ctx context.Context, importID string, last core.StatementImport, onUpdate func(core.StatementImport)) {
	onUpdate(last)
	if last.Status.IsTerminal() {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rec, err := p.store.Get(ctx, importID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// Transient store trouble: keep the subscription alive.
				p.log.Warn("status poll failed", "import_id", importID, "error", err)
				continue
			}
			if rec.Status == last.Status && rec.UpdatedAt.Equal(last.UpdatedAt) {
				continue
			}
			last = *rec
			onUpdate(last)
			if last.Status.IsTerminal() {
				return
			}
		}
	}
}
