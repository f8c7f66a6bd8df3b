package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kieranpgray/coinbag-sub006/internal/core"
)

// fakeGetter serves a mutable record.
type fakeGetter struct {
	mu  sync.Mutex
	rec core.StatementImport
	err error
}

func (f *fakeGetter) Get(ctx context.Context, id string) (*core.StatementImport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	rec := f.rec
	return &rec, nil
}

func (f *fakeGetter) set(status core.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rec.Status = status
	f.rec.UpdatedAt = f.rec.UpdatedAt.Add(time.Second)
}

// collector gathers delivered snapshots.
type collector struct {
	mu   sync.Mutex
	seen []core.Status
}

func (c *collector) add(rec core.StatementImport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, rec.Status)
}

func (c *collector) statuses() []core.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Status, len(c.seen))
	copy(out, c.seen)
	return out
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pendingRecord() core.StatementImport {
	return core.StatementImport{
		ID:        "imp-1",
		Status:    core.StatusPending,
		UpdatedAt: time.Now().UTC(),
	}
}

func TestSubscribe_ErrorWhenRecordUnavailable(t *testing.T) {
	p := NewPoller(&fakeGetter{err: errors.New("store down")}, time.Millisecond, quiet())
	_, err := p.Subscribe("imp-1", func(core.StatementImport) {})
	require.Error(t, err)
}

func TestSubscribe_DeliversInitialSnapshot(t *testing.T) {
	g := &fakeGetter{rec: pendingRecord()}
	p := NewPoller(g, time.Millisecond, quiet())
	c := &collector{}

	unsub, err := p.Subscribe("imp-1", c.add)
	require.NoError(t, err)
	defer unsub()

	require.Eventually(t, func() bool {
		return len(c.statuses()) >= 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, core.StatusPending, c.statuses()[0])
}

func TestSubscribe_DeliversChangesInOrderAndStopsAtTerminal(t *testing.T) {
	g := &fakeGetter{rec: pendingRecord()}
	p := NewPoller(g, time.Millisecond, quiet())
	c := &collector{}

	unsub, err := p.Subscribe("imp-1", c.add)
	require.NoError(t, err)
	defer unsub()

	require.Eventually(t, func() bool { return len(c.statuses()) >= 1 }, time.Second, time.Millisecond)
	g.set(core.StatusProcessing)
	require.Eventually(t, func() bool { return len(c.statuses()) >= 2 }, time.Second, time.Millisecond)
	g.set(core.StatusCompleted)
	require.Eventually(t, func() bool { return len(c.statuses()) >= 3 }, time.Second, time.Millisecond)

	assert.Equal(t, []core.Status{core.StatusPending, core.StatusProcessing, core.StatusCompleted}, c.statuses())

	// The watch ends after the terminal delivery, so later mutations are
	// never observed.
	g.set(core.StatusFailed)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, c.statuses(), 3)
}

func TestSubscribe_NoRedundantDeliveries(t *testing.T) {
	g := &fakeGetter{rec: pendingRecord()}
	p := NewPoller(g, time.Millisecond, quiet())
	c := &collector{}

	unsub, err := p.Subscribe("imp-1", c.add)
	require.NoError(t, err)
	defer unsub()

	// Many poll ticks over an unchanged record must deliver exactly once.
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, c.statuses(), 1)
}

func TestSubscribe_TransientStoreErrorKeepsWatching(t *testing.T) {
	g := &fakeGetter{rec: pendingRecord()}
	p := NewPoller(g, time.Millisecond, quiet())
	c := &collector{}

	unsub, err := p.Subscribe("imp-1", c.add)
	require.NoError(t, err)
	defer unsub()
	require.Eventually(t, func() bool { return len(c.statuses()) >= 1 }, time.Second, time.Millisecond)

	g.mu.Lock()
	g.err = errors.New("store hiccup")
	g.mu.Unlock()
	time.Sleep(10 * time.Millisecond)
	g.mu.Lock()
	g.err = nil
	g.mu.Unlock()
	g.set(core.StatusProcessing)

	require.Eventually(t, func() bool { return len(c.statuses()) >= 2 }, time.Second, time.Millisecond)
	assert.Equal(t, core.StatusProcessing, c.statuses()[1])
}

func TestUnsubscribe_StopsDeliveryAndIsIdempotent(t *testing.T) {
	g := &fakeGetter{rec: pendingRecord()}
	p := NewPoller(g, time.Millisecond, quiet())
	c := &collector{}

	unsub, err := p.Subscribe("imp-1", c.add)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(c.statuses()) >= 1 }, time.Second, time.Millisecond)

	unsub()
	unsub() // second call is a no-op

	g.set(core.StatusCompleted)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, c.statuses(), 1, "no deliveries after unsubscribe")
}
