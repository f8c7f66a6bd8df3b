package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// seqUploader records upload order and fails the test if two uploads ever
// overlap.
type seqUploader struct {
	mu       sync.Mutex
	order    []string
	inFlight atomic.Int32
	overlap  atomic.Bool
	failFor  map[string]error
}

func (u *seqUploader) Upload(ctx context.Context, req UploadRequest) (string, error) {
	if u.inFlight.Add(1) > 1 {
		u.overlap.Store(true)
	}
	defer u.inFlight.Add(-1)

	time.Sleep(5 * time.Millisecond)
	u.mu.Lock()
	u.order = append(u.order, req.FileName)
	u.mu.Unlock()

	if err := u.failFor[req.FileName]; err != nil {
		return "", err
	}
	return "statements/" + req.FileName, nil
}

// stubStore assigns sequential import ids without a database.
type stubStore struct {
	mockStore
	mu      sync.Mutex
	created int
}

func (s *stubStore) Create(ctx context.Context, params CreateParams) (*StatementImport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created++
	return &StatementImport{
		ID:            params.FileName + "-import",
		OwnerID:       params.OwnerID,
		AccountID:     params.AccountID,
		FileName:      params.FileName,
		FileHash:      params.FileHash,
		Status:        StatusPending,
		CorrelationID: params.CorrelationID,
	}, nil
}

func okTrigger() *mockTrigger {
	trig := new(mockTrigger)
	trig.On("Trigger", mock.Anything, mock.Anything, mock.Anything).Return(TriggerResult{Outcome: TriggerOK})
	return trig
}

// completeAllPushed pushes completed for every subscription as it appears.
func completeAllPushed(src *fakeStatusSource, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-time.After(2 * time.Millisecond):
		}
		src.mu.Lock()
		ids := make([]string, 0, len(src.callbacks))
		for id := range src.callbacks {
			ids = append(ids, id)
		}
		src.mu.Unlock()
		for _, id := range ids {
			src.Push(id, StatementImport{ID: id, Status: StatusCompleted})
		}
	}
}

func TestBatch_UploadsAreSequentialInQueueOrder(t *testing.T) {
	up := &seqUploader{}
	src := newFakeStatusSource()
	orch := NewOrchestrator(testValidator(), &stubStore{}, up, okTrigger(), src, nil, quietLogger())

	files := []QueuedFile{pdfFile("one.pdf", 10), pdfFile("two.pdf", 10), pdfFile("three.pdf", 10)}
	batch := NewBatchCoordinator("b1", orch, Ownership{OwnerID: "u1", AccountID: "a1"}, files)

	stop := make(chan struct{})
	go completeAllPushed(src, stop)
	defer close(stop)

	go batch.Run(context.Background())
	select {
	case <-batch.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("batch did not finish")
	}

	assert.False(t, up.overlap.Load(), "two uploads were in flight at once")
	assert.Equal(t, []string{"one.pdf", "two.pdf", "three.pdf"}, up.order)
}

func TestBatch_FailedFileDoesNotBlockTheRest(t *testing.T) {
	up := &seqUploader{failFor: map[string]error{"two.pdf": errors.New("storage 500")}}
	src := newFakeStatusSource()
	orch := NewOrchestrator(testValidator(), &stubStore{}, up, okTrigger(), src, nil, quietLogger())

	files := []QueuedFile{pdfFile("one.pdf", 10), pdfFile("two.pdf", 10), pdfFile("three.pdf", 10)}
	batch := NewBatchCoordinator("b1", orch, Ownership{OwnerID: "u1", AccountID: "a1"}, files)

	stop := make(chan struct{})
	go completeAllPushed(src, stop)
	defer close(stop)

	go batch.Run(context.Background())
	select {
	case <-batch.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("batch did not finish")
	}

	byName := map[string]FileWithStatus{}
	for _, e := range batch.Queue().Snapshot() {
		byName[e.FileName] = e
	}
	assert.Equal(t, UIError, byName["two.pdf"].UIStatus)
	assert.Equal(t, ClassUpload, byName["two.pdf"].Classification)
	assert.Equal(t, UISuccess, byName["one.pdf"].UIStatus)
	assert.Equal(t, UISuccess, byName["three.pdf"].UIStatus)
}

func TestBatch_CloseUnsubscribesAndStopsUpdates(t *testing.T) {
	up := &seqUploader{}
	src := newFakeStatusSource()
	orch := NewOrchestrator(testValidator(), &stubStore{}, up, okTrigger(), src, nil, quietLogger())

	files := []QueuedFile{pdfFile("one.pdf", 10)}
	batch := NewBatchCoordinator("b1", orch, Ownership{OwnerID: "u1", AccountID: "a1"}, files)
	go batch.Run(context.Background())

	// Wait for the subscription to open, then tear down without ever
	// pushing a terminal status.
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.callbacks) == 1
	}, 2*time.Second, 5*time.Millisecond)

	batch.Close()
	batch.Close() // idempotent

	select {
	case <-batch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not unwind after Close")
	}
	assert.Equal(t, 1, src.unsubscribeCount("one.pdf-import"))

	// A late push must not change the queue.
	before := batch.Queue().Snapshot()
	src.Push("one.pdf-import", StatementImport{ID: "one.pdf-import", Status: StatusFailed})
	assert.Equal(t, before, batch.Queue().Snapshot())
}

// gatedUploader blocks each upload until released and surfaces a cancelled
// request context as an error, the way a real HTTP transfer would.
type gatedUploader struct {
	started chan string
	release chan struct{}
}

func (u *gatedUploader) Upload(ctx context.Context, req UploadRequest) (string, error) {
	u.started <- req.FileName
	<-u.release
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "statements/" + req.FileName, nil
}

func TestBatch_CloseDoesNotCancelInFlightUpload(t *testing.T) {
	up := &gatedUploader{started: make(chan string, 2), release: make(chan struct{})}
	src := newFakeStatusSource()
	orch := NewOrchestrator(testValidator(), &stubStore{}, up, okTrigger(), src, nil, quietLogger())

	files := []QueuedFile{pdfFile("one.pdf", 10), pdfFile("two.pdf", 10)}
	batch := NewBatchCoordinator("b1", orch, Ownership{OwnerID: "u1", AccountID: "a1"}, files)
	go batch.Run(context.Background())

	// First transfer is mid-flight; tear the batch down underneath it.
	require.Equal(t, "one.pdf", <-up.started)
	batch.Close()
	close(up.release)

	select {
	case <-batch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not unwind after Close")
	}

	byName := map[string]FileWithStatus{}
	for _, e := range batch.Queue().Snapshot() {
		byName[e.FileName] = e
	}

	// The in-flight transfer finished and was recorded, not aborted.
	assert.Equal(t, UIProcessing, byName["one.pdf"].UIStatus)
	assert.Equal(t, "one.pdf-import", byName["one.pdf"].LinkedImportID)

	// No further upload phase starts after teardown.
	assert.Equal(t, UIPending, byName["two.pdf"].UIStatus)
	select {
	case name := <-up.started:
		t.Fatalf("upload started after Close: %s", name)
	default:
	}
}

func TestBatch_CloseBeforeRunSkipsUploads(t *testing.T) {
	up := &seqUploader{}
	src := newFakeStatusSource()
	orch := NewOrchestrator(testValidator(), &stubStore{}, up, okTrigger(), src, nil, quietLogger())

	files := []QueuedFile{pdfFile("one.pdf", 10), pdfFile("two.pdf", 10)}
	batch := NewBatchCoordinator("b1", orch, Ownership{OwnerID: "u1", AccountID: "a1"}, files)

	// Close before Run: nothing should be uploaded.
	batch.Close()
	batch.Run(context.Background())

	up.mu.Lock()
	defer up.mu.Unlock()
	assert.Empty(t, up.order, "closed batch must not start uploads")
}

func TestBatch_DoneClosesQueueListeners(t *testing.T) {
	up := &seqUploader{}
	src := newFakeStatusSource()
	orch := NewOrchestrator(testValidator(), &stubStore{}, up, okTrigger(), src, nil, quietLogger())

	batch := NewBatchCoordinator("b1", orch, Ownership{OwnerID: "u1", AccountID: "a1"},
		[]QueuedFile{pdfFile("one.pdf", 10)})
	snapshots := batch.Queue().Subscribe()

	stop := make(chan struct{})
	go completeAllPushed(src, stop)
	defer close(stop)

	go batch.Run(context.Background())
	select {
	case <-batch.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("batch did not finish")
	}

	// The listener channel drains its backlog and then closes.
	for {
		if _, ok := <-snapshots; !ok {
			return
		}
	}
}
