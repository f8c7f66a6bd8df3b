package core

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Create(ctx context.Context, params CreateParams) (*StatementImport, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*StatementImport), args.Error(1)
}

func (m *mockStore) Get(ctx context.Context, id string) (*StatementImport, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*StatementImport), args.Error(1)
}

func (m *mockStore) Update(ctx context.Context, id string, patch UpdateParams) (*StatementImport, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*StatementImport), args.Error(1)
}

func (m *mockStore) ListByAccount(ctx context.Context, accountID string) ([]StatementImport, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]StatementImport), args.Error(1)
}

func (m *mockStore) ListByStatus(ctx context.Context, status Status) ([]StatementImport, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]StatementImport), args.Error(1)
}

type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) Upload(ctx context.Context, req UploadRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type mockTrigger struct {
	mock.Mock
}

func (m *mockTrigger) Trigger(ctx context.Context, importID, correlationID string) TriggerResult {
	args := m.Called(ctx, importID, correlationID)
	return args.Get(0).(TriggerResult)
}

type mockInvalidator struct {
	mock.Mock
}

func (m *mockInvalidator) InvalidateViews(accountID string, views ...string) {
	m.Called(accountID, views)
}

// fakeStatusSource is a hand-rolled StatusSource that lets tests push
// snapshots into a live subscription and observe unsubscribe calls.
type fakeStatusSource struct {
	mu           sync.Mutex
	callbacks    map[string]func(StatementImport)
	unsubscribed map[string]int
	subscribeErr error
}

func newFakeStatusSource() *fakeStatusSource {
	return &fakeStatusSource{
		callbacks:    make(map[string]func(StatementImport)),
		unsubscribed: make(map[string]int),
	}
}

func (f *fakeStatusSource) Subscribe(importID string, onUpdate func(StatementImport)) (func(), error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.mu.Lock()
	f.callbacks[importID] = onUpdate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.callbacks, importID)
			f.unsubscribed[importID]++
			f.mu.Unlock()
		})
	}, nil
}

// Push delivers a snapshot to the active subscription, if any.
func (f *fakeStatusSource) Push(importID string, rec StatementImport) {
	f.mu.Lock()
	cb := f.callbacks[importID]
	f.mu.Unlock()
	if cb != nil {
		cb(rec)
	}
}

func (f *fakeStatusSource) unsubscribeCount(importID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribed[importID]
}

func testValidator() *FileValidator {
	return NewFileValidator(1<<20,
		[]string{"application/pdf", "text/csv"},
		[]string{".pdf", ".csv"})
}

func pdfFile(name string, size int) QueuedFile {
	return QueuedFile{Name: name, MimeType: "application/pdf", Data: make([]byte, size)}
}
