package core

import "testing"

func testFiles(names ...string) []QueuedFile {
	files := make([]QueuedFile, len(names))
	for i, n := range names {
		files[i] = QueuedFile{Name: n, MimeType: "application/pdf", Data: []byte("x")}
	}
	return files
}

func TestNewQueue_InitialEntries(t *testing.T) {
	q := NewQueue(testFiles("a.pdf", "b.pdf"))
	snap := q.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("len(snapshot) = %d, want 2", len(snap))
	}
	seen := map[string]bool{}
	for _, e := range snap {
		if e.UIStatus != UIPending {
			t.Errorf("entry %q starts as %q, want pending", e.FileName, e.UIStatus)
		}
		if e.LocalID == "" || e.CorrelationID == "" {
			t.Errorf("entry %q missing ids: %+v", e.FileName, e)
		}
		if seen[e.LocalID] {
			t.Errorf("duplicate local id %q", e.LocalID)
		}
		seen[e.LocalID] = true
	}
}

func TestQueue_SnapshotIsolation(t *testing.T) {
	q := NewQueue(testFiles("a.pdf"))
	snap := q.Snapshot()
	snap[0].UIStatus = UIError

	if got := q.Snapshot()[0].UIStatus; got != UIPending {
		t.Errorf("mutating a snapshot leaked into the queue: %q", got)
	}
}

func TestQueue_UpdateReplacesSlice(t *testing.T) {
	q := NewQueue(testFiles("a.pdf"))
	before := q.Snapshot()

	q.Update(before[0].LocalID, func(e *FileWithStatus) {
		e.UIStatus = UIUploading
	})

	// The snapshot taken before the update must not change.
	if before[0].UIStatus != UIPending {
		t.Errorf("earlier snapshot mutated to %q", before[0].UIStatus)
	}
	if got := q.Snapshot()[0].UIStatus; got != UIUploading {
		t.Errorf("update not applied, status = %q", got)
	}
}

func TestQueue_UpdateUnknownIDIsNoop(t *testing.T) {
	q := NewQueue(testFiles("a.pdf"))
	q.Update("missing", func(e *FileWithStatus) {
		e.UIStatus = UIError
	})
	if got := q.Snapshot()[0].UIStatus; got != UIPending {
		t.Errorf("unknown id mutated an entry: %q", got)
	}
}

func TestQueue_SubscribeDeliversInitialAndUpdates(t *testing.T) {
	q := NewQueue(testFiles("a.pdf"))
	ch := q.Subscribe()

	first := <-ch
	if len(first) != 1 || first[0].UIStatus != UIPending {
		t.Fatalf("initial snapshot = %+v", first)
	}

	q.Update(first[0].LocalID, func(e *FileWithStatus) {
		e.UIStatus = UISuccess
		e.Progress = 100
	})

	second := <-ch
	if second[0].UIStatus != UISuccess || second[0].Progress != 100 {
		t.Errorf("update snapshot = %+v", second[0])
	}
}

func TestQueue_CloseClosesListeners(t *testing.T) {
	q := NewQueue(testFiles("a.pdf"))
	ch := q.Subscribe()
	<-ch

	q.Close()
	q.Close() // idempotent

	if _, ok := <-ch; ok {
		t.Error("listener channel should be closed after Close")
	}

	// Subscribing after close yields an already-closed channel.
	late := q.Subscribe()
	if _, ok := <-late; ok {
		t.Error("late subscription should be closed immediately")
	}
}

func TestQueue_UpdateAfterCloseIgnored(t *testing.T) {
	q := NewQueue(testFiles("a.pdf"))
	id := q.Snapshot()[0].LocalID
	q.Close()
	q.Update(id, func(e *FileWithStatus) {
		e.UIStatus = UIError
	})
	if got := q.Snapshot()[0].UIStatus; got != UIPending {
		t.Errorf("update after close mutated entry: %q", got)
	}
}
