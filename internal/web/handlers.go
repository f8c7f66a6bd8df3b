package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kieranpgray/coinbag-sub006/internal/core"
	"github.com/kieranpgray/coinbag-sub006/internal/logging"
)

// maxBatchFiles caps how many statements one request may queue. The cap
// bounds the MaxBytesReader limit; the per-file size check lives in the
// validator.
const maxBatchFiles = 20

type batchResponse struct {
	BatchID string                `json:"batchId"`
	Queue   []core.FileWithStatus `json:"queue"`
}

type importResponse struct {
	ID                   string         `json:"id"`
	OwnerID              string         `json:"ownerId"`
	AccountID            string         `json:"accountId"`
	FileName             string         `json:"fileName"`
	FilePath             string         `json:"filePath"`
	MimeType             string         `json:"mimeType"`
	FileSizeBytes        int64          `json:"fileSizeBytes"`
	FileHash             string         `json:"fileHash"`
	Status               core.Status    `json:"status"`
	ParsingMethod        string         `json:"parsingMethod,omitempty"`
	TotalTransactions    int            `json:"totalTransactions"`
	ImportedTransactions int            `json:"importedTransactions"`
	FailedTransactions   int            `json:"failedTransactions"`
	ConfidenceScore      *float64       `json:"confidenceScore,omitempty"`
	ErrorMessage         *string        `json:"errorMessage,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	CorrelationID        string         `json:"correlationId"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
	CompletedAt          *time.Time     `json:"completedAt,omitempty"`
}

func toImportResponse(rec core.StatementImport) importResponse {
	return importResponse{
		ID:                   rec.ID,
		OwnerID:              rec.OwnerID,
		AccountID:            rec.AccountID,
		FileName:             rec.FileName,
		FilePath:             rec.FilePath,
		MimeType:             rec.MimeType,
		FileSizeBytes:        rec.FileSizeBytes,
		FileHash:             rec.FileHash,
		Status:               rec.Status,
		ParsingMethod:        string(rec.ParsingMethod),
		TotalTransactions:    rec.TotalTransactions,
		ImportedTransactions: rec.ImportedTransactions,
		FailedTransactions:   rec.FailedTransactions,
		ConfidenceScore:      rec.ConfidenceScore,
		ErrorMessage:         rec.ErrorMessage,
		Metadata:             rec.Metadata,
		CorrelationID:        rec.CorrelationID,
		CreatedAt:            rec.CreatedAt,
		UpdatedAt:            rec.UpdatedAt,
		CompletedAt:          rec.CompletedAt,
	}
}

// handleHealthz reports liveness.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStartBatch accepts a multipart batch of statement files and starts
// processing it. The response is immediate; progress is observed through
// the batch snapshot endpoint.
func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	ownerID := r.Header.Get("X-Owner-ID")
	if ownerID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "missing X-Owner-ID header",
			Message: "missing X-Owner-ID header",
			Code:    "MISSING_OWNER",
		})
		return
	}

	limit := s.cfg.Import.MaxFileSize*maxBatchFiles + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid multipart request",
			Message: "The upload could not be read.",
			Action:  "Check the request format and total size, then try again.",
			Code:    "INVALID_MULTIPART",
		})
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) > maxBatchFiles {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   fmt.Sprintf("too many files: %d (max %d)", len(headers), maxBatchFiles),
			Message: fmt.Sprintf("A batch can hold at most %d files.", maxBatchFiles),
			Action:  "Split the files across several batches.",
			Code:    "BATCH_TOO_LARGE",
		})
		return
	}

	files := make([]core.QueuedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.respondError(w, r, fmt.Errorf("open multipart file %s: %w", fh.Filename, err))
			return
		}
		// Read one byte past the limit so oversized files are queued and
		// rejected by the validator instead of silently truncated.
		data, err := io.ReadAll(io.LimitReader(f, s.cfg.Import.MaxFileSize+1))
		f.Close()
		if err != nil {
			s.respondError(w, r, fmt.Errorf("read multipart file %s: %w", fh.Filename, err))
			return
		}
		files = append(files, core.QueuedFile{
			Name:     fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Data:     data,
		})
	}

	batchID, snapshot, err := s.service.StartBatch(core.Ownership{OwnerID: ownerID, AccountID: accountID}, files)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("import batch accepted",
		"batch_id", batchID,
		"account_id", accountID,
		"files", len(files),
	)
	writeJSON(w, http.StatusAccepted, batchResponse{BatchID: batchID, Queue: snapshot})
}

// handleBatchSnapshot returns the current queue state of a batch with an
// ETag, so pollers pay for a body only when something changed.
func (s *Server) handleBatchSnapshot(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	snapshot, err := s.service.QueueSnapshot(batchID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	body, err := json.Marshal(batchResponse{BatchID: batchID, Queue: snapshot})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	etag := etagFor(body, 0)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// handleBatchEvents streams queue snapshots for a batch as server-sent
// events. The first event carries the current state; one event follows per
// change, and a final done event is sent when the batch finishes.
func (s *Server) handleBatchEvents(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	updates, err := s.service.SubscribeQueue(batchID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	writeEvent := func(snapshot []core.FileWithStatus) bool {
		body, err := json.Marshal(snapshot)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: queue\ndata: %s\n\n", body); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, ok := <-updates:
			if !ok {
				// The batch finished, or was already finished when the
				// client subscribed. Emit the final state so late
				// subscribers still see the outcome.
				if final, err := s.service.QueueSnapshot(batchID); err == nil {
					writeEvent(final)
				}
				fmt.Fprint(w, "event: done\ndata: {}\n\n")
				rc.Flush()
				return
			}
			if !writeEvent(snapshot) {
				return
			}
		}
	}
}

// handleCloseBatch tears a batch down. The client went away; server-side
// jobs keep running, only the watching stops.
func (s *Server) handleCloseBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if err := s.service.CloseBatch(batchID); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetImport returns one import record.
func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), chi.URLParam(r, "importID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toImportResponse(*rec))
}

// handleListImports lists an account's imports, optionally filtered by
// status. Filtering by review is how stuck imports are found for the
// resolution workflow. The ETag folds in the account's view revision, so a
// completed import invalidates cached lists even between content changes.
func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var recs []core.StatementImport
	var err error
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := core.Status(raw)
		if !status.Valid() {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   fmt.Sprintf("unknown status %q", raw),
				Message: fmt.Sprintf("Unknown status %q.", raw),
				Code:    "INVALID_STATUS",
			})
			return
		}
		recs, err = s.store.ListByStatus(r.Context(), status)
		if err == nil {
			filtered := recs[:0]
			for _, rec := range recs {
				if rec.AccountID == accountID {
					filtered = append(filtered, rec)
				}
			}
			recs = filtered
		}
	} else {
		recs, err = s.store.ListByAccount(r.Context(), accountID)
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]importResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toImportResponse(rec))
	}

	body, err := json.Marshal(out)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	etag := etagFor(body, s.revisions.Revision(accountID))
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// parserUpdateRequest is the patch the external parsing service sends as it
// works through a statement. All fields are optional.
type parserUpdateRequest struct {
	Status               *string        `json:"status"`
	ParsingMethod        *string        `json:"parsingMethod"`
	TotalTransactions    *int           `json:"totalTransactions"`
	ImportedTransactions *int           `json:"importedTransactions"`
	FailedTransactions   *int           `json:"failedTransactions"`
	ConfidenceScore      *float64       `json:"confidenceScore"`
	ErrorMessage         *string        `json:"errorMessage"`
	Metadata             map[string]any `json:"metadata"`
}

// handleParserUpdate applies a parser progress report to an import record.
func (s *Server) handleParserUpdate(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	var req parserUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid JSON body",
			Message: "invalid JSON body",
			Code:    "INVALID_BODY",
		})
		return
	}

	patch := core.UpdateParams{
		TotalTransactions:    req.TotalTransactions,
		ImportedTransactions: req.ImportedTransactions,
		FailedTransactions:   req.FailedTransactions,
		ConfidenceScore:      req.ConfidenceScore,
		ErrorMessage:         req.ErrorMessage,
		Metadata:             req.Metadata,
	}
	if req.Status != nil {
		status := core.Status(*req.Status)
		if !status.Valid() {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   fmt.Sprintf("unknown status %q", *req.Status),
				Message: fmt.Sprintf("Unknown status %q.", *req.Status),
				Code:    "INVALID_STATUS",
			})
			return
		}
		patch.Status = &status
	}
	if req.ParsingMethod != nil {
		method := core.ParsingMethod(*req.ParsingMethod)
		patch.ParsingMethod = &method
	}

	rec, err := s.store.Update(r.Context(), importID, patch)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("parser update applied",
		"import_id", importID,
		"status", rec.Status,
	)
	writeJSON(w, http.StatusOK, toImportResponse(*rec))
}
