package core

// Status is the lifecycle state of a StatementImport record, owned by the
// external parser once the record exists.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusReview     Status = "review"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether the status ends the import lifecycle.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusReview,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// rank orders statuses along the lifecycle so the subscription consumer can
// drop stale pushes. Terminal states share the highest rank; an unknown
// status ranks below everything and is never acted upon.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusProcessing:
		return 2
	case StatusReview:
		return 3
	case StatusCompleted, StatusFailed, StatusCancelled:
		return 4
	}
	return 0
}

// ParsingMethod records how the external parser extracted transactions.
type ParsingMethod string

const (
	ParseDeterministic ParsingMethod = "deterministic"
	ParseOCR           ParsingMethod = "ocr"
	ParseLLM           ParsingMethod = "llm"
)

// UIStatus is the client-facing state of a queue entry. It is a projection
// of the upload phase and the record status, not a copy of either.
type UIStatus string

const (
	UIPending    UIStatus = "pending"
	UIUploading  UIStatus = "uploading"
	UIProcessing UIStatus = "processing"
	UISuccess    UIStatus = "success"
	UIError      UIStatus = "error"
)

// Projection is what one record status push means for the queue entry.
type Projection struct {
	UIStatus       UIStatus
	Progress       int
	Message        string
	Classification Classification
}

// ProjectStatus maps a parser-side record snapshot onto the client-facing
// queue entry. Review is deliberately shown as still-processing: resolving a
// review is a separate workflow and the queue should not alarm the user.
func ProjectStatus(rec StatementImport) Projection {
	switch rec.Status {
	case StatusPending:
		return Projection{UIStatus: UIProcessing, Progress: 10}
	case StatusProcessing:
		return Projection{UIStatus: UIProcessing, Progress: 50}
	case StatusReview:
		return Projection{UIStatus: UIProcessing, Progress: 50}
	case StatusCompleted:
		return Projection{UIStatus: UISuccess, Progress: 100}
	case StatusFailed:
		raw := ""
		if rec.ErrorMessage != nil {
			raw = *rec.ErrorMessage
		}
		return Projection{
			UIStatus:       UIError,
			Message:        FriendlyFailureMessage(raw),
			Classification: ClassProcessingFailed,
		}
	case StatusCancelled:
		return Projection{
			UIStatus:       UIError,
			Message:        "The import was cancelled before it finished.",
			Classification: ClassCancelled,
		}
	}
	// Unknown status: render as still in progress. The subscription consumer
	// filters these out before projecting, so this only serves direct callers.
	return Projection{UIStatus: UIProcessing, Progress: 50}
}
