package core

import (
	"errors"
	"fmt"
	"strings"
)

// Classification buckets every pipeline failure into one of a closed set of
// classes. The class, not the underlying error text, decides how the queue
// entry is presented and whether a retry could help.
type Classification string

const (
	ClassValidation       Classification = "VALIDATION_ERROR"
	ClassDuplicateFile    Classification = "DUPLICATE_FILE"
	ClassUpload           Classification = "UPLOAD_ERROR"
	ClassTrigger          Classification = "TRIGGER_ERROR"
	ClassProcessingFailed Classification = "PROCESSING_FAILED"
	ClassSubscription     Classification = "SUBSCRIPTION_ERROR"
	ClassCancelled        Classification = "CANCELLED"
)

// ErrDuplicateHash marks a statement whose content hash already exists for
// the same owner and account. The store wraps it so callers can branch with
// errors.Is without depending on driver error codes.
var ErrDuplicateHash = errors.New("statement content already imported for this account")

// ErrImportNotFound is returned by the store when an import id does not
// exist.
var ErrImportNotFound = errors.New("import not found")

// ImportError is a classified pipeline failure. Message is safe to show to
// the user; Err carries the underlying cause for logs.
type ImportError struct {
	Class   Classification
	Message string
	Err     error
}

func (e *ImportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// NewImportError builds a classified failure wrapping err (which may be nil).
func NewImportError(class Classification, message string, err error) *ImportError {
	return &ImportError{Class: class, Message: message, Err: err}
}

// Classify extracts the classification from err, unwrapping as needed.
// A bare ErrDuplicateHash counts as DUPLICATE_FILE; anything else without
// an ImportError in its chain falls back to PROCESSING_FAILED.
func Classify(err error) Classification {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Class
	}
	if errors.Is(err, ErrDuplicateHash) {
		return ClassDuplicateFile
	}
	return ClassProcessingFailed
}

// timeoutPatterns are substrings that identify a parser failure caused by
// the job being killed for running too long rather than by the statement
// content itself.
var timeoutPatterns = []string{
	"worker_limit",
	"timeout",
	"timed out",
	"deadline exceeded",
	"wall clock",
}

// FriendlyFailureMessage converts a raw parser error message into the text
// shown on the queue entry. Timeout-class failures get actionable guidance
// instead of the infrastructure error; everything else passes through.
func FriendlyFailureMessage(raw string) string {
	if raw == "" {
		return "Statement processing failed. Please try again."
	}
	lower := strings.ToLower(raw)
	for _, p := range timeoutPatterns {
		if strings.Contains(lower, p) {
			return "This statement took too long to process. Try splitting it into smaller date ranges and importing each part separately."
		}
	}
	return raw
}

// UserMessage is the API-facing rendering of a failure class.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

// DescribeClass maps a classification to the message and suggested action
// returned by the HTTP layer. Specific messages carried by an ImportError
// take precedence over these defaults.
func DescribeClass(class Classification) UserMessage {
	switch class {
	case ClassValidation:
		return UserMessage{
			Message: "The file did not pass validation.",
			Action:  "Check the file type and size, then try again.",
			Code:    string(ClassValidation),
		}
	case ClassDuplicateFile:
		return UserMessage{
			Message: "This statement was already imported for this account.",
			Action:  "Remove the duplicate file or pick a different statement.",
			Code:    string(ClassDuplicateFile),
		}
	case ClassUpload:
		return UserMessage{
			Message: "The file could not be uploaded.",
			Action:  "Check your connection and try again.",
			Code:    string(ClassUpload),
		}
	case ClassTrigger:
		return UserMessage{
			Message: "The import could not be started.",
			Action:  "Try again in a moment. If it keeps failing, contact support.",
			Code:    string(ClassTrigger),
		}
	case ClassSubscription:
		return UserMessage{
			Message: "The import is running but live updates are unavailable.",
			Action:  "Refresh the page to see the outcome.",
			Code:    string(ClassSubscription),
		}
	case ClassCancelled:
		return UserMessage{
			Message: "The import was cancelled before it finished.",
			Action:  "Re-queue the file to import it again.",
			Code:    string(ClassCancelled),
		}
	case ClassProcessingFailed:
		return UserMessage{
			Message: "Statement processing failed.",
			Action:  "Try again, or split the statement into smaller parts.",
			Code:    string(ClassProcessingFailed),
		}
	}
	return UserMessage{
		Message: "Something went wrong during the import.",
		Action:  "Try again. If it keeps failing, contact support.",
		Code:    "UNKNOWN",
	}
}
