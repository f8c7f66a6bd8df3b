package core

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FileValidator checks a queued file against the configured limits before
// any network call is made. Checks run in a fixed order (size, MIME type,
// extension) and the first failure wins.
type FileValidator struct {
	maxFileSize int64
	allowedMIME map[string]struct{}
	allowedExts map[string]struct{}
}

// NewFileValidator builds a validator from the configured limits. MIME types
// and extensions are matched case-insensitively; extensions may be given
// with or without the leading dot.
func NewFileValidator(maxFileSize int64, mimeTypes, extensions []string) *FileValidator {
	v := &FileValidator{
		maxFileSize: maxFileSize,
		allowedMIME: make(map[string]struct{}, len(mimeTypes)),
		allowedExts: make(map[string]struct{}, len(extensions)),
	}
	for _, m := range mimeTypes {
		v.allowedMIME[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		v.allowedExts[e] = struct{}{}
	}
	return v
}

// Validate returns nil if the file is acceptable, or an ImportError with
// class VALIDATION_ERROR describing the first violated rule. It never
// touches the network or the filesystem.
func (v *FileValidator) Validate(f QueuedFile) error {
	if f.Size() > v.maxFileSize {
		return NewImportError(ClassValidation,
			fmt.Sprintf("%s is larger than the %s limit", f.Name, formatBytes(v.maxFileSize)), nil)
	}
	mime := strings.ToLower(strings.TrimSpace(f.MimeType))
	if _, ok := v.allowedMIME[mime]; !ok {
		return NewImportError(ClassValidation,
			fmt.Sprintf("%s has unsupported type %q", f.Name, f.MimeType), nil)
	}
	ext := strings.ToLower(filepath.Ext(f.Name))
	if _, ok := v.allowedExts[ext]; !ok {
		return NewImportError(ClassValidation,
			fmt.Sprintf("%s has unsupported extension %q", f.Name, ext), nil)
	}
	return nil
}

// formatBytes renders a byte count the way the size limit is communicated
// to users (whole MB above 1 MB, otherwise KB).
func formatBytes(n int64) string {
	const (
		kb = 1 << 10
		mb = 1 << 20
	)
	switch {
	case n >= mb:
		return fmt.Sprintf("%d MB", n/mb)
	case n >= kb:
		return fmt.Sprintf("%d KB", n/kb)
	}
	return fmt.Sprintf("%d bytes", n)
}
