package backend

import (
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultMaxUploadBytes is the largest accepted CSV file.
const DefaultMaxUploadBytes = 5 << 20

// UploadLimits bounds what ValidateUpload accepts.
type UploadLimits struct {
	MaxBytes  int64
	Extension string
}

// DefaultUploadLimits accepts .csv files up to 5MB.
func DefaultUploadLimits() UploadLimits {
	return UploadLimits{MaxBytes: DefaultMaxUploadBytes, Extension: ".csv"}
}

// UploadError is a file rejected before any network call.
type UploadError struct {
	Title   string
	Message string
}

func (e *UploadError) Error() string {
	return e.Title + ": " + e.Message
}

// ValidateUpload checks name and size against limits.
func ValidateUpload(name string, size int64, limits UploadLimits) error {
	if limits.Extension == "" {
		limits.Extension = ".csv"
	}
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = DefaultMaxUploadBytes
	}

	if !strings.EqualFold(filepath.Ext(name), limits.Extension) {
		return &UploadError{
			Title:   "Invalid file type",
			Message: "Please select a CSV file (" + limits.Extension + " extension required)",
		}
	}
	if size > limits.MaxBytes {
		return &UploadError{
			Title:   "File too large",
			Message: "File size must be less than " + formatMB(limits.MaxBytes),
		}
	}
	if size == 0 {
		return &UploadError{Title: "Empty file", Message: "File cannot be empty"}
	}
	return nil
}

func formatMB(n int64) string {
	mb := float64(n) / (1 << 20)
	s := strings.TrimRight(strings.TrimRight(strconv.FormatFloat(mb, 'f', 2, 64), "0"), ".")
	return s + "MB"
}
