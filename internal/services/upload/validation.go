package upload

import (
	"fmt"
	"path/filepath"
	"strings"
)

var allowedExtensions = map[string]bool{".xlsx": true, ".xls": true}

// ValidationError represents a validation error with field context
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateUploadRequest validates an upload or contact update request
func ValidateUploadRequest(req *UploadRequest) error {
	if strings.TrimSpace(req.FilePath) == "" {
		return &ValidationError{"FilePath", "required"}
	}

	ext := strings.ToLower(filepath.Ext(req.FilePath))
	if !allowedExtensions[ext] {
		return &ValidationError{"FilePath", fmt.Sprintf("unsupported file type %q, expected .xlsx or .xls", ext)}
	}

	if req.Layout != nil {
		if err := req.Layout.Validate(); err != nil {
			return &ValidationError{"Layout", err.Error()}
		}
	}

	return nil
}
