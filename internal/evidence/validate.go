package evidence

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"scamwatch/internal/apperr"
	"scamwatch/internal/config"
)

// CheckAttachment enforces the declared size ceiling and the extension
// allow-list before anything is downloaded.
func CheckAttachment(name string, size int64, cfg config.UploadConfig) error {
	if size > cfg.MaxFileSize {
		return apperr.Validation(name, fmt.Sprintf("File size exceeds maximum allowed size of %dMB", cfg.MaxFileSize/1024/1024))
	}
	ext := Extension(name)
	if _, ok := cfg.AllowedExtensions()[ext]; !ok {
		return apperr.Validation(name, fmt.Sprintf("File type .%s is not allowed. Allowed types: %s", ext, strings.Join(cfg.AllowedFileTypes, ", ")))
	}
	return nil
}

// Extension returns the lower-case extension of name without the dot.
func Extension(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// rejectScriptable refuses content that sniffs as markup whatever its
// extension claims.
func rejectScriptable(head []byte) bool {
	detected := http.DetectContentType(head)
	return strings.HasPrefix(detected, "text/html") ||
		strings.HasPrefix(detected, "text/xml") ||
		strings.HasPrefix(detected, "application/xml") ||
		detected == "image/svg+xml"
}
