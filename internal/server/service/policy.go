package service

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// Set is a case-insensitive string set.
type Set map[string]struct{}

// NewSet builds a Set, trimming and lowercasing each item.
func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, item := range items {
		s[strings.ToLower(strings.TrimSpace(item))] = struct{}{}
	}
	return s
}

// Has reports whether item is in the set, ignoring case.
func (s Set) Has(item string) bool {
	_, ok := s[strings.ToLower(item)]
	return ok
}

// DefaultMimeAllowlist lists the document, image and archive types accepted
// for upload.
var DefaultMimeAllowlist = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
	"text/plain",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/zip",
	"application/x-rar-compressed",
	"application/json",
	"text/csv",
}

// DefaultExtensionDenylist lists executable and script extensions that are
// never stored, whatever content type the client declares.
var DefaultExtensionDenylist = []string{
	".exe", ".bat", ".cmd", ".com", ".pif", ".scr", ".vbs", ".js", ".jar",
	".php", ".asp", ".jsp", ".sh", ".ps1", ".py", ".rb", ".pl", ".cgi",
}

const (
	defaultMaxFileSize  = 5 * 1024 * 1024 // 5MB
	defaultMaxFieldSize = 1024 * 1024
	defaultMaxNameLen   = 255
)

// Policy is the single source of upload admission limits and access rules.
type Policy struct {
	MaxFileSizeBytes  int64
	MaxFieldSizeBytes int64
	MaxNameLength     int
	MimeAllowlist     Set
	ExtensionDenylist Set

	RequireAuthForListing     bool
	RequireAuthForStaticServe bool
}

// DefaultPolicy returns the hardened configuration.
func DefaultPolicy() Policy {
	return Policy{
		MaxFileSizeBytes:          defaultMaxFileSize,
		MaxFieldSizeBytes:         defaultMaxFieldSize,
		MaxNameLength:             defaultMaxNameLen,
		MimeAllowlist:             NewSet(DefaultMimeAllowlist...),
		ExtensionDenylist:         NewSet(DefaultExtensionDenylist...),
		RequireAuthForListing:     true,
		RequireAuthForStaticServe: true,
	}
}

// MaxRequestBytes bounds the whole multipart body: one file, a few fields and
// the multipart framing.
func (p Policy) MaxRequestBytes() int64 {
	return p.MaxFileSizeBytes + 4*p.MaxFieldSizeBytes + 64*1024
}

// Admit decides whether a candidate may be persisted. Checks run in a fixed
// order and the first failure wins.
//
// The content type is whatever the client declared; Admit does not look at
// the bytes.
func (p Policy) Admit(c UploadCandidate) error {
	if err := p.CheckStoredName(c.OriginalName); err != nil {
		return err
	}

	mediaType := normalizeMediaType(c.DeclaredMimeType)
	if !p.MimeAllowlist.Has(mediaType) {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, c.DeclaredMimeType)
	}

	if len(c.OriginalName) > p.MaxNameLength {
		return fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(c.OriginalName))
	}

	if c.Size > p.MaxFileSizeBytes {
		return fmt.Errorf("%w: %d bytes", ErrFileTooLarge, c.Size)
	}

	return nil
}

// CheckStoredName applies the extension denylist to a name. Sanitizing or
// renaming can change the extension, so names are checked again right before
// they are written.
func (p Policy) CheckStoredName(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != "" && p.ExtensionDenylist.Has(ext) {
		return fmt.Errorf("%w: %s", ErrDangerousExtension, ext)
	}
	return nil
}

// normalizeMediaType drops parameters such as charset so that
// "text/plain; charset=utf-8" is judged as "text/plain".
func normalizeMediaType(declared string) string {
	if declared == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(declared))
	}
	return mediaType
}

// ServeType returns the content type to serve a stored file with and whether
// it may be shown inline. Types outside the allowlist are served as an
// octet-stream attachment.
func (p Policy) ServeType(name string) (string, bool) {
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if contentType != "" && p.MimeAllowlist.Has(normalizeMediaType(contentType)) {
		return contentType, true
	}
	return "application/octet-stream", false
}
