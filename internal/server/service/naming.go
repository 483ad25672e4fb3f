package service

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	fallbackPrefix = "file-"
	maxStoredName  = 255
	maxKeptExt     = 32
)

var forbiddenChars = "<>:\"/\\|?*"

// SanitizeFilename maps an untrusted client filename to a name that is safe
// to create inside the upload directory. The result may be empty; callers
// substitute FallbackName in that case.
func SanitizeFilename(raw string) string {
	name := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(forbiddenChars, r) {
			return -1
		}
		return r
	}, raw)

	name = strings.ReplaceAll(name, "..", "")

	// Trimming whitespace can expose another leading dot, so repeat until stable.
	for {
		trimmed := strings.TrimLeft(strings.TrimSpace(name), ".")
		if trimmed == name {
			break
		}
		name = trimmed
	}

	return name
}

// FallbackName is used when sanitization leaves nothing behind.
func FallbackName(now time.Time) string {
	return fallbackPrefix + strconv.FormatInt(now.UnixMilli(), 10)
}

// ResolveCollision returns desired if it is free, otherwise stem-<millis>.ext.
// The millisecond value is bumped until the name is not in existing.
func ResolveCollision(desired string, existing map[string]struct{}, now time.Time) string {
	if _, taken := existing[desired]; !taken {
		return desired
	}

	ext := filepath.Ext(desired)
	stem := strings.TrimSuffix(desired, ext)
	if len(ext) > maxKeptExt {
		ext, stem = "", desired
	}

	for ms := now.UnixMilli(); ; ms++ {
		tail := "-" + strconv.FormatInt(ms, 10) + ext
		candidate := truncateUTF8(stem, maxStoredName-len(tail)) + tail
		if _, taken := existing[candidate]; !taken {
			return candidate
		}
	}
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if n <= 0 {
		return ""
	}
	for len(s) > n {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return s
}
