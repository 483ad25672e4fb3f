package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ValidationError is a bad command-line path.
type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// PathKind tells files from directories.
type PathKind int

const (
	PathFile PathKind = iota
	PathDir
)

// ParsedPath is a cleaned command-line path and its kind.
type ParsedPath struct {
	FullPath string
	Kind     PathKind
}

// ParseArgs checks that every argument names an existing file or directory.
func ParseArgs(args []string) ([]ParsedPath, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<files>", Cause: "no files provided"}
	}

	out := make([]ParsedPath, 0, len(args))
	for _, raw := range args {
		p := filepath.Clean(raw)
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
		}

		kind := PathFile
		switch {
		case info.IsDir():
			kind = PathDir
		case !info.Mode().IsRegular():
			return nil, &ValidationError{Arg: raw, Cause: "not a regular file"}
		}

		out = append(out, ParsedPath{FullPath: p, Kind: kind})
	}
	return out, nil
}

// UploadPath uploads a parsed path, zipping directories.
func (c *Client) UploadPath(ctx context.Context, p ParsedPath) (*UploadResult, error) {
	if p.Kind == PathDir {
		return c.UploadDir(ctx, p.FullPath)
	}
	return c.UploadFile(ctx, p.FullPath)
}
