package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"filedrop/internal/server/audit"
	"filedrop/internal/server/metrics"
	"filedrop/internal/server/storage"
)

// maxPublishAttempts bounds how often a staged upload is re-resolved after
// losing a name to a concurrent upload.
const maxPublishAttempts = 5

// UploadCandidate is what the client claims about a file before its bytes
// are read. Size is -1 when the transport does not know it up front.
type UploadCandidate struct {
	OriginalName     string
	DeclaredMimeType string
	Size             int64
}

// UploadResult is returned after a successful upload.
type UploadResult struct {
	OriginalName string `json:"originalName"`
	SavedAs      string `json:"savedAs"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
	Preserved    bool   `json:"preserved"`
}

// FileView is the public description of a stored file.
type FileView struct {
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	URL      string    `json:"url"`
}

// Received is an admitted upload whose bytes are staged but not yet visible.
// Exactly one of Commit or Abort must follow.
type Received struct {
	candidate UploadCandidate
	name      string
	pending   storage.Pending
}

// Size reports the number of bytes received.
func (r *Received) Size() int64 { return r.pending.Size() }

// UploadService contains the business logic for the file store: admission,
// naming and the read/delete operations behind the API.
type UploadService struct {
	store   storage.Store
	policy  Policy
	audit   *audit.Recorder
	baseURL string
	now     func() time.Time
}

// NewUploadService creates a new upload service.
func NewUploadService(store storage.Store, policy Policy, recorder *audit.Recorder, baseURL string) *UploadService {
	return &UploadService{
		store:   store,
		policy:  policy,
		audit:   recorder,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// Policy returns the admission policy in force.
func (s *UploadService) Policy() Policy {
	return s.policy
}

// Admit runs the admission filter and records a rejection as a security event.
func (s *UploadService) Admit(ctx context.Context, c UploadCandidate) error {
	if err := s.policy.Admit(c); err != nil {
		s.RecordRejection(ctx, c.OriginalName, err)
		return err
	}
	return nil
}

// RecordRejection reports an upload refused by policy, whether by the filter
// or by a transport limit discovered while reading the request.
func (s *UploadService) RecordRejection(ctx context.Context, filename string, err error) {
	metrics.UploadsTotal.WithLabelValues("rejected").Inc()

	kind := audit.KindBlockedUpload
	if errors.Is(err, ErrFileTooLarge) || errors.Is(err, ErrTooManyFiles) || errors.Is(err, ErrFieldTooLarge) {
		kind = audit.KindUploadLimit
	}
	s.audit.Record(ctx, kind, map[string]any{
		"filename": filename,
		"reason":   err.Error(),
	})
}

// Receive admits the candidate and streams data into staging. Nothing is
// visible in the store until Commit.
func (s *UploadService) Receive(ctx context.Context, c UploadCandidate, data io.Reader) (*Received, error) {
	if err := s.Admit(ctx, c); err != nil {
		return nil, err
	}

	name := SanitizeFilename(c.OriginalName)
	if name == "" {
		name = FallbackName(s.now())
	}
	if err := s.policy.CheckStoredName(name); err != nil {
		s.RecordRejection(ctx, c.OriginalName, err)
		return nil, err
	}

	pending, err := s.store.Stage(ctx, &limitedReader{r: data, remaining: s.policy.MaxFileSizeBytes})
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			err = fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, s.policy.MaxFileSizeBytes)
			s.RecordRejection(ctx, c.OriginalName, err)
			return nil, err
		}
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to receive upload: %w", err)
	}

	return &Received{candidate: c, name: name, pending: pending}, nil
}

// Commit publishes a received upload under a free name. If a concurrent
// upload takes the resolved name first, the directory is re-read and the
// name resolved again.
func (s *UploadService) Commit(ctx context.Context, r *Received) (*UploadResult, error) {
	defer r.pending.Discard()

	var lastErr error
	for attempt := 0; attempt < maxPublishAttempts; attempt++ {
		existing, err := s.store.Names(ctx)
		if err != nil {
			metrics.UploadsTotal.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("failed to read existing files: %w", err)
		}

		target := ResolveCollision(r.name, existing, s.now())
		if err := s.policy.CheckStoredName(target); err != nil {
			s.RecordRejection(ctx, r.candidate.OriginalName, err)
			return nil, err
		}
		info, err := r.pending.Publish(ctx, target)
		if err == nil {
			metrics.UploadsTotal.WithLabelValues("accepted").Inc()
			metrics.UploadedBytesTotal.Add(float64(info.Size))

			slog.Info("upload stored",
				"original_name", r.candidate.OriginalName,
				"saved_as", info.Name,
				"size", info.Size,
				"attempts", attempt+1,
			)

			return &UploadResult{
				OriginalName: r.candidate.OriginalName,
				SavedAs:      info.Name,
				Size:         info.Size,
				URL:          s.fileURL(info.Name),
				Preserved:    info.Name == r.candidate.OriginalName,
			}, nil
		}
		if !errors.Is(err, storage.ErrExists) {
			metrics.UploadsTotal.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("failed to store file: %w", err)
		}
		lastErr = err
	}

	metrics.UploadsTotal.WithLabelValues("failed").Inc()
	return nil, fmt.Errorf("failed to find a free name after %d attempts: %w", maxPublishAttempts, lastErr)
}

// Abort drops a received upload that will not be committed.
func (s *UploadService) Abort(r *Received) {
	if err := r.pending.Discard(); err != nil {
		slog.Error("failed to discard staged upload", "original_name", r.candidate.OriginalName, "error", err)
	}
}

// Save is Receive followed by Commit.
func (s *UploadService) Save(ctx context.Context, c UploadCandidate, data io.Reader) (*UploadResult, error) {
	r, err := s.Receive(ctx, c, data)
	if err != nil {
		return nil, err
	}
	return s.Commit(ctx, r)
}

// List returns every stored file.
func (s *UploadService) List(ctx context.Context) ([]FileView, error) {
	files, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	views := make([]FileView, 0, len(files))
	for _, f := range files {
		views = append(views, s.view(f))
	}
	return views, nil
}

// Info returns metadata for one file.
func (s *UploadService) Info(ctx context.Context, name string) (*FileView, error) {
	info, err := s.store.Stat(ctx, name)
	if err != nil {
		return nil, mapStoreError(err)
	}
	v := s.view(*info)
	return &v, nil
}

// Open returns the file content for download. The caller closes it.
func (s *UploadService) Open(ctx context.Context, name string) (io.ReadSeekCloser, *FileView, error) {
	rc, info, err := s.store.Open(ctx, name)
	if err != nil {
		return nil, nil, mapStoreError(err)
	}
	v := s.view(*info)
	return rc, &v, nil
}

// Delete removes one file.
func (s *UploadService) Delete(ctx context.Context, name string) error {
	if err := s.store.Delete(ctx, name); err != nil {
		return mapStoreError(err)
	}
	slog.Info("file deleted", "filename", name)
	return nil
}

func (s *UploadService) view(f storage.FileInfo) FileView {
	return FileView{
		Filename: f.Name,
		Size:     f.Size,
		Created:  f.CreatedAt,
		Modified: f.ModifiedAt,
		URL:      s.fileURL(f.Name),
	}
}

func (s *UploadService) fileURL(name string) string {
	return s.baseURL + "/files/" + url.PathEscape(name)
}

func mapStoreError(err error) error {
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// limitedReader passes through at most remaining bytes and fails with
// ErrFileTooLarge as soon as the source has more.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrFileTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrFileTooLarge
	}
	return n, err
}
