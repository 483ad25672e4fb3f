package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"filedrop/internal/server/audit"
	"filedrop/internal/server/service"
)

const (
	uploadField = "file"

	// The response describes a single stored file.
	maxFilesPerRequest = 1
)

// Handler contains the HTTP handlers for the filedrop API.
type Handler struct {
	uploads *service.UploadService
	auth    *service.AuthService
	audit   *audit.Recorder
}

// NewHandler creates a new handler with the given service dependencies.
func NewHandler(uploads *service.UploadService, auth *service.AuthService, recorder *audit.Recorder) *Handler {
	return &Handler{uploads: uploads, auth: auth, audit: recorder}
}

// HandleRoot handles GET /.
func (h *Handler) HandleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "filedrop file storage service",
		"endpoints": []string{
			"POST /login",
			"POST /upload",
			"GET /files",
			"GET /files/:filename",
			"GET /files/:filename/raw",
			"DELETE /files/:filename",
			"GET /health",
		},
	})
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"success":   true,
		"message":   "server is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type loginRequest struct {
	Password string `json:"password" form:"password"`
}

// HandleLogin handles POST /login.
// Accepts {"password": "..."} and returns a bearer token.
func (h *Handler) HandleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	token, expiresAt, err := h.auth.Login(c.Request().Context(), req.Password)
	if err != nil {
		return h.mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":   true,
		"message":   "login successful",
		"token":     token,
		"expiresAt": expiresAt,
	})
}

// HandleUpload handles POST /upload.
// Streams a multipart body with a single file in the "file" field. The part
// headers are admitted before any byte is read, and the file only becomes
// visible once the whole body has been consumed without error.
func (h *Handler) HandleUpload(c echo.Context) error {
	ctx := c.Request().Context()
	policy := h.uploads.Policy()

	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, policy.MaxRequestBytes())

	mr, err := req.MultipartReader()
	if err != nil {
		return h.mapServiceError(c, fmt.Errorf("%w: %v", service.ErrNoFile, err))
	}

	var (
		received *service.Received
		files    int
	)
	defer func() {
		if received != nil {
			h.uploads.Abort(received)
		}
	}()

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return h.uploadReadError(c, "", err)
		}

		filename, isFile := partFilename(part)
		if !isFile {
			n, err := io.Copy(io.Discard, io.LimitReader(part, policy.MaxFieldSizeBytes+1))
			part.Close()
			if err != nil {
				return h.uploadReadError(c, "", err)
			}
			if n > policy.MaxFieldSizeBytes {
				err := fmt.Errorf("%w: %q", service.ErrFieldTooLarge, part.FormName())
				h.uploads.RecordRejection(ctx, "", err)
				return h.mapServiceError(c, err)
			}
			continue
		}

		files++
		if part.FormName() != uploadField {
			part.Close()
			err := fmt.Errorf("%w: got %q", service.ErrUnexpectedField, part.FormName())
			h.uploads.RecordRejection(ctx, filename, err)
			return h.mapServiceError(c, err)
		}
		if files > maxFilesPerRequest {
			part.Close()
			h.uploads.RecordRejection(ctx, filename, service.ErrTooManyFiles)
			return h.mapServiceError(c, service.ErrTooManyFiles)
		}

		candidate := service.UploadCandidate{
			OriginalName:     filename,
			DeclaredMimeType: part.Header.Get(echo.HeaderContentType),
			Size:             -1,
		}
		received, err = h.uploads.Receive(ctx, candidate, part)
		part.Close()
		if err != nil {
			return h.uploadReadError(c, filename, err)
		}
	}

	if received == nil {
		return h.mapServiceError(c, service.ErrNoFile)
	}

	result, err := h.uploads.Commit(ctx, received)
	received = nil
	if err != nil {
		return h.mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "file uploaded successfully",
		"file":    result,
	})
}

// uploadReadError treats a request body that outgrew the overall limit as an
// oversized file.
func (h *Handler) uploadReadError(c echo.Context, filename string, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		err = fmt.Errorf("%w: request body over %d bytes", service.ErrFileTooLarge, tooLarge.Limit)
		h.uploads.RecordRejection(c.Request().Context(), filename, err)
	}
	return h.mapServiceError(c, err)
}

// HandleList handles GET /files.
func (h *Handler) HandleList(c echo.Context) error {
	files, err := h.uploads.List(c.Request().Context())
	if err != nil {
		return h.mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"files":   files,
		"count":   len(files),
	})
}

// HandleInfo handles GET /files/:filename.
// Metadata lookup is public.
func (h *Handler) HandleInfo(c echo.Context) error {
	file, err := h.uploads.Info(c.Request().Context(), fileParam(c))
	if err != nil {
		return h.mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"file":    file,
	})
}

// HandleDownload handles GET /files/:filename/raw.
func (h *Handler) HandleDownload(c echo.Context) error {
	rc, file, err := h.uploads.Open(c.Request().Context(), fileParam(c))
	if err != nil {
		return h.mapServiceError(c, err)
	}
	defer rc.Close()

	contentType, inline := h.uploads.Policy().ServeType(file.Filename)
	disposition := "attachment"
	if inline {
		disposition = "inline"
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, contentType)
	header.Set(echo.HeaderContentDisposition, mime.FormatMediaType(disposition, map[string]string{
		"filename": file.Filename,
	}))

	http.ServeContent(c.Response(), c.Request(), file.Filename, file.Modified, rc)
	return nil
}

// HandleDelete handles DELETE /files/:filename.
func (h *Handler) HandleDelete(c echo.Context) error {
	if err := h.uploads.Delete(c.Request().Context(), fileParam(c)); err != nil {
		return h.mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "file deleted successfully",
	})
}

// publicErrors are the sentinels whose text is safe to show to clients.
var publicErrors = []error{
	service.ErrMissingPassword,
	service.ErrNoFile,
	service.ErrUnexpectedField,
	service.ErrFieldTooLarge,
	service.ErrDangerousExtension,
	service.ErrUnsupportedType,
	service.ErrNameTooLong,
	service.ErrTooManyFiles,
}

// mapServiceError translates service-layer errors into HTTP responses.
// Anything unrecognised goes to the HTTP error handler as a 500.
func (h *Handler) mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return fail(c, http.StatusNotFound, "file not found")
	case errors.Is(err, service.ErrMissingCredential):
		return fail(c, http.StatusUnauthorized, "access token required")
	case errors.Is(err, service.ErrInvalidCredential):
		return fail(c, http.StatusForbidden, "invalid or expired token")
	case errors.Is(err, service.ErrInvalidPassword):
		return fail(c, http.StatusUnauthorized, "incorrect password")
	case errors.Is(err, service.ErrFileTooLarge):
		return fail(c, http.StatusBadRequest, fmt.Sprintf("file too large, maximum size is %s",
			humanizeBytes(h.uploads.Policy().MaxFileSizeBytes)))
	}

	for _, target := range publicErrors {
		if errors.Is(err, target) {
			return fail(c, http.StatusBadRequest, target.Error())
		}
	}

	return err
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, echo.Map{
		"success": false,
		"message": message,
	})
}

// partFilename returns the client's filename exactly as sent. The standard
// FileName strips directory components, which would hide traversal attempts
// from the sanitizer and the audit log.
func partFilename(part *multipart.Part) (string, bool) {
	_, params, err := mime.ParseMediaType(part.Header.Get(echo.HeaderContentDisposition))
	if err != nil {
		name := part.FileName()
		return name, name != ""
	}
	name := params["filename"]
	return name, name != ""
}

// fileParam returns the :filename path parameter. echo leaves it escaped
// when the request path needed RawPath, e.g. for an encoded slash.
func fileParam(c echo.Context) string {
	name := c.Param("filename")
	if c.Request().URL.RawPath == "" {
		return name
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}
	return name
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
