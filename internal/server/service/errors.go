package service

import "errors"

// Sentinel errors for the service layer. The API layer maps them to status
// codes in mapServiceError.
var (
	ErrNotFound = errors.New("file not found")

	// Validation
	ErrMissingPassword = errors.New("password is required")
	ErrNoFile          = errors.New("no file was uploaded")
	ErrUnexpectedField = errors.New(`unexpected file field, use "file"`)
	ErrFieldTooLarge   = errors.New("form field exceeds maximum allowed size")

	// Access gate
	ErrMissingCredential = errors.New("access token required")
	ErrInvalidCredential = errors.New("invalid or expired access token")
	ErrInvalidPassword   = errors.New("invalid password")

	// Admission policy
	ErrDangerousExtension = errors.New("file extension blocked for security reasons")
	ErrUnsupportedType    = errors.New("file type not allowed")
	ErrNameTooLong        = errors.New("file name too long")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrTooManyFiles       = errors.New("only one file per request is allowed")
)

var policyRejections = []error{
	ErrDangerousExtension,
	ErrUnsupportedType,
	ErrNameTooLong,
	ErrFileTooLarge,
	ErrTooManyFiles,
}

// IsPolicyRejection reports whether err is an admission policy decision rather
// than a malformed request or a failure.
func IsPolicyRejection(err error) bool {
	for _, target := range policyRejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
