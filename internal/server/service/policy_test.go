package service

import (
	"errors"
	"strings"
	"testing"
)

func TestPolicy_Admit(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name      string
		candidate UploadCandidate
		wantErr   error
	}{
		{"pdf accepted", UploadCandidate{"report.pdf", "application/pdf", 1024}, nil},
		{"text with charset accepted", UploadCandidate{"notes.txt", "text/plain; charset=utf-8", 10}, nil},
		{"mime case insensitive", UploadCandidate{"photo.JPG", "IMAGE/JPEG", 10}, nil},
		{"unknown size accepted", UploadCandidate{"data.csv", "text/csv", -1}, nil},
		{"exe blocked", UploadCandidate{"report.exe", "application/pdf", 10}, ErrDangerousExtension},
		{"uppercase extension blocked", UploadCandidate{"SETUP.BAT", "text/plain", 10}, ErrDangerousExtension},
		{"double extension judged by last", UploadCandidate{"invoice.pdf.js", "application/pdf", 10}, ErrDangerousExtension},
		{"html type rejected", UploadCandidate{"page.html", "text/html", 10}, ErrUnsupportedType},
		{"missing type rejected", UploadCandidate{"blob.bin", "", 10}, ErrUnsupportedType},
		{"svg rejected", UploadCandidate{"logo.svg", "image/svg+xml", 10}, ErrUnsupportedType},
		{"name too long", UploadCandidate{strings.Repeat("a", 252) + ".txt", "text/plain", 10}, ErrNameTooLong},
		{"name at limit", UploadCandidate{strings.Repeat("a", 251) + ".txt", "text/plain", 10}, nil},
		{"declared size over limit", UploadCandidate{"big.zip", "application/zip", 5*1024*1024 + 1}, ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Admit(tt.candidate)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected accept, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if !IsPolicyRejection(err) {
				t.Errorf("expected %v to count as a policy rejection", err)
			}
		})
	}
}

func TestPolicy_AdmitOrder(t *testing.T) {
	p := DefaultPolicy()

	t.Run("extension wins over type", func(t *testing.T) {
		err := p.Admit(UploadCandidate{"x.sh", "text/html", 10})
		if !errors.Is(err, ErrDangerousExtension) {
			t.Errorf("expected ErrDangerousExtension, got %v", err)
		}
	})

	t.Run("type wins over length", func(t *testing.T) {
		err := p.Admit(UploadCandidate{strings.Repeat("a", 300), "text/html", 10})
		if !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("expected ErrUnsupportedType, got %v", err)
		}
	})
}

func TestPolicy_DenylistIndependentOfType(t *testing.T) {
	p := DefaultPolicy()
	for _, ext := range DefaultExtensionDenylist {
		for _, mimeType := range DefaultMimeAllowlist {
			err := p.Admit(UploadCandidate{"file" + ext, mimeType, 1})
			if !errors.Is(err, ErrDangerousExtension) {
				t.Fatalf("%s as %s: expected ErrDangerousExtension, got %v", ext, mimeType, err)
			}
		}
	}
}

func TestPolicy_AllowlistIndependentOfExtension(t *testing.T) {
	p := DefaultPolicy()
	for _, name := range []string{"a.pdf", "a.txt", "a.png", "a", "a.zip"} {
		for _, mimeType := range []string{"text/html", "application/x-msdownload", "application/octet-stream"} {
			err := p.Admit(UploadCandidate{name, mimeType, 1})
			if !errors.Is(err, ErrUnsupportedType) {
				t.Fatalf("%s as %s: expected ErrUnsupportedType, got %v", name, mimeType, err)
			}
		}
	}
}

func TestPolicy_MaxRequestBytes(t *testing.T) {
	p := DefaultPolicy()
	if got := p.MaxRequestBytes(); got <= p.MaxFileSizeBytes {
		t.Errorf("expected request limit above file limit, got %d", got)
	}
}

func TestIsPolicyRejection(t *testing.T) {
	if IsPolicyRejection(ErrNotFound) {
		t.Error("ErrNotFound is not a policy rejection")
	}
	if IsPolicyRejection(errors.New("disk full")) {
		t.Error("arbitrary error is not a policy rejection")
	}
	if !IsPolicyRejection(ErrTooManyFiles) {
		t.Error("ErrTooManyFiles is a policy rejection")
	}
}

func TestPolicy_ServeType(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name       string
		wantType   string
		wantInline bool
	}{
		{"doc.pdf", "application/pdf", true},
		{"photo.PNG", "image/png", true},
		{"page.html", "application/octet-stream", false},
		{"logo.svg", "application/octet-stream", false},
		{"noext", "application/octet-stream", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, gotInline := p.ServeType(tt.name)
			if gotType != tt.wantType || gotInline != tt.wantInline {
				t.Errorf("ServeType(%q) = %q, %v; expected %q, %v", tt.name, gotType, gotInline, tt.wantType, tt.wantInline)
			}
		})
	}
}

func TestPolicy_CheckStoredName(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name    string
		blocked bool
	}{
		{"report.exe", true},
		{"REPORT.EXE", true},
		{"run.sh", true},
		{"shell.php", true},
		{"report-1700000000000.exe", true},
		{"report.pdf", false},
		{"noext", false},
		{"archive.tar.gz", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.CheckStoredName(tt.name)
			if tt.blocked != errors.Is(err, ErrDangerousExtension) {
				t.Errorf("CheckStoredName(%q) = %v, blocked expected %v", tt.name, err, tt.blocked)
			}
			if !tt.blocked && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
