package precheck

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
)

// Magic numbers per extension
var signatures = map[string][]byte{
	"pdf":  []byte("%PDF"),
	"jpg":  {0xFF, 0xD8, 0xFF},
	"jpeg": {0xFF, 0xD8, 0xFF},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"webp": []byte("RIFF"),
}

const headerSize = 8

// Checker is the first pipeline stage. It only reads file metadata and the
// leading bytes and never categorizes the document.
type Checker struct {
	cfg domain.ValidationConfig
}

// NewChecker creates a checker bound to cfg
func NewChecker(cfg domain.ValidationConfig) *Checker {
	return &Checker{cfg: cfg}
}

// Check runs existence, size, extension and signature checks in that order.
// The first failing check produces a terminal result.
func (c *Checker) Check(ctx context.Context, path string) *domain.ValidationResult {
	if err := ctx.Err(); err != nil {
		return failed(domain.CodeFileAccessError, fmt.Sprintf("File check aborted: %v", err))
	}

	info, err := os.Stat(path)
	if err != nil {
		return failed(domain.CodeFileAccessError, "File cannot be accessed")
	}
	if info.IsDir() {
		return failed(domain.CodeFileAccessError, "File reference points to a directory")
	}
	if info.Size() == 0 {
		return failed(domain.CodeFileAccessError, "File is empty")
	}
	if info.Size() > c.cfg.MaxFileSizeBytes() {
		return failed(domain.CodeFileTooLarge, fmt.Sprintf("File exceeds the maximum size of %d bytes", c.cfg.MaxFileSizeBytes()))
	}

	ext := Extension(path)
	if !c.cfg.ExtensionAllowed(ext) {
		return failed(domain.CodeInvalidFormat, fmt.Sprintf("File extension %q is not allowed", ext))
	}

	result := domain.NewResult(true, 1.0, domain.CategoryUnknown)

	signature, known := signatures[ext]
	if !known {
		result.AddIssue(domain.NewIssue(domain.SeverityInfo, domain.CodeSignatureNotVerified,
			fmt.Sprintf("No known signature for extension %q", ext)))
		result.SetConfidence(0.5)
		return result
	}

	header, err := readHeader(path)
	if err != nil {
		return failed(domain.CodeFileAccessError, "File cannot be read")
	}
	if !bytes.HasPrefix(header, signature) {
		return failed(domain.CodeCorruptedFile, fmt.Sprintf("File content does not match the %s format", ext))
	}

	return result
}

// Extension returns the lower-cased extension of path without the dot
func Extension(path string) string {
	return domain.NormalizeExtension(filepath.Ext(path))
}

// SignatureMatches reports whether data starts with the signature of ext.
// Extensions without a known signature never match.
func SignatureMatches(ext string, data []byte) bool {
	signature, ok := signatures[domain.NormalizeExtension(ext)]
	return ok && bytes.HasPrefix(data, signature)
}

func readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, headerSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:n], nil
}

func failed(code, message string) *domain.ValidationResult {
	r := domain.NewResult(false, 0, domain.CategoryUnknown)
	r.AddIssue(domain.NewIssue(domain.SeverityError, code, message))
	return r
}
