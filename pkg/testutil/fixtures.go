package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Minimal file contents that pass the signature checks
var (
	PDFContent  = []byte("%PDF-1.4\n%test document\n")
	PNGContent  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D}
	JPEGContent = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
)

// WriteDocument writes content to name inside dir and returns the full path
func WriteDocument(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write fixture %s: %v", name, err)
	}
	return path
}

// WritePDF writes a minimal PDF named name into a fresh temp directory
func WritePDF(t *testing.T, name string) string {
	t.Helper()
	return WriteDocument(t, t.TempDir(), name, PDFContent)
}

// WritePNG writes a minimal PNG named name into a fresh temp directory
func WritePNG(t *testing.T, name string) string {
	t.Helper()
	return WriteDocument(t, t.TempDir(), name, PNGContent)
}
