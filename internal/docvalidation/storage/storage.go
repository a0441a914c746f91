package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var (
	// ErrNotFound is returned when the referenced document does not exist
	ErrNotFound = errors.New("document not found")
	// ErrInvalidReference is returned for references that cannot be resolved
	ErrInvalidReference = errors.New("invalid file reference")
)

// BlobScheme prefixes references to Azure blob storage: azblob://container/key
const BlobScheme = "azblob://"

// Resolver turns an opaque file reference into a local path.
// release must be called once the path is no longer needed.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (path string, release func(), err error)
}

// Router dispatches references to a resolver by scheme
type Router struct {
	Local *LocalResolver
	Blob  *BlobResolver // nil disables azblob:// references
}

func (r *Router) Resolve(ctx context.Context, ref string) (string, func(), error) {
	if strings.HasPrefix(ref, BlobScheme) {
		if r.Blob == nil {
			return "", noop, fmt.Errorf("%w: blob storage is not configured", ErrInvalidReference)
		}
		return r.Blob.Resolve(ctx, ref)
	}
	if r.Local == nil {
		return "", noop, fmt.Errorf("%w: local files are not accepted", ErrInvalidReference)
	}
	return r.Local.Resolve(ctx, ref)
}

// LocalResolver accepts plain paths, optionally confined to Root
type LocalResolver struct {
	Root string
}

func (l *LocalResolver) Resolve(_ context.Context, ref string) (string, func(), error) {
	if strings.TrimSpace(ref) == "" {
		return "", noop, fmt.Errorf("%w: empty reference", ErrInvalidReference)
	}
	if strings.Contains(ref, "://") {
		return "", noop, fmt.Errorf("%w: unsupported scheme", ErrInvalidReference)
	}
	if l.Root == "" {
		return filepath.Clean(ref), noop, nil
	}

	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.Root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(filepath.Clean(l.Root), path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", noop, fmt.Errorf("%w: outside the upload directory", ErrInvalidReference)
	}
	return path, noop, nil
}

// Fingerprint returns the hex BLAKE2b-256 digest of the file at path,
// or "" when the file cannot be read
func Fingerprint(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return ""
	}
	if _, err := io.Copy(h, f); err != nil {
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}

func noop() {}
