package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/ecodeli/ecodeli-backend/pkg/logger"
)

// Downloader is the part of *azblob.Client the resolver uses
type Downloader interface {
	DownloadStream(ctx context.Context, containerName, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
}

// BlobResolver downloads azblob:// references to a temporary file
type BlobResolver struct {
	client   Downloader
	tempDir  string
	maxBytes int64
	log      *logger.Logger
}

// NewBlobResolver creates a resolver from an Azure storage connection string
func NewBlobResolver(connectionString, tempDir string, maxBytes int64, log *logger.Logger) (*BlobResolver, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return NewBlobResolverWithClient(client, tempDir, maxBytes, log), nil
}

// NewBlobResolverWithClient creates a resolver around an existing client
func NewBlobResolverWithClient(client Downloader, tempDir string, maxBytes int64, log *logger.Logger) *BlobResolver {
	if log == nil {
		log = logger.Nop()
	}
	return &BlobResolver{
		client:   client,
		tempDir:  tempDir,
		maxBytes: maxBytes,
		log:      log.WithComponent("blob_resolver"),
	}
}

// Resolve downloads the blob. At most maxBytes+1 bytes are written so the
// size check downstream still sees an oversized file.
func (b *BlobResolver) Resolve(ctx context.Context, ref string) (string, func(), error) {
	container, key, err := ParseBlobReference(ref)
	if err != nil {
		return "", noop, err
	}

	resp, err := b.client.DownloadStream(ctx, container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return "", noop, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return "", noop, fmt.Errorf("download blob %s: %w", key, err)
	}
	defer resp.Body.Close()

	// Keep the extension, the file checks rely on it
	f, err := os.CreateTemp(b.tempDir, "docvalidation-*"+path.Ext(key))
	if err != nil {
		return "", noop, fmt.Errorf("create temp file: %w", err)
	}
	release := func() {
		if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
			b.log.Warn().Err(err).Str("path", f.Name()).Msg("failed to remove downloaded document")
		}
	}

	_, copyErr := io.Copy(f, io.LimitReader(resp.Body, b.maxBytes+1))
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		release()
		if copyErr == nil {
			copyErr = closeErr
		}
		return "", noop, fmt.Errorf("download blob %s: %w", key, copyErr)
	}

	return f.Name(), release, nil
}

// ParseBlobReference splits azblob://container/key
func ParseBlobReference(ref string) (container, key string, err error) {
	rest, ok := strings.CutPrefix(ref, BlobScheme)
	if !ok {
		return "", "", fmt.Errorf("%w: missing %s prefix", ErrInvalidReference, BlobScheme)
	}
	container, key, ok = strings.Cut(rest, "/")
	if !ok || container == "" || key == "" || strings.Contains(key, "..") {
		return "", "", fmt.Errorf("%w: expected %scontainer/key", ErrInvalidReference, BlobScheme)
	}
	return container, key, nil
}
