package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	apperrors "github.com/jittakal/kafcoldstore/internal/errors"
)

// Ensure implementation satisfies interface at compile time.
var _ Backend = (*AzureBackend)(nil)

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName   string
	AccountKey    string
	ContainerName string
	Endpoint      string
}

// blockStager is the subset of blockblob.Client used by the backend.
type blockStager interface {
	StageBlock(ctx context.Context, base64BlockID string, body io.ReadSeekCloser, o *blockblob.StageBlockOptions) (blockblob.StageBlockResponse, error)
	CommitBlockList(ctx context.Context, base64BlockIDs []string, o *blockblob.CommitBlockListOptions) (blockblob.CommitBlockListResponse, error)
}

// AzureBackend stores blobs as Azure block blobs.
// Every frame is staged as one block and the list is committed at the end,
// so a blob becomes visible only once all of its frames are stored.
type AzureBackend struct {
	container string
	blob      func(key string) blockStager
	logger    *slog.Logger
}

// NewAzureBackend creates a new Azure Blob Storage backend.
func NewAzureBackend(cfg AzureConfig, logger *slog.Logger) (*AzureBackend, error) {
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("azure backend: container name is required")
	}

	var connectionString string
	if cfg.Endpoint != "" {
		connectionString = fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			cfg.AccountName, cfg.AccountKey, cfg.Endpoint)
	} else {
		connectionString = fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
			cfg.AccountName, cfg.AccountKey)
	}

	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	containerClient := client.ServiceClient().NewContainerClient(cfg.ContainerName)

	logger.Info("azure backend created",
		"container", cfg.ContainerName,
		"account", cfg.AccountName,
	)

	return newAzureBackend(cfg.ContainerName, containerClient, logger), nil
}

func newAzureBackend(name string, c *container.Client, logger *slog.Logger) *AzureBackend {
	return &AzureBackend{
		container: name,
		blob: func(key string) blockStager {
			return c.NewBlockBlobClient(key)
		},
		logger: logger,
	}
}

// Name returns the backend name used in metrics.
func (b *AzureBackend) Name() string { return "azure" }

// Put stages each block and commits them, in order, as container/key.
// Block IDs depend only on position, so a retry restages the same IDs and
// the commit replaces any earlier partial attempt.
func (b *AzureBackend) Put(ctx context.Context, key string, blocks [][]byte) error {
	client := b.blob(key)

	ids := make([]string, len(blocks))
	for i, block := range blocks {
		ids[i] = blockID(i)
		body := streaming.NopCloser(bytes.NewReader(block))
		if _, err := client.StageBlock(ctx, ids[i], body, nil); err != nil {
			return &apperrors.StorageError{Operation: "stage", Path: key, Err: err}
		}
	}

	if _, err := client.CommitBlockList(ctx, ids, nil); err != nil {
		return &apperrors.StorageError{Operation: "commit", Path: key, Err: err}
	}
	return nil
}

// Close closes the backend.
func (b *AzureBackend) Close() error {
	b.logger.Info("azure backend closed", "container", b.container)
	return nil
}

// blockID returns a fixed-width base64 block ID. All IDs within a blob must
// have the same encoded length.
func blockID(i int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("block-%08d", i)))
}
