// Package storage provides an Azure Blob Storage checkpoint persister for the event processor host.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/Azure/go-autorest/autorest/azure"
	"github.com/pkg/errors"

	"github.com/Azure/azure-event-hubs-processor-go/internal/common"
	"github.com/Azure/azure-event-hubs-processor-go/persist"
)

type (
	// BlobPersister implements persist.CheckpointPersister on Azure Blob Storage. Each partition checkpoint is a JSON
	// blob named namespace/hub/consumerGroup/partitionID within the container.
	BlobPersister struct {
		containerURL azblob.ContainerURL
	}
)

// NewBlobPersister builds a BlobPersister for the container of the storage account in the given Azure cloud
func NewBlobPersister(credential azblob.Credential, accountName, containerName string, env azure.Environment) (*BlobPersister, error) {
	if accountName == "" || containerName == "" {
		return nil, errors.New("account name and container name are required")
	}
	return newBlobPersister(credential, "https://"+accountName+".blob."+env.StorageEndpointSuffix, containerName)
}

// NewBlobPersisterFromConnectionString builds a BlobPersister from a storage account connection string using shared
// key authorization
func NewBlobPersisterFromConnectionString(connStr, containerName string) (*BlobPersister, error) {
	parsed, err := common.ParsedStorageConnectionFromStr(connStr)
	if err != nil {
		return nil, err
	}

	credential, err := azblob.NewSharedKeyCredential(parsed.AccountName, parsed.AccountKey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid storage account key")
	}
	return newBlobPersister(credential, parsed.BlobURL, containerName)
}

// NewBlobPersisterFromURL builds a BlobPersister for an explicit blob service URL, such as a local storage emulator
func NewBlobPersisterFromURL(credential azblob.Credential, serviceURL, containerName string) (*BlobPersister, error) {
	return newBlobPersister(credential, serviceURL, containerName)
}

func newBlobPersister(credential azblob.Credential, serviceURL, containerName string) (*BlobPersister, error) {
	if containerName == "" {
		return nil, errors.New("container name is required")
	}

	u, err := url.Parse(strings.TrimSuffix(serviceURL, "/") + "/" + containerName)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid blob service URL %q", serviceURL)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})
	return &BlobPersister{
		containerURL: azblob.NewContainerURL(*u, pipeline),
	}, nil
}

// EnsureStore creates the container if it does not exist
func (b *BlobPersister) EnsureStore(ctx context.Context) error {
	_, err := b.containerURL.Create(ctx, azblob.Metadata{}, azblob.PublicAccessNone)
	if err != nil && !hasServiceCode(err, azblob.ServiceCodeContainerAlreadyExists) {
		return errors.Wrap(err, "failed to create checkpoint container")
	}
	return nil
}

// Write uploads the checkpoint for a partition, replacing the previous one
func (b *BlobPersister) Write(ctx context.Context, namespace, name, consumerGroup, partitionID string, checkpoint persist.Checkpoint) error {
	body, err := json.Marshal(checkpoint)
	if err != nil {
		return err
	}

	blobURL := b.containerURL.NewBlockBlobURL(persist.Key(namespace, name, consumerGroup, partitionID))
	_, err = azblob.UploadBufferToBlockBlob(ctx, body, blobURL, azblob.UploadToBlockBlobOptions{
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{ContentType: "application/json"},
	})
	if err != nil {
		return errors.Wrapf(err, "failed to write checkpoint for partition %q", partitionID)
	}
	return nil
}

// Read downloads the checkpoint for a partition. A missing blob yields persist.ErrNotFound.
func (b *BlobPersister) Read(ctx context.Context, namespace, name, consumerGroup, partitionID string) (persist.Checkpoint, error) {
	key := persist.Key(namespace, name, consumerGroup, partitionID)
	blobURL := b.containerURL.NewBlockBlobURL(key)
	res, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if isNotFound(err) {
			return persist.Checkpoint{}, errors.Wrapf(persist.ErrNotFound, "no checkpoint at %q", key)
		}
		return persist.Checkpoint{}, errors.Wrapf(err, "failed to read checkpoint for partition %q", partitionID)
	}

	body := res.Body(azblob.RetryReaderOptions{MaxRetryRequests: 3})
	defer body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(body); err != nil {
		return persist.Checkpoint{}, err
	}

	var checkpoint persist.Checkpoint
	if err := json.Unmarshal(buf.Bytes(), &checkpoint); err != nil {
		return persist.Checkpoint{}, errors.Wrapf(err, "checkpoint at %q is corrupt", key)
	}
	return checkpoint, nil
}

func hasServiceCode(err error, code azblob.ServiceCodeType) bool {
	var stgErr azblob.StorageError
	if errors.As(err, &stgErr) {
		return stgErr.ServiceCode() == code
	}
	return false
}

func isNotFound(err error) bool {
	var stgErr azblob.StorageError
	if !errors.As(err, &stgErr) {
		return false
	}
	switch stgErr.ServiceCode() {
	case azblob.ServiceCodeBlobNotFound, azblob.ServiceCodeContainerNotFound:
		return true
	}
	return stgErr.Response() != nil && stgErr.Response().StatusCode == http.StatusNotFound
}
