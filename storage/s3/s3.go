// Package s3 provides a checkpoint persister backed by an S3 compatible object store.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/Azure/azure-event-hubs-processor-go/persist"
)

type (
	// Persister implements persist.CheckpointPersister with one JSON object per partition
	Persister struct {
		client *minio.Client
		bucket string
		prefix string
	}

	// Options configures the connection to the object store
	Options struct {
		Endpoint        string
		AccessKeyID     string
		SecretAccessKey string
		Bucket          string
		Prefix          string
		Secure          bool
	}
)

// New connects to the object store described by opts
func New(opts Options) (*Persister, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, errors.New("endpoint and bucket are required")
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.Secure,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create object store client")
	}

	return &Persister{
		client: client,
		bucket: opts.Bucket,
		prefix: opts.Prefix,
	}, nil
}

// EnsureStore creates the bucket unless it already exists
func (p *Persister) EnsureStore(ctx context.Context) error {
	err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{})
	if err == nil {
		return nil
	}
	exists, existsErr := p.client.BucketExists(ctx, p.bucket)
	if existsErr == nil && exists {
		return nil
	}
	return errors.Wrapf(err, "failed to create bucket %q", p.bucket)
}

// Write stores the checkpoint, replacing the previous object
func (p *Persister) Write(ctx context.Context, namespace, name, consumerGroup, partitionID string, checkpoint persist.Checkpoint) error {
	body, err := json.Marshal(checkpoint)
	if err != nil {
		return err
	}

	_, err = p.client.PutObject(ctx, p.bucket, p.objectName(namespace, name, consumerGroup, partitionID),
		bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return errors.Wrapf(err, "failed to write checkpoint for partition %q", partitionID)
	}
	return nil
}

// Read fetches the checkpoint. A missing object yields persist.ErrNotFound.
func (p *Persister) Read(ctx context.Context, namespace, name, consumerGroup, partitionID string) (persist.Checkpoint, error) {
	objectName := p.objectName(namespace, name, consumerGroup, partitionID)
	obj, err := p.client.GetObject(ctx, p.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return persist.Checkpoint{}, p.readErr(err, objectName)
	}
	defer obj.Close()

	// GetObject is lazy, so a missing key only surfaces on the first read
	body, err := ioutil.ReadAll(obj)
	if err != nil {
		return persist.Checkpoint{}, p.readErr(err, objectName)
	}

	var checkpoint persist.Checkpoint
	if err := json.Unmarshal(body, &checkpoint); err != nil {
		return persist.Checkpoint{}, errors.Wrapf(err, "checkpoint at %q is corrupt", objectName)
	}
	return checkpoint, nil
}

func (p *Persister) readErr(err error, objectName string) error {
	if isNotFound(err) {
		return errors.Wrapf(persist.ErrNotFound, "no checkpoint at %q", objectName)
	}
	return errors.Wrapf(err, "failed to read checkpoint at %q", objectName)
}

func (p *Persister) objectName(namespace, name, consumerGroup, partitionID string) string {
	return path.Join(p.prefix, persist.Key(namespace, name, consumerGroup, partitionID))
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return true
	}
	return false
}
