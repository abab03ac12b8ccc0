package publish

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
)

type gcsUploader struct {
	client *storage.Client
}

func newGCSUploader(ctx context.Context) (*gcsUploader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &gcsUploader{client: client}, nil
}

func (u *gcsUploader) Upload(ctx context.Context, bucket, key, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := u.client.Bucket(bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("copy to gcs writer: %w", err)
	}
	// Close finalizes the upload.
	return w.Close()
}

func (u *gcsUploader) Close() error {
	return u.client.Close()
}
