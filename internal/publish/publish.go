// Package publish copies extracted files to object storage.
//
// A destination is a URL prefix: s3://bucket/prefix or gs://bucket/prefix.
// Credentials come from the SDK defaults (AWS shared config and environment,
// Google Application Default Credentials).
package publish

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Supported URL schemes.
const (
	SchemeS3  = "s3"
	SchemeGCS = "gs"
)

// Target is a parsed destination prefix.
type Target struct {
	Scheme string
	Bucket string
	Prefix string
}

// ParseURL parses an s3:// or gs:// destination.
func ParseURL(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("parse publish url: %w", err)
	}
	if u.Scheme != SchemeS3 && u.Scheme != SchemeGCS {
		return Target{}, fmt.Errorf("unsupported publish scheme %q (want s3 or gs)", u.Scheme)
	}
	if u.Host == "" {
		return Target{}, fmt.Errorf("publish url %q has no bucket", raw)
	}
	return Target{
		Scheme: u.Scheme,
		Bucket: u.Host,
		Prefix: strings.Trim(u.Path, "/"),
	}, nil
}

// Key returns the object key for a local file name.
func (t Target) Key(name string) string {
	if t.Prefix == "" {
		return name
	}
	return path.Join(t.Prefix, name)
}

// URL returns the full object URL for key.
func (t Target) URL(key string) string {
	return t.Scheme + "://" + t.Bucket + "/" + key
}

// Uploader writes one local file to a bucket.
type Uploader interface {
	Upload(ctx context.Context, bucket, key, localPath, contentType string) error
}

// Publisher uploads files under a Target.
type Publisher struct {
	target Target
	up     Uploader
}

// New parses rawURL and creates the matching storage client.
func New(ctx context.Context, rawURL string) (*Publisher, error) {
	t, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	var up Uploader
	switch t.Scheme {
	case SchemeS3:
		up, err = newS3Uploader(ctx)
	case SchemeGCS:
		up, err = newGCSUploader(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &Publisher{target: t, up: up}, nil
}

// NewWithUploader creates a Publisher around an existing Uploader.
func NewWithUploader(t Target, up Uploader) *Publisher {
	return &Publisher{target: t, up: up}
}

// Target returns the destination prefix.
func (p *Publisher) Target() Target {
	return p.target
}

// Publish uploads localPath and returns the object URL.
func (p *Publisher) Publish(ctx context.Context, localPath string) (string, error) {
	name := filepath.Base(localPath)
	key := p.target.Key(name)
	if err := p.up.Upload(ctx, p.target.Bucket, key, localPath, contentType(name)); err != nil {
		return "", fmt.Errorf("publish %s: %w", name, err)
	}
	return p.target.URL(key), nil
}

// Close releases the storage client when it holds one.
func (p *Publisher) Close() error {
	if c, ok := p.up.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

var extraTypes = map[string]string{
	".csv":     "text/csv",
	".parquet": "application/vnd.apache.parquet",
	".xlsx":    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".json":    "application/json",
}

func contentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := extraTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
