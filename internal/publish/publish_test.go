package publish

import (
	"context"
	"errors"
	"testing"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Target
		wantErr bool
	}{
		{"s3 with prefix", "s3://exports/charges/daily/", Target{SchemeS3, "exports", "charges/daily"}, false},
		{"gcs bucket only", "gs://exports", Target{SchemeGCS, "exports", ""}, false},
		{"unsupported scheme", "ftp://exports/x", Target{}, true},
		{"no bucket", "s3:///x", Target{}, true},
		{"local path", "/tmp/out", Target{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseURL(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseURL() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

type fakeUploader struct {
	bucket, key, path, contentType string
	err                            error
}

func (f *fakeUploader) Upload(_ context.Context, bucket, key, localPath, contentType string) error {
	f.bucket, f.key, f.path, f.contentType = bucket, key, localPath, contentType
	return f.err
}

func TestPublish(t *testing.T) {
	up := &fakeUploader{}
	p := NewWithUploader(Target{Scheme: SchemeGCS, Bucket: "exports", Prefix: "2024"}, up)

	got, err := p.Publish(context.Background(), "/data/output/charges.parquet")
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got != "gs://exports/2024/charges.parquet" {
		t.Errorf("Publish() = %q", got)
	}
	if up.bucket != "exports" || up.key != "2024/charges.parquet" {
		t.Errorf("uploaded to %s/%s", up.bucket, up.key)
	}
	if up.contentType != "application/vnd.apache.parquet" {
		t.Errorf("contentType = %q", up.contentType)
	}

	up.err = errors.New("access denied")
	if _, err := p.Publish(context.Background(), "charges.csv"); !errors.Is(err, up.err) {
		t.Errorf("Publish() error = %v, want wrapped upload error", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.csv":  "text/csv",
		"a.XLSX": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"a.bin":  "application/octet-stream",
	}
	for name, want := range tests {
		if got := contentType(name); got != want {
			t.Errorf("contentType(%q) = %q, want %q", name, got, want)
		}
	}
}
