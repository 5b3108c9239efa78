// Package archive copies finished recordings to Supabase Storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/supabase-community/supabase-go"

	"github.com/chadiek/callscreen/internal/models"
)

type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
	// Prefix is prepended to every object key.
	Prefix string
}

// uploader stores one object.
type uploader interface {
	Upload(ctx context.Context, key string, body io.Reader) error
}

// Archive uploads recordings under dated keys.
type Archive struct {
	up     uploader
	prefix string
}

// New connects to Supabase.
func New(config Config) (*Archive, error) {
	if config.URL == "" || config.ServiceRoleKey == "" || config.Bucket == "" {
		return nil, fmt.Errorf("archive: SUPABASE_URL, SUPABASE_SERVICE_ROLE_KEY and SUPABASE_BUCKET are required")
	}
	client, err := supabase.NewClient(config.URL, config.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	return &Archive{up: &supabaseUploader{client: client, bucket: config.Bucket}, prefix: config.Prefix}, nil
}

// Key is the object key used for an artifact.
func (a *Archive) Key(art models.RecordingArtifact) string {
	return path.Join(a.prefix, art.CreatedAt.UTC().Format("2006/01/02"), art.ID+".wav")
}

// Archive uploads the artifact's recording and returns its key.
func (a *Archive) Archive(ctx context.Context, art models.RecordingArtifact) (string, error) {
	data, err := os.ReadFile(art.Path)
	if err != nil {
		return "", fmt.Errorf("archive: read %s: %w", art.Path, err)
	}
	key := a.Key(art)
	if err := a.up.Upload(ctx, key, bytes.NewReader(data)); err != nil {
		return "", err
	}
	return key, nil
}

type supabaseUploader struct {
	client *supabase.Client
	bucket string
}

func (s *supabaseUploader) Upload(ctx context.Context, key string, body io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.client.Storage.UploadFile(s.bucket, key, body); err != nil {
		return fmt.Errorf("failed to upload to Supabase: %w", err)
	}
	return nil
}
