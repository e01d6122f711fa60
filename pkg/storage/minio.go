// Package storage archives closed session transcripts to MinIO.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"cyberchat-go/internal/config"
	"cyberchat-go/internal/model"
	"cyberchat-go/pkg/log"
)

// Archiver writes transcripts as JSON objects under transcripts/.
type Archiver struct {
	client *minio.Client
	bucket string
}

// Transcript is the archived form of a session.
type Transcript struct {
	SessionID  string       `json:"sessionId"`
	Provider   string       `json:"provider"`
	ArchivedAt time.Time    `json:"archivedAt"`
	Turns      []model.Turn `json:"turns"`
}

// NewArchiver connects to MinIO and makes sure the bucket exists.
func NewArchiver(ctx context.Context, cfg config.MinIOConfig) (*Archiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.BucketName, err)
	}
	if !exists {
		log.Infof("[Storage] bucket '%s' does not exist, creating", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.BucketName, err)
		}
	}
	log.Infof("[Storage] MinIO archiver ready, bucket: %s", cfg.BucketName)
	return &Archiver{client: client, bucket: cfg.BucketName}, nil
}

// ObjectName is where a session's transcript is stored.
func ObjectName(sessionID string, at time.Time) string {
	return fmt.Sprintf("transcripts/%s/%s.json", at.UTC().Format("2006-01-02"), sessionID)
}

// ArchiveTranscript uploads t and returns the object name.
func (a *Archiver) ArchiveTranscript(ctx context.Context, t Transcript) (string, error) {
	if t.ArchivedAt.IsZero() {
		t.ArchivedAt = time.Now()
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}
	objectName := ObjectName(t.SessionID, t.ArchivedAt)
	_, err = a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("upload transcript %s: %w", objectName, err)
	}
	log.Infof("[Storage] archived transcript %s (%d turns)", objectName, len(t.Turns))
	return objectName, nil
}
