// Package archive uploads nightly snapshots of the store to an
// S3-compatible bucket (Cloudflare R2 or AWS S3) for disaster recovery.
// Unlike the multi-database backup this is descended from, there is only
// one store to snapshot, so one archive call produces one object: a
// gzip-compressed copy of the whole SQLite file, taken with VACUUM INTO
// so it is internally consistent without blocking writers for long.
package archive

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

const objectPrefix = "macro-stress-snapshot-"

// Store is the subset of *storage.DB the archiver needs. Defined here so
// this package doesn't import storage just for a type it uses narrowly.
type Store interface {
	SnapshotInto(destPath string) error
}

// Archiver uploads SQLite snapshots to an S3-compatible bucket.
type Archiver struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	dataDir  string
	log      zerolog.Logger
}

// New constructs an Archiver. endpoint may be empty to use AWS's default
// endpoint resolution; region defaults to "auto" (Cloudflare R2's
// region-agnostic value) when empty.
func New(ctx context.Context, endpoint, region, accessKeyID, secretAccessKey, bucket, dataDir string, log zerolog.Logger) (*Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	if region == "" {
		region = "auto"
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 5
	})

	return &Archiver{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
		dataDir:  dataDir,
		log:      log.With().Str("component", "archive").Logger(),
	}, nil
}

// Snapshot vacuums store into a staging file, gzips it, uploads it keyed
// by the current UTC date, and removes the staging files regardless of
// outcome.
func (a *Archiver) Snapshot(ctx context.Context, store Store) error {
	start := time.Now()

	stagingDir := filepath.Join(a.dataDir, "archive-staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	rawPath := filepath.Join(stagingDir, "snapshot.db")
	if err := store.SnapshotInto(rawPath); err != nil {
		return fmt.Errorf("failed to snapshot store: %w", err)
	}

	gzPath := rawPath + ".gz"
	checksum, err := compressAndChecksum(rawPath, gzPath)
	if err != nil {
		return fmt.Errorf("failed to compress snapshot: %w", err)
	}

	gzFile, err := os.Open(gzPath)
	if err != nil {
		return fmt.Errorf("failed to open compressed snapshot: %w", err)
	}
	defer gzFile.Close()

	info, err := gzFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat compressed snapshot: %w", err)
	}

	key := fmt.Sprintf("%s%s.db.gz", objectPrefix, time.Now().UTC().Format("2006-01-02"))
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	if _, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          gzFile,
		ContentLength: aws.Int64(info.Size()),
		Metadata:      map[string]string{"sha256": checksum},
	}); err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}

	a.log.Info().
		Str("key", key).
		Int64("size_bytes", info.Size()).
		Str("checksum", checksum).
		Dur("duration_ms", time.Since(start)).
		Msg("store snapshot uploaded")
	return nil
}

// SnapshotInfo describes one uploaded snapshot.
type SnapshotInfo struct {
	Key       string
	Timestamp time.Time
	SizeBytes int64
}

// List returns every snapshot in the bucket, newest first.
func (a *Archiver) List(ctx context.Context) ([]SnapshotInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	var out []SnapshotInfo
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(objectPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshots: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			ts, ok := parseSnapshotDate(*obj.Key)
			if !ok {
				continue
			}
			var size int64
			if obj.Size != nil {
				size = *obj.Size
			}
			out = append(out, SnapshotInfo{Key: *obj.Key, Timestamp: ts, SizeBytes: size})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// Rotate deletes snapshots older than retentionDays, always keeping at
// least the 3 most recent regardless of age. retentionDays <= 0 keeps
// everything.
func (a *Archiver) Rotate(ctx context.Context, retentionDays int) error {
	const minToKeep = 3
	if retentionDays <= 0 {
		return nil
	}

	snapshots, err := a.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list snapshots for rotation: %w", err)
	}
	if len(snapshots) <= minToKeep {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	ctx, cancel := context.WithTimeout(ctx, 1*time.Minute)
	defer cancel()

	for i, snap := range snapshots[minToKeep:] {
		if !snap.Timestamp.Before(cutoff) {
			continue
		}
		if _, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(snap.Key),
		}); err != nil {
			a.log.Warn().Err(err).Str("key", snap.Key).Msg("failed to delete old snapshot")
			continue
		}
		a.log.Info().Str("key", snap.Key).Int("index", i+minToKeep).Msg("deleted old snapshot")
	}
	return nil
}

func parseSnapshotDate(key string) (time.Time, bool) {
	name := strings.TrimPrefix(key, objectPrefix)
	name = strings.TrimSuffix(name, ".db.gz")
	t, err := time.Parse("2006-01-02", name)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func compressAndChecksum(srcPath, destPath string) (string, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return "", err
	}
	defer dest.Close()

	hash := sha256.New()
	gz := gzip.NewWriter(dest)
	if _, err := io.Copy(gz, io.TeeReader(src, hash)); err != nil {
		gz.Close()
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}

	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}
