// Package backup periodically archives the ledger database to S3:
// archive, checksum, metadata, upload, rotate.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristath/ledgercore/internal/database"
)

// Metadata describes one uploaded archive's contents.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"`
}

// Info describes a backup object already stored in the bucket.
type Info struct {
	Key       string
	Timestamp time.Time
	SizeBytes int64
	AgeHours  int64
}

// Service archives the core ledger database to S3 on a schedule.
type Service struct {
	client  *s3.Client
	bucket  string
	db      *database.DB
	dataDir string
	log     zerolog.Logger
}

// New loads the default AWS credential chain (env vars, shared config,
// instance profile) and builds a Service targeting bucket.
func New(ctx context.Context, bucket string, db *database.DB, dataDir string, log zerolog.Logger) (*Service, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Service{
		client:  s3.NewFromConfig(cfg),
		bucket:  bucket,
		db:      db,
		dataDir: dataDir,
		log:     log.With().Str("service", "backup").Logger(),
	}, nil
}

const keyPrefix = "ledgercore-backup-"

// Run creates a checkpointed archive of the core database and uploads it
// to S3.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info().Msg("starting backup")
	start := time.Now()

	if err := s.db.WALCheckpoint("TRUNCATE"); err != nil {
		s.log.Warn().Err(err).Msg("wal checkpoint before backup failed, continuing")
	}

	stagingDir := filepath.Join(s.dataDir, "backup-staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	dbCopyPath := filepath.Join(stagingDir, "core.db")
	if err := copyFile(s.db.Path(), dbCopyPath); err != nil {
		return fmt.Errorf("copy database: %w", err)
	}

	checksum, err := checksumFile(dbCopyPath)
	if err != nil {
		return fmt.Errorf("checksum database: %w", err)
	}
	info, err := os.Stat(dbCopyPath)
	if err != nil {
		return fmt.Errorf("stat database copy: %w", err)
	}

	meta := Metadata{Timestamp: time.Now().UTC(), Database: "core", SizeBytes: info.Size(), Checksum: checksum}
	metaPath := filepath.Join(stagingDir, "backup-metadata.json")
	if err := writeMetadata(metaPath, meta); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02-150405")
	archiveName := fmt.Sprintf("%s%s.tar.gz", keyPrefix, timestamp)
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, dbCopyPath, metaPath); err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	uploader := manager.NewUploader(s.client)
	if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(archiveName),
		Body:   archiveFile,
	}); err != nil {
		return fmt.Errorf("upload to s3: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(start)).
		Str("archive", archiveName).
		Msg("backup completed")
	return nil
}

// List returns every backup object in the bucket, newest first.
func (s *Service) List(ctx context.Context) ([]Info, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(keyPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("list s3 objects: %w", err)
	}

	now := time.Now()
	backups := make([]Info, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}
		key := *obj.Key
		ts := strings.TrimSuffix(strings.TrimPrefix(key, keyPrefix), ".tar.gz")
		timestamp, err := time.Parse("2006-01-02-150405", ts)
		if err != nil {
			s.log.Warn().Str("key", key).Msg("failed to parse backup timestamp")
			continue
		}
		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		backups = append(backups, Info{Key: key, Timestamp: timestamp, SizeBytes: size, AgeHours: int64(now.Sub(timestamp).Hours())})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].Timestamp.After(backups[j].Timestamp) })
	return backups, nil
}

const minBackupsToKeep = 3

// Rotate deletes backups older than retentionDays, always keeping the
// newest minBackupsToKeep regardless of age.
func (s *Service) Rotate(ctx context.Context, retentionDays int) error {
	backups, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minBackupsToKeep {
		return nil
	}
	var cutoff time.Time
	if retentionDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -retentionDays)
	}
	for i, b := range backups {
		if i < minBackupsToKeep || retentionDays == 0 {
			continue
		}
		if b.Timestamp.Before(cutoff) {
			if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket), Key: aws.String(b.Key),
			}); err != nil {
				s.log.Error().Err(err).Str("key", b.Key).Msg("failed to delete old backup")
				continue
			}
			s.log.Info().Str("key", b.Key).Msg("deleted old backup")
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}

func writeMetadata(path string, meta Metadata) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func createArchive(archivePath string, files ...string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer archiveFile.Close()

	gz := gzip.NewWriter(archiveFile)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, path := range files {
		if err := addFileToArchive(tw, path); err != nil {
			return err
		}
	}
	return nil
}

func addFileToArchive(tw *tar.Writer, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}
