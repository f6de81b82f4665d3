package reliability

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantarch/helmsman/internal/database"
)

const (
	backupPrefix  = "ledger-backups/"
	backupsToKeep = 14
)

// BackupService uploads consistent ledger snapshots to an S3-compatible
// bucket and prunes old ones.
type BackupService struct {
	ledger  *database.DB
	client  *S3Client
	dataDir string
	log     zerolog.Logger
}

// NewBackupService wires the ledger database to the bucket client.
func NewBackupService(ledger *database.DB, client *S3Client, dataDir string, log zerolog.Logger) *BackupService {
	return &BackupService{
		ledger:  ledger,
		client:  client,
		dataDir: dataDir,
		log:     log.With().Str("service", "backup").Logger(),
	}
}

// CreateAndUpload snapshots the ledger, compresses it and uploads it under
// a timestamped key, then prunes backups beyond the retention count.
func (s *BackupService) CreateAndUpload(ctx context.Context) error {
	start := time.Now()

	stagingDir := filepath.Join(s.dataDir, "backup-staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	snapshotPath := filepath.Join(stagingDir, "ledger.db")
	if err := s.ledger.SnapshotTo(snapshotPath); err != nil {
		return fmt.Errorf("failed to snapshot ledger: %w", err)
	}

	archivePath := snapshotPath + ".gz"
	checksum, size, err := compressFile(snapshotPath, archivePath)
	if err != nil {
		return fmt.Errorf("failed to compress snapshot: %w", err)
	}

	key := fmt.Sprintf("%sledger-%s.db.gz", backupPrefix, time.Now().UTC().Format("20060102-150405"))
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	if err := s.client.Upload(ctx, key, f); err != nil {
		return err
	}

	s.log.Info().
		Str("key", key).
		Int64("size_bytes", size).
		Str("checksum", checksum).
		Dur("elapsed", time.Since(start)).
		Msg("Ledger backup uploaded")

	return s.prune(ctx)
}

// prune removes backups beyond the retention count, oldest first.
func (s *BackupService) prune(ctx context.Context) error {
	infos, err := s.client.List(ctx, backupPrefix)
	if err != nil {
		return err
	}
	for i := backupsToKeep; i < len(infos); i++ {
		if err := s.client.Delete(ctx, infos[i].Key); err != nil {
			s.log.Warn().Err(err).Str("key", infos[i].Key).Msg("Failed to prune old backup")
			continue
		}
		s.log.Debug().Str("key", infos[i].Key).Msg("Pruned old backup")
	}
	return nil
}

// compressFile gzips src into dst and returns the sha256 of the source and
// the compressed size.
func compressFile(src, dst string) (checksum string, size int64, err error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", 0, err
	}
	defer out.Close()

	hash := sha256.New()
	gz := gzip.NewWriter(out)
	if _, err := io.Copy(io.MultiWriter(gz, hash), in); err != nil {
		return "", 0, err
	}
	if err := gz.Close(); err != nil {
		return "", 0, err
	}

	info, err := out.Stat()
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hash.Sum(nil)), info.Size(), nil
}
