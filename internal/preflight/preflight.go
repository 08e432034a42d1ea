package preflight

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"packrat/internal/logger"
	"packrat/internal/model"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var (
	ErrSourceNotFound         = errors.New("source folder not found or not readable")
	ErrDestinationNotWritable = errors.New("destination is not writable")
	ErrInsufficientSpace      = errors.New("insufficient space at destination")
)

// freeSpace is swappable in tests.
var freeSpace = func(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}

	return st.Bavail * uint64(st.Bsize), nil
}

// Validate checks a job before any work begins: the source must be a
// readable directory, the destination writable, and the free space at the
// destination must cover the uncompressed source size. No compression
// ratio is assumed.
func Validate(job *model.BackupJob) error {
	info, err := os.Stat(job.SourcePath)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, job.SourcePath)
	}

	size, err := SourceSize(job.SourcePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceNotFound, err)
	}

	if err := checkWritable(job.DestinationDir); err != nil {
		return fmt.Errorf("%w: %v", ErrDestinationNotWritable, err)
	}

	free, err := freeSpace(job.DestinationDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDestinationNotWritable, err)
	}

	logger.Log.Debug("preflight",
		zap.String("src", job.SourcePath),
		zap.Uint64("source_bytes", size),
		zap.Uint64("free_bytes", free))

	if free < size {
		return fmt.Errorf("%w: need %d bytes, %d available", ErrInsufficientSpace, size, free)
	}

	return nil
}

// SourceSize sums regular file sizes under root. Symlinks are counted by
// their own size and never followed, so the walk cannot escape the source
// tree or recurse forever.
func SourceSize(root string) (uint64, error) {
	var total uint64

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		total += uint64(info.Size())
		return nil
	})
	if err != nil {
		return 0, err
	}

	return total, nil
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	probe, err := os.CreateTemp(dir, ".packrat-probe-*")
	if err != nil {
		return err
	}

	name := probe.Name()
	if err := probe.Close(); err != nil {
		return err
	}

	return os.Remove(name)
}
