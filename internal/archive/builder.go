package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"packrat/internal/logger"
	"packrat/internal/model"

	"go.uber.org/zap"
)

var ErrPasswordRequired = errors.New("password required for encrypted backup")

// ProgressFunc receives a tick after every member written.
type ProgressFunc func(done, total int, path string)

type entry struct {
	rel string
	dir bool
}

type Builder struct {
	Protector Protector
	Now       func() time.Time
}

func NewBuilder() *Builder {
	return &Builder{
		Protector: AgeProtector{},
		Now:       time.Now,
	}
}

// Build walks the source folder in stable lexicographic order and writes a
// single zip archive into the destination dir, optionally wrapped by the
// protector. The archive is written under a temporary name and renamed
// only after the last member, so a failed or cancelled run leaves no
// partial artifact behind.
func (b *Builder) Build(ctx context.Context, job *model.BackupJob, onProgress ProgressFunc) (string, error) {
	if job.Encrypt && job.Password == "" {
		return "", ErrPasswordRequired
	}

	entries, err := collectEntries(job.SourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to enumerate source: %w", err)
	}

	name := fmt.Sprintf("%s-%s.zip", filepath.Base(filepath.Clean(job.SourcePath)), b.Now().Format("20060102-150405"))
	if job.Encrypt {
		name += b.Protector.Suffix()
	}

	final := filepath.Join(job.DestinationDir, name)
	tmp := final + ".packrat.tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	if err := b.writeMembers(ctx, f, job, entries, onProgress); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to close archive: %w", err)
	}

	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize archive: %w", err)
	}

	logger.Log.Info("archive created",
		zap.String("path", final),
		zap.Int("members", len(entries)))

	return final, nil
}

func (b *Builder) writeMembers(ctx context.Context, f io.Writer, job *model.BackupJob, entries []entry, onProgress ProgressFunc) error {
	var sink io.Writer = f
	var protected io.WriteCloser

	if job.Encrypt {
		wc, err := b.Protector.Protect(f, job.Password)
		if err != nil {
			return err
		}
		protected = wc
		sink = wc
	}

	zw := zip.NewWriter(sink)
	total := len(entries)

	for i, e := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := b.writeMember(zw, job.SourcePath, e); err != nil {
			return fmt.Errorf("failed to archive %s: %w", e.rel, err)
		}

		if onProgress != nil {
			onProgress(i+1, total, e.rel)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close zip writer: %w", err)
	}

	if protected != nil {
		if err := protected.Close(); err != nil {
			return fmt.Errorf("failed to seal encrypted archive: %w", err)
		}
	}

	return nil
}

func (b *Builder) writeMember(zw *zip.Writer, root string, e entry) error {
	full := filepath.Join(root, e.rel)

	info, err := os.Lstat(full)
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}

	header.Name = filepath.ToSlash(e.rel)
	if e.dir {
		header.Name += "/"
		header.Method = zip.Store
	} else {
		header.Method = zip.Deflate
	}

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	if e.dir {
		return nil
	}

	src, err := os.Open(full)
	if err != nil {
		return err
	}

	defer func(src *os.File) {
		_ = src.Close()
	}(src)

	_, err = io.Copy(w, src)
	return err
}

// collectEntries enumerates every member before any write so two runs over
// an unchanged tree produce identical member lists. WalkDir visits in
// lexical order; directories are kept as entries of their own so empty
// ones survive extraction. Symlinks and other irregular files are skipped.
func collectEntries(root string) ([]entry, error) {
	var entries []entry

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			entries = append(entries, entry{rel: rel, dir: true})
		case d.Type().IsRegular():
			entries = append(entries, entry{rel: rel})
		default:
			logger.Log.Debug("skipping irregular file", zap.String("path", path))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}
