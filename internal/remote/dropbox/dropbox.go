package dropbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"packrat/internal/auth"
	"packrat/internal/logger"
	"packrat/internal/remote"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"go.uber.org/zap"
)

const defaultChunkMB = 8

type Client struct {
	client    files.Client
	folder    string
	chunkSize int64
}

// chunkBytes guards the session loop: a zero or negative configured chunk
// would never advance the offset.
func chunkBytes(chunkMB int) int64 {
	if chunkMB <= 0 {
		chunkMB = defaultChunkMB
	}

	return int64(chunkMB) << 20
}

// New authenticates against Dropbox and prepares the destination folder.
func New(ctx context.Context, folder string, chunkMB int) (*Client, error) {
	token, err := auth.DropboxAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	c := &Client{
		client:    files.New(dropbox.Config{Token: token}),
		folder:    normalizePath(folder),
		chunkSize: chunkBytes(chunkMB),
	}

	if err := c.ensureFolder(); err != nil {
		return nil, fmt.Errorf("failed to prepare dropbox folder: %w", classify(err))
	}

	logger.Log.Debug("dropbox client ready", zap.String("folder", c.folder))

	return c, nil
}

func (c *Client) Name() string {
	return "dropbox"
}

// Upload sends the archive with overwrite semantics keyed by name, so a
// retried upload never produces a duplicate. Archives larger than one
// chunk go through an upload session so no single request carries the
// whole file; a retry after a transient failure starts a fresh session.
func (c *Client) Upload(ctx context.Context, archivePath string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	dropboxPath := c.folder + "/" + filepath.Base(archivePath)

	if info.Size() <= c.chunkSize {
		arg := files.NewUploadArg(dropboxPath)
		arg.Mode = &files.WriteMode{Tagged: dropbox.Tagged{Tag: "overwrite"}}
		arg.Autorename = false

		meta, err := c.client.Upload(arg, f)
		if err != nil {
			return "", fmt.Errorf("failed to upload to dropbox: %w", classify(err))
		}

		return "dropbox:" + meta.PathDisplay, nil
	}

	return c.uploadSession(ctx, f, info.Size(), dropboxPath)
}

func (c *Client) uploadSession(ctx context.Context, f *os.File, size int64, dropboxPath string) (string, error) {
	start, err := c.client.UploadSessionStart(
		files.NewUploadSessionStartArg(),
		io.LimitReader(f, c.chunkSize))
	if err != nil {
		return "", fmt.Errorf("failed to start upload session: %w", classify(err))
	}

	offset := min(c.chunkSize, size)

	for size-offset > c.chunkSize {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		cursor := files.NewUploadSessionCursor(start.SessionId, uint64(offset))
		arg := files.NewUploadSessionAppendArg(cursor)
		if err := c.client.UploadSessionAppendV2(arg, io.LimitReader(f, c.chunkSize)); err != nil {
			return "", fmt.Errorf("failed to append upload chunk: %w", classify(err))
		}

		offset += c.chunkSize
	}

	cursor := files.NewUploadSessionCursor(start.SessionId, uint64(offset))
	commit := files.NewCommitInfo(dropboxPath)
	commit.Mode = &files.WriteMode{Tagged: dropbox.Tagged{Tag: "overwrite"}}
	commit.Autorename = false

	meta, err := c.client.UploadSessionFinish(
		files.NewUploadSessionFinishArg(cursor, commit),
		io.LimitReader(f, c.chunkSize))
	if err != nil {
		return "", fmt.Errorf("failed to finish upload session: %w", classify(err))
	}

	return "dropbox:" + meta.PathDisplay, nil
}

func (c *Client) ensureFolder() error {
	arg := files.NewCreateFolderArg(c.folder)
	if _, err := c.client.CreateFolderV2(arg); err != nil {
		if strings.Contains(err.Error(), "conflict") {
			return nil
		}

		return err
	}

	return nil
}

func normalizePath(folder string) string {
	folder = strings.Trim(folder, "/")
	return "/" + folder
}

func classify(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "insufficient_space"):
		return fmt.Errorf("%w: %v", remote.ErrQuotaExceeded, err)
	case strings.Contains(msg, "invalid_access_token"),
		strings.Contains(msg, "expired_access_token"):
		return fmt.Errorf("%w: %v", remote.ErrAuthRejected, err)
	}

	return err
}
