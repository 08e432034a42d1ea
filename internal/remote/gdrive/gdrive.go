package gdrive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"packrat/internal/auth"
	"packrat/internal/logger"
	"packrat/internal/remote"

	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const folderMimeType = "application/vnd.google-apps.folder"

type Client struct {
	svc       *drive.Service
	folder    string
	folderID  string
	chunkSize int
}

// New authenticates against Google Drive and ensures the destination
// folder path exists.
func New(ctx context.Context, folder string, chunkMB int) (*Client, error) {
	svc, err := auth.NewDriveService(ctx)
	if err != nil {
		return nil, err
	}

	c := &Client{
		svc:       svc,
		folder:    strings.Trim(folder, "/"),
		chunkSize: chunkMB << 20,
	}

	folderID, err := c.ensureFolderPath(ctx, c.folder)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare gdrive folder: %w", classify(err))
	}
	c.folderID = folderID

	logger.Log.Debug("gdrive client ready",
		zap.String("folder", c.folder),
		zap.String("folder_id", folderID))

	return c, nil
}

func (c *Client) Name() string {
	return "gdrive"
}

// Upload sends the archive into the destination folder. An existing file
// of the same name is updated in place, so a retried upload never leaves
// a duplicate object. The Drive client performs the transfer as a
// resumable chunked upload.
func (c *Client) Upload(ctx context.Context, archivePath string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	name := filepath.Base(archivePath)

	existingID, err := c.findFile(ctx, name, c.folderID)
	if err != nil {
		return "", classify(err)
	}

	if existingID != "" {
		updated, err := c.svc.Files.Update(existingID, &drive.File{}).
			Media(f, googleapi.ChunkSize(c.chunkSize)).
			Context(ctx).
			Fields("id").
			Do()
		if err != nil {
			return "", fmt.Errorf("failed to update file: %w", classify(err))
		}

		return "gdrive:" + updated.Id, nil
	}

	created, err := c.svc.Files.Create(&drive.File{
		Name:    name,
		Parents: []string{c.folderID},
	}).
		Media(f, googleapi.ChunkSize(c.chunkSize)).
		Context(ctx).
		Fields("id").
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", classify(err))
	}

	return "gdrive:" + created.Id, nil
}

func (c *Client) ensureFolderPath(ctx context.Context, folderPath string) (string, error) {
	parentID := "root"
	for _, part := range strings.Split(folderPath, "/") {
		if part == "" {
			continue
		}

		id, err := c.findFolder(ctx, part, parentID)
		if err != nil {
			return "", err
		}

		if id == "" {
			id, err = c.createFolder(ctx, part, parentID)
			if err != nil {
				return "", err
			}
		}

		parentID = id
	}

	return parentID, nil
}

func (c *Client) findFolder(ctx context.Context, name, parentID string) (string, error) {
	q := fmt.Sprintf("name='%s' and '%s' in parents and mimeType='%s' and trashed=false",
		escapeName(name), parentID, folderMimeType)

	list, err := c.svc.Files.List().Q(q).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if len(list.Files) == 0 {
		return "", nil
	}

	return list.Files[0].Id, nil
}

func (c *Client) findFile(ctx context.Context, name, parentID string) (string, error) {
	q := fmt.Sprintf("name='%s' and '%s' in parents and trashed=false",
		escapeName(name), parentID)

	list, err := c.svc.Files.List().Q(q).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if len(list.Files) == 0 {
		return "", nil
	}

	return list.Files[0].Id, nil
}

func (c *Client) createFolder(ctx context.Context, name, parentID string) (string, error) {
	created, err := c.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}).Context(ctx).Fields("id").Do()
	if err != nil {
		return "", err
	}

	return created.Id, nil
}

func escapeName(name string) string {
	return strings.ReplaceAll(name, "'", "\\'")
}

func classify(err error) error {
	gerr, ok := errors.AsType[*googleapi.Error](err)
	if !ok {
		return err
	}

	switch {
	case gerr.Code == 401:
		return fmt.Errorf("%w: %v", remote.ErrAuthRejected, err)
	case gerr.Code == 403 && hasReason(gerr, "storageQuotaExceeded", "quotaExceeded"):
		return fmt.Errorf("%w: %v", remote.ErrQuotaExceeded, err)
	case gerr.Code == 403 && !hasReason(gerr, "rateLimitExceeded", "userRateLimitExceeded"):
		return fmt.Errorf("%w: %v", remote.ErrAuthRejected, err)
	}

	return err
}

func hasReason(gerr *googleapi.Error, reasons ...string) bool {
	for _, item := range gerr.Errors {
		for _, reason := range reasons {
			if item.Reason == reason {
				return true
			}
		}
	}

	return false
}
