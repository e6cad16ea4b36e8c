package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// UploadFile uploads the spreadsheet at path
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	taskID, err := c.Upload(ctx, filepath.Base(path), file)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", path, err)
	}
	return taskID, nil
}

// DownloadFile saves the results of a completed task to destPath. No file is
// left behind if the download fails.
func (c *Client) DownloadFile(ctx context.Context, taskID, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if err := c.Download(ctx, taskID, file); err != nil {
		file.Close()
		os.Remove(destPath)
		return fmt.Errorf("failed to download results: %w", err)
	}

	return file.Close()
}
