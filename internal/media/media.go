// Package media uploads user-supplied files to an S3-compatible media host.
// The upload contract is path-based: handlers spool multipart parts to a
// temp file and hand over the path; the temp file is removed after the
// upload attempt whether or not it succeeded.
package media

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
)

// Uploader stores a local file on the media host and returns its public URL.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, keyPrefix string) (string, error)
}

// SpoolTempFile copies a multipart part into dir and returns the temp file
// path. The caller owns the file; Uploader implementations remove it.
func SpoolTempFile(dir string, part multipart.File, filename string) (string, error) {
	ext := filepath.Ext(filename)
	tmp, err := os.CreateTemp(dir, "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(tmp, part); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("spool upload: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return tmp.Name(), nil
}
