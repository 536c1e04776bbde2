// Package storage uploads listing and profile images and returns the public
// URL plus the id needed to delete them later.
package storage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/diagnosis/parkspot/internal/domain"
	"github.com/diagnosis/parkspot/pkg/config"
	"github.com/google/uuid"
)

// MaxImageBytes caps a single uploaded image.
const MaxImageBytes = 5 << 20

type Upload struct {
	Filename string
	Body     io.Reader
}

type ImageStore interface {
	Upload(ctx context.Context, folder string, f Upload) (domain.Image, error)
	Delete(ctx context.Context, publicID string) error
}

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// sniff reads the leading bytes to decide the content type and returns a
// reader that still yields the whole body.
func sniff(body io.Reader) (contentType, ext string, r io.Reader, err error) {
	br := bufio.NewReaderSize(body, 512)
	head, err := br.Peek(512)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return "", "", nil, fmt.Errorf("read upload: %w", err)
	}
	if len(head) == 0 {
		return "", "", nil, domain.ValidationError("Uploaded image is empty")
	}
	contentType = http.DetectContentType(head)
	ext, ok := allowedTypes[contentType]
	if !ok {
		return "", "", nil, domain.ValidationError("Only JPEG, PNG, GIF and WebP images are allowed")
	}
	return contentType, ext, io.LimitReader(br, MaxImageBytes+1), nil
}

// objectKey is folder/sub/<uuid><ext>; the key doubles as the public id.
func objectKey(root, folder, ext string) string {
	return path.Join(strings.Trim(root, "/"), strings.Trim(folder, "/"), uuid.NewString()+ext)
}

// New picks the backend named by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (ImageStore, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3Store(ctx, cfg)
	case "local", "":
		return NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL, cfg.Folder)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
