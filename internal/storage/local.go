package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/diagnosis/parkspot/internal/domain"
)

// LocalStore writes images under a directory that the API serves at baseURL.
type LocalStore struct {
	dir     string
	baseURL string
	folder  string
}

func NewLocalStore(dir, baseURL, folder string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), folder: folder}, nil
}

func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) Upload(ctx context.Context, folder string, f Upload) (domain.Image, error) {
	_, ext, body, err := sniff(f.Body)
	if err != nil {
		return domain.Image{}, err
	}

	key := objectKey(s.folder, folder, ext)
	full := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return domain.Image{}, domain.UpstreamError("Image upload failed", err)
	}

	out, err := os.Create(full)
	if err != nil {
		return domain.Image{}, domain.UpstreamError("Image upload failed", err)
	}
	n, err := io.Copy(out, body)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(full)
		return domain.Image{}, domain.UpstreamError("Image upload failed", err)
	}
	if n > MaxImageBytes {
		_ = os.Remove(full)
		return domain.Image{}, domain.ValidationError("Image is larger than 5MB")
	}
	return domain.Image{URL: s.baseURL + "/" + key, PublicID: key}, nil
}

func (s *LocalStore) Delete(ctx context.Context, publicID string) error {
	clean := filepath.Clean("/" + publicID)
	if err := os.Remove(filepath.Join(s.dir, clean)); err != nil && !os.IsNotExist(err) {
		return domain.UpstreamError("Image delete failed", err)
	}
	return nil
}
