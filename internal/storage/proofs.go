package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ProofStore хранит скриншоты оплаты: "сохранить байты, вернуть URL".
type ProofStore interface {
	Save(ctx context.Context, originalName string, r io.Reader) (string, error)
}

type diskProofStore struct {
	dir          string
	publicPrefix string
}

func NewDiskProofStore(dir, publicPrefix string) (ProofStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads dir: %w", err)
	}
	return &diskProofStore{dir: dir, publicPrefix: strings.TrimRight(publicPrefix, "/")}, nil
}

var allowedProofExt = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}

func (s *diskProofStore) Save(ctx context.Context, originalName string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowedProofExt[ext] {
		ext = ""
	}
	name := uuid.NewString() + ext

	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create proof file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write proof file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path.Join(s.publicPrefix, name), nil
}
