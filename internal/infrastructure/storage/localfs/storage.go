// Package localfs keeps index snapshots as zstd-compressed files.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/klauspost/compress/zstd"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

const snapshotExt = ".snap.zst"

var fingerprintPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/snapshots"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) path(fingerprint string) (string, error) {
	if !fingerprintPattern.MatchString(fingerprint) {
		return "", domain.WrapError(domain.ErrInvalidInput, "snapshot path", fmt.Errorf("invalid fingerprint %q", fingerprint))
	}
	return filepath.Join(s.basePath, fingerprint+snapshotExt), nil
}

// Save writes to a temporary file and renames it, so a crash never leaves
// a truncated snapshot under the final name.
func (s *Storage) Save(_ context.Context, fingerprint string, data []byte) error {
	path, err := s.path(fingerprint)
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(s.basePath, fingerprint+".*.tmp")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("flush zstd writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

func (s *Storage) Load(_ context.Context, fingerprint string) ([]byte, error) {
	path, err := s.path(fingerprint)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrSnapshotNotFound, "load snapshot", err)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}
