// Package storage keeps task images (public) and chat attachments (private)
// on local disk. Private blobs are only reachable through signed URLs bound
// to the task's participants.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"link2ur.backend/pkg/jwt"
	"link2ur.backend/pkg/logger"
)

const (
	publicDir  = "public"
	privateDir = "private"
)

var (
	ErrInvalidKey = errors.New("invalid storage key")
	ErrNotFound   = errors.New("file not found")
)

// URLSigner issues and checks participant-bound file tokens.
type URLSigner interface {
	Sign(path string, participants []string) (string, error)
	Validate(token, viewer string) (*jwt.FileClaims, error)
}

// Local is a disk-backed store rooted at one directory.
type Local struct {
	root        string
	publicBase  string
	privateBase string
	signer      URLSigner
}

// NewLocal creates the namespace directories under root.
func NewLocal(root, publicBase, privateBase string, signer URLSigner) (*Local, error) {
	for _, dir := range []string{publicDir, privateDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	return &Local{
		root:        root,
		publicBase:  strings.TrimRight(publicBase, "/"),
		privateBase: strings.TrimRight(privateBase, "/"),
		signer:      signer,
	}, nil
}

// PublicDir is the directory served under the public base URL.
func (s *Local) PublicDir() string {
	return filepath.Join(s.root, publicDir)
}

// SavePublic writes r under key and returns its public URL.
func (s *Local) SavePublic(ctx context.Context, key string, r io.Reader) (string, error) {
	if err := s.write(ctx, publicDir, key, r); err != nil {
		return "", err
	}
	return s.PublicURL(key), nil
}

// SavePrivate writes r under key and returns the blob id to store on the
// attachment row.
func (s *Local) SavePrivate(ctx context.Context, key string, r io.Reader) (string, error) {
	if err := s.write(ctx, privateDir, key, r); err != nil {
		return "", err
	}
	return key, nil
}

// PublicURL renders the URL of a public key.
func (s *Local) PublicURL(key string) string {
	return s.publicBase + "/" + strings.TrimLeft(key, "/")
}

// SignedURL renders a private URL that only participants can open until the
// signer's expiry.
func (s *Local) SignedURL(blobID string, participants []string) (string, error) {
	if _, err := s.resolve(privateDir, blobID); err != nil {
		return "", err
	}
	token, err := s.signer.Sign(blobID, participants)
	if err != nil {
		return "", fmt.Errorf("sign file url: %w", err)
	}
	return s.privateBase + "/" + blobID + "?token=" + url.QueryEscape(token), nil
}

// OpenPrivate checks token against blobID and viewer and opens the blob.
func (s *Local) OpenPrivate(blobID, token, viewer string) (*os.File, error) {
	claims, err := s.signer.Validate(token, viewer)
	if err != nil {
		return nil, err
	}
	if claims.Path != blobID {
		return nil, jwt.ErrInvalidToken
	}
	full, err := s.resolve(privateDir, blobID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// DeleteImage removes a public image given its URL or key. Missing files
// are not an error.
func (s *Local) DeleteImage(_ context.Context, ref string) error {
	key := strings.TrimPrefix(ref, s.publicBase+"/")
	return s.remove(publicDir, key)
}

// DeleteBlob removes a private blob. Missing files are not an error.
func (s *Local) DeleteBlob(_ context.Context, blobID string) error {
	return s.remove(privateDir, blobID)
}

// DeleteAll removes task images and attachment blobs, logging and
// continuing past individual failures. It returns how many were removed.
func (s *Local) DeleteAll(ctx context.Context, images, blobs []string) int {
	removed := 0
	for _, img := range images {
		if err := s.DeleteImage(ctx, img); err != nil {
			logger.Warn(ctx, "Failed to delete task image", zap.String("ref", img), zap.Error(err))
			continue
		}
		removed++
	}
	for _, b := range blobs {
		if err := s.DeleteBlob(ctx, b); err != nil {
			logger.Warn(ctx, "Failed to delete attachment blob", zap.String("blob_id", b), zap.Error(err))
			continue
		}
		removed++
	}
	return removed
}

func (s *Local) write(ctx context.Context, ns, key string, r io.Reader) error {
	full, err := s.resolve(ns, key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), full)
}

func (s *Local) remove(ns, key string) error {
	full, err := s.resolve(ns, key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// resolve maps key into the namespace directory, rejecting anything that
// would escape it.
func (s *Local) resolve(ns, key string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.root, ns, clean), nil
}
