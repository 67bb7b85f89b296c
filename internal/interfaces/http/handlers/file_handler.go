package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/infrastructure/storage"
	"link2ur.backend/internal/interfaces/http/response"
	"link2ur.backend/pkg/jwt"
	"link2ur.backend/pkg/utils"
)

const maxUploadSize = 10 << 20

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".heic": true}

type FileStorage interface {
	SavePublic(ctx context.Context, key string, r io.Reader) (string, error)
	SavePrivate(ctx context.Context, key string, r io.Reader) (string, error)
	OpenPrivate(blobID, token, viewer string) (*os.File, error)
}

// FileHandler handles uploads and signed private downloads
type FileHandler struct {
	files FileStorage
}

func NewFileHandler(files FileStorage) *FileHandler {
	return &FileHandler{files: files}
}

// UploadImage stores a public task image
// POST /api/upload/image
func (h *FileHandler) UploadImage(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	src, ext, ok := openUpload(c)
	if !ok {
		return
	}
	defer src.Close()
	if !imageExtensions[ext] {
		response.Error(c, domainerrors.BadRequest("Unsupported image type"))
		return
	}

	key := path.Join("tasks", utils.GenerateUUIDv7().String()+ext)
	url, err := h.files.SavePublic(c.Request.Context(), key, src)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"url": url})
}

// UploadFile stores a private chat attachment and returns its blob id
// POST /api/upload/file
func (h *FileHandler) UploadFile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	src, ext, ok := openUpload(c)
	if !ok {
		return
	}
	defer src.Close()

	key := path.Join("chat", userID, utils.GenerateUUIDv7().String()+ext)
	blobID, err := h.files.SavePrivate(c.Request.Context(), key, src)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"blob_id": blobID})
}

// GetPrivateFile streams a private blob to a participant holding a valid token
// GET /api/files/private/*blob?token=
func (h *FileHandler) GetPrivateFile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	blobID := strings.TrimPrefix(c.Param("blob"), "/")
	token := c.Query("token")
	if blobID == "" || token == "" {
		response.Error(c, domainerrors.BadRequest("blob and token are required"))
		return
	}

	f, err := h.files.OpenPrivate(blobID, token, userID)
	switch {
	case errors.Is(err, jwt.ErrExpiredToken):
		response.Error(c, domainerrors.Forbidden("File link has expired"))
		return
	case errors.Is(err, jwt.ErrInvalidToken), errors.Is(err, jwt.ErrNotAllowed):
		response.Error(c, domainerrors.Forbidden("Not allowed to view this file"))
		return
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidKey):
		response.Error(c, domainerrors.NotFound("File not found"))
		return
	case err != nil:
		response.Error(c, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		response.Error(c, err)
		return
	}
	if ct := mime.TypeByExtension(filepath.Ext(blobID)); ct != "" {
		c.Header("Content-Type", ct)
	}
	c.Header("Cache-Control", "private, max-age=300")
	http.ServeContent(c.Writer, c.Request, filepath.Base(blobID), info.ModTime(), f)
}

func openUpload(c *gin.Context) (io.ReadCloser, string, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, domainerrors.BadRequest("file is required and must be at most 10MB"))
		return nil, "", false
	}
	src, err := header.Open()
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Failed to read upload"))
		return nil, "", false
	}
	return src, strings.ToLower(filepath.Ext(header.Filename)), true
}
