package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"link2ur.backend/internal/infrastructure/storage"
	"link2ur.backend/pkg/jwt"
)

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func upload(r http.Handler, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestFileHandler_PrivateRoundTrip(t *testing.T) {
	signer := jwt.NewFileURLService([]byte("image-secret"), time.Hour, nil)
	store, err := storage.NewLocal(t.TempDir(), "/uploads/public", "/api/files/private", signer)
	require.NoError(t, err)
	h := NewFileHandler(store)

	router := func(userID string) http.Handler {
		r := newTestRouter()
		g := r.Group("/api", asUser(userID))
		g.POST("/upload/image", h.UploadImage)
		g.POST("/upload/file", h.UploadFile)
		g.GET("/files/private/*blob", h.GetPrivateFile)
		return r
	}
	poster := router(testPoster)

	body, ct := multipartBody(t, "notes.txt", "hello")
	assert.Equal(t, http.StatusBadRequest, upload(poster, "/api/upload/image", body, ct).Code, "not an image")

	body, ct = multipartBody(t, "cover.PNG", "png-bytes")
	w := upload(poster, "/api/upload/image", body, ct)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"url":"/uploads/public/tasks/`)

	body, ct = multipartBody(t, "notes.txt", "hello")
	w = upload(poster, "/api/upload/file", body, ct)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var blobID string
	for _, part := range strings.Split(w.Body.String(), `"`) {
		if strings.HasPrefix(part, "chat/") {
			blobID = part
		}
	}
	require.NotEmpty(t, blobID)

	signed, err := store.SignedURL(blobID, []string{testPoster, testTaker})
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)

	w = perform(router(testTaker), http.MethodGet, u.RequestURI(), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "hello", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

	assert.Equal(t, http.StatusForbidden, perform(router("10000009"), http.MethodGet, u.RequestURI(), "").Code)
	assert.Equal(t, http.StatusForbidden, perform(poster, http.MethodGet, u.Path+"?token=forged", "").Code)
	assert.Equal(t, http.StatusBadRequest, perform(poster, http.MethodGet, u.Path, "").Code)

	otherBlob, err := store.SignedURL(blobID, []string{testPoster})
	require.NoError(t, err)
	ou, _ := url.Parse(otherBlob)
	w = perform(poster, http.MethodGet, "/api/files/private/chat/other.txt?"+ou.RawQuery, "")
	assert.Equal(t, http.StatusForbidden, w.Code, "a token is bound to its path")
}
