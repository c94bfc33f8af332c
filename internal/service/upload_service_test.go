package service

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/e-uprava/portal-api/pkg/errors"
	"github.com/e-uprava/portal-api/pkg/storage"
)

type mockUploadStorage struct {
	dir   string
	saved []string
}

func (m *mockUploadStorage) SaveStream(filename string, r io.Reader) (string, error) {
	m.saved = append(m.saved, filename)
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(m.dir, filename), data, 0o600); err != nil {
		return "", err
	}
	return filename, nil
}

func (m *mockUploadStorage) Open(filename string) (*os.File, error) {
	return os.Open(filepath.Join(m.dir, filename))
}

func newUploadFixture(t *testing.T) (*UploadService, *mockUploadStorage) {
	t.Helper()
	store := &mockUploadStorage{dir: t.TempDir()}
	signer := storage.NewSignedURLSigner("upload-test-secret", time.Hour)
	svc := NewUploadService(store, signer, &mockAuditRepo{}, UploadConfig{
		APIPrefix:        "/api/v1",
		MaxFileSizeBytes: 1024,
		AllowedMIMEs:     []string{"application/pdf", "text/plain"},
	}, nil)
	return svc, store
}

func TestUploadServiceStoreAndOpen(t *testing.T) {
	svc, store := newUploadFixture(t)
	data := []byte("%PDF-1.4 mock document body")

	result, err := svc.Store(context.Background(), citizenClaims("cit-1"), "zahtev 2026.pdf", int64(len(data)), bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, "zahtev_2026.pdf", result.Name)
	assert.Equal(t, int64(len(data)), result.Size)
	require.True(t, strings.HasPrefix(result.Link, "/api/v1/uploads/"))
	require.Len(t, store.saved, 1)
	assert.True(t, strings.HasSuffix(store.saved[0], "_zahtev_2026.pdf"))

	stored, err := os.ReadFile(filepath.Join(store.dir, store.saved[0]))
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	token := strings.TrimPrefix(result.Link, "/api/v1/uploads/")
	file, name, err := svc.Open(token)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, store.saved[0], name)
}

func TestUploadServiceStoreStreamsBeyondSniffBuffer(t *testing.T) {
	svc, store := newUploadFixture(t)
	data := append([]byte("%PDF-1.4 "), bytes.Repeat([]byte{'a'}, 900)...)

	result, err := svc.Store(context.Background(), citizenClaims("cit-1"), "dugacak.pdf", int64(len(data)), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), result.Size)

	require.Len(t, store.saved, 1)
	stored, err := os.ReadFile(filepath.Join(store.dir, store.saved[0]))
	require.NoError(t, err)
	assert.Equal(t, data, stored)
}

func TestUploadServiceRejectsEmptyFile(t *testing.T) {
	svc, _ := newUploadFixture(t)

	_, err := svc.Store(context.Background(), citizenClaims("cit-1"), "empty.pdf", 0, bytes.NewReader(nil))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUploadServiceRejectsOversizeFile(t *testing.T) {
	svc, _ := newUploadFixture(t)

	_, err := svc.Store(context.Background(), citizenClaims("cit-1"), "big.pdf", 2048, bytes.NewReader(make([]byte, 2048)))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUploadServiceRejectsDisallowedType(t *testing.T) {
	svc, _ := newUploadFixture(t)
	// PNG magic bytes, not in the allowed list.
	data := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 64)...)

	_, err := svc.Store(context.Background(), citizenClaims("cit-1"), "image.png", int64(len(data)), bytes.NewReader(data))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUploadServiceOpenRejectsBadToken(t *testing.T) {
	svc, _ := newUploadFixture(t)

	_, _, err := svc.Open("not-a-real-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "moj_zahtev-1.pdf", sanitizeFilename("../moj zahtev-1.pdf"))
	assert.Equal(t, "file", sanitizeFilename("???"))
}
