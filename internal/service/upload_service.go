package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/e-uprava/portal-api/internal/models"
	appErrors "github.com/e-uprava/portal-api/pkg/errors"
	"github.com/e-uprava/portal-api/pkg/storage"
)

type uploadStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
}

type uploadAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// UploadConfig tunes upload limits and link generation.
type UploadConfig struct {
	APIPrefix        string
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// UploadResult describes a stored file and its signed download link.
type UploadResult struct {
	FileID string `json:"file_id"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Link   string `json:"link"`
}

// UploadService stores attachment files and builds signed download links.
type UploadService struct {
	storage uploadStorage
	signer  *storage.SignedURLSigner
	audit   uploadAuditRepository
	cfg     UploadConfig
	logger  *zap.Logger
}

// NewUploadService constructs an UploadService.
func NewUploadService(store uploadStorage, signer *storage.SignedURLSigner, audit uploadAuditRepository, cfg UploadConfig, logger *zap.Logger) *UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = 10 << 20
	}
	return &UploadService{storage: store, signer: signer, audit: audit, cfg: cfg, logger: logger}
}

// Store persists an uploaded file and returns its signed download link. The
// link is what the request lifecycle stores verbatim as the attachment. The
// file body is streamed to disk; only a sniff buffer is held for MIME
// detection.
func (s *UploadService) Store(ctx context.Context, actor models.JWTClaims, originalName string, size int64, r io.Reader) (*UploadResult, error) {
	if size <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "uploaded file is empty")
	}
	if size > s.cfg.MaxFileSizeBytes {
		return nil, appErrors.Validationf("file exceeds the %d byte limit", s.cfg.MaxFileSizeBytes)
	}

	sniff := make([]byte, 512)
	n, err := io.ReadFull(r, sniff)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read file")
	}
	if n == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "uploaded file is empty")
	}

	contentType := http.DetectContentType(sniff[:n])
	if !s.mimeAllowed(contentType) {
		return nil, appErrors.Validationf("file type %q is not allowed", contentType)
	}

	fileID := uuid.NewString()
	safeName := sanitizeFilename(originalName)
	storedName := fmt.Sprintf("%s_%s", fileID, safeName)

	body := io.MultiReader(bytes.NewReader(sniff[:n]), io.LimitReader(r, size-int64(n)))
	relPath, err := s.storage.SaveStream(storedName, body)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}

	token, _, err := s.signer.Generate(fileID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actor.UserID,
			Action:     models.AuditActionUpload,
			Resource:   "uploads",
			ResourceID: &fileID,
			NewValues:  []byte(fmt.Sprintf(`{"name":%q,"size":%d}`, safeName, size)),
		}); err != nil {
			s.logger.Warn("failed to record upload audit log", zap.Error(err))
		}
	}

	return &UploadResult{
		FileID: fileID,
		Name:   safeName,
		Size:   size,
		Link:   fmt.Sprintf("%s/uploads/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token),
	}, nil
}

// Open validates a signed token and opens the underlying file for download.
func (s *UploadService) Open(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download link")
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}

	return file, filepath.Base(relPath), nil
}

func (s *UploadService) mimeAllowed(contentType string) bool {
	if len(s.cfg.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedMIMEs {
		if strings.HasPrefix(contentType, allowed) {
			return true
		}
	}
	return false
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, " ", "_")
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}
