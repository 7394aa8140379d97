package storage

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/repairdesk/internal/domain"
	apperrors "github.com/spec-kit/repairdesk/pkg/util"
)

const defaultMimeType = "application/octet-stream"

// LocalStorage keeps ticket attachments on disk under basePath/<ticketID>/.
type LocalStorage struct {
	basePath string
	maxBytes int64
	maxFiles int
}

// NewLocalStorage creates the base directory if needed.
func NewLocalStorage(basePath string, maxBytes int64, maxFiles int) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	return &LocalStorage{basePath: basePath, maxBytes: maxBytes, maxFiles: maxFiles}, nil
}

// SaveTicketFiles stores every uploaded file for a ticket. The combined size
// must not exceed the configured limit. On failure nothing is left on disk.
func (s *LocalStorage) SaveTicketFiles(ticketID string, files []*multipart.FileHeader) ([]domain.Attachment, error) {
	if len(files) == 0 {
		return []domain.Attachment{}, nil
	}
	if s.maxFiles > 0 && len(files) > s.maxFiles {
		return nil, apperrors.NewValidationError("too many attachments", map[string]any{"max": s.maxFiles})
	}

	var total int64
	for _, f := range files {
		total += f.Size
	}
	if s.maxBytes > 0 && total > s.maxBytes {
		return nil, apperrors.NewPayloadTooLarge("attachments exceed the upload limit", map[string]any{
			"maxBytes":   s.maxBytes,
			"totalBytes": total,
		})
	}

	saved := make([]domain.Attachment, 0, len(files))
	for _, f := range files {
		att, err := s.save(ticketID, f)
		if err != nil {
			_ = s.DeleteTicketFiles(ticketID)
			return nil, err
		}
		saved = append(saved, att)
	}
	return saved, nil
}

func (s *LocalStorage) save(ticketID string, file *multipart.FileHeader) (domain.Attachment, error) {
	src, err := file.Open()
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(file.Filename))
	filename := uuid.NewString() + ext

	dir := filepath.Join(s.basePath, ticketID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.Attachment{}, fmt.Errorf("failed to create ticket directory: %w", err)
	}

	dst, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, src)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("failed to save file: %w", err)
	}

	return domain.Attachment{
		Filename:     filename,
		OriginalName: filepath.Base(file.Filename),
		StoragePath:  filepath.Join(ticketID, filename),
		MimeType:     detectMimeType(file, ext),
		SizeBytes:    written,
	}, nil
}

// Path resolves a stored relative path. Paths escaping the base directory are rejected.
func (s *LocalStorage) Path(relativePath string) (string, error) {
	full := filepath.Join(s.basePath, filepath.Clean("/"+relativePath))
	base := filepath.Clean(s.basePath)
	if full != base && !strings.HasPrefix(full, base+string(os.PathSeparator)) {
		return "", apperrors.NewNotFound("attachment", nil)
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.NewNotFound("attachment", nil)
		}
		return "", err
	}
	return full, nil
}

// DeleteTicketFiles removes a ticket's directory. Missing directories are ignored.
func (s *LocalStorage) DeleteTicketFiles(ticketID string) error {
	if ticketID == "" {
		return nil
	}
	dir := filepath.Join(s.basePath, filepath.Base(ticketID))
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(dir)
}

func detectMimeType(file *multipart.FileHeader, ext string) string {
	if ct := strings.TrimSpace(file.Header.Get("Content-Type")); ct != "" {
		return ct
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		return byExt
	}
	return defaultMimeType
}
