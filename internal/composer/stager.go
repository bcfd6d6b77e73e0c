package composer

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/api"
	"github.com/spec-kit/support-chat/internal/config"
	"github.com/spec-kit/support-chat/internal/domain"
	apperrors "github.com/spec-kit/support-chat/pkg/util"
)

// StagedAttachment is an uploaded file waiting for the send that will
// reference it.
type StagedAttachment struct {
	ID string
	domain.Attachment
}

// Stager validates and uploads files ahead of the message that carries
// them. The size gate runs before any network call; it spares wasted
// uploads but the backend still revalidates.
type Stager struct {
	api    api.TicketAPI
	limit  int64
	logger *zap.Logger

	mu     sync.Mutex
	staged []StagedAttachment
}

// NewStager builds a stager with the ceiling for the given role.
func NewStager(backend api.TicketAPI, role domain.Role, cfg config.UploadConfig, logger *zap.Logger) *Stager {
	limit := cfg.SellerMaxBytes
	if role == domain.RoleAdmin {
		limit = cfg.AdminMaxBytes
	}
	return &Stager{api: backend, limit: limit, logger: logger}
}

// Stage uploads a file immediately and holds the returned descriptor
// until a send consumes it or the user removes it.
func (s *Stager) Stage(ctx context.Context, ticketID, filename string, r io.Reader, size int64) (*StagedAttachment, error) {
	if size > s.limit {
		return nil, apperrors.NewValidationError("file exceeds the upload limit", map[string]any{
			"filename": filename,
			"size":     size,
			"limit":    s.limit,
		})
	}

	attachment, err := s.api.Upload(ctx, ticketID, filename, r, size)
	if err != nil {
		return nil, err
	}

	staged := StagedAttachment{ID: uuid.NewString(), Attachment: *attachment}
	s.mu.Lock()
	s.staged = append(s.staged, staged)
	s.mu.Unlock()
	return &staged, nil
}

// Remove drops one staged attachment by its staging id.
func (s *Stager) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, staged := range s.staged {
		if staged.ID == id {
			s.staged = append(s.staged[:i], s.staged[i+1:]...)
			return true
		}
	}
	return false
}

// List returns the staged attachments with their staging ids.
func (s *Stager) List() []StagedAttachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StagedAttachment, len(s.staged))
	copy(out, s.staged)
	return out
}

// Staged returns the attachment descriptors a send would carry.
func (s *Stager) Staged() []domain.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Attachment, 0, len(s.staged))
	for _, staged := range s.staged {
		out = append(out, staged.Attachment)
	}
	return out
}

// ConsumeAll empties the stage and returns what it held.
func (s *Stager) ConsumeAll() []domain.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Attachment, 0, len(s.staged))
	for _, staged := range s.staged {
		out = append(out, staged.Attachment)
	}
	s.staged = nil
	return out
}

// Limit returns the role's byte ceiling.
func (s *Stager) Limit() int64 {
	return s.limit
}
