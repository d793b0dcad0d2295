package recording

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	pkglog "github.com/alefe53/mis-esencias-live/pkg/log"
)

var ErrSessionNotFound = errors.New("recording session not found")

// Row states for a recording session.
const (
	RowStatusOpen      = "open"
	RowStatusComplete  = "complete"
	RowStatusAbandoned = "abandoned"
)

// Session is a persisted recording session bracketing an egress job.
type Session struct {
	EgressID        string     `json:"egress_id"`
	RoomID          string     `json:"room_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	StoragePath     string     `json:"storage_path,omitempty"`
	DurationSeconds int        `json:"duration_seconds,omitempty"`
}

// SessionModel is the GORM model for the recording_sessions table.
type SessionModel struct {
	EgressID        string `gorm:"type:varchar(64);primaryKey"`
	RoomID          string `gorm:"type:varchar(64);index;not null"`
	Title           string `gorm:"type:varchar(200);not null"`
	Description     string `gorm:"type:text"`
	Status          string `gorm:"type:varchar(20);index;not null;default:'open'"`
	StartedAt       time.Time
	EndedAt         *time.Time
	StoragePath     string `gorm:"type:varchar(500)"`
	DurationSeconds int    `gorm:"default:0"`
}

// TableName specifies the table name for SessionModel.
func (SessionModel) TableName() string {
	return "recording_sessions"
}

// ToDomain converts SessionModel to a domain Session.
func (m *SessionModel) ToDomain() *Session {
	return &Session{
		EgressID:        m.EgressID,
		RoomID:          m.RoomID,
		Title:           m.Title,
		Description:     m.Description,
		Status:          m.Status,
		StartedAt:       m.StartedAt,
		EndedAt:         m.EndedAt,
		StoragePath:     m.StoragePath,
		DurationSeconds: m.DurationSeconds,
	}
}

// Repository defines persistence for recording sessions.
type Repository interface {
	Create(ctx context.Context, session *Session) error
	GetByJob(ctx context.Context, egressID string) (*Session, error)
	Finalize(ctx context.Context, egressID, storagePath string, endedAt time.Time, durationSeconds int) error
	MarkAbandoned(ctx context.Context, egressID string, endedAt time.Time) error
	ListOpenOlderThan(ctx context.Context, cutoff time.Time) ([]Session, error)
	ListComplete(ctx context.Context, limit int) ([]Session, error)
}

// GormRepository implements Repository using GORM.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new GORM-based recording repository.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Create persists a new open session row.
func (r *GormRepository) Create(ctx context.Context, session *Session) error {
	l := pkglog.Ctx(ctx)

	session.Status = RowStatusOpen
	model := SessionModel{
		EgressID:    session.EgressID,
		RoomID:      session.RoomID,
		Title:       session.Title,
		Description: session.Description,
		Status:      session.Status,
		StartedAt:   session.StartedAt,
	}
	if result := r.db.WithContext(ctx).Create(&model); result.Error != nil {
		l.Error().Err(result.Error).Str(pkglog.FieldJobID, session.EgressID).Msg("failed to create recording session")
		return result.Error
	}
	l.Debug().Str(pkglog.FieldJobID, session.EgressID).Msg("recording session created")
	return nil
}

// GetByJob retrieves a session by its egress job id.
func (r *GormRepository) GetByJob(ctx context.Context, egressID string) (*Session, error) {
	var model SessionModel
	result := r.db.WithContext(ctx).First(&model, "egress_id = ?", egressID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// Finalize closes an open row with the terminal file info.
func (r *GormRepository) Finalize(ctx context.Context, egressID, storagePath string, endedAt time.Time, durationSeconds int) error {
	l := pkglog.Ctx(ctx)

	result := r.db.WithContext(ctx).Model(&SessionModel{}).
		Where("egress_id = ? AND status = ?", egressID, RowStatusOpen).
		Updates(map[string]interface{}{
			"status":           RowStatusComplete,
			"ended_at":         endedAt,
			"storage_path":     storagePath,
			"duration_seconds": durationSeconds,
		})
	if result.Error != nil {
		l.Error().Err(result.Error).Str(pkglog.FieldJobID, egressID).Msg("failed to finalize recording session")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	l.Debug().Str(pkglog.FieldJobID, egressID).Msg("recording session finalized")
	return nil
}

// MarkAbandoned closes an open row without file info.
func (r *GormRepository) MarkAbandoned(ctx context.Context, egressID string, endedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&SessionModel{}).
		Where("egress_id = ? AND status = ?", egressID, RowStatusOpen).
		Updates(map[string]interface{}{
			"status":   RowStatusAbandoned,
			"ended_at": endedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListOpenOlderThan returns open rows started before the cutoff.
func (r *GormRepository) ListOpenOlderThan(ctx context.Context, cutoff time.Time) ([]Session, error) {
	var models []SessionModel
	result := r.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", RowStatusOpen, cutoff).
		Order("started_at ASC").
		Find(&models)
	if result.Error != nil {
		return nil, result.Error
	}

	sessions := make([]Session, len(models))
	for i, model := range models {
		sessions[i] = *model.ToDomain()
	}
	return sessions, nil
}

// ListComplete returns the most recent finalized rows.
func (r *GormRepository) ListComplete(ctx context.Context, limit int) ([]Session, error) {
	if limit < 1 {
		limit = 50
	}

	var models []SessionModel
	result := r.db.WithContext(ctx).
		Where("status = ?", RowStatusComplete).
		Order("started_at DESC").
		Limit(limit).
		Find(&models)
	if result.Error != nil {
		return nil, result.Error
	}

	sessions := make([]Session, len(models))
	for i, model := range models {
		sessions[i] = *model.ToDomain()
	}
	return sessions, nil
}
