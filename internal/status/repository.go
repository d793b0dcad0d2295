package status

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	pkglog "github.com/alefe53/mis-esencias-live/pkg/log"
)

// Status is the persisted global live flag.
type Status struct {
	IsLive    bool      `json:"is_live"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusModel is the GORM model for the broadcast_status table. The table
// holds a single row; the fixed primary key makes every write an upsert of
// that row.
type StatusModel struct {
	ID        int       `gorm:"primaryKey"`
	IsLive    bool      `gorm:"not null;default:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for StatusModel.
func (StatusModel) TableName() string {
	return "broadcast_status"
}

const statusRowID = 1

// Repository defines persistence for the live flag.
type Repository interface {
	Get(ctx context.Context) (Status, error)
	Set(ctx context.Context, live bool) (Status, error)
}

// GormRepository implements Repository using GORM.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new GORM-based status repository.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Get reads the persisted flag. A missing row reads as not live.
func (r *GormRepository) Get(ctx context.Context) (Status, error) {
	l := pkglog.Ctx(ctx)

	var model StatusModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", statusRowID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return Status{IsLive: false}, nil
		}
		l.Error().Err(result.Error).Msg("failed to read broadcast status")
		return Status{}, result.Error
	}
	return Status{IsLive: model.IsLive, UpdatedAt: model.UpdatedAt}, nil
}

// Set upserts the single status row.
func (r *GormRepository) Set(ctx context.Context, live bool) (Status, error) {
	l := pkglog.Ctx(ctx)

	model := StatusModel{ID: statusRowID, IsLive: live, UpdatedAt: time.Now().UTC()}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_live", "updated_at"}),
	}).Create(&model)
	if result.Error != nil {
		l.Error().Err(result.Error).Bool("is_live", live).Msg("failed to persist broadcast status")
		return Status{}, result.Error
	}

	l.Debug().Bool("is_live", live).Msg("broadcast status persisted")
	return Status{IsLive: model.IsLive, UpdatedAt: model.UpdatedAt}, nil
}
