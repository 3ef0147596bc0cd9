package repository

import (
	"context"
	"errors"

	"faturacao/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrSequenceConflict signals that a concurrent writer advanced the series
// cursor between our read and our compare-and-set. The caller must retry the
// whole allocation + hash + persist unit in a fresh transaction, never just
// the write.
var ErrSequenceConflict = errors.New("series cursor changed by a concurrent writer")

type SeriesRepository interface {
	Create(ctx context.Context, series *model.Series) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Series, error)
	FindByCode(ctx context.Context, code string) (*model.Series, error)
	List(ctx context.Context, fiscalYear int, page, limit int) ([]model.Series, int64, error)
	AllocateNextNumber(ctx context.Context, id uuid.UUID) (int64, error)
	Update(ctx context.Context, series *model.Series) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type seriesRepository struct {
	db *gorm.DB
}

func NewSeriesRepository(db *gorm.DB) SeriesRepository {
	return &seriesRepository{db: db}
}

func (r *seriesRepository) Create(ctx context.Context, series *model.Series) error {
	return GetDB(ctx, r.db).Create(series).Error
}

func (r *seriesRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Series, error) {
	var series model.Series
	if err := GetDB(ctx, r.db).First(&series, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &series, nil
}

func (r *seriesRepository) FindByCode(ctx context.Context, code string) (*model.Series, error) {
	var series model.Series
	if err := GetDB(ctx, r.db).First(&series, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &series, nil
}

func (r *seriesRepository) List(ctx context.Context, fiscalYear int, page, limit int) ([]model.Series, int64, error) {
	var series []model.Series
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.Series{})
	if fiscalYear > 0 {
		query = query.Where("fiscal_year = ?", fiscalYear)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	fetch := db.Order("fiscal_year desc, code asc").Offset(offset).Limit(limit)
	if fiscalYear > 0 {
		fetch = fetch.Where("fiscal_year = ?", fiscalYear)
	}
	if err := fetch.Find(&series).Error; err != nil {
		return nil, 0, err
	}

	return series, total, nil
}

// AllocateNextNumber performs the atomic read-modify-write on the series
// cursor. The guard `current_number = ?` is evaluated by the database, so
// two racing transactions can never both persist the same next value — the
// loser gets ErrSequenceConflict. The first allocation also locks the
// series against structural changes.
func (r *seriesRepository) AllocateNextNumber(ctx context.Context, id uuid.UUID) (int64, error) {
	db := GetDB(ctx, r.db)

	var series model.Series
	if err := db.First(&series, "id = ?", id).Error; err != nil {
		return 0, err
	}

	next := series.CurrentNumber + 1
	res := db.Model(&model.Series{}).
		Where("id = ? AND current_number = ?", id, series.CurrentNumber).
		Updates(map[string]interface{}{
			"current_number": next,
			"is_locked":      true,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrSequenceConflict
	}

	return next, nil
}

func (r *seriesRepository) Update(ctx context.Context, series *model.Series) error {
	return GetDB(ctx, r.db).Save(series).Error
}

func (r *seriesRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.Series{}).Where("id = ?", id).Update("is_active", false).Error
}

func (r *seriesRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Delete(&model.Series{}, "id = ?", id).Error
}
