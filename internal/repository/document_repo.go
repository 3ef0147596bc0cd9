package repository

import (
	"context"
	"time"

	"faturacao/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DocumentListFilter narrows List results. Zero values mean "no filter".
type DocumentListFilter struct {
	SeriesID     *uuid.UUID
	DocumentType string
	Status       string
	Page         int
	Limit        int
}

type DocumentRepository interface {
	Create(ctx context.Context, doc *model.FiscalDocument) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.FiscalDocument, error)
	// FindLatestInSeries returns the highest-numbered document of a series,
	// annulled or not — annulment never removes a document from the chain.
	// Returns gorm.ErrRecordNotFound for a virgin series.
	FindLatestInSeries(ctx context.Context, seriesID uuid.UUID) (*model.FiscalDocument, error)
	// ListBySeriesAscending returns every document of a series ordered by
	// allocated number, for chain verification.
	ListBySeriesAscending(ctx context.Context, seriesID uuid.UUID) ([]model.FiscalDocument, error)
	List(ctx context.Context, filter DocumentListFilter) ([]model.FiscalDocument, int64, error)
	Annul(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	SetQRPayload(ctx context.Context, id uuid.UUID, payload string) error
	MarkPaid(ctx context.Context, id uuid.UUID, at time.Time) error
}

type documentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *model.FiscalDocument) error {
	return GetDB(ctx, r.db).Create(doc).Error
}

func (r *documentRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.FiscalDocument, error) {
	var doc model.FiscalDocument
	if err := GetDB(ctx, r.db).
		Preload("Lines").
		Preload("Series").
		Preload("Client").
		First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindLatestInSeries(ctx context.Context, seriesID uuid.UUID) (*model.FiscalDocument, error) {
	var doc model.FiscalDocument
	if err := GetDB(ctx, r.db).
		Where("series_id = ?", seriesID).
		Order("number desc").
		First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) ListBySeriesAscending(ctx context.Context, seriesID uuid.UUID) ([]model.FiscalDocument, error) {
	var docs []model.FiscalDocument
	if err := GetDB(ctx, r.db).
		Where("series_id = ?", seriesID).
		Order("number asc").
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *documentRepository) List(ctx context.Context, filter DocumentListFilter) ([]model.FiscalDocument, int64, error) {
	var docs []model.FiscalDocument
	var total int64

	db := GetDB(ctx, r.db)
	apply := func(q *gorm.DB) *gorm.DB {
		if filter.SeriesID != nil {
			q = q.Where("series_id = ?", *filter.SeriesID)
		}
		if filter.DocumentType != "" {
			q = q.Where("document_type = ?", filter.DocumentType)
		}
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		return q
	}

	if err := apply(db.Model(&model.FiscalDocument{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := apply(db.Preload("Series")).
		Order("created_at desc").
		Offset(offset).Limit(filter.Limit).
		Find(&docs).Error; err != nil {
		return nil, 0, err
	}

	return docs, total, nil
}

func (r *documentRepository) Annul(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	return GetDB(ctx, r.db).Model(&model.FiscalDocument{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       model.StatusAnnulled,
			"annulled_at":  at,
			"annul_reason": reason,
		}).Error
}

func (r *documentRepository) SetQRPayload(ctx context.Context, id uuid.UUID, payload string) error {
	return GetDB(ctx, r.db).Model(&model.FiscalDocument{}).
		Where("id = ?", id).
		Update("qr_payload", payload).Error
}

func (r *documentRepository) MarkPaid(ctx context.Context, id uuid.UUID, at time.Time) error {
	return GetDB(ctx, r.db).Model(&model.FiscalDocument{}).
		Where("id = ?", id).
		Update("paid_at", at).Error
}
