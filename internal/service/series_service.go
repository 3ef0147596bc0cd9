package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"faturacao/internal/fiscal"
	"faturacao/internal/model"
	"faturacao/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateSeriesRequest struct {
	Code           string `json:"code" binding:"required"`
	DocumentType   string `json:"document_type" binding:"required,oneof=INVOICE SIMPLIFIED_INVOICE INVOICE_RECEIPT CREDIT_NOTE DEBIT_NOTE RECEIPT"`
	Prefix         string `json:"prefix" binding:"required"`
	FiscalYear     int    `json:"fiscal_year" binding:"required"`
	ValidationCode string `json:"validation_code"` // empty outside production tenants
}

// UpdateSeriesRequest covers the structural fields. Once the series is
// locked only the validation code and the active flag may still change.
type UpdateSeriesRequest struct {
	Prefix         *string `json:"prefix"`
	ValidationCode *string `json:"validation_code"`
	IsActive       *bool   `json:"is_active"`
}

type SeriesResponse struct {
	ID             string  `json:"id"`
	Code           string  `json:"code"`
	DocumentType   string  `json:"document_type"`
	Prefix         string  `json:"prefix"`
	FiscalYear     int     `json:"fiscal_year"`
	CurrentNumber  int64   `json:"current_number"`
	ValidationCode *string `json:"validation_code"`
	IsActive       bool    `json:"is_active"`
	IsLocked       bool    `json:"is_locked"`
	CreatedAt      string  `json:"created_at"`
}

// --- Interface ---

type SeriesService interface {
	CreateSeries(ctx context.Context, actorID string, req CreateSeriesRequest) (SeriesResponse, error)
	GetSeries(ctx context.Context, id string) (SeriesResponse, error)
	ListSeries(ctx context.Context, fiscalYear, page, limit int) ([]SeriesResponse, int64, error)
	UpdateSeries(ctx context.Context, id string, req UpdateSeriesRequest) (SeriesResponse, error)
	DeactivateSeries(ctx context.Context, id, actorID string) (SeriesResponse, error)
	DeleteSeries(ctx context.Context, id string) error
}

type seriesService struct {
	seriesRepo repository.SeriesRepository
	auditRepo  repository.AuditRepository
	txManager  repository.TransactionManager
}

func NewSeriesService(
	seriesRepo repository.SeriesRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) SeriesService {
	return &seriesService{seriesRepo: seriesRepo, auditRepo: auditRepo, txManager: txManager}
}

// --- Implementation ---

func (s *seriesService) CreateSeries(ctx context.Context, actorID string, req CreateSeriesRequest) (SeriesResponse, error) {
	if _, ok := fiscal.DocumentTypeCode(req.DocumentType); !ok {
		return SeriesResponse{}, fmt.Errorf("%w: unknown document type %q", ErrValidationFailed, req.DocumentType)
	}

	series := model.Series{
		Code:         strings.ToUpper(strings.TrimSpace(req.Code)),
		DocumentType: req.DocumentType,
		Prefix:       strings.TrimSpace(req.Prefix),
		FiscalYear:   req.FiscalYear,
		IsActive:     true,
	}
	if code := strings.TrimSpace(req.ValidationCode); code != "" {
		series.ValidationCode = &code
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.seriesRepo.Create(txCtx, &series); err != nil {
			return fmt.Errorf("failed to create series: %w", err)
		}

		details, _ := json.Marshal(req)
		return s.auditRepo.Log(txCtx, &model.AuditLog{
			UserID:     parseActor(actorID),
			Action:     model.ActionCreateSeries,
			EntityID:   series.ID.String(),
			EntityName: series.Code,
			Details:    string(details),
		})
	})
	if err != nil {
		return SeriesResponse{}, err
	}

	return toSeriesResponse(series), nil
}

func (s *seriesService) GetSeries(ctx context.Context, id string) (SeriesResponse, error) {
	series, err := s.load(ctx, id)
	if err != nil {
		return SeriesResponse{}, err
	}
	return toSeriesResponse(*series), nil
}

func (s *seriesService) ListSeries(ctx context.Context, fiscalYear, page, limit int) ([]SeriesResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	series, total, err := s.seriesRepo.List(ctx, fiscalYear, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch series: %w", err)
	}

	result := make([]SeriesResponse, 0, len(series))
	for _, sr := range series {
		result = append(result, toSeriesResponse(sr))
	}
	return result, total, nil
}

func (s *seriesService) UpdateSeries(ctx context.Context, id string, req UpdateSeriesRequest) (SeriesResponse, error) {
	series, err := s.load(ctx, id)
	if err != nil {
		return SeriesResponse{}, err
	}

	// Structural changes are forbidden after the first issuance: renaming a
	// locked series would desynchronize stored full numbers from the series
	// definition.
	if req.Prefix != nil {
		if series.IsLocked {
			return SeriesResponse{}, ErrSeriesLocked
		}
		series.Prefix = strings.TrimSpace(*req.Prefix)
	}
	if req.ValidationCode != nil {
		code := strings.TrimSpace(*req.ValidationCode)
		if code == "" {
			series.ValidationCode = nil
		} else {
			series.ValidationCode = &code
		}
	}
	if req.IsActive != nil {
		series.IsActive = *req.IsActive
	}

	if err := s.seriesRepo.Update(ctx, series); err != nil {
		return SeriesResponse{}, fmt.Errorf("failed to update series: %w", err)
	}
	return toSeriesResponse(*series), nil
}

func (s *seriesService) DeactivateSeries(ctx context.Context, id, actorID string) (SeriesResponse, error) {
	series, err := s.load(ctx, id)
	if err != nil {
		return SeriesResponse{}, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.seriesRepo.Deactivate(txCtx, series.ID); err != nil {
			return fmt.Errorf("failed to deactivate series: %w", err)
		}
		return s.auditRepo.Log(txCtx, &model.AuditLog{
			UserID:     parseActor(actorID),
			Action:     model.ActionDeactivateSeries,
			EntityID:   series.ID.String(),
			EntityName: series.Code,
			Details:    "{}",
		})
	})
	if err != nil {
		return SeriesResponse{}, err
	}

	series.IsActive = false
	return toSeriesResponse(*series), nil
}

func (s *seriesService) DeleteSeries(ctx context.Context, id string) error {
	series, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if series.IsLocked {
		return ErrSeriesLocked
	}
	return s.seriesRepo.Delete(ctx, series.ID)
}

// --- Helpers ---

func (s *seriesService) load(ctx context.Context, id string) (*model.Series, error) {
	seriesID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrSeriesNotFound
	}
	series, err := s.seriesRepo.FindByID(ctx, seriesID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSeriesNotFound
		}
		return nil, fmt.Errorf("failed to load series: %w", err)
	}
	return series, nil
}

func toSeriesResponse(s model.Series) SeriesResponse {
	return SeriesResponse{
		ID:             s.ID.String(),
		Code:           s.Code,
		DocumentType:   s.DocumentType,
		Prefix:         s.Prefix,
		FiscalYear:     s.FiscalYear,
		CurrentNumber:  s.CurrentNumber,
		ValidationCode: s.ValidationCode,
		IsActive:       s.IsActive,
		IsLocked:       s.IsLocked,
		CreatedAt:      s.CreatedAt.Format(time.RFC3339),
	}
}
