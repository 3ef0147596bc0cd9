package repository

import (
	"context"

	"faturacao/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderRepository interface {
	Create(ctx context.Context, order *model.SalesOrder) error
	FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.SalesOrder, error)
	List(ctx context.Context, status string, page, limit int) ([]model.SalesOrder, int64, error)
	MarkInvoiced(ctx context.Context, id uuid.UUID, invoiceID uuid.UUID) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *model.SalesOrder) error {
	return GetDB(ctx, r.db).Create(order).Error
}

func (r *orderRepository) FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.SalesOrder, error) {
	var order model.SalesOrder
	if err := GetDB(ctx, r.db).
		Preload("Items").
		Preload("Client").
		First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) List(ctx context.Context, status string, page, limit int) ([]model.SalesOrder, int64, error) {
	var orders []model.SalesOrder
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.SalesOrder{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	fetch := db.Preload("Items").Preload("Client")
	if status != "" {
		fetch = fetch.Where("status = ?", status)
	}
	if err := fetch.Order("created_at desc").Offset(offset).Limit(limit).Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (r *orderRepository) MarkInvoiced(ctx context.Context, id uuid.UUID, invoiceID uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.SalesOrder{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.OrderStatusInvoiced,
			"invoice_id": invoiceID,
		}).Error
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return GetDB(ctx, r.db).Model(&model.SalesOrder{}).Where("id = ?", id).Update("status", status).Error
}
