package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SalesOrder status constants
const (
	OrderStatusPending   = "PENDING"
	OrderStatusInvoiced  = "INVOICED"
	OrderStatusCancelled = "CANCELLED"
)

// SalesOrder is a pre-fiscal document: it carries priced, tax-calculated
// items but no legal weight. Conversion to an invoice goes through the
// issuance coordinator like every other emission path.
type SalesOrder struct {
	ID        uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	OrderCode string           `gorm:"type:varchar(30);uniqueIndex;not null" json:"order_code"`
	ClientID  uuid.UUID        `gorm:"type:uuid;not null;index" json:"client_id"`
	Client    *Client          `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Status    string           `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	Note      string           `gorm:"type:text" json:"note"`
	Items     []SalesOrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`

	// InvoiceID points at the fiscal document produced by conversion.
	InvoiceID *uuid.UUID `gorm:"type:uuid" json:"invoice_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SalesOrderItem mirrors DocumentLine so conversion is a straight mapping.
type SalesOrderItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	Description string          `gorm:"type:varchar(255);not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	TaxRate     decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"tax_rate"`
	NetAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"net_amount"`
	TaxAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"tax_amount"`
}

func (o *SalesOrder) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (i *SalesOrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
