package model

import (
	"time"

	"faturacao/internal/fiscal"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Document type tags, shared with the fiscal package's QR code lookup.
const (
	DocTypeInvoice           = fiscal.DocTypeInvoice
	DocTypeSimplifiedInvoice = fiscal.DocTypeSimplifiedInvoice
	DocTypeInvoiceReceipt    = fiscal.DocTypeInvoiceReceipt
	DocTypeCreditNote        = fiscal.DocTypeCreditNote
	DocTypeDebitNote         = fiscal.DocTypeDebitNote
	DocTypeReceipt           = fiscal.DocTypeReceipt
)

// Document lifecycle states. Documents are born ISSUED — sequencing and
// hashing happen atomically at creation, there is no draft stage.
const (
	StatusIssued   = "ISSUED"
	StatusAnnulled = "ANNULLED"
)

// FiscalDocument is one legally significant emission. After creation only
// status, annulment, payment and QR columns may change; number, hash and
// previous hash are immutable. Corrections are new credit-note documents,
// never edits.
type FiscalDocument struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SeriesID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_series_number,priority:1" json:"series_id"`
	Series   *Series   `gorm:"foreignKey:SeriesID" json:"series,omitempty"`

	Number     int64  `gorm:"not null;uniqueIndex:idx_series_number,priority:2" json:"number"`
	FullNumber string `gorm:"type:varchar(30);uniqueIndex;not null" json:"full_number"` // "FT 2024/00001"

	DocumentType string    `gorm:"type:varchar(30);not null;index" json:"document_type"`
	IssueDate    time.Time `gorm:"type:date;not null" json:"issue_date"`
	EntryDate    time.Time `gorm:"not null" json:"entry_date"` // system entry timestamp, feeds the hash

	ClientID      *uuid.UUID `gorm:"type:uuid;index" json:"client_id"`
	Client        *Client    `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	ClientName    string     `gorm:"type:varchar(255)" json:"client_name"` // snapshot at issuance
	ClientTaxID   string     `gorm:"type:varchar(20)" json:"client_tax_id"`
	ClientCountry string     `gorm:"type:varchar(2)" json:"client_country"`

	NetTotal   decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"net_total"`
	TaxTotal   decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"tax_total"`
	GrossTotal decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"gross_total"`

	Hash         string `gorm:"type:varchar(64);not null" json:"hash"`
	PreviousHash string `gorm:"type:varchar(64);not null;default:''" json:"previous_hash"` // "" for the first document of a series
	ATCUD        string `gorm:"type:varchar(40);not null" json:"atcud"`
	QRPayload    string `gorm:"type:text" json:"qr_payload"` // derived, attached after commit

	Status       string     `gorm:"type:varchar(20);not null;default:'ISSUED';index" json:"status"`
	AnnulledAt   *time.Time `json:"annulled_at"`
	AnnulReason  string     `gorm:"type:text" json:"annul_reason"`
	PaidAt       *time.Time `json:"paid_at"` // payment bookkeeping, excluded from the hash input

	SourceOrderID      *uuid.UUID `gorm:"type:uuid;index" json:"source_order_id"`      // set by order conversion
	CreditedDocumentID *uuid.UUID `gorm:"type:uuid;index" json:"credited_document_id"` // set on credit notes

	Lines []DocumentLine `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"lines"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentLine is one already-tax-calculated line item. Tax computation
// happens before issuance; the coordinator only checks consistency.
type DocumentLine struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"document_id"`
	Description string          `gorm:"type:varchar(255);not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	TaxRate     decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"tax_rate"` // percentage, e.g. 23.00
	NetAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"net_amount"`
	TaxAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"tax_amount"`
}

func (d *FiscalDocument) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

func (l *DocumentLine) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
