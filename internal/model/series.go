package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Series is a named numbering stream for one fiscal document type.
// CurrentNumber is the last allocated sequence number (starts at 0) and is
// only ever advanced through SeriesRepository.AllocateNextNumber, inside the
// issuance transaction. IsLocked flips to true on the first allocation and
// from then on the series definition must not be renamed, renumbered or
// deleted — further issuance stays allowed.
type Series struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Code           string     `gorm:"type:varchar(30);uniqueIndex;not null" json:"code"`
	DocumentType   string     `gorm:"type:varchar(30);not null;index" json:"document_type"` // INVOICE, CREDIT_NOTE, ...
	Prefix         string     `gorm:"type:varchar(10);not null" json:"prefix"`              // e.g. "FT"
	FiscalYear     int        `gorm:"not null;index" json:"fiscal_year"`
	CurrentNumber  int64      `gorm:"not null;default:0" json:"current_number"`
	ValidationCode *string    `gorm:"type:varchar(30)" json:"validation_code"` // nil outside production tenants
	IsActive       bool       `gorm:"default:true" json:"is_active"`
	IsLocked       bool       `gorm:"default:false" json:"is_locked"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (s *Series) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
