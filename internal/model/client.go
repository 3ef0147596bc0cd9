package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client is a customer that documents can be issued to. Documents keep a
// snapshot of the client fields at issuance time, so later edits here never
// affect already-issued documents.
type Client struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string         `gorm:"type:varchar(255);not null" json:"name"`
	TaxID     string         `gorm:"type:varchar(20);index" json:"tax_id"` // NIF; empty means final consumer
	Country   string         `gorm:"type:varchar(2);not null;default:'PT'" json:"country"`
	Address   string         `gorm:"type:text" json:"address"`
	Email     string         `gorm:"type:varchar(255)" json:"email"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
