package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateSeries     = "CREATE_SERIES"
	ActionDeactivateSeries = "DEACTIVATE_SERIES"
	ActionIssueDocument    = "ISSUE_DOCUMENT"
	ActionAnnulDocument    = "ANNUL_DOCUMENT"
	ActionIssueCreditNote  = "ISSUE_CREDIT_NOTE"
	ActionMarkPaid         = "MARK_DOCUMENT_PAID"
	ActionConvertOrder     = "CONVERT_ORDER_TO_INVOICE"
	ActionCreateOrder      = "CREATE_ORDER"
	ActionCreateClient     = "CREATE_CLIENT"
	ActionCreateUser       = "CREATE_USER"
)

// AuditLog tracks who did what and when. Issuance writes its entry inside
// the issuance transaction, so the audit trail and the document commit or
// roll back together.
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for automated runs
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // human readable, e.g. "FT 2024/00001"
	Details    string     `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
