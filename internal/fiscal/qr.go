package fiscal

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FinalConsumerTaxID is the well-known generic tax id substituted for
// recipients that did not provide one.
const FinalConsumerTaxID = "999999990"

// Internal document type tags. The models package reuses these values; the
// QR payload carries the two-letter code from documentTypeCodes instead.
const (
	DocTypeInvoice           = "INVOICE"
	DocTypeSimplifiedInvoice = "SIMPLIFIED_INVOICE"
	DocTypeInvoiceReceipt    = "INVOICE_RECEIPT"
	DocTypeCreditNote        = "CREDIT_NOTE"
	DocTypeDebitNote         = "DEBIT_NOTE"
	DocTypeReceipt           = "RECEIPT"
)

var documentTypeCodes = map[string]string{
	DocTypeInvoice:           "FT",
	DocTypeSimplifiedInvoice: "FS",
	DocTypeInvoiceReceipt:    "FR",
	DocTypeCreditNote:        "NC",
	DocTypeDebitNote:         "ND",
	DocTypeReceipt:           "RC",
}

// qrLabels are the ten labels a well-formed payload must carry, in order.
var qrLabels = []string{"A:", "B:", "C:", "D:", "F:", "G:", "H:", "N:", "T:", "Q:"}

// DocumentTypeCode maps an internal document type tag to the two-letter code
// used in field D of the QR payload.
func DocumentTypeCode(docType string) (string, bool) {
	code, ok := documentTypeCodes[docType]
	return code, ok
}

// QRParams carries everything needed to assemble a QR payload. The payload is
// derived data: it is built from an already-hashed document and is never part
// of the hash input itself.
type QRParams struct {
	EmitterTaxID   string
	RecipientTaxID string
	EmitterCountry string
	DocumentType   string // internal tag, e.g. DocTypeInvoice
	IssueDate      time.Time
	FullNumber     string
	ATCUD          string
	NetTotal       decimal.Decimal
	TaxTotal       decimal.Decimal
	Hash           string // the document's own chain hash
}

// BuildQRPayload assembles the fixed ordered list of Label:Value pairs,
// joined by '*'. Recipients without a tax id are reported as the generic
// final consumer. Field Q carries the first 10 hex characters of the
// document's own hash.
func BuildQRPayload(p QRParams) string {
	recipient := strings.TrimSpace(p.RecipientTaxID)
	if recipient == "" {
		recipient = FinalConsumerTaxID
	}
	code, _ := DocumentTypeCode(p.DocumentType)

	fields := []string{
		"A:" + p.EmitterTaxID,
		"B:" + recipient,
		"C:" + p.EmitterCountry,
		"D:" + code,
		"F:" + p.IssueDate.Format("20060102"),
		"G:" + p.FullNumber,
		"H:" + p.ATCUD,
		"N:" + p.NetTotal.StringFixed(2),
		"T:" + p.TaxTotal.StringFixed(2),
		"Q:" + shortHash(p.Hash),
	}
	return strings.Join(fields, "*")
}

// ValidateQRPayload reports whether all ten required labels are present.
func ValidateQRPayload(s string) bool {
	for _, label := range qrLabels {
		if !strings.Contains(s, label) {
			return false
		}
	}
	return true
}

func shortHash(hash string) string {
	if len(hash) <= 10 {
		return hash
	}
	return hash[:10]
}
