package fiscal_test

import (
	"strings"
	"testing"
	"time"

	"faturacao/internal/fiscal"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseQRParams() fiscal.QRParams {
	return fiscal.QRParams{
		EmitterTaxID:   "500123456",
		RecipientTaxID: "209876543",
		EmitterCountry: "PT",
		DocumentType:   fiscal.DocTypeInvoice,
		IssueDate:      time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
		FullNumber:     "FT 2024/00001",
		ATCUD:          "ABC123-1",
		NetTotal:       decimal.RequireFromString("100.37"),
		TaxTotal:       decimal.RequireFromString("23.08"),
		Hash:           "aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899",
	}
}

func TestBuildQRPayloadFieldOrder(t *testing.T) {
	payload := fiscal.BuildQRPayload(baseQRParams())

	want := "A:500123456*B:209876543*C:PT*D:FT*F:20240115*G:FT 2024/00001*H:ABC123-1*N:100.37*T:23.08*Q:aabbccddee"
	assert.Equal(t, want, payload)
	assert.True(t, fiscal.ValidateQRPayload(payload))
}

func TestBuildQRPayloadSubstitutesFinalConsumer(t *testing.T) {
	p := baseQRParams()
	p.RecipientTaxID = ""
	payload := fiscal.BuildQRPayload(p)
	assert.Contains(t, payload, "B:"+fiscal.FinalConsumerTaxID)
}

func TestBuildQRPayloadTruncatesHashToTenChars(t *testing.T) {
	payload := fiscal.BuildQRPayload(baseQRParams())
	fields := strings.Split(payload, "*")
	require.Len(t, fields, 10)
	assert.Equal(t, "Q:aabbccddee", fields[9])
}

func TestValidateQRPayloadRejectsMissingLabels(t *testing.T) {
	payload := fiscal.BuildQRPayload(baseQRParams())
	assert.True(t, fiscal.ValidateQRPayload(payload))

	truncated := strings.TrimSuffix(payload, "*Q:aabbccddee")
	assert.False(t, fiscal.ValidateQRPayload(truncated))
	assert.False(t, fiscal.ValidateQRPayload(""))
}

func TestDocumentTypeCode(t *testing.T) {
	cases := map[string]string{
		fiscal.DocTypeInvoice:           "FT",
		fiscal.DocTypeSimplifiedInvoice: "FS",
		fiscal.DocTypeInvoiceReceipt:    "FR",
		fiscal.DocTypeCreditNote:        "NC",
		fiscal.DocTypeDebitNote:         "ND",
		fiscal.DocTypeReceipt:           "RC",
	}
	for docType, want := range cases {
		code, ok := fiscal.DocumentTypeCode(docType)
		require.True(t, ok, docType)
		assert.Equal(t, want, code)
	}

	_, ok := fiscal.DocumentTypeCode("PURCHASE_ORDER")
	assert.False(t, ok)
}
