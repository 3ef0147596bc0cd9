package service

import (
	"context"
	"testing"

	"faturacao/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDocumentService(f *fixture) DocumentService {
	return NewDocumentService(f.coordinator, f.docRepo, f.seriesRepo, f.clientRepo, f.auditRepo, f.txManager, nil)
}

func (f *fixture) issue(t *testing.T, series *model.Series, net, tax string) *model.FiscalDocument {
	t.Helper()
	doc, err := f.coordinator.Issue(context.Background(), IssueCommand{
		SeriesID:     series.ID,
		DocumentType: series.DocumentType,
		Lines:        singleLine(net, tax),
	})
	require.NoError(t, err)
	return doc
}

func TestVerifyChainReportsValidSeries(t *testing.T) {
	f := newFixture(t)
	svc := newDocumentService(f)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "ABC123")

	for i := 0; i < 3; i++ {
		f.issue(t, series, "10.00", "2.30")
	}

	result, err := svc.VerifyChain(context.Background(), series.ID.String())
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 3, result.DocumentsChecked)
	assert.Empty(t, result.BrokenAt)
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	f := newFixture(t)
	svc := newDocumentService(f)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "")

	f.issue(t, series, "10.00", "2.30")
	second := f.issue(t, series, "20.00", "4.60")
	f.issue(t, series, "30.00", "6.90")

	// Tamper with a stored amount behind the application's back.
	require.NoError(t, f.db.Model(&model.FiscalDocument{}).
		Where("id = ?", second.ID).
		Update("gross_total", decimal.RequireFromString("999.99")).Error)

	result, err := svc.VerifyChain(context.Background(), series.ID.String())
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, second.FullNumber, result.BrokenAt)
	assert.Contains(t, result.Reason, "recomputed")
}

func TestVerifyChainDetectsSequenceGap(t *testing.T) {
	f := newFixture(t)
	svc := newDocumentService(f)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "")

	f.issue(t, series, "10.00", "2.30")
	second := f.issue(t, series, "20.00", "4.60")

	// Deleting an issued document is forbidden by the application; simulate
	// external interference.
	require.NoError(t, f.db.Delete(&model.FiscalDocument{}, "id = ?", second.ID).Error)
	third := f.issue(t, series, "30.00", "6.90")
	require.Equal(t, int64(3), third.Number)

	result, err := svc.VerifyChain(context.Background(), series.ID.String())
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Reason, "sequence gap")
}

func TestAnnulDocumentKeepsChainIntact(t *testing.T) {
	f := newFixture(t)
	svc := newDocumentService(f)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "")

	first := f.issue(t, series, "10.00", "2.30")

	annulled, err := svc.AnnulDocument(context.Background(), first.ID.String(), "", AnnulDocumentRequest{Reason: "customer cancelled"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAnnulled, annulled.Status)
	assert.Equal(t, "customer cancelled", annulled.AnnulReason)
	require.NotNil(t, annulled.AnnulledAt)

	// The annulled document stays in the chain: the next emission links to
	// its hash and keeps the numbering dense.
	second := f.issue(t, series, "20.00", "4.60")
	assert.Equal(t, int64(2), second.Number)
	assert.Equal(t, first.Hash, second.PreviousHash)

	result, err := svc.VerifyChain(context.Background(), series.ID.String())
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestAnnulDocumentTwiceFails(t *testing.T) {
	f := newFixture(t)
	svc := newDocumentService(f)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "")

	doc := f.issue(t, series, "10.00", "2.30")

	_, err := svc.AnnulDocument(context.Background(), doc.ID.String(), "", AnnulDocumentRequest{Reason: "first"})
	require.NoError(t, err)

	_, err = svc.AnnulDocument(context.Background(), doc.ID.String(), "", AnnulDocumentRequest{Reason: "second"})
	assert.ErrorIs(t, err, ErrNotIssued)
}

func TestIssueCreditNoteFullCredit(t *testing.T) {
	f := newFixture(t)
	svc := newDocumentService(f)
	invoiceSeries := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "ABC123")
	creditSeries := f.createSeries(t, "NC-2024", model.DocTypeCreditNote, "NC", 2024, "DEF456")
	client := f.createClient(t, "Empresa Exemplo Lda", "209876543")

	invoice, err := f.coordinator.Issue(context.Background(), IssueCommand{
		SeriesID:     invoiceSeries.ID,
		DocumentType: model.DocTypeInvoice,
		Client:       client,
		Lines:        singleLine("100.00", "23.00"),
	})
	require.NoError(t, err)

	note, err := svc.IssueCreditNote(context.Background(), invoice.ID.String(), "", CreditNoteRequest{
		SeriesID: creditSeries.ID.String(),
		Reason:   "returned goods",
	})
	require.NoError(t, err)

	assert.Equal(t, model.DocTypeCreditNote, note.DocumentType)
	assert.Equal(t, "NC 2024/00001", note.FullNumber)
	assert.Equal(t, "DEF456-1", note.ATCUD)
	assert.Equal(t, invoice.GrossTotal.StringFixed(2), note.GrossTotal)
	assert.Equal(t, client.Name, note.ClientName)

	stored, err := f.docRepo.FindByID(context.Background(), mustUUID(t, note.ID))
	require.NoError(t, err)
	require.NotNil(t, stored.CreditedDocumentID)
	assert.Equal(t, invoice.ID, *stored.CreditedDocumentID)

	// The credit note opened its own chain.
	assert.Equal(t, "", stored.PreviousHash)
}

func TestIssueCreditNoteRequiresIssuedSource(t *testing.T) {
	f := newFixture(t)
	svc := newDocumentService(f)
	invoiceSeries := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "")
	creditSeries := f.createSeries(t, "NC-2024", model.DocTypeCreditNote, "NC", 2024, "")

	invoice := f.issue(t, invoiceSeries, "10.00", "2.30")
	_, err := svc.AnnulDocument(context.Background(), invoice.ID.String(), "", AnnulDocumentRequest{Reason: "void"})
	require.NoError(t, err)

	_, err = svc.IssueCreditNote(context.Background(), invoice.ID.String(), "", CreditNoteRequest{
		SeriesID: creditSeries.ID.String(),
		Reason:   "too late",
	})
	assert.ErrorIs(t, err, ErrNotIssued)
}

func TestMarkPaidLeavesHashUntouched(t *testing.T) {
	f := newFixture(t)
	svc := newDocumentService(f)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "")

	doc := f.issue(t, series, "10.00", "2.30")

	paid, err := svc.MarkPaid(context.Background(), doc.ID.String())
	require.NoError(t, err)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, doc.Hash, paid.Hash)

	result, err := svc.VerifyChain(context.Background(), series.ID.String())
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestCreateDocumentRejectsInactiveClient(t *testing.T) {
	f := newFixture(t)
	svc := newDocumentService(f)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "")
	client := f.createClient(t, "Dormant Lda", "111111111")

	client.IsActive = false
	require.NoError(t, f.clientRepo.Update(context.Background(), client))

	_, err := svc.CreateDocument(context.Background(), "", CreateDocumentRequest{
		SeriesID:     series.ID.String(),
		DocumentType: model.DocTypeInvoice,
		ClientID:     client.ID.String(),
		Lines: []DocumentLineRequest{{
			Description: "Consulting services",
			Quantity:    "1",
			UnitPrice:   "10.00",
			NetAmount:   "10.00",
			TaxAmount:   "2.30",
		}},
	})
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestCreateDocumentEndToEnd(t *testing.T) {
	f := newFixture(t)
	svc := newDocumentService(f)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "ABC123")

	resp, err := svc.CreateDocument(context.Background(), "", CreateDocumentRequest{
		SeriesID:     series.ID.String(),
		DocumentType: model.DocTypeInvoice,
		IssueDate:    "2024-01-15",
		Lines: []DocumentLineRequest{{
			Description: "Consulting services",
			Quantity:    "1",
			UnitPrice:   "100.37",
			TaxRate:     "23",
			NetAmount:   "100.37",
			TaxAmount:   "23.08",
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "FT 2024/00001", resp.FullNumber)
	assert.Equal(t, "2024-01-15", resp.IssueDate)
	assert.Equal(t, "123.45", resp.GrossTotal)
	assert.Equal(t, "ABC123-1", resp.ATCUD)
	assert.NotEmpty(t, resp.QRPayload)
	require.Len(t, resp.Lines, 1)
	assert.Equal(t, "100.37", resp.Lines[0].NetAmount)
}
