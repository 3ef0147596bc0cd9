package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"faturacao/internal/fiscal"
	"faturacao/internal/model"
	"faturacao/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueFirstDocument(t *testing.T) {
	f := newFixture(t)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "ABC123")

	doc, err := f.coordinator.Issue(context.Background(), IssueCommand{
		SeriesID:     series.ID,
		DocumentType: model.DocTypeInvoice,
		IssueDate:    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		EntryDate:    time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Lines:        singleLine("100.37", "23.08"),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), doc.Number)
	assert.Equal(t, "FT 2024/00001", doc.FullNumber)
	assert.Equal(t, "ABC123-1", doc.ATCUD)
	assert.Equal(t, "", doc.PreviousHash)
	assert.Equal(t, "123.45", doc.GrossTotal.StringFixed(2))
	assert.Equal(t, model.StatusIssued, doc.Status)

	expected := chainHash("2024-01-15", "2024-01-15T10:30:00", "FT 2024/00001", "123.45", "")
	assert.Equal(t, expected, doc.Hash)

	assert.NotEmpty(t, doc.QRPayload)
	assert.True(t, fiscal.ValidateQRPayload(doc.QRPayload))

	reloaded, err := f.seriesRepo.FindByID(context.Background(), series.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reloaded.CurrentNumber)
	assert.True(t, reloaded.IsLocked)
}

func TestIssueChainsHashes(t *testing.T) {
	f := newFixture(t)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "ABC123")

	issue := func(net, tax string) *model.FiscalDocument {
		doc, err := f.coordinator.Issue(context.Background(), IssueCommand{
			SeriesID:     series.ID,
			DocumentType: model.DocTypeInvoice,
			IssueDate:    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			EntryDate:    time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC),
			Lines:        singleLine(net, tax),
		})
		require.NoError(t, err)
		return doc
	}

	first := issue("100.37", "23.08")
	second := issue("40.65", "9.35")

	assert.Equal(t, int64(2), second.Number)
	assert.Equal(t, "FT 2024/00002", second.FullNumber)
	assert.Equal(t, first.Hash, second.PreviousHash)

	expected := chainHash("2024-01-15", "2024-01-15T11:00:00", "FT 2024/00002", "50.00", first.Hash)
	assert.Equal(t, expected, second.Hash)
}

func TestIssueATCUDFallbackWithoutValidationCode(t *testing.T) {
	f := newFixture(t)
	series := f.createSeries(t, "FS-2024", model.DocTypeSimplifiedInvoice, "FS", 2024, "")

	doc, err := f.coordinator.Issue(context.Background(), IssueCommand{
		SeriesID:     series.ID,
		DocumentType: model.DocTypeSimplifiedInvoice,
		Lines:        singleLine("10.00", "2.30"),
	})
	require.NoError(t, err)

	assert.Equal(t, "0-1", doc.ATCUD)
	assert.True(t, fiscal.ValidateATCUD(doc.ATCUD))
}

func TestIssueRejectsTypeMismatch(t *testing.T) {
	f := newFixture(t)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "")

	_, err := f.coordinator.Issue(context.Background(), IssueCommand{
		SeriesID:     series.ID,
		DocumentType: model.DocTypeCreditNote,
		Lines:        singleLine("10.00", "2.30"),
	})
	assert.ErrorIs(t, err, ErrValidationFailed)

	reloaded, err := f.seriesRepo.FindByID(context.Background(), series.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), reloaded.CurrentNumber)
}

func TestIssueRejectsInactiveSeries(t *testing.T) {
	f := newFixture(t)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "")
	require.NoError(t, f.seriesRepo.Deactivate(context.Background(), series.ID))

	_, err := f.coordinator.Issue(context.Background(), IssueCommand{
		SeriesID:     series.ID,
		DocumentType: model.DocTypeInvoice,
		Lines:        singleLine("10.00", "2.30"),
	})
	assert.ErrorIs(t, err, ErrSeriesNotFound)
}

func TestIssueValidatesLines(t *testing.T) {
	f := newFixture(t)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "")

	cases := []struct {
		name  string
		lines []model.DocumentLine
	}{
		{"no lines", nil},
		{"empty description", func() []model.DocumentLine {
			l := singleLine("10.00", "2.30")
			l[0].Description = ""
			return l
		}()},
		{"zero quantity", func() []model.DocumentLine {
			l := singleLine("10.00", "2.30")
			l[0].Quantity = l[0].Quantity.Sub(l[0].Quantity)
			return l
		}()},
		{"negative net", singleLine("-10.00", "2.30")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.coordinator.Issue(context.Background(), IssueCommand{
				SeriesID:     series.ID,
				DocumentType: model.DocTypeInvoice,
				Lines:        tc.lines,
			})
			assert.ErrorIs(t, err, ErrValidationFailed)
		})
	}
}

// failingDocRepo breaks document persistence so the surrounding transaction
// has to roll back.
type failingDocRepo struct {
	repository.DocumentRepository
}

func (r *failingDocRepo) Create(ctx context.Context, doc *model.FiscalDocument) error {
	return errors.New("simulated write failure")
}

func TestIssueRollsBackCursorOnFailure(t *testing.T) {
	f := newFixture(t)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "")

	broken := NewIssuanceCoordinator(
		f.seriesRepo,
		&failingDocRepo{DocumentRepository: f.docRepo},
		f.auditRepo,
		f.txManager,
		nil,
		f.emitter,
	)

	_, err := broken.Issue(context.Background(), IssueCommand{
		SeriesID:     series.ID,
		DocumentType: model.DocTypeInvoice,
		Lines:        singleLine("10.00", "2.30"),
	})
	require.Error(t, err)

	// The cursor advance and the failed insert were one transaction.
	reloaded, err := f.seriesRepo.FindByID(context.Background(), series.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), reloaded.CurrentNumber)
	assert.False(t, reloaded.IsLocked)

	docs, err := f.docRepo.ListBySeriesAscending(context.Background(), series.ID)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

// conflictingSeriesRepo reports a sequence conflict for the first N
// allocations, then behaves normally.
type conflictingSeriesRepo struct {
	repository.SeriesRepository
	mu        sync.Mutex
	conflicts int
}

func (r *conflictingSeriesRepo) AllocateNextNumber(ctx context.Context, id uuid.UUID) (int64, error) {
	r.mu.Lock()
	if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return 0, repository.ErrSequenceConflict
	}
	r.mu.Unlock()
	return r.SeriesRepository.AllocateNextNumber(ctx, id)
}

func TestIssueRetriesOnSequenceConflict(t *testing.T) {
	f := newFixture(t)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "")

	flaky := &conflictingSeriesRepo{SeriesRepository: f.seriesRepo, conflicts: 2}
	coordinator := NewIssuanceCoordinator(flaky, f.docRepo, f.auditRepo, f.txManager, nil, f.emitter)

	doc, err := coordinator.Issue(context.Background(), IssueCommand{
		SeriesID:     series.ID,
		DocumentType: model.DocTypeInvoice,
		Lines:        singleLine("10.00", "2.30"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Number)
}

func TestIssueGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "")

	flaky := &conflictingSeriesRepo{SeriesRepository: f.seriesRepo, conflicts: maxIssueAttempts}
	coordinator := NewIssuanceCoordinator(flaky, f.docRepo, f.auditRepo, f.txManager, nil, f.emitter)

	_, err := coordinator.Issue(context.Background(), IssueCommand{
		SeriesID:     series.ID,
		DocumentType: model.DocTypeInvoice,
		Lines:        singleLine("10.00", "2.30"),
	})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
}

func TestConcurrentIssueSingleSeries(t *testing.T) {
	f := newFixture(t)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "ABC123")

	const workers = 50

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coordinator.Issue(context.Background(), IssueCommand{
				SeriesID:     series.ID,
				DocumentType: model.DocTypeInvoice,
				Lines:        singleLine("10.00", "2.30"),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	docs, err := f.docRepo.ListBySeriesAscending(context.Background(), series.ID)
	require.NoError(t, err)
	require.Len(t, docs, workers)

	// Dense numbering, no gaps, no duplicates, and an unbroken chain.
	previousHash := ""
	for i, doc := range docs {
		assert.Equal(t, int64(i+1), doc.Number)
		assert.Equal(t, previousHash, doc.PreviousHash)
		recomputed := fiscal.ComputeHash(doc.IssueDate, doc.EntryDate, doc.FullNumber, doc.GrossTotal, doc.PreviousHash)
		assert.Equal(t, recomputed, doc.Hash)
		previousHash = doc.Hash
	}

	reloaded, err := f.seriesRepo.FindByID(context.Background(), series.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), reloaded.CurrentNumber)
}

func TestConcurrentIssueIndependentSeries(t *testing.T) {
	f := newFixture(t)
	invoices := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "")
	receipts := f.createSeries(t, "RC-2024", model.DocTypeReceipt, "RC", 2024, "")

	const perSeries = 20

	var wg sync.WaitGroup
	errs := make(chan error, perSeries*2)
	for _, s := range []*model.Series{invoices, receipts} {
		for i := 0; i < perSeries; i++ {
			wg.Add(1)
			go func(seriesID uuid.UUID, docType string) {
				defer wg.Done()
				_, err := f.coordinator.Issue(context.Background(), IssueCommand{
					SeriesID:     seriesID,
					DocumentType: docType,
					Lines:        singleLine("10.00", "2.30"),
				})
				errs <- err
			}(s.ID, s.DocumentType)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, s := range []*model.Series{invoices, receipts} {
		docs, err := f.docRepo.ListBySeriesAscending(context.Background(), s.ID)
		require.NoError(t, err)
		require.Len(t, docs, perSeries)
		for i, doc := range docs {
			assert.Equal(t, int64(i+1), doc.Number)
		}
	}
}

func TestIssueSnapshotsClient(t *testing.T) {
	f := newFixture(t)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "")
	client := f.createClient(t, "Empresa Exemplo Lda", "209876543")

	doc, err := f.coordinator.Issue(context.Background(), IssueCommand{
		SeriesID:     series.ID,
		DocumentType: model.DocTypeInvoice,
		Client:       client,
		Lines:        singleLine("100.00", "23.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Empresa Exemplo Lda", doc.ClientName)
	assert.Equal(t, "209876543", doc.ClientTaxID)
	require.NotNil(t, doc.ClientID)
	assert.Equal(t, client.ID, *doc.ClientID)

	// The recipient tax number flows into the QR payload.
	assert.Contains(t, doc.QRPayload, "B:209876543")
}

func TestIssueWritesAuditEntry(t *testing.T) {
	f := newFixture(t)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "")

	doc, err := f.coordinator.Issue(context.Background(), IssueCommand{
		SeriesID:     series.ID,
		DocumentType: model.DocTypeInvoice,
		Lines:        singleLine("10.00", "2.30"),
	})
	require.NoError(t, err)

	logs, total, err := f.auditRepo.List(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, model.ActionIssueDocument, logs[0].Action)
	assert.Equal(t, doc.FullNumber, logs[0].EntityName)
}
