package service

import (
	"context"
	"testing"

	"faturacao/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSeriesService(f *fixture) SeriesService {
	return NewSeriesService(f.seriesRepo, f.auditRepo, f.txManager)
}

func TestCreateSeriesNormalizesCode(t *testing.T) {
	f := newFixture(t)
	svc := newSeriesService(f)

	resp, err := svc.CreateSeries(context.Background(), "", CreateSeriesRequest{
		Code:         "  ft-2024  ",
		DocumentType: model.DocTypeInvoice,
		Prefix:       "FT",
		FiscalYear:   2024,
	})
	require.NoError(t, err)

	assert.Equal(t, "FT-2024", resp.Code)
	assert.True(t, resp.IsActive)
	assert.False(t, resp.IsLocked)
	assert.Equal(t, int64(0), resp.CurrentNumber)
	assert.Nil(t, resp.ValidationCode)
}

func TestCreateSeriesRejectsUnknownType(t *testing.T) {
	f := newFixture(t)
	svc := newSeriesService(f)

	_, err := svc.CreateSeries(context.Background(), "", CreateSeriesRequest{
		Code:         "XX-2024",
		DocumentType: "PROFORMA",
		Prefix:       "XX",
		FiscalYear:   2024,
	})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestUpdateSeriesPrefixRefusedOnceLocked(t *testing.T) {
	f := newFixture(t)
	svc := newSeriesService(f)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "")

	f.issue(t, series, "10.00", "2.30") // locks the series

	newPrefix := "FA"
	_, err := svc.UpdateSeries(context.Background(), series.ID.String(), UpdateSeriesRequest{Prefix: &newPrefix})
	assert.ErrorIs(t, err, ErrSeriesLocked)

	// Non-structural fields stay editable after locking.
	code := "XYZ789"
	updated, err := svc.UpdateSeries(context.Background(), series.ID.String(), UpdateSeriesRequest{ValidationCode: &code})
	require.NoError(t, err)
	require.NotNil(t, updated.ValidationCode)
	assert.Equal(t, "XYZ789", *updated.ValidationCode)
}

func TestDeleteSeriesRefusedOnceLocked(t *testing.T) {
	f := newFixture(t)
	svc := newSeriesService(f)

	virgin := f.createSeries(t, "RC-2024", model.DocTypeReceipt, "RC", 2024, "")
	require.NoError(t, svc.DeleteSeries(context.Background(), virgin.ID.String()))

	locked := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "")
	f.issue(t, locked, "10.00", "2.30")

	err := svc.DeleteSeries(context.Background(), locked.ID.String())
	assert.ErrorIs(t, err, ErrSeriesLocked)
}

func TestDeactivateSeriesStopsIssuance(t *testing.T) {
	f := newFixture(t)
	svc := newSeriesService(f)
	series := f.createSeries(t, "FT-2024", model.DocTypeInvoice, "FT", 2024, "")

	resp, err := svc.DeactivateSeries(context.Background(), series.ID.String(), "")
	require.NoError(t, err)
	assert.False(t, resp.IsActive)

	_, err = f.coordinator.Issue(context.Background(), IssueCommand{
		SeriesID:     series.ID,
		DocumentType: model.DocTypeInvoice,
		Lines:        singleLine("10.00", "2.30"),
	})
	assert.ErrorIs(t, err, ErrSeriesNotFound)
}
