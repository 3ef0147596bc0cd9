package fiscal_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"faturacao/internal/fiscal"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestComputeHashMatchesReferenceVector(t *testing.T) {
	issue := date(2024, time.January, 15)
	entry := time.Date(2024, time.January, 15, 10, 30, 0, 0, time.UTC)
	gross := decimal.RequireFromString("123.45")

	got := fiscal.ComputeHash(issue, entry, "FT 2024/00001", gross, "")

	want := sha256.Sum256([]byte("2024-01-15;2024-01-15T10:30:00;FT 2024/00001;123.45;"))
	assert.Equal(t, hex.EncodeToString(want[:]), got)
}

func TestComputeHashChainsPreviousHash(t *testing.T) {
	issue := date(2024, time.January, 15)
	entry := time.Date(2024, time.January, 15, 10, 30, 0, 0, time.UTC)

	first := fiscal.ComputeHash(issue, entry, "FT 2024/00001", decimal.RequireFromString("123.45"), "")
	second := fiscal.ComputeHash(issue, entry, "FT 2024/00002", decimal.RequireFromString("50.00"), first)

	want := sha256.Sum256([]byte("2024-01-15;2024-01-15T10:30:00;FT 2024/00002;50.00;" + first))
	assert.Equal(t, hex.EncodeToString(want[:]), second)
}

func TestComputeHashIsDeterministic(t *testing.T) {
	issue := date(2023, time.June, 2)
	entry := time.Date(2023, time.June, 2, 18, 4, 59, 0, time.UTC)
	gross := decimal.RequireFromString("1999.99")

	a := fiscal.ComputeHash(issue, entry, "FT 2023/00042", gross, "abc")
	b := fiscal.ComputeHash(issue, entry, "FT 2023/00042", gross, "abc")
	assert.Equal(t, a, b)
	require.Len(t, a, 64)
	assert.Equal(t, a, string([]byte(a)), "hash must be plain ASCII hex")
}

func TestComputeHashChangesWithEveryField(t *testing.T) {
	issue := date(2024, time.March, 1)
	entry := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	gross := decimal.RequireFromString("10.00")

	base := fiscal.ComputeHash(issue, entry, "FT 2024/00003", gross, "prev")

	variants := []string{
		fiscal.ComputeHash(issue.AddDate(0, 0, 1), entry, "FT 2024/00003", gross, "prev"),
		fiscal.ComputeHash(issue, entry.Add(time.Second), "FT 2024/00003", gross, "prev"),
		fiscal.ComputeHash(issue, entry, "FT 2024/00004", gross, "prev"),
		fiscal.ComputeHash(issue, entry, "FT 2024/00003", decimal.RequireFromString("10.01"), "prev"),
		fiscal.ComputeHash(issue, entry, "FT 2024/00003", gross, "other"),
	}
	for i, v := range variants {
		assert.NotEqual(t, base, v, "variant %d should produce a different hash", i)
	}
}

func TestComputeHashDropsFractionalSeconds(t *testing.T) {
	issue := date(2024, time.May, 5)
	precise := time.Date(2024, time.May, 5, 12, 0, 0, 999_000_000, time.UTC)
	rounded := time.Date(2024, time.May, 5, 12, 0, 0, 0, time.UTC)
	gross := decimal.RequireFromString("7.50")

	assert.Equal(t,
		fiscal.ComputeHash(issue, rounded, "FS 2024/00001", gross, ""),
		fiscal.ComputeHash(issue, precise, "FS 2024/00001", gross, ""),
	)
}

func TestComputeHashIgnoresTimeLocation(t *testing.T) {
	issue := date(2024, time.May, 5)
	entry := time.Date(2024, time.May, 5, 12, 0, 0, 0, time.UTC)
	lisbon := time.FixedZone("WEST", 3600)
	gross := decimal.RequireFromString("7.50")

	assert.Equal(t,
		fiscal.ComputeHash(issue, entry, "FS 2024/00001", gross, ""),
		fiscal.ComputeHash(issue.In(lisbon), entry.In(lisbon), "FS 2024/00001", gross, ""),
	)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "FT 2024/00001", fiscal.FormatNumber("FT", 2024, 1))
	assert.Equal(t, "NC 2025/00123", fiscal.FormatNumber("NC", 2025, 123))
	assert.Equal(t, "FT 2024/123456", fiscal.FormatNumber("FT", 2024, 123456))
}
