package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"testing"

	"faturacao/internal/database"
	"faturacao/internal/model"
	"faturacao/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens a file-backed SQLite database in a per-test temp directory.
// _txlock=immediate makes transactions take the write lock at BEGIN, so
// concurrent issuance serializes the same way it does on PostgreSQL instead
// of failing with SQLITE_BUSY on lock upgrade.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "fiscal.db") +
		"?_busy_timeout=10000&_journal_mode=WAL&_txlock=immediate&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

type fixture struct {
	db          *gorm.DB
	txManager   repository.TransactionManager
	seriesRepo  repository.SeriesRepository
	docRepo     repository.DocumentRepository
	auditRepo   repository.AuditRepository
	clientRepo  repository.ClientRepository
	orderRepo   repository.OrderRepository
	coordinator IssuanceCoordinator
	emitter     EmitterInfo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	f := &fixture{
		db:         db,
		txManager:  repository.NewTransactionManager(db),
		seriesRepo: repository.NewSeriesRepository(db),
		docRepo:    repository.NewDocumentRepository(db),
		auditRepo:  repository.NewAuditRepository(db),
		clientRepo: repository.NewClientRepository(db),
		orderRepo:  repository.NewOrderRepository(db),
		emitter:    EmitterInfo{TaxID: "500123456", Country: "PT"},
	}
	f.coordinator = NewIssuanceCoordinator(f.seriesRepo, f.docRepo, f.auditRepo, f.txManager, nil, f.emitter)
	return f
}

func (f *fixture) createSeries(t *testing.T, code, docType, prefix string, year int, validationCode string) *model.Series {
	t.Helper()

	s := &model.Series{
		Code:         code,
		DocumentType: docType,
		Prefix:       prefix,
		FiscalYear:   year,
		IsActive:     true,
	}
	if validationCode != "" {
		s.ValidationCode = &validationCode
	}
	require.NoError(t, f.seriesRepo.Create(context.Background(), s))
	return s
}

func (f *fixture) createClient(t *testing.T, name, taxID string) *model.Client {
	t.Helper()

	c := &model.Client{Name: name, TaxID: taxID, Country: "PT", IsActive: true}
	require.NoError(t, f.clientRepo.Create(context.Background(), c))
	return c
}

// singleLine builds one finished document line with the given net and tax.
func singleLine(net, tax string) []model.DocumentLine {
	return []model.DocumentLine{{
		Description: "Consulting services",
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   decimal.RequireFromString(net),
		TaxRate:     decimal.RequireFromString("23"),
		NetAmount:   decimal.RequireFromString(net),
		TaxAmount:   decimal.RequireFromString(tax),
	}}
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}

// chainHash recomputes the document hash from its already-formatted fields,
// independently of the production code path.
func chainHash(issueDate, entryDate, fullNumber, gross, previousHash string) string {
	sum := sha256.Sum256([]byte(issueDate + ";" + entryDate + ";" + fullNumber + ";" + gross + ";" + previousHash))
	return hex.EncodeToString(sum[:])
}
