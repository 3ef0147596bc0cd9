package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"faturacao/internal/fiscal"
	"faturacao/internal/model"
	"faturacao/internal/repository"
	ws "faturacao/internal/websocket"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// maxIssueAttempts bounds retries when concurrent issuance races on the same
// series cursor. Every retry re-runs the whole allocate+hash+persist unit in
// a fresh transaction.
const maxIssueAttempts = 5

// EmitterInfo identifies the issuing company on QR payloads.
type EmitterInfo struct {
	TaxID   string
	Country string
}

// IssueCommand is the fully resolved input of one document emission. Every
// emission path — direct API, order conversion, credit notes — builds one of
// these and goes through Issue.
type IssueCommand struct {
	SeriesID     uuid.UUID
	DocumentType string
	IssueDate    time.Time
	EntryDate    time.Time // zero value means "now"; kept separate for back-dated imports
	Client       *model.Client
	Lines        []model.DocumentLine

	SourceOrderID      *uuid.UUID
	CreditedDocumentID *uuid.UUID

	ActorID     *uuid.UUID
	AuditAction string // defaults to model.ActionIssueDocument
}

// IssuanceCoordinator is the single choke point for fiscal document
// emission: it allocates the sequence number, links the chain hash, derives
// the ATCUD and persists the document atomically.
type IssuanceCoordinator interface {
	Issue(ctx context.Context, cmd IssueCommand) (*model.FiscalDocument, error)
}

type issuanceCoordinator struct {
	seriesRepo repository.SeriesRepository
	docRepo    repository.DocumentRepository
	auditRepo  repository.AuditRepository
	txManager  repository.TransactionManager
	hub        *ws.Hub
	emitter    EmitterInfo
	logger     zerolog.Logger
}

func NewIssuanceCoordinator(
	seriesRepo repository.SeriesRepository,
	docRepo repository.DocumentRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	hub *ws.Hub,
	emitter EmitterInfo,
) IssuanceCoordinator {
	return &issuanceCoordinator{
		seriesRepo: seriesRepo,
		docRepo:    docRepo,
		auditRepo:  auditRepo,
		txManager:  txManager,
		hub:        hub,
		emitter:    emitter,
		logger:     log.With().Str("component", "issuance").Logger(),
	}
}

func (c *issuanceCoordinator) Issue(ctx context.Context, cmd IssueCommand) (*model.FiscalDocument, error) {
	if err := validateIssueCommand(cmd); err != nil {
		return nil, err
	}

	entryDate := cmd.EntryDate
	if entryDate.IsZero() {
		entryDate = time.Now()
	}
	entryDate = entryDate.Truncate(time.Second)

	issueDate := cmd.IssueDate
	if issueDate.IsZero() {
		issueDate = entryDate
	}

	var doc *model.FiscalDocument
	var err error
	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		doc, err = c.issueOnce(ctx, cmd, issueDate, entryDate)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrConcurrencyConflict) {
			return nil, err
		}
		c.logger.Debug().
			Int("attempt", attempt).
			Str("series_id", cmd.SeriesID.String()).
			Msg("sequence conflict, re-running allocation")
		time.Sleep(time.Duration(attempt) * 5 * time.Millisecond)
	}
	if err != nil {
		return nil, err
	}

	// Best-effort side effects: the document is legally final at this point,
	// nothing below may undo it.
	c.attachQRPayload(ctx, doc)
	c.broadcast("document.issued", doc)

	return doc, nil
}

func (c *issuanceCoordinator) issueOnce(ctx context.Context, cmd IssueCommand, issueDate, entryDate time.Time) (*model.FiscalDocument, error) {
	var doc *model.FiscalDocument

	err := c.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		series, err := c.seriesRepo.FindByID(txCtx, cmd.SeriesID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSeriesNotFound
			}
			return fmt.Errorf("failed to load series: %w", err)
		}
		if !series.IsActive {
			return ErrSeriesNotFound
		}
		if series.DocumentType != cmd.DocumentType {
			return fmt.Errorf("%w: document type %q does not match series %q of type %q",
				ErrValidationFailed, cmd.DocumentType, series.Code, series.DocumentType)
		}

		number, err := c.seriesRepo.AllocateNextNumber(txCtx, series.ID)
		if err != nil {
			if errors.Is(err, repository.ErrSequenceConflict) {
				return ErrConcurrencyConflict
			}
			return fmt.Errorf("failed to allocate sequence number: %w", err)
		}

		// The chain is per series, ordered by allocated number — never by
		// wall clock, never across series.
		previousHash := ""
		prev, err := c.docRepo.FindLatestInSeries(txCtx, series.ID)
		switch {
		case err == nil:
			previousHash = prev.Hash
		case errors.Is(err, gorm.ErrRecordNotFound):
			// first document of the series
		default:
			return fmt.Errorf("failed to load chain predecessor: %w", err)
		}

		netTotal, taxTotal := sumLines(cmd.Lines)
		grossTotal := netTotal.Add(taxTotal)

		fullNumber := fiscal.FormatNumber(series.Prefix, series.FiscalYear, number)
		hash := fiscal.ComputeHash(issueDate, entryDate, fullNumber, grossTotal, previousHash)

		validationCode := ""
		if series.ValidationCode != nil {
			validationCode = *series.ValidationCode
		}
		atcud := fiscal.GenerateATCUD(validationCode, number)

		lines := make([]model.DocumentLine, len(cmd.Lines))
		copy(lines, cmd.Lines)

		doc = &model.FiscalDocument{
			SeriesID:           series.ID,
			Number:             number,
			FullNumber:         fullNumber,
			DocumentType:       cmd.DocumentType,
			IssueDate:          issueDate,
			EntryDate:          entryDate,
			NetTotal:           netTotal,
			TaxTotal:           taxTotal,
			GrossTotal:         grossTotal,
			Hash:               hash,
			PreviousHash:       previousHash,
			ATCUD:              atcud,
			Status:             model.StatusIssued,
			SourceOrderID:      cmd.SourceOrderID,
			CreditedDocumentID: cmd.CreditedDocumentID,
			Lines:              lines,
		}
		if cmd.Client != nil {
			id := cmd.Client.ID
			doc.ClientID = &id
			doc.ClientName = cmd.Client.Name
			doc.ClientTaxID = cmd.Client.TaxID
			doc.ClientCountry = cmd.Client.Country
		}

		if err := c.docRepo.Create(txCtx, doc); err != nil {
			return fmt.Errorf("failed to persist document: %w", err)
		}

		action := cmd.AuditAction
		if action == "" {
			action = model.ActionIssueDocument
		}
		details, _ := json.Marshal(map[string]string{
			"full_number": fullNumber,
			"atcud":       atcud,
			"gross_total": grossTotal.StringFixed(2),
			"series_code": series.Code,
		})
		entry := &model.AuditLog{
			UserID:     cmd.ActorID,
			Action:     action,
			EntityID:   doc.ID.String(),
			EntityName: fullNumber,
			Details:    string(details),
		}
		if err := c.auditRepo.Log(txCtx, entry); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// attachQRPayload computes and stores the QR payload after commit. The
// payload lives outside the hash input, so a failure here degrades display
// only and never invalidates the issued document.
func (c *issuanceCoordinator) attachQRPayload(ctx context.Context, doc *model.FiscalDocument) {
	payload := fiscal.BuildQRPayload(fiscal.QRParams{
		EmitterTaxID:   c.emitter.TaxID,
		RecipientTaxID: doc.ClientTaxID,
		EmitterCountry: c.emitter.Country,
		DocumentType:   doc.DocumentType,
		IssueDate:      doc.IssueDate,
		FullNumber:     doc.FullNumber,
		ATCUD:          doc.ATCUD,
		NetTotal:       doc.NetTotal,
		TaxTotal:       doc.TaxTotal,
		Hash:           doc.Hash,
	})
	if err := c.docRepo.SetQRPayload(ctx, doc.ID, payload); err != nil {
		c.logger.Warn().Err(err).Str("document", doc.FullNumber).Msg("failed to attach QR payload")
		return
	}
	doc.QRPayload = payload
}

func (c *issuanceCoordinator) broadcast(event string, doc *model.FiscalDocument) {
	if c.hub == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"event": event,
		"data": map[string]interface{}{
			"id":          doc.ID.String(),
			"full_number": doc.FullNumber,
			"type":        doc.DocumentType,
			"gross_total": doc.GrossTotal.StringFixed(2),
		},
	})
	if err != nil {
		return
	}
	select {
	case c.hub.Broadcast <- payload:
	default:
		c.logger.Warn().Str("event", event).Msg("websocket broadcast queue full, event dropped")
	}
}

func validateIssueCommand(cmd IssueCommand) error {
	if _, ok := fiscal.DocumentTypeCode(cmd.DocumentType); !ok {
		return fmt.Errorf("%w: unknown document type %q", ErrValidationFailed, cmd.DocumentType)
	}
	if len(cmd.Lines) == 0 {
		return fmt.Errorf("%w: document has no lines", ErrValidationFailed)
	}
	for i, line := range cmd.Lines {
		if line.Description == "" {
			return fmt.Errorf("%w: line %d has no description", ErrValidationFailed, i+1)
		}
		if !line.Quantity.IsPositive() {
			return fmt.Errorf("%w: line %d quantity must be positive", ErrValidationFailed, i+1)
		}
		if line.NetAmount.IsNegative() || line.TaxAmount.IsNegative() {
			return fmt.Errorf("%w: line %d amounts must not be negative", ErrValidationFailed, i+1)
		}
	}
	return nil
}

func sumLines(lines []model.DocumentLine) (net, tax decimal.Decimal) {
	net, tax = decimal.Zero, decimal.Zero
	for _, line := range lines {
		net = net.Add(line.NetAmount)
		tax = tax.Add(line.TaxAmount)
	}
	return net, tax
}
