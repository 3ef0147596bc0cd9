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
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type DocumentLineRequest struct {
	Description string `json:"description" binding:"required"`
	Quantity    string `json:"quantity" binding:"required"`
	UnitPrice   string `json:"unit_price" binding:"required"`
	TaxRate     string `json:"tax_rate"`
	NetAmount   string `json:"net_amount" binding:"required"`
	TaxAmount   string `json:"tax_amount"`
}

type CreateDocumentRequest struct {
	SeriesID     string                `json:"series_id" binding:"required"`
	DocumentType string                `json:"document_type" binding:"required,oneof=INVOICE SIMPLIFIED_INVOICE INVOICE_RECEIPT CREDIT_NOTE DEBIT_NOTE RECEIPT"`
	IssueDate    string                `json:"issue_date"` // YYYY-MM-DD, defaults to today
	ClientID     string                `json:"client_id"`  // empty means final consumer
	Lines        []DocumentLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// CreditNoteRequest corrects an issued document. Lines default to a full
// credit of the source document when omitted.
type CreditNoteRequest struct {
	SeriesID string                `json:"series_id" binding:"required"` // a CREDIT_NOTE series
	Reason   string                `json:"reason" binding:"required"`
	Lines    []DocumentLineRequest `json:"lines"`
}

type AnnulDocumentRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type DocumentFilter struct {
	SeriesID     string
	DocumentType string
	Status       string
	Page         int
	Limit        int
}

type DocumentLineResponse struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	TaxRate     string `json:"tax_rate"`
	NetAmount   string `json:"net_amount"`
	TaxAmount   string `json:"tax_amount"`
}

type DocumentResponse struct {
	ID            string                 `json:"id"`
	SeriesID      string                 `json:"series_id"`
	Number        int64                  `json:"number"`
	FullNumber    string                 `json:"full_number"`
	DocumentType  string                 `json:"document_type"`
	IssueDate     string                 `json:"issue_date"`
	EntryDate     string                 `json:"entry_date"`
	ClientName    string                 `json:"client_name"`
	ClientTaxID   string                 `json:"client_tax_id"`
	NetTotal      string                 `json:"net_total"`
	TaxTotal      string                 `json:"tax_total"`
	GrossTotal    string                 `json:"gross_total"`
	Hash          string                 `json:"hash"`
	PreviousHash  string                 `json:"previous_hash"`
	ATCUD         string                 `json:"atcud"`
	QRPayload     string                 `json:"qr_payload,omitempty"`
	Status        string                 `json:"status"`
	AnnulledAt    *string                `json:"annulled_at,omitempty"`
	AnnulReason   string                 `json:"annul_reason,omitempty"`
	PaidAt        *string                `json:"paid_at,omitempty"`
	Lines         []DocumentLineResponse `json:"lines,omitempty"`
	CreatedAt     string                 `json:"created_at"`
}

// ChainVerificationResult reports the walk over one series' chain. A broken
// link is an audit incident: the software reports it and heals nothing.
type ChainVerificationResult struct {
	SeriesID         string `json:"series_id"`
	SeriesCode       string `json:"series_code"`
	DocumentsChecked int    `json:"documents_checked"`
	Valid            bool   `json:"valid"`
	BrokenAt         string `json:"broken_at,omitempty"` // full number of the first bad document
	Reason           string `json:"reason,omitempty"`
}

// --- Interface ---

type DocumentService interface {
	CreateDocument(ctx context.Context, actorID string, req CreateDocumentRequest) (DocumentResponse, error)
	GetDocument(ctx context.Context, id string) (DocumentResponse, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]DocumentResponse, int64, error)
	AnnulDocument(ctx context.Context, id, actorID string, req AnnulDocumentRequest) (DocumentResponse, error)
	MarkPaid(ctx context.Context, id string) (DocumentResponse, error)
	IssueCreditNote(ctx context.Context, sourceID, actorID string, req CreditNoteRequest) (DocumentResponse, error)
	VerifyChain(ctx context.Context, seriesID string) (ChainVerificationResult, error)
}

type documentService struct {
	coordinator IssuanceCoordinator
	docRepo     repository.DocumentRepository
	seriesRepo  repository.SeriesRepository
	clientRepo  repository.ClientRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	hub         *ws.Hub
}

func NewDocumentService(
	coordinator IssuanceCoordinator,
	docRepo repository.DocumentRepository,
	seriesRepo repository.SeriesRepository,
	clientRepo repository.ClientRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	hub *ws.Hub,
) DocumentService {
	return &documentService{
		coordinator: coordinator,
		docRepo:     docRepo,
		seriesRepo:  seriesRepo,
		clientRepo:  clientRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		hub:         hub,
	}
}

// --- Implementation ---

func (s *documentService) CreateDocument(ctx context.Context, actorID string, req CreateDocumentRequest) (DocumentResponse, error) {
	seriesID, err := uuid.Parse(req.SeriesID)
	if err != nil {
		return DocumentResponse{}, fmt.Errorf("%w: invalid series id", ErrValidationFailed)
	}

	issueDate := time.Time{}
	if req.IssueDate != "" {
		issueDate, err = time.Parse("2006-01-02", req.IssueDate)
		if err != nil {
			return DocumentResponse{}, fmt.Errorf("%w: invalid issue date %q", ErrValidationFailed, req.IssueDate)
		}
	}

	var client *model.Client
	if req.ClientID != "" {
		clientID, parseErr := uuid.Parse(req.ClientID)
		if parseErr != nil {
			return DocumentResponse{}, fmt.Errorf("%w: invalid client id", ErrValidationFailed)
		}
		client, err = s.clientRepo.FindByID(ctx, clientID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return DocumentResponse{}, ErrClientNotFound
			}
			return DocumentResponse{}, fmt.Errorf("failed to load client: %w", err)
		}
		if !client.IsActive {
			return DocumentResponse{}, ErrClientNotFound
		}
	}

	lines, err := parseLines(req.Lines)
	if err != nil {
		return DocumentResponse{}, err
	}

	doc, err := s.coordinator.Issue(ctx, IssueCommand{
		SeriesID:     seriesID,
		DocumentType: req.DocumentType,
		IssueDate:    issueDate,
		Client:       client,
		Lines:        lines,
		ActorID:      parseActor(actorID),
	})
	if err != nil {
		return DocumentResponse{}, err
	}

	return toDocumentResponse(*doc), nil
}

func (s *documentService) GetDocument(ctx context.Context, id string) (DocumentResponse, error) {
	doc, err := s.loadDocument(ctx, id)
	if err != nil {
		return DocumentResponse{}, err
	}
	return toDocumentResponse(*doc), nil
}

func (s *documentService) ListDocuments(ctx context.Context, filter DocumentFilter) ([]DocumentResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	repoFilter := repository.DocumentListFilter{
		DocumentType: filter.DocumentType,
		Status:       filter.Status,
		Page:         filter.Page,
		Limit:        filter.Limit,
	}
	if filter.SeriesID != "" {
		seriesID, err := uuid.Parse(filter.SeriesID)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: invalid series id", ErrValidationFailed)
		}
		repoFilter.SeriesID = &seriesID
	}

	docs, total, err := s.docRepo.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch documents: %w", err)
	}

	result := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		result = append(result, toDocumentResponse(d))
	}
	return result, total, nil
}

// AnnulDocument flips an issued document to ANNULLED. The document keeps its
// number, hash and chain position; correction of amounts happens through a
// credit note, never by renumbering.
func (s *documentService) AnnulDocument(ctx context.Context, id, actorID string, req AnnulDocumentRequest) (DocumentResponse, error) {
	docID, err := uuid.Parse(id)
	if err != nil {
		return DocumentResponse{}, ErrDocumentNotFound
	}

	var doc *model.FiscalDocument
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		doc, findErr = s.docRepo.FindByID(txCtx, docID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return ErrDocumentNotFound
			}
			return findErr
		}
		if doc.Status != model.StatusIssued {
			return ErrNotIssued
		}

		now := time.Now()
		if annulErr := s.docRepo.Annul(txCtx, doc.ID, req.Reason, now); annulErr != nil {
			return fmt.Errorf("failed to annul document: %w", annulErr)
		}

		details, _ := json.Marshal(map[string]string{"reason": req.Reason})
		return s.auditRepo.Log(txCtx, &model.AuditLog{
			UserID:     parseActor(actorID),
			Action:     model.ActionAnnulDocument,
			EntityID:   doc.ID.String(),
			EntityName: doc.FullNumber,
			Details:    string(details),
		})
	})
	if err != nil {
		return DocumentResponse{}, err
	}

	s.broadcast("document.annulled", doc)

	reloaded, err := s.docRepo.FindByID(ctx, docID)
	if err != nil {
		return DocumentResponse{}, fmt.Errorf("failed to reload document: %w", err)
	}
	return toDocumentResponse(*reloaded), nil
}

func (s *documentService) MarkPaid(ctx context.Context, id string) (DocumentResponse, error) {
	doc, err := s.loadDocument(ctx, id)
	if err != nil {
		return DocumentResponse{}, err
	}
	if doc.Status != model.StatusIssued {
		return DocumentResponse{}, ErrNotIssued
	}

	// Payment bookkeeping lives outside the hash input, so this update never
	// touches chain integrity.
	if err := s.docRepo.MarkPaid(ctx, doc.ID, time.Now()); err != nil {
		return DocumentResponse{}, fmt.Errorf("failed to mark document paid: %w", err)
	}

	reloaded, err := s.docRepo.FindByID(ctx, doc.ID)
	if err != nil {
		return DocumentResponse{}, fmt.Errorf("failed to reload document: %w", err)
	}
	return toDocumentResponse(*reloaded), nil
}

// IssueCreditNote emits a new document in a credit-note series that
// references the corrected document. The credit note continues its own
// series' chain like any other emission.
func (s *documentService) IssueCreditNote(ctx context.Context, sourceID, actorID string, req CreditNoteRequest) (DocumentResponse, error) {
	source, err := s.loadDocument(ctx, sourceID)
	if err != nil {
		return DocumentResponse{}, err
	}
	if source.Status != model.StatusIssued {
		return DocumentResponse{}, ErrNotIssued
	}

	seriesID, err := uuid.Parse(req.SeriesID)
	if err != nil {
		return DocumentResponse{}, fmt.Errorf("%w: invalid series id", ErrValidationFailed)
	}

	var lines []model.DocumentLine
	if len(req.Lines) > 0 {
		lines, err = parseLines(req.Lines)
		if err != nil {
			return DocumentResponse{}, err
		}
	} else {
		// full credit of the source document
		lines = make([]model.DocumentLine, 0, len(source.Lines))
		for _, l := range source.Lines {
			lines = append(lines, model.DocumentLine{
				Description: l.Description,
				Quantity:    l.Quantity,
				UnitPrice:   l.UnitPrice,
				TaxRate:     l.TaxRate,
				NetAmount:   l.NetAmount,
				TaxAmount:   l.TaxAmount,
			})
		}
	}

	var client *model.Client
	if source.ClientID != nil {
		client, err = s.clientRepo.FindByID(ctx, *source.ClientID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return DocumentResponse{}, fmt.Errorf("failed to load client: %w", err)
		}
	}

	sourceRef := source.ID
	doc, err := s.coordinator.Issue(ctx, IssueCommand{
		SeriesID:           seriesID,
		DocumentType:       model.DocTypeCreditNote,
		Client:             client,
		Lines:              lines,
		CreditedDocumentID: &sourceRef,
		ActorID:            parseActor(actorID),
		AuditAction:        model.ActionIssueCreditNote,
	})
	if err != nil {
		return DocumentResponse{}, err
	}

	return toDocumentResponse(*doc), nil
}

// VerifyChain recomputes every hash in a series, in allocated-number order,
// and checks each link against its predecessor.
func (s *documentService) VerifyChain(ctx context.Context, seriesID string) (ChainVerificationResult, error) {
	id, err := uuid.Parse(seriesID)
	if err != nil {
		return ChainVerificationResult{}, ErrSeriesNotFound
	}

	series, err := s.seriesRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ChainVerificationResult{}, ErrSeriesNotFound
		}
		return ChainVerificationResult{}, fmt.Errorf("failed to load series: %w", err)
	}

	docs, err := s.docRepo.ListBySeriesAscending(ctx, id)
	if err != nil {
		return ChainVerificationResult{}, fmt.Errorf("failed to load documents: %w", err)
	}

	result := ChainVerificationResult{
		SeriesID:         series.ID.String(),
		SeriesCode:       series.Code,
		DocumentsChecked: len(docs),
		Valid:            true,
	}

	previousHash := ""
	for i, doc := range docs {
		if doc.Number != int64(i+1) {
			result.Valid = false
			result.BrokenAt = doc.FullNumber
			result.Reason = fmt.Sprintf("sequence gap: expected number %d, found %d", i+1, doc.Number)
			return result, nil
		}
		if doc.PreviousHash != previousHash {
			result.Valid = false
			result.BrokenAt = doc.FullNumber
			result.Reason = "previous-hash link does not match predecessor"
			return result, nil
		}
		recomputed := fiscal.ComputeHash(doc.IssueDate, doc.EntryDate, doc.FullNumber, doc.GrossTotal, doc.PreviousHash)
		if recomputed != doc.Hash {
			result.Valid = false
			result.BrokenAt = doc.FullNumber
			result.Reason = "stored hash does not match recomputed content hash"
			return result, nil
		}
		previousHash = doc.Hash
	}

	return result, nil
}

// --- Helpers ---

func (s *documentService) loadDocument(ctx context.Context, id string) (*model.FiscalDocument, error) {
	docID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrDocumentNotFound
	}
	doc, err := s.docRepo.FindByID(ctx, docID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return doc, nil
}

func (s *documentService) broadcast(event string, doc *model.FiscalDocument) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"event": event,
		"data": map[string]interface{}{
			"id":          doc.ID.String(),
			"full_number": doc.FullNumber,
		},
	})
	if err != nil {
		return
	}
	select {
	case s.hub.Broadcast <- payload:
	default:
	}
}

func parseActor(actorID string) *uuid.UUID {
	if parsed, err := uuid.Parse(actorID); err == nil {
		return &parsed
	}
	return nil
}

func parseLines(reqs []DocumentLineRequest) ([]model.DocumentLine, error) {
	lines := make([]model.DocumentLine, 0, len(reqs))
	for i, lr := range reqs {
		quantity, err := decimal.NewFromString(lr.Quantity)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d has invalid quantity", ErrValidationFailed, i+1)
		}
		unitPrice, err := decimal.NewFromString(lr.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d has invalid unit price", ErrValidationFailed, i+1)
		}
		netAmount, err := decimal.NewFromString(lr.NetAmount)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d has invalid net amount", ErrValidationFailed, i+1)
		}
		taxRate := decimal.Zero
		if lr.TaxRate != "" {
			taxRate, err = decimal.NewFromString(lr.TaxRate)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d has invalid tax rate", ErrValidationFailed, i+1)
			}
		}
		taxAmount := decimal.Zero
		if lr.TaxAmount != "" {
			taxAmount, err = decimal.NewFromString(lr.TaxAmount)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d has invalid tax amount", ErrValidationFailed, i+1)
			}
		}
		lines = append(lines, model.DocumentLine{
			Description: lr.Description,
			Quantity:    quantity,
			UnitPrice:   unitPrice,
			TaxRate:     taxRate,
			NetAmount:   netAmount,
			TaxAmount:   taxAmount,
		})
	}
	return lines, nil
}

func toDocumentResponse(doc model.FiscalDocument) DocumentResponse {
	resp := DocumentResponse{
		ID:           doc.ID.String(),
		SeriesID:     doc.SeriesID.String(),
		Number:       doc.Number,
		FullNumber:   doc.FullNumber,
		DocumentType: doc.DocumentType,
		IssueDate:    doc.IssueDate.Format("2006-01-02"),
		EntryDate:    doc.EntryDate.Format("2006-01-02T15:04:05"),
		ClientName:   doc.ClientName,
		ClientTaxID:  doc.ClientTaxID,
		NetTotal:     doc.NetTotal.StringFixed(2),
		TaxTotal:     doc.TaxTotal.StringFixed(2),
		GrossTotal:   doc.GrossTotal.StringFixed(2),
		Hash:         doc.Hash,
		PreviousHash: doc.PreviousHash,
		ATCUD:        doc.ATCUD,
		QRPayload:    doc.QRPayload,
		Status:       doc.Status,
		AnnulReason:  doc.AnnulReason,
		CreatedAt:    doc.CreatedAt.Format(time.RFC3339),
	}

	if doc.AnnulledAt != nil {
		s := doc.AnnulledAt.Format(time.RFC3339)
		resp.AnnulledAt = &s
	}
	if doc.PaidAt != nil {
		s := doc.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &s
	}
	for _, l := range doc.Lines {
		resp.Lines = append(resp.Lines, DocumentLineResponse{
			Description: l.Description,
			Quantity:    l.Quantity.String(),
			UnitPrice:   l.UnitPrice.String(),
			TaxRate:     l.TaxRate.StringFixed(2),
			NetAmount:   l.NetAmount.StringFixed(2),
			TaxAmount:   l.TaxAmount.StringFixed(2),
		})
	}

	return resp
}
