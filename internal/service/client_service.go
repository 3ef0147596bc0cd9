package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"faturacao/internal/model"
	"faturacao/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateClientRequest struct {
	Name    string `json:"name" binding:"required"`
	TaxID   string `json:"tax_id"`
	Country string `json:"country"`
	Address string `json:"address"`
	Email   string `json:"email" binding:"omitempty,email"`
}

type UpdateClientRequest struct {
	Name    *string `json:"name"`
	TaxID   *string `json:"tax_id"`
	Country *string `json:"country"`
	Address *string `json:"address"`
	Email   *string `json:"email" binding:"omitempty,email"`
}

type ClientResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TaxID     string `json:"tax_id"`
	Country   string `json:"country"`
	Address   string `json:"address"`
	Email     string `json:"email"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

// --- Interface ---

type ClientService interface {
	CreateClient(ctx context.Context, actorID string, req CreateClientRequest) (ClientResponse, error)
	GetClient(ctx context.Context, id string) (ClientResponse, error)
	ListClients(ctx context.Context, page, limit int) ([]ClientResponse, int64, error)
	UpdateClient(ctx context.Context, id string, req UpdateClientRequest) (ClientResponse, error)
	DeactivateClient(ctx context.Context, id string) error
}

type clientService struct {
	clientRepo repository.ClientRepository
	auditRepo  repository.AuditRepository
	txManager  repository.TransactionManager
}

func NewClientService(
	clientRepo repository.ClientRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) ClientService {
	return &clientService{clientRepo: clientRepo, auditRepo: auditRepo, txManager: txManager}
}

// --- Implementation ---

func (s *clientService) CreateClient(ctx context.Context, actorID string, req CreateClientRequest) (ClientResponse, error) {
	country := req.Country
	if country == "" {
		country = "PT"
	}

	client := model.Client{
		Name:     req.Name,
		TaxID:    req.TaxID,
		Country:  country,
		Address:  req.Address,
		Email:    req.Email,
		IsActive: true,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.clientRepo.Create(txCtx, &client); err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}
		details, _ := json.Marshal(req)
		return s.auditRepo.Log(txCtx, &model.AuditLog{
			UserID:     parseActor(actorID),
			Action:     model.ActionCreateClient,
			EntityID:   client.ID.String(),
			EntityName: client.Name,
			Details:    string(details),
		})
	})
	if err != nil {
		return ClientResponse{}, err
	}

	return toClientResponse(client), nil
}

func (s *clientService) GetClient(ctx context.Context, id string) (ClientResponse, error) {
	client, err := s.load(ctx, id)
	if err != nil {
		return ClientResponse{}, err
	}
	return toClientResponse(*client), nil
}

func (s *clientService) ListClients(ctx context.Context, page, limit int) ([]ClientResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	clients, total, err := s.clientRepo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch clients: %w", err)
	}

	result := make([]ClientResponse, 0, len(clients))
	for _, c := range clients {
		result = append(result, toClientResponse(c))
	}
	return result, total, nil
}

func (s *clientService) UpdateClient(ctx context.Context, id string, req UpdateClientRequest) (ClientResponse, error) {
	client, err := s.load(ctx, id)
	if err != nil {
		return ClientResponse{}, err
	}

	// Documents snapshot client fields at issuance, so edits here never
	// reach already-issued documents.
	if req.Name != nil {
		client.Name = *req.Name
	}
	if req.TaxID != nil {
		client.TaxID = *req.TaxID
	}
	if req.Country != nil {
		client.Country = *req.Country
	}
	if req.Address != nil {
		client.Address = *req.Address
	}
	if req.Email != nil {
		client.Email = *req.Email
	}

	if err := s.clientRepo.Update(ctx, client); err != nil {
		return ClientResponse{}, fmt.Errorf("failed to update client: %w", err)
	}
	return toClientResponse(*client), nil
}

func (s *clientService) DeactivateClient(ctx context.Context, id string) error {
	client, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	client.IsActive = false
	return s.clientRepo.Update(ctx, client)
}

// --- Helpers ---

func (s *clientService) load(ctx context.Context, id string) (*model.Client, error) {
	clientID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrClientNotFound
	}
	client, err := s.clientRepo.FindByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	return client, nil
}

func toClientResponse(c model.Client) ClientResponse {
	return ClientResponse{
		ID:        c.ID.String(),
		Name:      c.Name,
		TaxID:     c.TaxID,
		Country:   c.Country,
		Address:   c.Address,
		Email:     c.Email,
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}
