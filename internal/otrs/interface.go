package otrs

import (
	"context"

	"github.com/tuannvm/otrs-connector/internal/models"
)

// TicketClient defines the operations an OTRS client should implement
type TicketClient interface {
	CreateTicket(ctx context.Context, req models.TicketRequest) (*models.TicketResult, error)
	UpdateTicket(ctx context.Context, id models.ID, req models.TicketRequest) (*models.TicketResult, error)
	AddArticle(ctx context.Context, id models.ID, article models.Article) (*models.TicketResult, error)
	SearchTickets(ctx context.Context, filters SearchFilters) ([]models.ID, error)
	GetTicket(ctx context.Context, id models.ID, filters GetFilters) (*models.Ticket, error)
	GetTickets(ctx context.Context, ids []models.ID, filters GetFilters) ([]models.Ticket, error)
	UploadAttachmentsToPlatform(ctx context.Context, ticket *models.Ticket) error
}

var _ TicketClient = (*Client)(nil)

// NewTicketClient creates a TicketClient backed by the web service
func NewTicketClient(creds models.Credentials, opts ...Option) (TicketClient, error) {
	return NewClient(creds, opts...)
}
