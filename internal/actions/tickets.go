package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	log "github.com/tuannvm/otrs-connector/internal/logging"
	"github.com/tuannvm/otrs-connector/internal/models"
	"github.com/tuannvm/otrs-connector/internal/otrs"
	"github.com/tuannvm/otrs-connector/internal/platform"
)

// ticketRef is how a message names its ticket.
type ticketRef struct {
	TicketID models.ID `json:"TicketID"`
}

// createTicket creates a ticket from a TicketRequest body and emits the result.
func (r *Registry) createTicket(ctx context.Context, msg platform.Message, cfg models.StepConfig, _ json.RawMessage, out platform.Sink) error {
	var req models.TicketRequest
	if err := msg.Decode(&req); err != nil {
		return err
	}
	client, err := r.client(cfg)
	if err != nil {
		return err
	}
	result, err := client.CreateTicket(ctx, req)
	if err != nil {
		return err
	}
	log.Infof("Created ticket %s (%s)", result.TicketID, result.TicketNumber)
	return emit(ctx, out, result)
}

// updateTicket applies a TicketRequest body to the ticket named by its TicketID,
// or by Ticket.TicketID.
func (r *Registry) updateTicket(ctx context.Context, msg platform.Message, cfg models.StepConfig, _ json.RawMessage, out platform.Sink) error {
	var body struct {
		ticketRef
		models.TicketRequest
	}
	if err := msg.Decode(&body); err != nil {
		return err
	}
	id := body.TicketID
	if id == 0 && body.Ticket != nil {
		id = body.Ticket.TicketID
	}
	if id == 0 {
		return ErrMissingTicketID
	}
	if body.Ticket != nil {
		body.Ticket.TicketID = 0
	}

	client, err := r.client(cfg)
	if err != nil {
		return err
	}
	result, err := client.UpdateTicket(ctx, id, body.TicketRequest)
	if err != nil {
		return err
	}
	return emit(ctx, out, result)
}

// addArticle adds the body, an article carrying its ticket's TicketID, to that ticket.
func (r *Registry) addArticle(ctx context.Context, msg platform.Message, cfg models.StepConfig, _ json.RawMessage, out platform.Sink) error {
	var ref ticketRef
	if err := msg.Decode(&ref); err != nil {
		return err
	}
	if ref.TicketID == 0 {
		return ErrMissingTicketID
	}
	var article models.Article
	if err := msg.Decode(&article); err != nil {
		return err
	}
	for k := range article.Extra {
		if strings.EqualFold(k, "TicketID") {
			delete(article.Extra, k)
		}
	}

	client, err := r.client(cfg)
	if err != nil {
		return err
	}
	result, err := client.AddArticle(ctx, ref.TicketID, article)
	if err != nil {
		return err
	}
	return emit(ctx, out, result)
}

// getTicket emits the ticket named by the body's TicketID with all articles and
// dynamic fields. With includeAttachments its attachments are moved to platform storage.
func (r *Registry) getTicket(ctx context.Context, msg platform.Message, cfg models.StepConfig, _ json.RawMessage, out platform.Sink) error {
	var ref ticketRef
	if err := msg.Decode(&ref); err != nil {
		return err
	}
	if ref.TicketID == 0 {
		return ErrMissingTicketID
	}

	client, err := r.client(cfg)
	if err != nil {
		return err
	}
	ticket, err := client.GetTicket(ctx, ref.TicketID, otrs.GetFilters{
		AllArticles:   true,
		DynamicFields: true,
		Attachments:   cfg.IncludeAttachments,
	})
	if err != nil {
		return err
	}
	if cfg.IncludeAttachments {
		if err := client.UploadAttachmentsToPlatform(ctx, ticket); err != nil {
			return err
		}
	}
	return emit(ctx, out, ticket)
}

// processAttachments takes an emitted ticket without attachments, fetches the
// attachments of its articles, uploads them and emits the completed ticket.
func (r *Registry) processAttachments(ctx context.Context, msg platform.Message, cfg models.StepConfig, _ json.RawMessage, out platform.Sink) error {
	var body struct {
		Ticket *models.Ticket `json:"ticket"`
	}
	if err := msg.Decode(&body); err != nil {
		return err
	}
	if body.Ticket == nil || body.Ticket.TicketID == 0 {
		return ErrMissingTicketID
	}
	ticket := body.Ticket

	client, err := r.client(cfg)
	if err != nil {
		return err
	}
	withAttachments, err := client.GetTicket(ctx, ticket.TicketID, otrs.GetFilters{AllArticles: true, Attachments: true})
	if err != nil {
		return err
	}

	byArticle := make(map[models.ID]models.Seq[models.Attachment], len(withAttachments.Article))
	for _, a := range withAttachments.Article {
		byArticle[a.ArticleID] = a.Attachment
	}
	for i := range ticket.Article {
		ticket.Article[i].Attachment = byArticle[ticket.Article[i].ArticleID]
	}

	if err := client.UploadAttachmentsToPlatform(ctx, ticket); err != nil {
		return fmt.Errorf("failed to process attachments of ticket %s: %w", ticket.TicketID, err)
	}
	return emit(ctx, out, ticket)
}

// verifyCredentials runs a search that matches nothing and emits {"verified": true}.
func (r *Registry) verifyCredentials(ctx context.Context, _ platform.Message, cfg models.StepConfig, _ json.RawMessage, out platform.Sink) error {
	client, err := r.client(cfg)
	if err != nil {
		return err
	}
	if _, err := client.SearchTickets(ctx, otrs.SearchFilters{TicketNumber: "0"}); err != nil {
		return fmt.Errorf("failed to verify credentials: %w", err)
	}
	return emit(ctx, out, map[string]bool{"verified": true})
}
