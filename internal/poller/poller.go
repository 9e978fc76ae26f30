// Package poller discovers tickets created or changed since a cursor.
//
// A run asks OTRS twice. The first search covers the cursor's own second and
// keeps only ids above the cursor id, which picks up tickets that shared a
// timestamp with the last processed ticket but did not fit into the previous
// run. If that page is short, a second search starts one second later and
// fills the remaining limit. Tickets are emitted one at a time and the cursor
// advances after each one, so a failed run resumes after its last emitted ticket.
package poller

import (
	"context"
	"fmt"

	log "github.com/tuannvm/otrs-connector/internal/logging"
	"github.com/tuannvm/otrs-connector/internal/models"
	"github.com/tuannvm/otrs-connector/internal/otrs"
	"github.com/tuannvm/otrs-connector/internal/platform"
)

// Meta is run-level data emitted with every ticket.
type Meta struct {
	StartDateTime string `json:"startDateTime"`
}

// Result is the body of an emitted message.
type Result struct {
	Ticket models.Ticket `json:"ticket"`
	Meta   Meta          `json:"meta"`
}

// Poller runs the incremental ticket query for one trigger configuration.
type Poller struct {
	client  otrs.TicketClient
	opts    Options
	metrics *pollMetrics
}

// New creates a poller.
func New(client otrs.TicketClient, opts Options) *Poller {
	return &Poller{
		client:  client,
		opts:    opts,
		metrics: globalPollMetrics(),
	}
}

// Run performs one poll cycle starting at cursor. A zero cursor starts at the
// configured start date. Errors are reported to sink.Fail and returned; an
// empty result emits nothing and leaves the cursor where it was.
func (p *Poller) Run(ctx context.Context, cursor models.Cursor, sink platform.Sink) error {
	done := p.metrics.recordRun(p.opts.Field)
	err := p.run(ctx, cursor, sink)
	done(err)
	if err != nil {
		sink.Fail(err)
	}
	return err
}

func (p *Poller) run(ctx context.Context, cursor models.Cursor, sink platform.Sink) error {
	if err := p.opts.Validate(); err != nil {
		return err
	}

	lastID := cursor.LastProcessedTicketID
	lastDate := cursor.LastProcessedTicketDate
	if lastDate == "" {
		lastDate = p.opts.StartDateTime
	}
	if !otrs.IsValidDate(lastDate) {
		return fmt.Errorf("snapshot date %q is invalid", lastDate)
	}

	ids, err := p.sameInstant(ctx, lastID, lastDate)
	if err != nil {
		return err
	}
	log.Debugf("Same datetime ticket ids: %v", ids)

	if len(ids) < p.opts.Limit {
		more, err := p.forward(ctx, lastDate, p.opts.Limit-len(ids))
		if err != nil {
			return err
		}
		ids = append(ids, more...)
		log.Debugf("All ticket ids: %v", ids)
	}

	if len(ids) == 0 {
		log.Infof("No %s tickets since %s (id %s)", p.opts.Field.label(), lastDate, lastID)
		return nil
	}

	tickets, err := p.client.GetTickets(ctx, ids, p.opts.getFilters())
	if err != nil {
		return err
	}

	meta := Meta{StartDateTime: lastDate}
	for i := range tickets {
		if err := ctx.Err(); err != nil {
			return err
		}
		ticket := &tickets[i]

		if p.opts.IncludeAttachments {
			if err := p.client.UploadAttachmentsToPlatform(ctx, ticket); err != nil {
				return fmt.Errorf("ticket %s: %w", ticket.TicketID, err)
			}
		}

		msg, err := platform.NewMessageWithBody(Result{Ticket: *ticket, Meta: meta})
		if err != nil {
			return err
		}
		if err := sink.Emit(ctx, msg); err != nil {
			return fmt.Errorf("failed to emit ticket %s: %w", ticket.TicketID, err)
		}
		p.metrics.recordEmit(p.opts.Field)

		next := models.Cursor{
			LastProcessedTicketID:   ticket.TicketID,
			LastProcessedTicketDate: p.opts.Field.Timestamp(*ticket),
		}
		if err := sink.AdvanceCursor(ctx, next); err != nil {
			return fmt.Errorf("failed to advance cursor to ticket %s: %w", ticket.TicketID, err)
		}
	}

	log.Infof("Emitted %d %s tickets since %s", len(tickets), p.opts.Field.label(), lastDate)
	return nil
}

// sameInstant returns tickets stamped exactly lastDate with an id above lastID.
func (p *Poller) sameInstant(ctx context.Context, lastID models.ID, lastDate string) ([]models.ID, error) {
	filters := p.opts.Field.between(lastDate, lastDate)
	filters.SortBy = otrs.SortKeys{"TicketNumber"}
	filters.OrderBy = otrs.SortKeys{"Up"}
	filters.Limit = p.opts.Limit
	filters.Queues = p.opts.Queues

	p.metrics.recordSearch(p.opts.Field, "same_instant")
	found, err := p.client.SearchTickets(ctx, filters)
	if err != nil {
		return nil, err
	}

	ids := make([]models.ID, 0, len(found))
	for _, id := range found {
		if id > lastID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// forward returns up to limit tickets stamped after lastDate.
func (p *Poller) forward(ctx context.Context, lastDate string, limit int) ([]models.ID, error) {
	newer, err := otrs.Add1Second(lastDate)
	if err != nil {
		return nil, err
	}
	filters := p.opts.Field.between(newer, "")
	filters.SortBy = otrs.SortKeys{p.opts.Field.sortKey(), "TicketNumber"}
	filters.OrderBy = otrs.SortKeys{"Up", "Up"}
	filters.Limit = limit
	filters.Queues = p.opts.Queues

	p.metrics.recordSearch(p.opts.Field, "forward")
	return p.client.SearchTickets(ctx, filters)
}
