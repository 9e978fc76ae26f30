package otrs

import "github.com/tuannvm/otrs-connector/internal/models"

// MapInputToTicket normalizes free-form create/update input into the shape
// TicketCreate and TicketUpdate accept:
//   - OTHER bags of Ticket and Article are merged into their parent
//   - attachments embedded in the article move to the top-level Attachment list
//   - dynamic fields of the ticket, the request and DynamicFieldOther end up in
//     the top-level DynamicField list, in that order
//
// The input is not modified. Applying it to its own output changes nothing.
func MapInputToTicket(req models.TicketRequest) (models.TicketRequest, error) {
	var out models.TicketRequest

	var ticketFields models.Seq[models.DynamicField]
	if req.Ticket != nil {
		ticket := *req.Ticket
		if err := ticket.FlattenOther(); err != nil {
			return out, err
		}
		ticketFields = ticket.DynamicField
		ticket.DynamicField = nil
		out.Ticket = &ticket
	}

	var articleAttachments models.Seq[models.Attachment]
	if req.Article != nil {
		article := *req.Article
		if err := article.FlattenOther(); err != nil {
			return out, err
		}
		articleAttachments = article.Attachment
		article.Attachment = nil
		out.Article = &article
	}

	for _, atts := range []models.Seq[models.Attachment]{req.Attachment, articleAttachments} {
		out.Attachment = append(out.Attachment, atts...)
	}
	for _, fields := range []models.Seq[models.DynamicField]{req.DynamicField, ticketFields, req.DynamicFieldOther} {
		out.DynamicField = append(out.DynamicField, fields...)
	}
	return out, nil
}
