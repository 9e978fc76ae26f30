package otrs

import (
	"context"
	"fmt"

	log "github.com/tuannvm/otrs-connector/internal/logging"
	"github.com/tuannvm/otrs-connector/internal/models"
)

// Verify checks credentials with a search that matches nothing.
func Verify(ctx context.Context, creds models.Credentials, opts ...Option) error {
	client, err := NewClient(creds, opts...)
	if err != nil {
		return err
	}
	if _, err := client.SearchTickets(ctx, SearchFilters{TicketNumber: "0"}); err != nil {
		log.Warnf("Credential verification failed for user %s at %s: %v", creds.User, client.creds.BaseURL, err)
		return fmt.Errorf("failed to verify credentials: %w", err)
	}
	log.Infof("Credentials verified for user %s at %s", creds.User, client.creds.BaseURL)
	return nil
}
