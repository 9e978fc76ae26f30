// Package actions holds the connector's actions and triggers and a registry
// that resolves them by name.
package actions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/tuannvm/otrs-connector/internal/models"
	"github.com/tuannvm/otrs-connector/internal/otrs"
	"github.com/tuannvm/otrs-connector/internal/platform"
)

// Function names as the platform invokes them.
const (
	CreateTicket       = "createTicket"
	UpdateTicket       = "updateTicket"
	AddArticle         = "addArticle"
	GetTicket          = "getTicket"
	ProcessAttachments = "processAttachments"
	ForEach            = "forEach"
	GetNewTickets      = "getNewTickets"
	GetUpdatedTickets  = "getUpdatedTickets"
	VerifyCredentials  = "verifyCredentials"
)

var (
	// ErrUnknownFunction is returned for names the registry does not know.
	ErrUnknownFunction = errors.New("unknown function")
	// ErrMissingTicketID is returned when the message names no ticket.
	ErrMissingTicketID = errors.New("ticket ID is required")
)

// ClientFactory creates an OTRS client for the invocation's credentials.
type ClientFactory func(creds models.Credentials) (otrs.TicketClient, error)

// NewClientFactory returns a factory for web service clients sharing storage
// and timeout. A nil storage is allowed.
func NewClientFactory(storage platform.Storage, timeout time.Duration) ClientFactory {
	httpClient := &http.Client{Timeout: timeout}
	return func(creds models.Credentials) (otrs.TicketClient, error) {
		opts := []otrs.Option{otrs.WithHTTPClient(httpClient)}
		if storage != nil {
			opts = append(opts, otrs.WithStorage(storage))
		}
		return otrs.NewTicketClient(creds, opts...)
	}
}

// Registry maps function names to connector functions.
type Registry struct {
	newClient ClientFactory
	functions map[string]platform.Function
}

// NewRegistry registers every connector function.
func NewRegistry(newClient ClientFactory) *Registry {
	r := &Registry{newClient: newClient}
	r.functions = map[string]platform.Function{
		CreateTicket:       r.createTicket,
		UpdateTicket:       r.updateTicket,
		AddArticle:         r.addArticle,
		GetTicket:          r.getTicket,
		ProcessAttachments: r.processAttachments,
		ForEach:            forEach,
		GetNewTickets:      r.pollTickets(pollerField(GetNewTickets)),
		GetUpdatedTickets:  r.pollTickets(pollerField(GetUpdatedTickets)),
		VerifyCredentials:  r.verifyCredentials,
	}
	return r
}

// Get returns the named function.
func (r *Registry) Get(name string) (platform.Function, error) {
	fn, ok := r.functions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}
	return fn, nil
}

// Names returns the registered names in alphabetical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsTrigger reports whether name is a polling trigger that takes a snapshot.
func IsTrigger(name string) bool {
	return name == GetNewTickets || name == GetUpdatedTickets
}

// Invoke resolves inv.Function and runs it through platform.Process. An unknown
// name fails the recorder like any other error.
func (r *Registry) Invoke(ctx context.Context, inv platform.Invocation, rec *platform.Recorder) error {
	fn, err := r.Get(inv.Function)
	if err != nil {
		rec.Fail(err)
		rec.End()
		return err
	}
	return platform.Process(ctx, fn, inv, rec)
}

func (r *Registry) client(cfg models.StepConfig) (otrs.TicketClient, error) {
	return r.newClient(cfg.Credentials())
}

// emit wraps body in a message and emits it.
func emit(ctx context.Context, out platform.Sink, body interface{}) error {
	msg, err := platform.NewMessageWithBody(body)
	if err != nil {
		return err
	}
	return out.Emit(ctx, msg)
}
