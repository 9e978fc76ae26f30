package poller

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tuannvm/otrs-connector/internal/models"
	"github.com/tuannvm/otrs-connector/internal/otrs"
	"github.com/tuannvm/otrs-connector/internal/platform"
)

// DefaultLimit is the number of tickets a run processes when no limit is configured.
const DefaultLimit = 50

var (
	// ErrInvalidConfig is wrapped by every configuration error.
	ErrInvalidConfig = errors.New("invalid trigger configuration")
	// ErrAttachmentsWithoutArticles is returned when attachments are requested without articles.
	ErrAttachmentsWithoutArticles = fmt.Errorf("%w: in order to include attachments, articles need to be included, too", ErrInvalidConfig)
)

// Field is the ticket timestamp a poller follows.
type Field string

const (
	// CreateTime discovers new tickets.
	CreateTime Field = "CreateTime"
	// ChangeTime discovers updated tickets.
	ChangeTime Field = "ChangeTime"
)

// sortKey is the TicketSearch SortBy value for the field.
func (f Field) sortKey() string {
	if f == ChangeTime {
		return "Changed"
	}
	return "Created"
}

// Timestamp returns the ticket's value for the field.
func (f Field) Timestamp(t models.Ticket) string {
	if f == ChangeTime {
		return t.Changed
	}
	return t.Created
}

func (f Field) label() string {
	if f == ChangeTime {
		return "changed"
	}
	return "created"
}

// between returns search filters for tickets whose field lies in [newer, older].
// An empty bound is left open.
func (f Field) between(newer, older string) otrs.SearchFilters {
	var filters otrs.SearchFilters
	if f == ChangeTime {
		filters.TicketChangeTimeNewerDate = newer
		filters.TicketChangeTimeOlderDate = older
	} else {
		filters.TicketCreateTimeNewerDate = newer
		filters.TicketCreateTimeOlderDate = older
	}
	return filters
}

// Options configure a poll run.
type Options struct {
	Field              Field
	StartDateTime      string
	Limit              int
	Queues             []string
	IncludeArticles    models.ArticleDetail
	IncludeAttachments bool
}

// OptionsFromConfig builds options from the step configuration. An empty
// limit becomes DefaultLimit. The result is not validated.
func OptionsFromConfig(field Field, cfg models.StepConfig) (Options, error) {
	opts := Options{
		Field:              field,
		StartDateTime:      strings.TrimSpace(cfg.StartDateTime),
		Limit:              DefaultLimit,
		Queues:             platform.ParseCsvInput(cfg.Queues),
		IncludeArticles:    cfg.IncludeArticles,
		IncludeAttachments: cfg.IncludeAttachments,
	}
	if raw := strings.TrimSpace(string(cfg.Limit)); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return opts, fmt.Errorf("%w: limit must be a number greater than zero", ErrInvalidConfig)
		}
		opts.Limit = limit
	}
	return opts, nil
}

// Validate checks the options before any request is made.
func (o Options) Validate() error {
	if o.Field != CreateTime && o.Field != ChangeTime {
		return fmt.Errorf("%w: unknown ticket field %q", ErrInvalidConfig, o.Field)
	}
	if o.StartDateTime == "" {
		return fmt.Errorf("%w: \"Tickets %s since\" field is required", ErrInvalidConfig, o.Field.label())
	}
	if !otrs.IsValidDate(o.StartDateTime) {
		return fmt.Errorf("%w: \"Tickets %s since\" field is invalid. Valid format is \"yyyy-mm-dd hh:mm:ss\"", ErrInvalidConfig, o.Field.label())
	}
	if o.Limit <= 0 {
		return fmt.Errorf("%w: limit must be a number greater than zero", ErrInvalidConfig)
	}
	switch o.IncludeArticles {
	case "", models.ArticlesNone, models.ArticlesFirst, models.ArticlesAll:
	default:
		return fmt.Errorf("%w: includeArticles must be one of none, first or all", ErrInvalidConfig)
	}
	if o.IncludeAttachments && !o.includesArticles() {
		return ErrAttachmentsWithoutArticles
	}
	return nil
}

func (o Options) includesArticles() bool {
	return o.IncludeArticles == models.ArticlesFirst || o.IncludeArticles == models.ArticlesAll
}

// getFilters are the TicketGet flags for the configured detail level.
func (o Options) getFilters() otrs.GetFilters {
	filters := otrs.GetFilters{DynamicFields: true}
	switch o.IncludeArticles {
	case models.ArticlesAll:
		filters.AllArticles = true
	case models.ArticlesFirst:
		filters.AllArticles = true
		filters.ArticleLimit = 1
	}
	filters.Attachments = o.IncludeAttachments
	return filters
}
