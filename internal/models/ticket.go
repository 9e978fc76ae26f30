package models

import "errors"

// ErrNestedOverflow is returned when an OTHER bag itself carries an OTHER bag.
var ErrNestedOverflow = errors.New("overflow bag must not contain another overflow bag")

// Ticket is an OTRS ticket as returned by TicketGet and sent to TicketCreate/TicketUpdate.
type Ticket struct {
	TicketID     ID                `json:"TicketID,omitempty"`
	TicketNumber string            `json:"TicketNumber,omitempty"`
	Title        string            `json:"Title,omitempty"`
	Queue        string            `json:"Queue,omitempty"`
	State        string            `json:"State,omitempty"`
	Priority     string            `json:"Priority,omitempty"`
	Type         string            `json:"Type,omitempty"`
	Owner        string            `json:"Owner,omitempty"`
	Lock         string            `json:"Lock,omitempty"`
	CustomerUser string            `json:"CustomerUser,omitempty"`
	CustomerID   string            `json:"CustomerID,omitempty"`
	Created      string            `json:"Created,omitempty"`
	Changed      string            `json:"Changed,omitempty"`
	Article      Seq[Article]      `json:"Article,omitempty"`
	DynamicField Seq[DynamicField] `json:"DynamicField,omitempty"`

	// Other is the input-side overflow bag ("OTHER" or "other").
	Other map[string]interface{} `json:"OTHER,omitempty"`
	// Extra holds every other OTRS key.
	Extra map[string]interface{} `json:"-"`
}

func (t *Ticket) UnmarshalJSON(data []byte) error {
	type alias Ticket
	var a alias
	if err := decodeOpen(data, &a, &a.Extra); err != nil {
		return err
	}
	*t = Ticket(a)
	return nil
}

func (t Ticket) MarshalJSON() ([]byte, error) {
	type alias Ticket
	return encodeOpen(alias(t), t.Extra)
}

// FlattenOther merges the overflow bag into the ticket and removes it.
func (t *Ticket) FlattenOther() error {
	if len(t.Other) == 0 {
		t.Other = nil
		return nil
	}
	other := t.Other
	t.Other = nil
	if err := mergeInto(t, other); err != nil {
		return err
	}
	if len(t.Other) > 0 {
		return ErrNestedOverflow
	}
	return nil
}

// Article is a ticket article. Attachments are only present when requested.
type Article struct {
	ArticleID            ID              `json:"ArticleID,omitempty"`
	CommunicationChannel string          `json:"CommunicationChannel,omitempty"`
	SenderType           string          `json:"SenderType,omitempty"`
	From                 string          `json:"From,omitempty"`
	To                   string          `json:"To,omitempty"`
	Subject              string          `json:"Subject,omitempty"`
	Body                 string          `json:"Body,omitempty"`
	ContentType          string          `json:"ContentType,omitempty"`
	MimeType             string          `json:"MimeType,omitempty"`
	Charset              string          `json:"Charset,omitempty"`
	CreateTime           string          `json:"CreateTime,omitempty"`
	Attachment           Seq[Attachment] `json:"Attachment,omitempty"`

	Other map[string]interface{} `json:"OTHER,omitempty"`
	Extra map[string]interface{} `json:"-"`
}

func (a *Article) UnmarshalJSON(data []byte) error {
	type alias Article
	var al alias
	if err := decodeOpen(data, &al, &al.Extra); err != nil {
		return err
	}
	*a = Article(al)
	return nil
}

func (a Article) MarshalJSON() ([]byte, error) {
	type alias Article
	return encodeOpen(alias(a), a.Extra)
}

// FlattenOther merges the overflow bag into the article and removes it.
func (a *Article) FlattenOther() error {
	if len(a.Other) == 0 {
		a.Other = nil
		return nil
	}
	other := a.Other
	a.Other = nil
	if err := mergeInto(a, other); err != nil {
		return err
	}
	if len(a.Other) > 0 {
		return ErrNestedOverflow
	}
	return nil
}

// Attachment is an article attachment. Content is base64 on the way to OTRS
// and a platform download URL on the way to the platform.
type Attachment struct {
	Filename    string `json:"Filename,omitempty"`
	ContentType string `json:"ContentType,omitempty"`
	Content     string `json:"Content,omitempty"`

	Extra map[string]interface{} `json:"-"`
}

func (a *Attachment) UnmarshalJSON(data []byte) error {
	type alias Attachment
	var al alias
	if err := decodeOpen(data, &al, &al.Extra); err != nil {
		return err
	}
	*a = Attachment(al)
	return nil
}

func (a Attachment) MarshalJSON() ([]byte, error) {
	type alias Attachment
	return encodeOpen(alias(a), a.Extra)
}

// DynamicField is a name/value pair; Value may be any JSON value.
type DynamicField struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

// TicketRequest is the TicketCreate/TicketUpdate payload.
type TicketRequest struct {
	Ticket       *Ticket           `json:"Ticket,omitempty"`
	Article      *Article          `json:"Article,omitempty"`
	Attachment   Seq[Attachment]   `json:"Attachment,omitempty"`
	DynamicField Seq[DynamicField] `json:"DynamicField,omitempty"`

	// DynamicFieldOther carries further dynamic fields on input; it is
	// appended to DynamicField during normalization and never sent.
	DynamicFieldOther Seq[DynamicField] `json:"DynamicFieldOther,omitempty"`
}

// TicketResult is the TicketCreate/TicketUpdate response.
type TicketResult struct {
	TicketID     ID     `json:"TicketID,omitempty"`
	TicketNumber string `json:"TicketNumber,omitempty"`
	ArticleID    ID     `json:"ArticleID,omitempty"`
}
