package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeqDecodesEveryShape(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []DynamicField
	}{
		{"null", `null`, nil},
		{"single object", `{"Name":"Color","Value":"red"}`, []DynamicField{{Name: "Color", Value: "red"}}},
		{"array", `[{"Name":"A","Value":1},{"Name":"B","Value":null}]`, []DynamicField{{Name: "A", Value: float64(1)}, {Name: "B"}}},
		{"empty array", `[]`, []DynamicField{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Seq[DynamicField]
			require.NoError(t, json.Unmarshal([]byte(tt.input), &got))
			assert.Equal(t, tt.want, []DynamicField(got))
		})
	}
}

func TestIDAcceptsStringsAndNumbers(t *testing.T) {
	var payload struct {
		TicketID Seq[ID] `json:"TicketID"`
		One      ID      `json:"One"`
		Empty    ID      `json:"Empty"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"TicketID":["101",102],"One":"7","Empty":""}`), &payload))

	assert.Equal(t, []ID{101, 102}, []ID(payload.TicketID))
	assert.Equal(t, ID(7), payload.One)
	assert.Equal(t, ID(0), payload.Empty)

	var bad ID
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &bad))
}

func TestFlexString(t *testing.T) {
	var cfg StepConfig
	require.NoError(t, json.Unmarshal([]byte(`{"limit":25}`), &cfg))
	assert.Equal(t, FlexString("25"), cfg.Limit)

	require.NoError(t, json.Unmarshal([]byte(`{"limit":"10"}`), &cfg))
	assert.Equal(t, FlexString("10"), cfg.Limit)
}

func TestTicketKeepsUnknownKeys(t *testing.T) {
	input := `{"TicketID":"42","TicketNumber":"2020010110000042","QueueID":"3","Created":"2020-01-01 10:00:00",
		"Article":{"ArticleID":"9","Subject":"hi","IncomingTime":"1577872800",
			"Attachment":{"Filename":"a.txt","Content":"aGk=","FilesizeRaw":"2"}}}`

	var ticket Ticket
	require.NoError(t, json.Unmarshal([]byte(input), &ticket))

	assert.Equal(t, ID(42), ticket.TicketID)
	assert.Equal(t, "3", ticket.Extra["QueueID"])
	require.Len(t, ticket.Article, 1)
	assert.Equal(t, ID(9), ticket.Article[0].ArticleID)
	assert.Equal(t, "1577872800", ticket.Article[0].Extra["IncomingTime"])
	require.Len(t, ticket.Article[0].Attachment, 1)
	assert.Equal(t, "2", ticket.Article[0].Attachment[0].Extra["FilesizeRaw"])

	out, err := json.Marshal(ticket)
	require.NoError(t, err)

	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &generic))
	assert.Equal(t, "3", generic["QueueID"])
	assert.Equal(t, float64(42), generic["TicketID"])
	assert.NotContains(t, generic, "Extra")
}

func TestTicketFlattenOther(t *testing.T) {
	var ticket Ticket
	require.NoError(t, json.Unmarshal([]byte(`{"Title":"Printer","other":{"Queue":"Raw","Service":"IT"}}`), &ticket))
	require.Len(t, ticket.Other, 2)

	require.NoError(t, ticket.FlattenOther())

	assert.Nil(t, ticket.Other)
	assert.Equal(t, "Printer", ticket.Title)
	assert.Equal(t, "Raw", ticket.Queue)
	assert.Equal(t, "IT", ticket.Extra["Service"])
}

func TestTicketFlattenOtherOverridesParent(t *testing.T) {
	ticket := Ticket{Title: "old", Other: map[string]interface{}{"Title": "new"}}
	require.NoError(t, ticket.FlattenOther())
	assert.Equal(t, "new", ticket.Title)
}

func TestFlattenOtherRejectsNestedBag(t *testing.T) {
	article := Article{Other: map[string]interface{}{"OTHER": map[string]interface{}{"x": 1}}}
	assert.ErrorIs(t, article.FlattenOther(), ErrNestedOverflow)
}

func TestCursorOrdering(t *testing.T) {
	a := Cursor{LastProcessedTicketID: 100, LastProcessedTicketDate: "2020-01-01 10:00:00"}
	b := Cursor{LastProcessedTicketID: 101, LastProcessedTicketDate: "2020-01-01 10:00:00"}
	c := Cursor{LastProcessedTicketID: 5, LastProcessedTicketDate: "2020-01-01 10:00:01"}

	assert.True(t, a.Before(b))
	assert.True(t, b.Before(c))
	assert.False(t, c.Before(a))
	assert.False(t, a.Before(a))
}

func TestParseCursor(t *testing.T) {
	c, err := ParseCursor(nil)
	require.NoError(t, err)
	assert.True(t, c.IsZero())

	c, err = ParseCursor(json.RawMessage(`{"lastProcessedTicketId":"12","lastProcessedTicketDate":"2020-01-01 00:00:00"}`))
	require.NoError(t, err)
	assert.Equal(t, ID(12), c.LastProcessedTicketID)

	_, err = ParseCursor(json.RawMessage(`[1]`))
	assert.Error(t, err)
}

func TestStepConfigCredentials(t *testing.T) {
	cfg := StepConfig{BaseURL: " https://otrs ", Username: "agent", Password: "pw"}
	assert.Equal(t, Credentials{BaseURL: "https://otrs", User: "agent", Password: "pw"}, cfg.Credentials())
	assert.Equal(t, "***", cfg.Redacted().Password)
	assert.Equal(t, "pw", cfg.Password)
}
