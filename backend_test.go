package askdb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/askdb/askdb"
)

func TestTurnRequest_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     askdb.TurnRequest
		wantErr bool
	}{
		{
			name: "valid message",
			req:  askdb.TurnRequest{Message: "show me last month's revenue"},
		},
		{
			name: "valid with conversation and attachments",
			req: askdb.TurnRequest{
				Message:        "and by region?",
				ConversationID: "c1",
				Attachments:    []string{"f1"},
			},
		},
		{
			name:    "empty message",
			req:     askdb.TurnRequest{},
			wantErr: true,
		},
		{
			name:    "whitespace only message",
			req:     askdb.TurnRequest{Message: " \t\n "},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, askdb.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
