package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	before := time.Now().UTC()
	m := New("example", "info", "hello, world!")
	after := time.Now().UTC()

	assert.Equal(t, "example", m.Topic)
	assert.Equal(t, "info", m.Level)
	assert.Equal(t, "hello, world!", m.Text)
	assert.Equal(t, Hostname(), m.Host)
	assert.False(t, m.Time.Before(before))
	assert.False(t, m.Time.After(after))
}

func TestValidateRequiredFields(t *testing.T) {
	cases := []struct {
		name    string
		message Message
		field   string
	}{
		{"topic", Message{Level: "info", Text: "x"}, "topic"},
		{"level", Message{Topic: "t", Text: "x"}, "level"},
		{"text", Message{Topic: "t", Level: "info"}, "text"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.message.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestValidateFillsDefaults(t *testing.T) {
	m := Message{Topic: "t", Level: "info", Text: "x"}
	require.NoError(t, m.Validate())
	assert.False(t, m.Time.IsZero())
	assert.Equal(t, Hostname(), m.Host)
}
