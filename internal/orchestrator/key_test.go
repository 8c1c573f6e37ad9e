package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	k, err := ParseKey("mail__send")
	require.NoError(t, err)
	assert.Equal(t, Key{Namespace: "mail", Name: "send"}, k)
	assert.Equal(t, "mail__send", k.String())

	for _, bad := range []string{"send", "__send", "mail__", "a__b__c", ""} {
		_, err := ParseKey(bad)
		assert.ErrorIs(t, err, ErrInvalidToolKey, bad)
	}
}

func TestNewKeyRejectsSeparator(t *testing.T) {
	_, err := NewKey("a__b", "send")
	assert.ErrorIs(t, err, ErrInvalidToolKey)
	_, err = NewKey("a", "send__now")
	assert.ErrorIs(t, err, ErrInvalidToolKey)
}

func TestKeySeparatorBoundaries(t *testing.T) {
	tests := []struct {
		namespace string
		name      string
		wantErr   bool
	}{
		{"mail", "send", false},
		{"email_sender", "send_now", false},
		{"_mail", "send_", false},
		{"mail_", "send", true},
		{"x", "_hidden", true},
		{"a", "b__c", true},
		{"a__b", "c", true},
	}
	for _, tt := range tests {
		t.Run(tt.namespace+"/"+tt.name, func(t *testing.T) {
			k, err := NewKey(tt.namespace, tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidToolKey)
				return
			}
			require.NoError(t, err)
			back, err := ParseKey(k.String())
			require.NoError(t, err)
			assert.Equal(t, k, back)
		})
	}
}
