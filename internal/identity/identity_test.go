package identity

import (
	"testing"

	"github.com/hyperengineering/canvass"
	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email   string
		wantErr bool
	}{
		{"rep@example.com", false},
		{"first.last@sub.example.org", false},
		{"", true},
		{"   ", true},
		{"no-at-sign", true},
		{"rep@localhost", true},
		{"Rep <rep@example.com>", true},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, canvass.KindValidation, canvass.KindOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	assert.Error(t, ValidatePassword(""))
	assert.Error(t, ValidatePassword("12345"))
	assert.NoError(t, ValidatePassword("123456"))
}

func TestValidateCredentials(t *testing.T) {
	var verr *canvass.ValidationError
	err := ValidateCredentials("bad", "longenough")
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, "Email", verr.Field)

	err = ValidateCredentials("rep@example.com", "short")
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, "Password", verr.Field)

	assert.NoError(t, ValidateCredentials("rep@example.com", "longenough"))
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "signed_in", EventSignedIn.String())
	assert.Equal(t, "signed_out", EventSignedOut.String())
	assert.Equal(t, "account_deleted", EventAccountDeleted.String())
	assert.Equal(t, "unknown", EventKind(99).String())
}
