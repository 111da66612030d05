package telegram

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"marketmate/pkg/ratelimit"
)

func TestUserFacingErrorKeepsLimitMessage(t *testing.T) {
	err := &ratelimit.LimitError{Kind: "rate", UserID: "42", Tier: "free-tier", Current: 5, Limit: 5}
	assert.Equal(t, err.Error(), userFacingError(err))

	wrapped := fmt.Errorf("handle turn: %w", err)
	assert.Equal(t, err.Error(), userFacingError(wrapped))
}

func TestUserFacingErrorHidesInternalFailures(t *testing.T) {
	err := errors.New("record user message: database is locked")
	got := userFacingError(err)
	assert.NotContains(t, got, "database")
	assert.Equal(t, "Sorry, something went wrong while processing your request. Please try again in a moment.", got)
}
