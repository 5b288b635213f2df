package handlers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"pulse-backend/internal/services"
)

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{services.ErrUnauthenticated, "unauthenticated"},
		{services.ErrAccessDenied, "access_denied"},
		{services.ErrNotFound, "not_found"},
		{services.ErrAlreadyRead, "already_read"},
		{services.ErrValidation, "validation_failed"},
		{errors.New("boom"), "internal"},
		// wrapped sentinels still map
		{fmt.Errorf("%w: blocked", services.ErrAccessDenied), "access_denied"},
		{fmt.Errorf("%w: conversation x", services.ErrNotFound), "not_found"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, errorCode(tc.err), "for %v", tc.err)
	}
}

func TestAllowedAttachmentExts(t *testing.T) {
	assert.True(t, allowedAttachmentExts[".png"])
	assert.True(t, allowedAttachmentExts[".pdf"])
	assert.False(t, allowedAttachmentExts[".exe"])
	assert.False(t, allowedAttachmentExts[".svg"])
	assert.False(t, allowedAttachmentExts[""])
}
