package bhavcopy

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("reload: %w", wrapError(KindFetchFailed, "fetch", cause, "download failed"))

	assert.True(t, errors.Is(err, &Error{Kind: KindFetchFailed}))
	assert.False(t, errors.Is(err, &Error{Kind: KindNotFound}))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, KindFetchFailed, KindOf(err))
	assert.Equal(t, "fetch: download failed: connection reset", AsError(err).Error())
}

func TestRetryable(t *testing.T) {
	retryable := map[Kind]bool{
		KindSessionUnavailable: true,
		KindBlocked:            true,
		KindFetchFailed:        true,
		KindUpsertFailed:       true,
		KindInProgress:         true,
		KindUnexpected:         true,
		KindNotFound:           false,
		KindCorruptArchive:     false,
		KindFileNotFound:       false,
		KindSchemaMismatch:     false,
		KindInvalidInput:       false,
	}
	for kind, want := range retryable {
		assert.Equal(t, want, (&Error{Kind: kind}).Retryable(), kind)
	}
}

func TestAsErrorWrapsForeignErrors(t *testing.T) {
	assert.Nil(t, AsError(nil))

	e := AsError(errors.New("boom"))
	assert.Equal(t, KindUnexpected, e.Kind)
	assert.Equal(t, KindUnexpected, KindOf(errors.New("boom")))
}
