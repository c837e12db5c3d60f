package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetadataStatuses(t *testing.T) {
	statuses := map[Code]int{
		CodeValidation:      http.StatusBadRequest,
		CodeUnauthorized:    http.StatusUnauthorized,
		CodeForbidden:       http.StatusForbidden,
		CodeNotFound:        http.StatusNotFound,
		CodeExpired:         http.StatusGone,
		CodeConflict:        http.StatusConflict,
		CodeIdempotency:     http.StatusConflict,
		CodeStateConflict:   http.StatusUnprocessableEntity,
		CodePayloadTooLarge: http.StatusRequestEntityTooLarge,
		CodeRateLimit:       http.StatusTooManyRequests,
		CodeUpstream:        http.StatusBadGateway,
		CodeInternal:        http.StatusInternalServerError,
		CodeDependency:      http.StatusServiceUnavailable,
	}
	for code, status := range statuses {
		require.Equal(t, status, MetadataFor(code).HTTPStatus, code)
		require.NotEmpty(t, MetadataFor(code).PublicMessage, code)
	}
	require.Equal(t, MetadataFor(CodeInternal), MetadataFor("NO_SUCH_CODE"))
}

func TestMetadataFlags(t *testing.T) {
	retryable := []Code{CodeConflict, CodeRateLimit, CodeUpstream, CodeInternal, CodeDependency}
	for _, code := range retryable {
		require.True(t, MetadataFor(code).Retryable, code)
	}
	require.False(t, MetadataFor(CodeValidation).Retryable)
	require.False(t, MetadataFor(CodeForbidden).Retryable)

	for _, code := range []Code{CodeValidation, CodeStateConflict, CodeRateLimit, CodeIdempotency} {
		require.True(t, MetadataFor(code).DetailsAllowed, code)
	}
	require.False(t, MetadataFor(CodeNotFound).DetailsAllowed)

	for _, code := range []Code{CodeInternal, CodeDependency} {
		require.False(t, MetadataFor(code).ExposeMessage, "server-side code %s leaked its message", code)
	}
	require.True(t, MetadataFor(CodeExpired).ExposeMessage)
}

func TestWrapKeepsCauseAndDetails(t *testing.T) {
	cause := stdErrors.New("duplicate key value")
	err := Wrap(CodeConflict, cause, "version number taken").
		WithDetails(map[string]any{"versionNumber": 3})

	require.ErrorIs(t, err, cause)
	require.Equal(t, CodeConflict, err.Code())
	require.Equal(t, "version number taken", err.Message())
	require.Equal(t, map[string]any{"versionNumber": 3}, err.Details())
	require.Equal(t, "CONFLICT: version number taken", err.Error())

	require.Nil(t, New(CodeNotFound, "asset").Details())
	require.Nil(t, Wrap(CodeNotFound, nil, "asset").Unwrap())
}

func TestNilErrorIsSafe(t *testing.T) {
	var err *Error
	require.Equal(t, CodeInternal, err.Code())
	require.Empty(t, err.Message())
	require.Nil(t, err.WithDetails("x"))
}

func TestAsAndIsCodeFollowWrapping(t *testing.T) {
	outer := fmt.Errorf("resolve invite: %w", New(CodeExpired, "share link expired"))

	require.NotNil(t, As(outer))
	require.Equal(t, "share link expired", As(outer).Message())
	require.True(t, IsCode(outer, CodeExpired))
	require.False(t, IsCode(outer, CodeNotFound))
	require.False(t, IsCode(stdErrors.New("plain"), CodeInternal))
	require.Nil(t, As(nil))
}

func TestDumpWalksWrappedChain(t *testing.T) {
	err := fmt.Errorf("create version: %w", Wrap(CodeConflict, stdErrors.New("duplicate key value"), "version number taken"))

	dump := Dump(err)
	require.Equal(t, CodeConflict, dump.Code)
	require.Len(t, dump.Chain, 3)
	require.False(t, dump.Timeout)
}

func TestDumpWalksJoinedErrors(t *testing.T) {
	err := stdErrors.Join(
		New(CodeUpstream, "sendgrid rejected the message"),
		fmt.Errorf("publish realtime: %w", context.DeadlineExceeded),
	)

	dump := Dump(err)
	require.Equal(t, CodeUpstream, dump.Code)
	require.True(t, dump.Timeout)
	// join, typed error, fmt wrapper, deadline
	require.Len(t, dump.Chain, 4, "%v", dump.Chain)

	fields := dump.LogFields()
	require.NotContains(t, fields, "pg_code")
	require.Equal(t, true, fields["timeout"])
}
