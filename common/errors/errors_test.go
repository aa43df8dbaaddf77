package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapKeepsChain(t *testing.T) {
	base := errors.New("connection reset")
	err := fmt.Errorf("save totals: %w", Wrap(base, CodeDatabaseError, "failed to save totals"))

	assert.True(t, errors.Is(err, base))
	assert.Equal(t, CodeDatabaseError, CodeOf(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, CodeInternalServer, CodeOf(base))
}

func TestGRPCRoundTrip(t *testing.T) {
	err := ToGRPCError(New(CodeNotFound, "user not found"))
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())
	assert.Equal(t, "user not found", st.Message())

	back := FromGRPCError(err)
	assert.True(t, IsNotFound(back))

	assert.Nil(t, ToGRPCError(nil))
	st, _ = status.FromError(ToGRPCError(errors.New("boom")))
	assert.Equal(t, codes.Internal, st.Code())
}
