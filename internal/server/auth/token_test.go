package auth

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTokenIsRandomHex(t *testing.T) {
	a, err := NewToken()
	require.NoError(t, err)
	b, err := NewToken()
	require.NoError(t, err)

	raw, err := hex.DecodeString(a)
	require.NoError(t, err)
	require.Len(t, raw, 32)
	require.NotEqual(t, a, b)
}

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	_, ok := UserIDFromContext(ctx)
	require.False(t, ok)

	ctx = WithPrincipal(ctx, Principal{UserID: 7, Token: "tok"})
	id, ok := UserIDFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, int64(7), id)

	tok, ok := TokenFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "tok", tok)
}
