package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-router"
	auth "github.com/mtracker/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimsContextRoundTrip(t *testing.T) {
	ts := newTestTokenService()

	token, err := ts.Mint("user@example.com", auth.PurposeSession, time.Hour)
	require.NoError(t, err)

	claims, err := ts.Validate(token)
	require.NoError(t, err)

	ctx := auth.WithClaimsContext(context.Background(), claims)

	got, ok := auth.GetClaims(ctx)
	require.True(t, ok)
	assert.Equal(t, "user@example.com", got.Subject())
}

func TestGetClaimsMissing(t *testing.T) {
	_, ok := auth.GetClaims(context.Background())
	assert.False(t, ok)
}

func TestGetRouterClaims(t *testing.T) {
	ts := newTestTokenService()

	token, err := ts.Mint("user@example.com", auth.PurposeSession, time.Hour)
	require.NoError(t, err)

	claims, err := ts.Validate(token)
	require.NoError(t, err)

	rc := router.NewMockContext()
	rc.LocalsMock["user"] = claims

	got, ok := auth.GetRouterClaims(rc, "user")
	require.True(t, ok)
	assert.Equal(t, "user@example.com", got.Subject())

	rc.LocalsMock["other"] = "not claims"
	_, ok = auth.GetRouterClaims(rc, "other")
	assert.False(t, ok)
}
