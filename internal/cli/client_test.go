package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendsIdentityAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sessions/4/bids", r.URL.Path)
		assert.Equal(t, "alice", r.Header.Get("X-User-ID"))
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, float64(12), in["session_player_id"])
		assert.Equal(t, "6.5", in["amount"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"bid":{"id":3,"bidder_id":"alice","amount":"6.5"},"next_minimum_bid":"7"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", Identity{UserID: "alice"})
	out, err := c.Bid(context.Background(), 4, 12, decimal.RequireFromString("6.5"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.Bid.ID)
	assert.True(t, out.MinimumBid.Equal(decimal.NewFromInt(7)))
}

func TestClientPrefersToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("X-User-ID"))
		_, _ = w.Write([]byte(`{"sessions":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, Identity{UserID: "alice", AccessToken: "tok"}).ListSessions(context.Background())
	require.NoError(t, err)
}

func TestClientDecodesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bid is below","reason":"BID_TOO_LOW","details":{"minimum_bid":"5.50"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, Identity{UserID: "bob"}).Bid(context.Background(), 1, 2, decimal.NewFromInt(5))
	require.Error(t, err)
	assert.Equal(t, "BID_TOO_LOW", ReasonOf(err))
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusBadRequest, ae.Status)
	assert.Equal(t, "5.50", ae.Details["minimum_bid"])
}

func TestClientPlainErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, Identity{UserID: "bob"}).Live(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, "", ReasonOf(err))
	assert.Contains(t, err.Error(), "502")
}

func TestSessionActionRejectsUnknown(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:0", Identity{}).SessionAction(context.Background(), 1, "explode")
	require.Error(t, err)
}

func TestIdentityRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := LoadIdentity()
	require.Error(t, err)

	require.NoError(t, SaveIdentity(Identity{UserID: "alice", LastSession: 9}))
	id, err := LoadIdentity()
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "alice", LastSession: 9}, id)

	require.NoError(t, ClearIdentity())
	_, err = LoadIdentity()
	require.Error(t, err)
	require.NoError(t, ClearIdentity())
}
