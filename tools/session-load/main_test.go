package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/repairradar/repairradar/internal/gateway/jwt"
)

func TestMintTokensVerify(t *testing.T) {
	tokens, err := mintTokens("s3cret", []string{"user-1", " user-2"}, 3, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.NotEqual(t, tokens[0], tokens[2], "sessions of the same user get distinct tokens")

	v := jwt.NewVerifier("s3cret", "", 0)
	for i, want := range []string{"user-1", "user-2", "user-1"} {
		claims, err := v.VerifyToken(tokens[i])
		require.NoError(t, err)
		assert.Equal(t, want, claims.UserID)
	}
}

func TestMintTokensNeedsUsers(t *testing.T) {
	_, err := mintTokens("s3cret", nil, 3, time.Now())
	assert.Error(t, err)
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(1), percentile(sorted, 0))
	assert.Equal(t, time.Duration(5), percentile(sorted, 0.5))
	assert.Equal(t, time.Duration(10), percentile(sorted, 1))
	assert.Equal(t, time.Duration(0), percentile(nil, 0.5))
}

func TestRunSpreadsSessions(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string]int{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.Header.Get("Authorization")]++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	lt, err := NewLoadTest(&Config{
		BaseURL:     srv.URL,
		Path:        "/api/v1/my-data",
		Secret:      "s3cret",
		Users:       []string{"user-1"},
		Sessions:    4,
		Concurrency: 2,
		Duration:    100 * time.Millisecond,
		Timeout:     time.Second,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, lt.Run(context.Background()))
	assert.Positive(t, lt.result.TotalRequests)
	assert.Equal(t, lt.result.TotalRequests, lt.result.StatusCodes[http.StatusOK])

	mu.Lock()
	assert.Len(t, seen, 4)
	mu.Unlock()

	var out strings.Builder
	lt.PrintResult(&out)
	assert.Contains(t, out.String(), "200:")
}

func TestPrintBrokerStatsUsesAdminToken(t *testing.T) {
	var gotPath, gotToken, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Admin-Token")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"code":0,"data":{"entries":3}}`))
	}))
	defer srv.Close()

	lt, err := NewLoadTest(&Config{
		BaseURL:     srv.URL,
		Secret:      "s3cret",
		AdminToken:  "op-secret",
		Users:       []string{"user-1"},
		Sessions:    1,
		Concurrency: 1,
		Timeout:     time.Second,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	var out strings.Builder
	lt.PrintBrokerStats(context.Background(), &out)
	assert.Equal(t, "/api/v1/admin/broker/stats", gotPath)
	assert.Equal(t, "op-secret", gotToken)
	assert.Empty(t, gotAuth, "tenant tokens are not sent to operator routes")
	assert.Contains(t, out.String(), `"entries":3`)

	// without a token nothing is requested
	gotPath = ""
	lt.config.AdminToken = ""
	lt.PrintBrokerStats(context.Background(), &out)
	assert.Empty(t, gotPath)
}
