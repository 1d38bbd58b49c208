package teamdir

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cuongbtq/inventory-counting/internal/counting/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, retries int) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(Config{BaseURL: server.URL, RetryCount: retries}, logger)
}

func TestResolveActiveTeam(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantTeam   *domain.Team
		wantErr    error
		wantAnyErr bool
	}{
		{
			name:     "active team",
			status:   http.StatusOK,
			body:     `{"id": 5, "username": "team-5", "is_active": true}`,
			wantTeam: &domain.Team{ID: 5, Username: "team-5", Active: true},
		},
		{
			name:    "inactive team",
			status:  http.StatusOK,
			body:    `{"id": 5, "username": "team-5", "is_active": false}`,
			wantErr: domain.ErrRecordNotFound,
		},
		{
			name:    "unknown team",
			status:  http.StatusNotFound,
			body:    `{"error": "not found"}`,
			wantErr: domain.ErrRecordNotFound,
		},
		{
			name:       "directory failure",
			status:     http.StatusBadGateway,
			body:       `{"error": "upstream"}`,
			wantAnyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/teams/5", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, 0)

			team, err := client.ResolveActiveTeam(context.Background(), 5)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantAnyErr:
				assert.Error(t, err)
				assert.NotErrorIs(t, err, domain.ErrRecordNotFound)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantTeam, team)
			}
		})
	}
}

func TestResolveActiveTeam_RetriesServerErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id": 5, "username": "team-5", "is_active": true}`))
	}, 2)

	team, err := client.ResolveActiveTeam(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), team.ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
