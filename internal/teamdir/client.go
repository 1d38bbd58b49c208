// Package teamdir resolves mobile teams against the team directory HTTP API.
package teamdir

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cuongbtq/inventory-counting/internal/counting/domain"
	"github.com/go-resty/resty/v2"
)

// Config holds team directory client configuration
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

type teamResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsActive bool   `json:"is_active"`
}

// Client is an HTTP implementation of the team lookup used by the counting service
type Client struct {
	httpClient *resty.Client
	logger     *slog.Logger
}

// NewClient creates a team directory client
func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(config.RetryCount).
		SetRetryWaitTime(100*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

// ResolveActiveTeam returns the team if it exists and is active.
// Unknown and inactive teams both yield domain.ErrRecordNotFound.
func (c *Client) ResolveActiveTeam(ctx context.Context, teamID int64) (*domain.Team, error) {
	var body teamResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("team_id", strconv.FormatInt(teamID, 10)).
		SetResult(&body).
		Get("/api/v1/teams/{team_id}")
	if err != nil {
		c.logger.Error("Team directory call failed",
			slog.Int64("team_id", teamID),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to call team directory: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, domain.ErrRecordNotFound
	case resp.IsError():
		c.logger.Error("Team directory returned error",
			slog.Int64("team_id", teamID),
			slog.Int("status_code", resp.StatusCode()),
		)
		return nil, fmt.Errorf("team directory error: status %d", resp.StatusCode())
	}

	if !body.IsActive {
		c.logger.Debug("Team is inactive",
			slog.Int64("team_id", teamID),
		)
		return nil, domain.ErrRecordNotFound
	}

	return &domain.Team{
		ID:       body.ID,
		Username: body.Username,
		Active:   body.IsActive,
	}, nil
}
