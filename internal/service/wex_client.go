package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"grts/internal/models"
	"grts/pkg/config"

	"go.uber.org/zap"
)

// TransactionSource lists card transactions posted since a date. Items are
// returned undecoded so the original payload can be stored alongside the row.
type TransactionSource interface {
	Fetch(ctx context.Context, since time.Time) ([]json.RawMessage, error)
}

type WexClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewWexClient returns nil when the API base or key is missing.
func NewWexClient(cfg *config.WEXConfig, logger *zap.Logger) *WexClient {
	if cfg.APIBase == "" || cfg.APIKey == "" {
		logger.Warn("WEX_API_BASE or WEX_API_KEY not set, polling disabled")
		return nil
	}
	return &WexClient{
		baseURL:    strings.TrimRight(cfg.APIBase, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (c *WexClient) Fetch(ctx context.Context, since time.Time) ([]json.RawMessage, error) {
	endpoint := c.baseURL + "/transactions?since=" + url.QueryEscape(models.FormatDate(since))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: WEX API error: %d", ErrUpstream, resp.StatusCode)
	}

	var items []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}

	c.logger.Debug("WEX transactions fetched", zap.Int("count", len(items)), zap.Time("since", since))
	return items, nil
}
