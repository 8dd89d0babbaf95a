// Package rest talks to the chat backend's HTTP API: the user directory and
// the authoritative message history of a pair.
package rest

import (
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
)

const DefaultTimeout = 30 * time.Second

type Client struct {
	log        *slog.Logger
	baseURL    string
	identity   domain.Identity
	httpClient *http.Client
}

// NewClient uses a default http.Client when httpClient is nil.
func NewClient(log *slog.Logger, baseURL string, identity domain.Identity, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		log:        log,
		baseURL:    strings.TrimRight(baseURL, "/"),
		identity:   identity,
		httpClient: httpClient,
	}
}

type userDTO struct {
	ID          domain.ParticipantID `json:"id"`
	Username    string               `json:"username"`
	DisplayName string               `json:"displayName"`
	AvatarURL   string               `json:"avatarUrl"`
}

// ListPartners returns every user of the directory except the local participant.
func (c *Client) ListPartners(ctx context.Context) ([]domain.Partner, error) {
	var users []userDTO
	if err := c.get(ctx, "/users", nil, &users); err != nil {
		return nil, err
	}
	others := lo.Filter(users, func(u userDTO, _ int) bool {
		return u.ID != c.identity.ID
	})
	return lo.Map(others, func(u userDTO, _ int) domain.Partner {
		return domain.Partner{
			ID:          u.ID,
			DisplayName: lo.CoalesceOrEmpty(u.DisplayName, u.Username, u.ID.String()),
			AvatarURL:   u.AvatarURL,
		}
	}), nil
}

// FetchHistory returns the raw history of the pair, in the backend's order.
func (c *Client) FetchHistory(ctx context.Context, a, b domain.ParticipantID) ([]event.RawPayload, error) {
	query := url.Values{}
	query.Set("user1", a.String())
	query.Set("user2", b.String())

	var history []event.RawPayload
	if err := c.get(ctx, "/messages", query, &history); err != nil {
		return nil, err
	}
	c.log.Debug("History fetched", "key", domain.NewConversationKey(a, b), "count", len(history))
	return history, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.identity.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: GET %s %d: %s", errors.ErrUnexpectedStatus, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: GET %s: %w", errors.ErrInvalidPayload, path, err)
	}
	return nil
}
