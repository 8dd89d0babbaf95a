package rest

import (
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"chat-sync/projection"
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

var alice = domain.Identity{ID: 1, Token: "alice-token"}

func newBackend(t *testing.T) *httptest.Server {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("Authorization") != "Bearer alice-token" {
				http.Error(w, "missing token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/api/users", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "username": "alice"},
			{"id": 2, "username": "bob", "displayName": "Bob", "avatarUrl": "https://cdn/bob.png"},
			{"id": 3, "username": "chi"},
		})
	})
	r.Get("/api/messages", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("user2") == "4" {
			// Ids beyond 2^53, written by hand so no float64 ever touches them
			_, _ = w.Write([]byte(`[
				{"id":9007199254740993,"senderId":4,"receiverId":1,"content":"first"},
				{"id":9007199254740992,"senderId":4,"receiverId":1,"content":"second"}
			]`))
			return
		}
		if req.URL.Query().Get("user1") != "1" || req.URL.Query().Get("user2") != "2" {
			http.Error(w, "unknown pair", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 10, "senderId": 2, "receiverId": 1, "content": "hi", "timestamp": "2026-03-01T09:00:00Z"},
			{"id": 11, "senderId": 1, "receiverId": 2, "content": "hello", "timestamp": "2026-03-01T09:01:00Z"},
		})
	})
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func TestClient_ListPartners_ExcludesSelf(t *testing.T) {
	req := require.New(t)
	server := newBackend(t)
	client := NewClient(logs.GetLoggerFromLevel(slog.LevelDebug), server.URL+"/api/", alice, server.Client())

	partners, err := client.ListPartners(context.Background())

	req.NoError(err)
	req.Equal([]domain.Partner{
		{ID: 2, DisplayName: "Bob", AvatarURL: "https://cdn/bob.png"},
		{ID: 3, DisplayName: "chi"},
	}, partners)
}

func TestClient_FetchHistory(t *testing.T) {
	req := require.New(t)
	server := newBackend(t)
	client := NewClient(logs.GetLoggerFromLevel(slog.LevelDebug), server.URL+"/api", alice, nil)

	history, err := client.FetchHistory(context.Background(), 1, 2)

	req.NoError(err)
	req.Len(history, 2)
	req.Equal("hi", history[0]["content"])
	req.Equal(json.Number("11"), history[1]["id"])
}

func TestClient_FetchHistory_LargeIDs(t *testing.T) {
	req := require.New(t)
	server := newBackend(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	client := NewClient(log, server.URL+"/api", alice, nil)

	// When the history carries ids a float64 cannot tell apart
	history, err := client.FetchHistory(context.Background(), 1, 4)

	// Then they come back exact
	req.NoError(err)
	req.Equal(json.Number("9007199254740993"), history[0]["id"])
	req.Equal(json.Number("9007199254740992"), history[1]["id"])

	// And merging keeps both entries
	messages := lo.FilterMap(history, func(raw event.RawPayload, _ int) (event.MessageReceived, bool) {
		msg, err := event.NormalizeMessage(raw, time.Now())
		return msg, err == nil
	})
	reconciler := projection.NewReconciler(log, alice)
	req.Equal(2, reconciler.MergeHistory(1, 4, messages))
	req.Len(reconciler.GetConversation(1, 4), 2)
}

func TestClient_UnexpectedStatus(t *testing.T) {
	req := require.New(t)
	server := newBackend(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Unknown pair
	_, err := NewClient(log, server.URL+"/api", alice, nil).FetchHistory(context.Background(), 1, 3)
	req.True(stdErrors.Is(err, errors.ErrUnexpectedStatus))
	req.Contains(err.Error(), "404")

	// Wrong token
	_, err = NewClient(log, server.URL+"/api", domain.Identity{ID: 1, Token: "stale"}, nil).ListPartners(context.Background())
	req.True(stdErrors.Is(err, errors.ErrUnexpectedStatus))
	req.Contains(err.Error(), "401")
}
