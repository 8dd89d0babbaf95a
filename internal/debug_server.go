package internal

import (
	"chat-sync/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SessionInspector is the read side of a running chat session.
type SessionInspector interface {
	Self() domain.Identity
	Connected() bool
	Conversations() []domain.ConversationKey
	Conversation(partner domain.ParticipantID) []domain.Message
	TypingPartners() []domain.ParticipantID
}

type SessionView struct {
	Participant   domain.ParticipantID     `json:"participant"`
	Connected     bool                     `json:"connected"`
	Conversations []domain.ConversationKey `json:"conversations"`
	Typing        []domain.ParticipantID   `json:"typing"`
}

type StoreRow struct {
	Key  string `json:"key"`
	Size int    `json:"size"`
}

// NewDebugRouter exposes the session state as JSON. db may be nil.
func NewDebugRouter(inspector SessionInspector, db *badger.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/debug/session", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, SessionView{
			Participant:   inspector.Self().ID,
			Connected:     inspector.Connected(),
			Conversations: inspector.Conversations(),
			Typing:        inspector.TypingPartners(),
		})
	})

	r.Get("/debug/conversations/{partner}", func(w http.ResponseWriter, r *http.Request) {
		partner, err := strconv.ParseUint(chi.URLParam(r, "partner"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "partner must be a participant id"})
			return
		}
		writeJSON(w, http.StatusOK, inspector.Conversation(domain.ParticipantID(partner)))
	})

	r.Get("/debug/store", func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no store attached"})
			return
		}
		prefix := []byte(r.URL.Query().Get("prefix"))
		rows := []StoreRow{}
		_ = db.View(func(txn *badger.Txn) error {
			options := badger.DefaultIteratorOptions
			options.PrefetchValues = false
			it := txn.NewIterator(options)
			defer it.Close()
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				rows = append(rows, StoreRow{Key: string(item.Key()), Size: int(item.ValueSize())})
			}
			return nil
		})
		writeJSON(w, http.StatusOK, rows)
	})

	return r
}

// StartDebugServer serves handler on port until ctx is canceled.
func StartDebugServer(ctx context.Context, log *slog.Logger, port int, handler http.Handler) {
	server := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("Debug server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Debug server stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
