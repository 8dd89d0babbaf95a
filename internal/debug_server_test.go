package internal

import (
	"chat-sync/domain"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

type stubInspector struct{}

func (stubInspector) Self() domain.Identity { return domain.Identity{ID: 1, Token: "secret"} }
func (stubInspector) Connected() bool       { return true }
func (stubInspector) Conversations() []domain.ConversationKey {
	return []domain.ConversationKey{"1_2"}
}
func (stubInspector) TypingPartners() []domain.ParticipantID { return []domain.ParticipantID{2} }
func (stubInspector) Conversation(partner domain.ParticipantID) []domain.Message {
	if partner != 2 {
		return []domain.Message{}
	}
	return []domain.Message{{ID: "10", SenderID: 2, ReceiverID: 1, Content: "hi",
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}}
}

func get(t *testing.T, handler http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestDebugRouter_Session(t *testing.T) {
	req := require.New(t)
	router := NewDebugRouter(stubInspector{}, nil)

	rec := get(t, router, "/debug/session")

	req.Equal(http.StatusOK, rec.Code)
	var view SessionView
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &view))
	req.Equal(SessionView{
		Participant:   1,
		Connected:     true,
		Conversations: []domain.ConversationKey{"1_2"},
		Typing:        []domain.ParticipantID{2},
	}, view)
	req.NotContains(rec.Body.String(), "secret")
}

func TestDebugRouter_Conversation(t *testing.T) {
	req := require.New(t)
	router := NewDebugRouter(stubInspector{}, nil)

	rec := get(t, router, "/debug/conversations/2")
	req.Equal(http.StatusOK, rec.Code)
	var messages []domain.Message
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &messages))
	req.Len(messages, 1)
	req.Equal("hi", messages[0].Content)

	rec = get(t, router, "/debug/conversations/bob")
	req.Equal(http.StatusBadRequest, rec.Code)
}

func TestDebugRouter_Store(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()
	req.NoError(db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte("identity:current"), []byte(`{"id":1}`)); err != nil {
			return err
		}
		return txn.Set([]byte("other:key"), []byte("x"))
	}))

	rec := get(t, NewDebugRouter(stubInspector{}, db), "/debug/store?prefix=identity:")

	req.Equal(http.StatusOK, rec.Code)
	var rows []StoreRow
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &rows))
	req.Equal([]StoreRow{{Key: "identity:current", Size: 8}}, rows)

	rec = get(t, NewDebugRouter(stubInspector{}, nil), "/debug/store")
	req.Equal(http.StatusNotFound, rec.Code)
}
