package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/custodia-labs/triage/internal/connectors/google"
	"github.com/custodia-labs/triage/internal/core/domain"
)

func encode(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func fullMessage(id string, historyID uint64, body string, labels ...string) *gmail.Message {
	return &gmail.Message{
		Id:           id,
		ThreadId:     "t-" + id,
		HistoryId:    historyID,
		InternalDate: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC).UnixMilli(),
		LabelIds:     labels,
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "Jane <jane@example.com>"},
				{Name: "To", Value: "support@example.com"},
				{Name: "Subject", Value: "Order " + id},
			},
			Body: &gmail.MessagePartBody{Data: encode(body)},
		},
	}
}

type fakeGmail struct {
	mu       sync.Mutex
	drafts   []*gmail.Draft
	modified map[string][]string
	labels   []*gmail.Label
	queries  []string
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":"fake"}}`, code)
}

func (f *fakeGmail) handler() http.Handler {
	messages := map[string]*gmail.Message{
		"m1":    fullMessage("m1", 101, "Where is my order?", "INBOX", "UNREAD"),
		"m2":    fullMessage("m2", 102, "Please refund me.", "INBOX"),
		"spam1": fullMessage("spam1", 103, "You won!", "SPAM"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		f.mu.Lock()
		f.queries = append(f.queries, q)
		f.mu.Unlock()

		if strings.HasPrefix(q, "after:") {
			if r.URL.Query().Get("pageToken") == "" {
				writeJSON(w, &gmail.ListMessagesResponse{
					Messages:      []*gmail.Message{{Id: "m1"}, {Id: "spam1"}},
					NextPageToken: "p2",
				})
				return
			}
			writeJSON(w, &gmail.ListMessagesResponse{Messages: []*gmail.Message{{Id: "m2"}, {Id: "gone"}}})
			return
		}
		writeJSON(w, &gmail.ListMessagesResponse{Messages: []*gmail.Message{{Id: "m1", ThreadId: "t-m1"}}})
	})
	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		msg, ok := messages[r.PathValue("id")]
		if !ok {
			writeError(w, http.StatusNotFound)
			return
		}
		writeJSON(w, msg)
	})
	mux.HandleFunc("GET /gmail/v1/users/me/history", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("startHistoryId") {
		case "1":
			writeError(w, http.StatusNotFound)
		case "100":
			if r.URL.Query().Get("pageToken") == "" {
				writeJSON(w, &gmail.ListHistoryResponse{
					History: []*gmail.History{{
						Id:            110,
						MessagesAdded: []*gmail.HistoryMessageAdded{{Message: &gmail.Message{Id: "m1"}}},
					}},
					HistoryId:     200,
					NextPageToken: "h2",
				})
				return
			}
			writeJSON(w, &gmail.ListHistoryResponse{
				History: []*gmail.History{{
					Id: 120,
					MessagesAdded: []*gmail.HistoryMessageAdded{
						{Message: &gmail.Message{Id: "m2"}},
						{Message: &gmail.Message{Id: "m2"}},
					},
				}},
				HistoryId: 200,
			})
		default:
			writeError(w, http.StatusBadRequest)
		}
	})
	mux.HandleFunc("GET /gmail/v1/users/me/profile", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, &gmail.Profile{EmailAddress: "support@example.com", HistoryId: 500})
	})
	mux.HandleFunc("POST /gmail/v1/users/me/drafts", func(w http.ResponseWriter, r *http.Request) {
		var d gmail.Draft
		_ = json.NewDecoder(r.Body).Decode(&d)
		f.mu.Lock()
		f.drafts = append(f.drafts, &d)
		f.mu.Unlock()
		writeJSON(w, &gmail.Draft{Id: "d1"})
	})
	mux.HandleFunc("GET /gmail/v1/users/me/labels", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, &gmail.ListLabelsResponse{Labels: f.labels})
	})
	mux.HandleFunc("POST /gmail/v1/users/me/labels", func(w http.ResponseWriter, r *http.Request) {
		var l gmail.Label
		_ = json.NewDecoder(r.Body).Decode(&l)
		l.Id = "Label_1"
		f.mu.Lock()
		f.labels = append(f.labels, &l)
		f.mu.Unlock()
		writeJSON(w, &l)
	})
	mux.HandleFunc("POST /gmail/v1/users/me/messages/{id}/modify", func(w http.ResponseWriter, r *http.Request) {
		var req gmail.ModifyMessageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.modified[r.PathValue("id")] = req.AddLabelIds
		f.mu.Unlock()
		writeJSON(w, messages["m1"])
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeGmail) {
	t.Helper()
	fake := &fakeGmail{modified: make(map[string][]string)}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.RateLimit = google.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 100}
	return NewWithService(svc, cfg), fake
}

func TestClient_ListUnprocessed(t *testing.T) {
	client, fake := newTestClient(t)

	got, err := client.ListUnprocessed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.MessageSummary{{ID: "m1", ThreadID: "t-m1"}}, got)
	assert.Equal(t, []string{"is:unread -label:AI_Drafted"}, fake.queries)
}

func TestClient_Get(t *testing.T) {
	client, _ := newTestClient(t)

	msg, err := client.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "t-m1", msg.ThreadID)
	assert.Equal(t, "Jane <jane@example.com>", msg.From)
	assert.Equal(t, "Order m1", msg.Subject)
	assert.Equal(t, "Where is my order?", msg.Body)
	assert.Equal(t, uint64(101), msg.Cursor)
	assert.Equal(t, 2026, msg.ReceivedAt.Year())
}

func TestClient_Get_NotFound(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, google.IsNotFound(err))
}

func TestClient_ListSince_Pages(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	first, err := client.ListSince(ctx, 100, "")
	require.NoError(t, err)
	require.Len(t, first.Messages, 1)
	assert.Equal(t, "m1", first.Messages[0].ID)
	assert.Equal(t, uint64(110), first.Messages[0].Cursor)
	assert.True(t, first.More)
	// Mid-listing pages stop at their last record, not the mailbox head.
	assert.Equal(t, uint64(110), first.Cursor)

	second, err := client.ListSince(ctx, 100, first.NextPageToken)
	require.NoError(t, err)
	require.Len(t, second.Messages, 1, "duplicate additions collapse")
	assert.Equal(t, "m2", second.Messages[0].ID)
	assert.False(t, second.More)
	assert.Equal(t, uint64(200), second.Cursor)
}

func TestClient_ListSince_ExpiredCursor(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.ListSince(context.Background(), 1, "")
	assert.ErrorIs(t, err, domain.ErrCursorExpired)
}

func TestClient_ListWindow_SkipsSpamAndDeleted(t *testing.T) {
	client, fake := newTestClient(t)
	ctx := context.Background()
	since := time.Date(2026, 9, 19, 0, 0, 0, 0, time.UTC)

	first, err := client.ListWindow(ctx, since, "")
	require.NoError(t, err)
	require.Len(t, first.Messages, 1)
	assert.Equal(t, "m1", first.Messages[0].ID)
	assert.True(t, first.More)

	second, err := client.ListWindow(ctx, since, first.NextPageToken)
	require.NoError(t, err)
	require.Len(t, second.Messages, 1)
	assert.Equal(t, "m2", second.Messages[0].ID)
	assert.False(t, second.More)

	assert.Contains(t, fake.queries, "after:2026/09/19")
}

func TestClient_Profile(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	cursor, err := client.CurrentCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), cursor)

	addr, err := client.Address(ctx)
	require.NoError(t, err)
	assert.Equal(t, "support@example.com", addr)
}

func TestClient_CreateDraft(t *testing.T) {
	client, fake := newTestClient(t)

	id, err := client.CreateDraft(context.Background(), domain.Reply{
		ThreadID:   "t-m1",
		To:         "jane@example.com",
		Subject:    "Re: Order m1",
		Body:       "Your order ships today.",
		InReplyTo:  "<m1@mail.example.com>",
		References: []string{"<m0@mail.example.com>", "<m1@mail.example.com>"},
	})
	require.NoError(t, err)
	assert.Equal(t, "d1", id)

	require.Len(t, fake.drafts, 1)
	d := fake.drafts[0]
	assert.Equal(t, "t-m1", d.Message.ThreadId)

	raw, err := base64.URLEncoding.DecodeString(d.Message.Raw)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "To: jane@example.com\r\n")
	assert.Contains(t, text, "Subject: Re: Order m1\r\n")
	assert.Contains(t, text, "In-Reply-To: <m1@mail.example.com>\r\n")
	assert.Contains(t, text, "References: <m0@mail.example.com> <m1@mail.example.com>\r\n")
	assert.Contains(t, text, "Your order ships today.")
}

func TestClient_ApplyLabel_CreatesOnce(t *testing.T) {
	client, fake := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.ApplyLabel(ctx, "m1", "AI_Drafted"))
	require.NoError(t, client.ApplyLabel(ctx, "m2", "AI_Drafted"))

	assert.Len(t, fake.labels, 1)
	assert.Equal(t, []string{"Label_1"}, fake.modified["m1"])
	assert.Equal(t, []string{"Label_1"}, fake.modified["m2"])
}

func TestBuildRaw_EncodesNonASCIISubject(t *testing.T) {
	raw, err := buildRaw(domain.Reply{To: "a@example.com", Subject: "Re: Café", Body: "Merci"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Subject: =?utf-8?q?Re:_Caf=C3=A9?=")
	assert.NotContains(t, string(raw), "In-Reply-To")
	assert.NotContains(t, string(raw), "References")
}

func TestRetryAfter(t *testing.T) {
	assert.Zero(t, retryAfter(errors.New("plain")))

	err := fmt.Errorf("wrapped: %w", &googleapi.Error{
		Code:   http.StatusTooManyRequests,
		Header: http.Header{"Retry-After": []string{"7"}},
	})
	assert.Equal(t, 7*time.Second, retryAfter(err))
}
