// Package gmail implements the mailbox ports on the Gmail API: candidate
// listing, history sync, draft creation and labelling.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/custodia-labs/triage/internal/connectors/google"
	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
	"github.com/custodia-labs/triage/internal/logger"
)

// Ensure Client implements the mailbox interfaces.
var (
	_ driven.MessageSource = (*Client)(nil)
	_ driven.DraftSink     = (*Client)(nil)
)

// Client talks to one Gmail mailbox.
type Client struct {
	svc     *gmail.Service
	cfg     Config
	limiter *google.RateLimiter

	labelMu  sync.Mutex
	labelIDs map[string]string
}

// New creates a client authenticated by ts.
func New(ctx context.Context, ts oauth2.TokenSource, cfg Config, opts ...option.ClientOption) (*Client, error) {
	svc, err := google.NewGmailService(ctx, ts, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail: create service: %w", err)
	}
	return NewWithService(svc, cfg), nil
}

// NewWithService wraps an existing Gmail service.
func NewWithService(svc *gmail.Service, cfg Config) *Client {
	if cfg.UserID == "" {
		cfg.UserID = "me"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultConfig().MaxResults
	}
	return &Client{
		svc:      svc,
		cfg:      cfg,
		limiter:  google.NewRateLimiter(cfg.RateLimit),
		labelIDs: make(map[string]string),
	}
}

// ListUnprocessed returns every message matching the candidate query.
func (c *Client) ListUnprocessed(ctx context.Context) ([]domain.MessageSummary, error) {
	var out []domain.MessageSummary
	token := ""
	for {
		call := c.svc.Users.Messages.List(c.cfg.UserID).
			Q(c.cfg.Query).
			MaxResults(c.cfg.MaxResults).
			Context(ctx)
		if len(c.cfg.LabelIDs) > 0 {
			call = call.LabelIds(c.cfg.LabelIDs...)
		}
		if token != "" {
			call = call.PageToken(token)
		}

		var resp *gmail.ListMessagesResponse
		err := c.do(ctx, func() (err error) {
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("gmail: list messages: %w", err)
		}

		for _, m := range resp.Messages {
			out = append(out, domain.MessageSummary{ID: m.Id, ThreadID: m.ThreadId})
		}
		if resp.NextPageToken == "" {
			return out, nil
		}
		token = resp.NextPageToken
	}
}

// Get fetches a full message.
func (c *Client) Get(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := c.getRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToMessage(msg), nil
}

func (c *Client) getRaw(ctx context.Context, id string) (*gmail.Message, error) {
	var msg *gmail.Message
	err := c.do(ctx, func() (err error) {
		msg, err = c.svc.Users.Messages.Get(c.cfg.UserID, id).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("gmail: get message %s: %w", id, err)
	}
	return msg, nil
}

// ListSince returns one page of messages added after cursor. Each message
// carries the ID of the history record that added it; the page cursor is the
// mailbox head on the last page and the last record otherwise.
func (c *Client) ListSince(ctx context.Context, cursor uint64, pageToken string) (*domain.HistoryPage, error) {
	call := c.svc.Users.History.List(c.cfg.UserID).
		StartHistoryId(cursor).
		HistoryTypes("messageAdded").
		MaxResults(c.cfg.MaxResults).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	var resp *gmail.ListHistoryResponse
	err := c.do(ctx, func() (err error) {
		resp, err = call.Do()
		return err
	})
	if err != nil {
		if google.IsNotFound(err) {
			return nil, fmt.Errorf("gmail: history %d: %w", cursor, domain.ErrCursorExpired)
		}
		return nil, fmt.Errorf("gmail: list history: %w", err)
	}

	page := &domain.HistoryPage{
		More:          resp.NextPageToken != "",
		NextPageToken: resp.NextPageToken,
	}
	seen := make(map[string]bool)
	for _, h := range resp.History {
		for _, added := range h.MessagesAdded {
			if added.Message == nil || seen[added.Message.Id] {
				continue
			}
			seen[added.Message.Id] = true

			msg, ok, err := c.fetchForHistory(ctx, added.Message.Id)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			msg.Cursor = h.Id
			page.Messages = append(page.Messages, *msg)
		}
		page.Cursor = h.Id
	}
	if !page.More && resp.HistoryId > page.Cursor {
		page.Cursor = resp.HistoryId
	}
	return page, nil
}

// ListWindow returns one page of messages received after since.
func (c *Client) ListWindow(ctx context.Context, since time.Time, pageToken string) (*domain.HistoryPage, error) {
	call := c.svc.Users.Messages.List(c.cfg.UserID).
		Q("after:" + since.Format("2006/01/02")).
		MaxResults(c.cfg.MaxResults).
		IncludeSpamTrash(c.cfg.IncludeSpamTrash).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	var resp *gmail.ListMessagesResponse
	err := c.do(ctx, func() (err error) {
		resp, err = call.Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("gmail: list window: %w", err)
	}

	page := &domain.HistoryPage{
		More:          resp.NextPageToken != "",
		NextPageToken: resp.NextPageToken,
	}
	for _, m := range resp.Messages {
		msg, ok, err := c.fetchForHistory(ctx, m.Id)
		if err != nil {
			return nil, err
		}
		if ok {
			page.Messages = append(page.Messages, *msg)
		}
	}
	return page, nil
}

// fetchForHistory gets a message for the ledger. ok is false for messages
// deleted since they were listed and for spam or trash.
func (c *Client) fetchForHistory(ctx context.Context, id string) (*domain.Message, bool, error) {
	raw, err := c.getRaw(ctx, id)
	if err != nil {
		if google.IsNotFound(err) {
			logger.Debug("message vanished before fetch", "message_id", id)
			return nil, false, nil
		}
		return nil, false, err
	}
	if !c.cfg.IncludeSpamTrash && isSpamOrTrash(raw.LabelIds) {
		return nil, false, nil
	}
	return ToMessage(raw), true, nil
}

// CurrentCursor returns the mailbox's latest history ID.
func (c *Client) CurrentCursor(ctx context.Context) (uint64, error) {
	profile, err := c.profile(ctx)
	if err != nil {
		return 0, err
	}
	return profile.HistoryId, nil
}

// Address returns the authenticated mailbox address.
func (c *Client) Address(ctx context.Context) (string, error) {
	profile, err := c.profile(ctx)
	if err != nil {
		return "", err
	}
	return profile.EmailAddress, nil
}

func (c *Client) profile(ctx context.Context) (*gmail.Profile, error) {
	var profile *gmail.Profile
	err := c.do(ctx, func() (err error) {
		profile, err = c.svc.Users.GetProfile(c.cfg.UserID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("gmail: get profile: %w", err)
	}
	return profile, nil
}

// CreateDraft stores a plain text reply in its thread.
func (c *Client) CreateDraft(ctx context.Context, reply domain.Reply) (string, error) {
	raw, err := buildRaw(reply)
	if err != nil {
		return "", fmt.Errorf("gmail: build draft: %w", err)
	}

	draft := &gmail.Draft{Message: &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: reply.ThreadID,
	}}

	var created *gmail.Draft
	err = c.do(ctx, func() (err error) {
		created, err = c.svc.Users.Drafts.Create(c.cfg.UserID, draft).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("gmail: create draft: %w", err)
	}
	return created.Id, nil
}

// ApplyLabel adds the named label to a message, creating the label first if
// the mailbox does not have it.
func (c *Client) ApplyLabel(ctx context.Context, messageID, label string) error {
	labelID, err := c.labelID(ctx, label)
	if err != nil {
		return err
	}

	req := &gmail.ModifyMessageRequest{AddLabelIds: []string{labelID}}
	err = c.do(ctx, func() error {
		_, err := c.svc.Users.Messages.Modify(c.cfg.UserID, messageID, req).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("gmail: label message %s: %w", messageID, err)
	}
	logger.Debug("label applied", "message_id", messageID, "label", label)
	return nil
}

func (c *Client) labelID(ctx context.Context, name string) (string, error) {
	c.labelMu.Lock()
	defer c.labelMu.Unlock()

	if id, ok := c.labelIDs[name]; ok {
		return id, nil
	}

	var labels *gmail.ListLabelsResponse
	err := c.do(ctx, func() (err error) {
		labels, err = c.svc.Users.Labels.List(c.cfg.UserID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("gmail: list labels: %w", err)
	}
	for _, l := range labels.Labels {
		if l.Name == name {
			c.labelIDs[name] = l.Id
			return l.Id, nil
		}
	}

	var created *gmail.Label
	err = c.do(ctx, func() (err error) {
		created, err = c.svc.Users.Labels.Create(c.cfg.UserID, &gmail.Label{
			Name:                  name,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("gmail: create label %q: %w", name, err)
	}
	logger.Info("created label", "label", name, "id", created.Id)
	c.labelIDs[name] = created.Id
	return created.Id, nil
}

// do waits for the rate limiter, runs fn and maps API errors. A 429 pauses
// later requests for the server's Retry-After.
func (c *Client) do(ctx context.Context, fn func() error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	err := fn()
	if err == nil {
		return nil
	}
	if google.IsRateLimited(err) {
		c.limiter.RecordRateLimitError(retryAfter(err))
	}
	return google.WrapError(err)
}

func retryAfter(err error) time.Duration {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Header == nil {
		return 0
	}
	secs, perr := strconv.Atoi(gerr.Header.Get("Retry-After"))
	if perr != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// buildRaw renders an RFC 2822 plain text message.
func buildRaw(reply domain.Reply) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "To: %s\r\n", reply.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", reply.Subject))
	if reply.InReplyTo != "" {
		fmt.Fprintf(&buf, "In-Reply-To: %s\r\n", reply.InReplyTo)
	}
	if len(reply.References) > 0 {
		fmt.Fprintf(&buf, "References: %s\r\n", strings.Join(reply.References, " "))
	}
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(reply.Body)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
