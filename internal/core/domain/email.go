package domain

import "time"

// EmailRecord is a past message held in the history ledger.
// Records are inserted once and never updated.
type EmailRecord struct {
	// ID is the identifier assigned by the mail provider.
	ID string

	Sender    string
	Recipient string
	Subject   string
	Body      string

	// Timestamp is when the message was received.
	Timestamp time.Time

	// ThreadID groups messages of one conversation.
	ThreadID string

	// VectorID references the VectorEntry created alongside the record.
	VectorID string
}

// VectorEntry is the embedding stored 1:1 with an EmailRecord.
type VectorEntry struct {
	VectorID  string
	EmailID   string
	Embedding []float32
}

// EmailMatch is a similarity hit from the history ledger.
type EmailMatch struct {
	Record EmailRecord
	Score  float64
}

// VectorHit is a raw similarity hit before it is resolved to a record.
type VectorHit struct {
	VectorID   string
	EmailID    string
	Similarity float64
}

// MessageSummary is the minimal listing entry returned by a message source.
type MessageSummary struct {
	ID       string
	ThreadID string
}

// Message is a fully fetched incoming message.
type Message struct {
	ID       string
	ThreadID string

	// From is the raw From header, e.g. "Jane <jane@example.com>".
	From    string
	To      string
	Subject string
	Body    string

	// ReceivedAt is the provider's internal delivery time.
	ReceivedAt time.Time

	// Cursor is the provider history position of this message, if known.
	Cursor uint64

	// MessageID and References are the RFC 5322 threading headers.
	MessageID  string
	References []string
}

// Reply is an unsent answer to a message.
type Reply struct {
	ThreadID string
	To       string
	Subject  string
	Body     string

	// InReplyTo is the Message-ID being answered.
	InReplyTo  string
	References []string
}

// Reply builds an answer to m that mail clients thread under it.
func (m Message) Reply(to, subject, body string) Reply {
	r := Reply{ThreadID: m.ThreadID, To: to, Subject: subject, Body: body, InReplyTo: m.MessageID}
	r.References = append(r.References, m.References...)
	if m.MessageID != "" {
		r.References = append(r.References, m.MessageID)
	}
	return r
}

// Record converts the message into a ledger record.
func (m Message) Record() EmailRecord {
	return EmailRecord{
		ID:        m.ID,
		Sender:    m.From,
		Recipient: m.To,
		Subject:   m.Subject,
		Body:      m.Body,
		Timestamp: m.ReceivedAt,
		ThreadID:  m.ThreadID,
	}
}

// HistoryPage is one page of messages added since a cursor.
type HistoryPage struct {
	Messages []Message

	// Cursor is the position the source reached after this page.
	Cursor uint64

	// More is true when further pages follow.
	More bool

	// NextPageToken continues the listing when More is true.
	NextPageToken string
}

// SyncReport summarises a SyncFromWatermark run.
type SyncReport struct {
	// FullSync is true when no watermark existed and a bounded window was fetched.
	FullSync bool

	// Fetched is the number of messages returned by the source.
	Fetched int

	// Inserted is the number of new records written.
	Inserted int

	// From and To are the watermark values before and after the run.
	From uint64
	To   uint64
}
