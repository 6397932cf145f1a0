package eml

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/triage/internal/core/domain"
)

func rawEmail(relPath, content string) *domain.RawDocument {
	return &domain.RawDocument{
		URI:      "/corpus/" + relPath,
		RelPath:  relPath,
		MIMEType: "message/rfc822",
		Content:  []byte(content),
	}
}

func TestNormaliser_Capabilities(t *testing.T) {
	normaliser := New()
	assert.Equal(t, []string{"message/rfc822"}, normaliser.SupportedMIMETypes())
	assert.Equal(t, 50, normaliser.Priority())
}

func TestNormalise_NilDocument(t *testing.T) {
	result, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, result)
}

func TestNormalise_SimpleEmail(t *testing.T) {
	raw := rawEmail("threads/late_order.eml", `From: jane@example.com
To: support@example.com
Subject: Where is my order?
Date: Mon, 01 Jan 2024 10:00:00 +0000
Content-Type: text/plain

My order 1042 has not arrived.
Can you check?
`)

	doc, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "threads/late_order.eml", doc.ID)
	assert.Equal(t, "Where is my order?", doc.Title)
	assert.Equal(t, "From: jane@example.com\n"+
		"To: support@example.com\n"+
		"Date: Mon, 01 Jan 2024 10:00:00 +0000\n"+
		"Subject: Where is my order?\n\n"+
		"My order 1042 has not arrived.\nCan you check?", doc.Content)
	assert.Equal(t, "eml", doc.Metadata["format"])
	assert.Equal(t, "jane@example.com", doc.Metadata["from"])
	assert.Equal(t, "support@example.com", doc.Metadata["to"])
	assert.Equal(t, "Mon, 01 Jan 2024 10:00:00 +0000", doc.Metadata["date"])
}

func TestNormalise_NoSubjectUsesFileName(t *testing.T) {
	raw := rawEmail("my_email.eml", "From: a@example.com\n\nBody.\n")

	doc, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "my email", doc.Title)
	assert.NotContains(t, doc.Metadata, "to")
}

func TestNormalise_HTMLBody(t *testing.T) {
	raw := rawEmail("html.eml", `From: shop@example.com
Subject: Receipt
Content-Type: text/html

<html><body><h1>Thanks</h1><p>Your <b>receipt</b> is attached.</p></body></html>
`)

	doc, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "Thanks\nYour receipt is attached.")
	assert.NotContains(t, doc.Content, "<p>")
}

func TestNormalise_MultipartPrefersPlainText(t *testing.T) {
	raw := rawEmail("multi.eml", `From: jane@example.com
Subject: Multipart
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/plain

Plain version.
--b1
Content-Type: text/html

<p>HTML version</p>
--b1--
`)

	doc, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "Plain version.")
	assert.NotContains(t, doc.Content, "HTML version")
}

func TestNormalise_MultipartFallsBackToHTML(t *testing.T) {
	raw := rawEmail("html_only.eml", `From: jane@example.com
Subject: HTML only
Content-Type: multipart/mixed; boundary="b1"

--b1
Content-Type: text/html

<p>Only <i>HTML</i> here</p>
--b1
Content-Type: application/pdf

%PDF-1.4
--b1--
`)

	doc, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "Only HTML here")
	assert.NotContains(t, doc.Content, "%PDF")
}

func TestNormalise_NestedMultipartAndBase64(t *testing.T) {
	raw := rawEmail("nested.eml", `From: billing@example.com
Subject: Refund
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain
Content-Transfer-Encoding: base64

UmVmdW5kIGFwcHJvdmVkIGZvciBvcmRlciAxMDQyLg==
--inner--
--outer--
`)

	doc, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "Refund approved for order 1042.")
}

func TestNormalise_QuotedPrintableBody(t *testing.T) {
	raw := rawEmail("qp.eml", "From: a@example.com\nSubject: QP\nContent-Transfer-Encoding: quoted-printable\n\n"+
		"Caf=C3=A9 opens at nine and closes at=\n five.\n")

	doc, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "Café opens at nine and closes at five.")
}

func TestNormalise_InvalidEmail(t *testing.T) {
	doc, err := New().Normalise(context.Background(), rawEmail("bad.eml", "not an email at all"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, doc)
}

func TestDecodeHeader(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "Order status", "Order status"},
		{"q encoded", "=?UTF-8?Q?R=C3=BCckerstattung?=", "Rückerstattung"},
		{"b encoded", "=?UTF-8?B?SGVsbG8=?=", "Hello"},
		{"unknown charset kept", "=?x-unknown?Q?abc?=", "=?x-unknown?Q?abc?="},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, decodeHeader(tc.input))
		})
	}
}
