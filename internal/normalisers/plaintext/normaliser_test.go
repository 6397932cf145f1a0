package plaintext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/triage/internal/core/domain"
)

func TestNormaliser_Metadata(t *testing.T) {
	n := New()
	assert.Contains(t, n.SupportedMIMETypes(), "text/plain")
	assert.Equal(t, 5, n.Priority())
}

func TestNormaliser_Normalise(t *testing.T) {
	raw := &domain.RawDocument{
		URI:      "/kb/policies/refund_policy.txt",
		RelPath:  "policies/refund_policy.txt",
		MIMEType: "text/plain",
		Content:  []byte("\xef\xbb\xbfRefunds within 30 days.\r\nContact support.\r\n"),
	}

	doc, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "policies/refund_policy.txt", doc.ID)
	assert.Equal(t, "refund policy", doc.Title)
	assert.Equal(t, "Refunds within 30 days.\nContact support.", doc.Content)
	assert.Equal(t, "text/plain", doc.Metadata["mime_type"])
}

func TestNormaliser_InvalidUTF8(t *testing.T) {
	raw := &domain.RawDocument{URI: "a.txt", RelPath: "a.txt", Content: []byte("ok \xff done")}

	doc, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "ok � done", doc.Content)
}

func TestNormaliser_Nil(t *testing.T) {
	_, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
