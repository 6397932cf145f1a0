package cleaner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/triage/internal/core/domain"
)

func TestProcessor_Process(t *testing.T) {
	chunks := []domain.Chunk{
		{ID: "a", Ordinal: 0, Content: "  Refund policy:\n\n items  may\tbe returned. "},
		{ID: "b", Ordinal: 1, Content: " \n\t "},
		{ID: "c", Ordinal: 2, Content: "Shipping takes 5 days."},
	}

	out, err := New().Process(context.Background(), &domain.Document{ID: "doc"}, chunks)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "Refund policy: items may be returned.", out[0].Content)
	assert.Equal(t, "c", out[1].ID)
	assert.Equal(t, 1, out[1].Ordinal)
}

func TestProcessor_AllBlank(t *testing.T) {
	out, err := New().Process(context.Background(), &domain.Document{}, []domain.Chunk{{Content: "   "}})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestProcessor_Name(t *testing.T) {
	assert.Equal(t, "cleaner", New().Name())
}
