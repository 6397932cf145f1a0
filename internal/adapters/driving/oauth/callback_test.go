//nolint:noctx // Test file uses http.Get for convenience; context not required in tests
package oauth

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, state string) *CallbackServer {
	t.Helper()
	server := NewCallbackServer(0, state)
	require.NoError(t, server.Start())
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func get(t *testing.T, rawURL string) string {
	t.Helper()
	resp, err := http.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func waitCtx(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

func TestNewCallbackServer(t *testing.T) {
	server := NewCallbackServer(8080, "test-state-123")

	require.NotNil(t, server)
	assert.Equal(t, 8080, server.Port())
	assert.Equal(t, "http://localhost:8080/callback", server.RedirectURI())
	assert.Nil(t, server.server)
}

func TestCallbackServer_StartPicksPort(t *testing.T) {
	server := startServer(t, "s")
	assert.NotZero(t, server.Port())
}

func TestCallbackServer_Start_PortInUse(t *testing.T) {
	first := startServer(t, "a")

	second := NewCallbackServer(first.Port(), "b")
	assert.Error(t, second.Start())
}

func TestCallbackServer_Stop_NotStarted(t *testing.T) {
	assert.NoError(t, NewCallbackServer(0, "s").Stop())
}

func TestCallbackServer_HandleCallback(t *testing.T) {
	tests := []struct {
		name     string
		query    url.Values
		wantCode string
		wantErr  string
		wantPage string
	}{
		{
			name:     "success",
			query:    url.Values{"state": {"st"}, "code": {"abc"}},
			wantCode: "abc",
			wantPage: "Authorization successful",
		},
		{
			name:     "state mismatch",
			query:    url.Values{"state": {"other"}, "code": {"abc"}},
			wantErr:  "state mismatch",
			wantPage: "invalid state parameter",
		},
		{
			name:     "missing code",
			query:    url.Values{"state": {"st"}},
			wantErr:  "no authorization code",
			wantPage: "no code received",
		},
		{
			name:     "provider error",
			query:    url.Values{"error": {"access_denied"}, "error_description": {"User <denied>"}},
			wantErr:  "access_denied",
			wantPage: "User &lt;denied&gt;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := startServer(t, "st")

			page := get(t, server.RedirectURI()+"?"+tt.query.Encode())
			assert.Contains(t, page, tt.wantPage)

			code, err := server.WaitForCode(waitCtx(t, time.Second))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestCallbackServer_FirstResultWins(t *testing.T) {
	server := startServer(t, "st")

	get(t, server.RedirectURI()+"?state=st&code=first")
	get(t, server.RedirectURI()+"?state=st&code=second")

	code, err := server.WaitForCode(waitCtx(t, time.Second))
	require.NoError(t, err)
	assert.Equal(t, "first", code)
}

func TestCallbackServer_WaitForCode_Timeout(t *testing.T) {
	server := NewCallbackServer(0, "st")

	_, err := server.WaitForCode(waitCtx(t, 10*time.Millisecond))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResultHTML_Escapes(t *testing.T) {
	page := resultHTML("<b>Title</b>", "a & b")
	assert.Contains(t, page, "&lt;b&gt;Title&lt;/b&gt;")
	assert.Contains(t, page, "a &amp; b")
	assert.Contains(t, page, "<!DOCTYPE html>")
}

func TestFindAvailablePort(t *testing.T) {
	port, err := FindAvailablePort(18080, 18180)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, 18080)
	assert.LessOrEqual(t, port, 18180)

	_, err = FindAvailablePort(200, 100)
	assert.Error(t, err, "empty range")
}
