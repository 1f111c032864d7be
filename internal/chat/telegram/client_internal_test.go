package telegram

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Document uploads routinely run past any whole-request deadline, so the
// fallback client must bound only the wait for response headers.
func TestNewClient_DefaultClientBoundsHeadersOnly(t *testing.T) {
	c := NewClient("https://api.example.org", "token", nil)

	assert.Zero(t, c.httpClient.Timeout)

	transport, ok := c.httpClient.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 60*time.Second, transport.ResponseHeaderTimeout)
}

func TestNewClient_KeepsProvidedClient(t *testing.T) {
	custom := &http.Client{}

	c := NewClient("https://api.example.org", "token", custom)

	assert.Same(t, custom, c.httpClient)
}
