package tlsutil

import (
	"crypto/tls"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientConfig(t *testing.T) {
	cfg := ClientConfig("redis.internal:6380")
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Equal(t, "redis.internal", cfg.ServerName)
	assert.ElementsMatch(t, aeadSuites, cfg.CipherSuites)

	assert.Equal(t, "broker-1", ClientConfig("broker-1").ServerName)
	assert.Empty(t, ClientConfig("").ServerName)
}

func TestClientConfig_Independent(t *testing.T) {
	a := ClientConfig("")
	a.CipherSuites[0] = 0
	assert.Equal(t, aeadSuites[0], ClientConfig("").CipherSuites[0])
}

func TestHTTPClient(t *testing.T) {
	c := HTTPClient(15 * time.Second)
	assert.Equal(t, 15*time.Second, c.Timeout)

	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	require.NotNil(t, tr.TLSClientConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), tr.TLSClientConfig.MinVersion)
	assert.True(t, tr.ForceAttemptHTTP2)
}
