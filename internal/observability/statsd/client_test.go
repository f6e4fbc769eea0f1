package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenUDP(t *testing.T) (*net.UDPConn, string) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, conn.LocalAddr().String()
}

func readLine(t *testing.T, conn *net.UDPConn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1024)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestClient_Count(t *testing.T) {
	server, addr := listenUDP(t)

	client, err := NewClient(Config{Enabled: true, Address: addr, Prefix: "canvango"})
	require.NoError(t, err)
	defer client.Close()

	client.Count("session.refresh", 1, map[string]string{"trigger": "interval"})

	assert.Equal(t, "canvango.session.refresh:1|c|#trigger:interval", readLine(t, server))
}

func TestClient_Timing(t *testing.T) {
	server, addr := listenUDP(t)

	client, err := NewClient(Config{Enabled: true, Address: addr})
	require.NoError(t, err)
	defer client.Close()

	client.Timing("profile.fetch", 250*time.Millisecond, nil)

	assert.Equal(t, "profile.fetch:250|ms", readLine(t, server))
}

func TestClient_Disabled(t *testing.T) {
	client, err := NewClient(Config{Enabled: false, Address: "127.0.0.1:8125"})
	require.NoError(t, err)

	assert.False(t, client.Enabled())
	// Must not panic with no connection.
	client.Count("x", 1, nil)
	client.Gauge("x", 1.5, nil)
	assert.NoError(t, client.Close())
}

func TestClient_MetricNameNormalization(t *testing.T) {
	client := &Client{prefix: "app"}
	assert.Equal(t, "app.guard_check.denied", client.metricName(" guard/check.denied "))
	assert.Equal(t, "", client.metricName("  "))
}
