package dubbo

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRequiresRegistryOrHost(t *testing.T) {
	_, err := NewClient(ClientConfig{Interface: "com.example.Svc"}, NewConnectionPool(nil, nil))
	require.Error(t, err)
	var registerErr *RegisterError
	assert.ErrorAs(t, err, &registerErr)
}

func TestNewClientRequiresInterface(t *testing.T) {
	_, err := NewClient(ClientConfig{Host: "127.0.0.1:20880"}, NewConnectionPool(nil, nil))
	require.Error(t, err)
}

func TestClientCallWithDirectHost(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go echoServer(t, ln, &int32Counter{})

	pool := NewConnectionPool(nil, nil)
	defer pool.Close()

	client, err := NewClient(ClientConfig{
		Interface: "com.example.Svc",
		Host:      ln.Addr().String(),
	}, pool)
	require.NoError(t, err)

	value, err := client.Call(context.Background(), "ping", time.Second, Int(1))
	require.NoError(t, err)
	assert.Equal(t, StringValue("ok"), value)
}

func TestClientCallDefaultsDubboVersionAndTimeout(t *testing.T) {
	client, err := NewClient(ClientConfig{
		Interface: "com.example.Svc",
		Host:      "127.0.0.1:1",
	}, NewConnectionPool(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultDubboVersion, client.cfg.DubboVersion)
	assert.Equal(t, DefaultCallTimeout, client.cfg.Timeout)
}
