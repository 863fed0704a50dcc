package dubbo

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer reads one frame off conn and responds with the given status
// and body, using the same 16-byte header layout Connection expects.
func fakeServer(t *testing.T, conn net.Conn, status byte, respond func(requestID int64) []byte) {
	t.Helper()
	header := make([]byte, HeaderLength)
	if _, err := io.ReadFull(conn, header); err != nil {
		return
	}
	hdr, err := parseFrameHeader(header)
	require.NoError(t, err)
	if hdr.DataLength > 0 {
		body := make([]byte, hdr.DataLength)
		_, _ = io.ReadFull(conn, body)
	}

	respBody := respond(hdr.RequestID)
	resp := make([]byte, HeaderLength+len(respBody))
	resp[0], resp[1] = magicHigh, magicLow
	resp[3] = status
	for i := 0; i < 8; i++ {
		resp[4+i] = byte(hdr.RequestID >> uint(56-8*i))
	}
	length := uint32(len(respBody))
	resp[12] = byte(length >> 24)
	resp[13] = byte(length >> 16)
	resp[14] = byte(length >> 8)
	resp[15] = byte(length)
	copy(resp[HeaderLength:], respBody)
	_, _ = conn.Write(resp)
}

func TestConnectionInvokeRoundTrip(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	replyBody, err := EncodeValue(String("pong"))
	require.NoError(t, err)

	go fakeServer(t, serverSide, StatusOK, func(int64) []byte { return replyBody })

	conn := newConnectionFromNetConn("test-host", clientSide, nil, nil)
	defer conn.Close()

	value, err := conn.Invoke(context.Background(), []byte("ping"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, StringValue("pong"), value)
}

func TestConnectionInvokeTimeout(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	// The peer reads every request but never answers. net.Pipe has no
	// buffering, so without a reader the write itself would block.
	go io.Copy(io.Discard, serverSide)

	conn := newConnectionFromNetConn("test-host", clientSide, nil, nil)
	defer conn.Close()

	_, err := conn.Invoke(context.Background(), []byte("ping"), 20*time.Millisecond)
	require.Error(t, err)
	var timeoutErr *TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}

func TestConnectionFailBreaksPendingCalls(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	conn := newConnectionFromNetConn("test-host", clientSide, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := conn.Invoke(context.Background(), []byte("ping"), time.Second)
		done <- err
	}()

	// Give the invoke a moment to register its pending slot, then sever
	// the connection from the other side to force a read error.
	time.Sleep(20 * time.Millisecond)
	serverSide.Close()

	select {
	case err := <-done:
		require.Error(t, err)
		var transportErr *TransportError
		assert.ErrorAs(t, err, &transportErr)
	case <-time.After(time.Second):
		t.Fatal("invoke did not fail after connection loss")
	}
	assert.False(t, conn.Ready())
}
