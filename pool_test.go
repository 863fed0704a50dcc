package dubbo

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer accepts connections on ln and, for each one, responds to
// every request frame with a fixed string value until the connection
// closes.
func echoServer(t *testing.T, ln net.Listener, accepted *int32Counter) {
	t.Helper()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted.inc()
		go func(c net.Conn) {
			defer c.Close()
			replyBody, _ := EncodeValue(String("ok"))
			for {
				header := make([]byte, HeaderLength)
				if _, err := io.ReadFull(c, header); err != nil {
					return
				}
				hdr, err := parseFrameHeader(header)
				if err != nil {
					return
				}
				if hdr.DataLength > 0 {
					body := make([]byte, hdr.DataLength)
					io.ReadFull(c, body)
				}
				resp := writeFrame(hdr.RequestID, replyBody)
				resp[3] = StatusOK
				c.Write(resp)
			}
		}(conn)
	}
}

type int32Counter struct {
	mu sync.Mutex
	n  int
}

func (c *int32Counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *int32Counter) value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestConnectionPoolSingleDialUnderConcurrency(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := &int32Counter{}
	go echoServer(t, ln, accepted)

	pool := NewConnectionPool(nil, nil)
	defer pool.Close()

	param := &RequestParam{DubboVersion: "2.6.1", Path: "com.example.Svc", Method: "ping"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := pool.Invoke(context.Background(), ln.Addr().String(), param, time.Second)
			assert.NoError(t, err)
			assert.Equal(t, StringValue("ok"), value)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted.value())
}

func TestConnectionPoolCloseFailsOutstandingCalls(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// Accept and hold the connection open without ever responding.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(io.Discard, conn)
	}()

	pool := NewConnectionPool(nil, nil)
	param := &RequestParam{DubboVersion: "2.6.1", Path: "com.example.Svc", Method: "ping"}

	done := make(chan error, 1)
	go func() {
		_, err := pool.Invoke(context.Background(), ln.Addr().String(), param, 5*time.Second)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, pool.Close())

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("pending invoke did not fail after pool close")
	}
}
