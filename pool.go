package dubbo

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/GoAethereal/cancel"
)

// ConnectionPool is the process-wide `host:port -> Connection` map of
// spec.md §4.4. Lookup-or-open is mutually exclusive per key: concurrent
// first-callers for the same host share exactly one TCP connect, via the
// same per-key "someone is already dialing, wait on their result" technique
// the teacher's Client.init uses for its single modbus connection.
type ConnectionPool struct {
	mu      sync.Mutex
	conns   map[string]*Connection
	dialing map[string]chan struct{}

	logger  Logger
	metrics *Metrics
}

// NewConnectionPool creates an empty pool. logger and metrics may be nil.
func NewConnectionPool(logger Logger, metrics *Metrics) *ConnectionPool {
	return &ConnectionPool{
		conns:   make(map[string]*Connection),
		dialing: make(map[string]chan struct{}),
		logger:  orDefaultLogger(logger),
		metrics: metrics,
	}
}

// Invoke composes ensureConnection -> encode -> Connection.Invoke ->
// decode, per spec.md §4.4: "get(host, requestParam, timeout) composes:
// ensureConnection(host) -> Encoder(requestParam).encode() ->
// connection.invoke(frame, timeout) -> Decoder -> return value."
func (p *ConnectionPool) Invoke(ctx context.Context, host string, param *RequestParam, timeout time.Duration) (Value, error) {
	conn, err := p.ensureConnection(ctx, host)
	if err != nil {
		return nil, err
	}
	body, err := EncodeRequestBody(param)
	if err != nil {
		return nil, err
	}
	return conn.Invoke(ctx, body, timeout)
}

// ensureConnection returns a ready Connection for host, opening one if
// none exists or the existing one is Broken (lazy replacement, spec.md
// §4.4: "A broken connection is replaced lazily on the next invoke.").
func (p *ConnectionPool) ensureConnection(ctx context.Context, host string) (*Connection, error) {
	for {
		p.mu.Lock()
		if conn, ok := p.conns[host]; ok && conn.Ready() {
			p.mu.Unlock()
			return conn, nil
		}
		if wait, dialing := p.dialing[host]; dialing {
			p.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		wait := make(chan struct{})
		p.dialing[host] = wait
		p.mu.Unlock()

		conn, err := p.dial(ctx, host)

		p.mu.Lock()
		if err == nil {
			p.conns[host] = conn
		}
		delete(p.dialing, host)
		close(wait)
		p.mu.Unlock()

		return conn, err
	}
}

// dial reproduces the teacher's Config.connection dial idiom
// (config.go: "ctx, cancel := cancel.Promote(ctx); defer cancel(); con,
// err := new(net.Dialer).DialContext(ctx, …)"), generalized from a
// serial/network Config to a bare host string.
func (p *ConnectionPool) dial(ctx context.Context, host string) (*Connection, error) {
	promoted, done := cancel.Promote(ctx)
	defer done()

	var d net.Dialer
	nc, err := d.DialContext(promoted, "tcp", host)
	if err != nil {
		return nil, newTransportError(err)
	}
	return newConnectionFromNetConn(host, nc, p.logger, p.metrics), nil
}

// Close tears down every connection in the pool. Outstanding invocations
// fail with a *TransportError (spec.md §5: "closing the pool closes all
// connections, which fails all outstanding pending calls").
func (p *ConnectionPool) Close() error {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*Connection)
	p.mu.Unlock()

	var firstErr error
	for _, conn := range conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
