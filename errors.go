package dubbo

import "fmt"

// The five error kinds of spec.md §7, adapted from the teacher's
// exceptions.go: each kind is an exported concrete type built by an
// unexported constructor function, so callers can type-assert with
// errors.As against a named type.

// RegisterError signals no providers, misconfiguration, or a broken
// weighted-routing invariant. Raised by Registry, Router, and the Client
// constructor.
type RegisterError struct {
	Message string
}

func newRegisterError(format string, args ...interface{}) *RegisterError {
	return &RegisterError{Message: fmt.Sprintf(format, args...)}
}

func (e *RegisterError) Error() string {
	return "dubbo: " + e.Message
}

// HessianTypeError signals that the encoder was asked to serialize a value
// that is not one of the six Value variants, or whose nested field violates
// that grammar.
type HessianTypeError struct {
	Value interface{}
}

func newHessianTypeError(v interface{}) *HessianTypeError {
	return &HessianTypeError{Value: v}
}

func (e *HessianTypeError) Error() string {
	return fmt.Sprintf("dubbo: hessian: unsupported value type %T", e.Value)
}

// TransportError wraps a socket error, unexpected EOF, or malformed frame
// header observed by a Connection or ConnectionPool. It marks the owning
// connection Broken so the next invocation forces a reconnect.
type TransportError struct {
	Cause error
}

func newTransportError(cause error) *TransportError {
	return &TransportError{Cause: cause}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dubbo: transport: %v", e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// TimeoutError indicates a pending call's deadline elapsed before a
// matching response arrived. The pending call is removed from the
// connection's correlation table; a later response for the same id is
// discarded without being treated as an error.
type TimeoutError struct {
	RequestID int64
}

func newTimeoutError(requestID int64) *TimeoutError {
	return &TimeoutError{RequestID: requestID}
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("dubbo: timeout waiting for response to request %d", e.RequestID)
}

// DubboException carries a non-OK response status and message from the peer.
type DubboException struct {
	Status  byte
	Message string
}

func newDubboException(status byte, message string) *DubboException {
	return &DubboException{Status: status, Message: message}
}

func (e *DubboException) Error() string {
	return fmt.Sprintf("dubbo: server returned status 0x%02x: %s", e.Status, e.Message)
}
