package dubbo

import "context"

// chanMutex behaves like sync.Mutex except a lock attempt can be canceled
// by a context, the same technique the teacher's helper.go uses for its
// modbus connection's write lane. Connection reuses it to serialize
// outbound frame writes onto a single socket (spec.md §4.3: "A single
// writer lane serializes outbound frames").
type chanMutex chan struct{}

func newChanMutex() chanMutex {
	m := make(chanMutex, 1)
	m <- struct{}{}
	return m
}

func (m chanMutex) lock(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m:
		return nil
	}
}

func (m chanMutex) unlock() {
	m <- struct{}{}
}
