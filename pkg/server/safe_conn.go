package server

import (
	"io"
	"sync"

	"github.com/aeolun/ircd/pkg/irc"
)

// SafeConn wraps a transport connection with automatic write synchronization
// so concurrent writers cannot interleave message bytes on the wire.
//
// Replies for a session are normally written from its own loop, but broadcast
// senders running on other loops may race a teardown close. SafeConn
// encapsulates the connection and its write mutex, making it impossible to
// write without synchronization.
type SafeConn struct {
	conn       io.ReadWriteCloser
	remoteAddr string
	mu         sync.Mutex // protects writes to conn
	closeOnce  sync.Once
}

// NewSafeConn wraps conn with write synchronization.
func NewSafeConn(conn io.ReadWriteCloser, remoteAddr string) *SafeConn {
	return &SafeConn{conn: conn, remoteAddr: remoteAddr}
}

// WriteMessage serializes and sends one message. Each message goes out in a
// single Write call so lines never interleave.
func (sc *SafeConn) WriteMessage(msg *irc.Message) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	_, err := sc.conn.Write(msg.Bytes())
	return err
}

// WriteMessages sends a batch of messages in one Write call.
func (sc *SafeConn) WriteMessages(msgs []*irc.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	var buf []byte
	for _, msg := range msgs {
		buf = append(buf, msg.Bytes()...)
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	_, err := sc.conn.Write(buf)
	return err
}

// Read reads raw bytes from the connection. Only the session's reader
// goroutine calls this; reads need no write synchronization.
func (sc *SafeConn) Read(p []byte) (int, error) {
	return sc.conn.Read(p)
}

// Close closes the underlying connection once.
func (sc *SafeConn) Close() error {
	var err error
	sc.closeOnce.Do(func() { err = sc.conn.Close() })
	return err
}

// RemoteAddr returns the remote address string.
func (sc *SafeConn) RemoteAddr() string {
	return sc.remoteAddr
}
