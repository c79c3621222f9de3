package netserver

import (
	"bytes"
	"io"
	"net"
	"sync"
)

// chanListener is a net.Listener fed by the detection loop. It lets an
// http.Server serve connections that were accepted elsewhere.
type chanListener struct {
	addr  net.Addr
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

func newChanListener(addr net.Addr) *chanListener {
	return &chanListener{
		addr:  addr,
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
}

// Accept waits for the next handed-off connection.
func (l *chanListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

// Close stops Accept. Connections already handed off are unaffected.
func (l *chanListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

// Addr returns the address of the real listener.
func (l *chanListener) Addr() net.Addr {
	return l.addr
}

// handoff passes c to Accept. It returns false once the listener is closed.
func (l *chanListener) handoff(c net.Conn) bool {
	select {
	case l.conns <- c:
		return true
	case <-l.done:
		return false
	}
}

// prefixConn replays bytes consumed by detection before reading from the
// connection itself.
type prefixConn struct {
	net.Conn
	r io.Reader
}

func newPrefixConn(c net.Conn, prefix []byte) *prefixConn {
	return &prefixConn{Conn: c, r: io.MultiReader(bytes.NewReader(bytes.Clone(prefix)), c)}
}

func (c *prefixConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}
