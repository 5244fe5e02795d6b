package ipc

import (
	"bufio"
	"net"
	"sync"
)

// Conn wraps a unix domain socket connection with framed send/receive and
// a write mutex, since a worker's heartbeat goroutine and its task-result
// goroutine both write to the same socket.
type Conn struct {
	nc     net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
}

// NewConn wraps an established net.Conn (typically from a Listener.Accept
// on the orchestrator side, or from net.Dial("unix", ...) on the worker side).
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc, reader: bufio.NewReader(nc)}
}

// Send writes one frame, serialized against concurrent senders.
func (c *Conn) Send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return WriteFrame(c.nc, f)
}

// Recv reads the next frame. Only one goroutine should call Recv on a
// given Conn.
func (c *Conn) Recv() (Frame, error) {
	return ReadFrame(c.reader)
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// Dial connects to the orchestrator's listening unix socket at path.
func Dial(path string) (*Conn, error) {
	nc, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	return NewConn(nc), nil
}
