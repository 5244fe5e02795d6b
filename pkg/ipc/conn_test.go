package ipc

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnSendRecvOverUnixSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "ipc-test.sock")

	ln, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	defer ln.Close()

	serverConnCh := make(chan *Conn, 1)
	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		serverConnCh <- NewConn(nc)
	}()

	client, err := Dial(socketPath)
	require.NoError(t, err)
	defer client.Close()

	server := <-serverConnCh
	defer server.Close()

	frame, err := Encode(TagHeartbeat, Heartbeat{WorkerID: "w1", OutstandingCount: 2})
	require.NoError(t, err)
	require.NoError(t, client.Send(frame))

	got, err := server.Recv()
	require.NoError(t, err)
	assert.Equal(t, TagHeartbeat, got.Tag)

	var hb Heartbeat
	require.NoError(t, Decode(got, &hb))
	assert.Equal(t, "w1", hb.WorkerID)
	assert.Equal(t, 2, hb.OutstandingCount)
}

func TestDialFailsOnMissingSocket(t *testing.T) {
	_, err := Dial(filepath.Join(t.TempDir(), "does-not-exist.sock"))
	assert.Error(t, err)
}
