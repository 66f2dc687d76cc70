package pipe

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func newPipeConns(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	return NewConn(a), NewConn(b)
}

func TestWriteReadFrameRoundTrip(t *testing.T) {
	client, server := newPipeConns(t)
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		done <- client.WriteFrame(Frame{Type: 7, Payload: []byte("hello")})
	}()

	f, err := server.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Equal(t, uint32(7), f.Type)
	require.Equal(t, []byte("hello"), f.Payload)
}

type greeting struct {
	Name string `msgpack:"name"`
}

func TestWriteReadMessageRoundTrip(t *testing.T) {
	client, server := newPipeConns(t)
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		done <- client.WriteMessage(3, greeting{Name: "bundle"})
	}()

	var g greeting
	msgType, err := server.ReadMessage(&g)
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Equal(t, uint32(3), msgType)
	require.Equal(t, "bundle", g.Name)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	client, server := newPipeConns(t)
	defer client.Close()
	defer server.Close()

	header := make([]byte, 8)
	header[4] = 0xff
	header[5] = 0xff
	header[6] = 0xff
	header[7] = 0xff

	go func() {
		_, _ = client.w.Write(header)
	}()

	_, err := server.ReadFrame()
	require.Error(t, err)
}
