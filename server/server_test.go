package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kiebor81/mudis/cache"
)

func newTestServer(t *testing.T) (net.Conn, func()) {
	t.Helper()

	cfg := cache.DefaultConfig()
	cfg.ShardCount = 2
	c, err := cache.New(cfg)
	require.NoError(t, err)

	sockPath := filepath.Join(t.TempDir(), "mudis-test.sock")
	srv := New(c, Config{Network: "unix", Address: sockPath})

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	go func() {
		close(ready)
		_ = srv.ListenAndServe(ctx)
	}()
	<-ready

	var conn net.Conn
	require.Eventually(t, func() bool {
		conn, err = net.Dial("unix", sockPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cleanup := func() {
		conn.Close()
		cancel()
		_ = srv.Close()
		_ = c.Close()
	}
	return conn, cleanup
}

func sendLine(t *testing.T, conn net.Conn, req Request) Response {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	data = append(data, '\n')
	_, err = conn.Write(data)
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := reader.ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	return resp
}

func TestServer_WriteReadExists(t *testing.T) {
	conn, cleanup := newTestServer(t)
	defer cleanup()

	resp := sendLine(t, conn, Request{Cmd: CmdWrite, Key: "k", Value: "v"})
	require.True(t, resp.OK)

	resp = sendLine(t, conn, Request{Cmd: CmdRead, Key: "k"})
	require.True(t, resp.OK)
	require.Equal(t, "v", resp.Value)

	resp = sendLine(t, conn, Request{Cmd: CmdExists, Key: "k"})
	require.True(t, resp.OK)
	require.Equal(t, true, resp.Value)
}

func TestServer_FetchUsesFallbackOnMiss(t *testing.T) {
	conn, cleanup := newTestServer(t)
	defer cleanup()

	resp := sendLine(t, conn, Request{Cmd: CmdFetch, Key: "missing", Fallback: "computed"})
	require.True(t, resp.OK)
	require.Equal(t, "computed", resp.Value)

	resp = sendLine(t, conn, Request{Cmd: CmdRead, Key: "missing"})
	require.True(t, resp.OK)
	require.Equal(t, "computed", resp.Value)
}

func TestServer_FetchWithoutFallbackErrors(t *testing.T) {
	conn, cleanup := newTestServer(t)
	defer cleanup()

	resp := sendLine(t, conn, Request{Cmd: CmdFetch, Key: "nope"})
	require.False(t, resp.OK)
	require.NotEmpty(t, resp.Error)
}

func TestServer_MetricsCommand(t *testing.T) {
	conn, cleanup := newTestServer(t)
	defer cleanup()

	sendLine(t, conn, Request{Cmd: CmdWrite, Key: "k", Value: 1})
	sendLine(t, conn, Request{Cmd: CmdRead, Key: "k"})

	resp := sendLine(t, conn, Request{Cmd: CmdMetrics})
	require.True(t, resp.OK)
	require.NotNil(t, resp.Value)
}

func TestServer_UnknownCommandClosesConnection(t *testing.T) {
	conn, cleanup := newTestServer(t)
	defer cleanup()

	resp := sendLine(t, conn, Request{Cmd: "bogus"})
	require.False(t, resp.OK)

	_, err := conn.Write([]byte(`{"cmd":"read","key":"k"}` + "\n"))
	if err == nil {
		buf := make([]byte, 1)
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(500*time.Millisecond)))
		_, err = conn.Read(buf)
	}
	require.Error(t, err)
}

func TestServer_MalformedJSONClosesConnection(t *testing.T) {
	conn, cleanup := newTestServer(t)
	defer cleanup()

	_, err := conn.Write([]byte("not json at all\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := reader.ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	require.False(t, resp.OK)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(500*time.Millisecond)))
	buf := make([]byte, 1)
	_, err = reader.Read(buf)
	require.Error(t, err)
}
