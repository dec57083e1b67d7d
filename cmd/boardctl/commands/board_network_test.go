package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_networkPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/status", r.URL.Path)
		fmt.Fprint(w, `{"state":"idle"}`)
	}))
	defer server.Close()

	board := newBoardNetwork(server.URL)
	require.NoError(t, board.Ping(context.Background()))
}

func Test_networkPingRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := newBoardNetwork(server.URL).Ping(context.Background())
	require.Error(t, err)
	kind, ok := ErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindConnection, kind)
}

func Test_networkPingUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	err := newBoardNetwork(server.URL).Ping(context.Background())
	require.Error(t, err)
	kind, ok := ErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindConnection, kind)
}

func Test_networkUpload(t *testing.T) {
	image := bytes.Repeat([]byte{0x5A}, 4096)

	var received []byte
	var filename string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/upload", r.URL.Path)

		file, header, err := r.FormFile("iso")
		require.NoError(t, err)
		defer file.Close()
		filename = header.Filename
		received, err = io.ReadAll(file)
		require.NoError(t, err)
	}))
	defer server.Close()

	board := newBoardNetwork(server.URL)
	err := board.UploadImage(context.Background(), bytes.NewReader(image), int64(len(image)))
	require.NoError(t, err)
	assert.Equal(t, "test.iso", filename)
	assert.Equal(t, image, received)
}

func Test_networkUploadRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "storage full", http.StatusInsufficientStorage)
	}))
	defer server.Close()

	board := newBoardNetwork(server.URL)
	err := board.UploadImage(context.Background(), bytes.NewReader([]byte{1, 2, 3}), 3)
	require.Error(t, err)
	kind, ok := ErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindTransfer, kind)
}

func Test_networkStartRun(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if r.URL.Path != "/run" || r.Method != http.MethodPost {
			http.Error(w, "bad request", http.StatusBadRequest)
		}
	}))
	defer server.Close()

	require.NoError(t, newBoardNetwork(server.URL).StartRun(context.Background()))
	assert.Equal(t, "/run", path)
}

func Test_networkStartRunRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusConflict)
	}))
	defer server.Close()

	err := newBoardNetwork(server.URL).StartRun(context.Background())
	require.Error(t, err)
	kind, ok := ErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindProtocol, kind)
}

func Test_networkQueryStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"state":"flashing","progress":73,"message":"sector 1024"}`)
	}))
	defer server.Close()

	status, err := newBoardNetwork(server.URL).QueryStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BoardStatus{State: "flashing", Progress: 73, Message: "sector 1024"}, status)
}

func Test_networkQueryStatusWithoutProgress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"state":"booting"}`)
	}))
	defer server.Close()

	status, err := newBoardNetwork(server.URL).QueryStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "booting", status.State)
	assert.Equal(t, -1, status.Progress)
}

func Test_networkQueryStatusMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json at all")
	}))
	defer server.Close()

	_, err := newBoardNetwork(server.URL).QueryStatus(context.Background())
	require.Error(t, err)
	kind, ok := ErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindProtocol, kind)
}

func Test_networkFetchLog(t *testing.T) {
	log := []byte("BOOT OK\r\nall tests passed\r\n")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/uart-log", r.URL.Path)
		w.Write(log)
	}))
	defer server.Close()

	fetched, err := newBoardNetwork(server.URL).FetchLog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, log, fetched)
}

func Test_networkReset(t *testing.T) {
	var path, method string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		method = r.Method
	}))
	defer server.Close()

	require.NoError(t, newBoardNetwork(server.URL).Reset(context.Background()))
	assert.Equal(t, "/reset", path)
	assert.Equal(t, http.MethodPost, method)
}

func Test_networkTrimsTrailingSlash(t *testing.T) {
	board := newBoardNetwork("http://192.168.1.50/")
	assert.Equal(t, "http://192.168.1.50", board.endpoint)
}
