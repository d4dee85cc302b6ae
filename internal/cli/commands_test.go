package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd("test")
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd("test")
	for _, name := range []string{"history", "send", "tail"} {
		found, _, err := root.Find([]string{name})
		require.NoError(t, err)
		require.Equal(t, name, found.Name())
	}
}

func TestSendCommandPostsMessage(t *testing.T) {
	var mu sync.Mutex
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()
	t.Setenv("SEAM_API_BASE_URL", srv.URL)

	out, err := execute(t, "send", "--scope", "conv-1", "--channel", "internal", "hello there")
	require.NoError(t, err)
	require.Contains(t, out, "sent")

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "/scopes/conv-1/messages", gotPath)
	require.Equal(t, "internal", gotBody["channel"])
	require.Equal(t, "hello there", gotBody["content"])
}

func TestSendCommandUploadsAttachment(t *testing.T) {
	var mu sync.Mutex
	var sendBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.URL.Path {
		case "/attachments":
			require.Equal(t, "notes.txt", r.URL.Query().Get("name"))
			_ = json.NewEncoder(w).Encode(map[string]any{"ref": "att-1", "name": "notes.txt"})
		case "/scopes/conv-1/messages":
			_ = json.NewDecoder(r.Body).Decode(&sendBody)
			w.WriteHeader(http.StatusAccepted)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	t.Setenv("SEAM_API_BASE_URL", srv.URL)

	dir := t.TempDir()
	path := dir + "/notes.txt"
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	_, err := execute(t, "send", "--scope", "conv-1", "--attach", path, "see attached")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "file", sendBody["kind"])
	att, ok := sendBody["attachment"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "att-1", att["ref"])
}

func TestSendCommandRequiresBodyOrAttachment(t *testing.T) {
	_, err := execute(t, "send", "--scope", "conv-1")
	require.ErrorContains(t, err, "message body or --attach")
}

func TestSendCommandRejectsBadChannel(t *testing.T) {
	_, err := execute(t, "send", "--scope", "conv-1", "--channel", "carrier-pigeon", "hi")
	require.ErrorContains(t, err, "invalid channel")
}

func TestHistoryCommandRendersTimeline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/scopes/conv-1/messages", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{
				{
					"id": "2", "channel": "internal", "sort_key": "2026-03-14T12:05:00Z",
					"author_id": "agent-7", "content": "internal note",
				},
				{
					"id": "1", "channel": "client", "sort_key": "2026-03-14T12:00:00Z",
					"author_id": "customer", "content": "hello",
				},
			},
			"has_more": false,
		})
	}))
	defer srv.Close()
	t.Setenv("SEAM_API_BASE_URL", srv.URL)
	t.Setenv("SEAM_TIMELINE_TIMEZONE", "UTC")

	out, err := execute(t, "history", "--scope", "conv-1")
	require.NoError(t, err)

	require.Contains(t, out, "Sat 14 Mar 2026")
	require.Contains(t, out, "hello")
	require.Contains(t, out, "(internal) agent-7 internal note")
	require.Less(t, bytes.Index([]byte(out), []byte("hello")),
		bytes.Index([]byte(out), []byte("internal note")), "oldest first within the day")
	require.NotContains(t, out, "older messages available")
}

func TestHistoryCommandSurfacesAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	t.Setenv("SEAM_API_BASE_URL", srv.URL)

	_, err := execute(t, "history", "--scope", "conv-1")
	require.ErrorContains(t, err, "fetch history")
}
