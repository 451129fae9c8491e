package ws_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/basedhq/backend/internal/agent"
	"github.com/basedhq/backend/internal/config"
	"github.com/basedhq/backend/internal/llm"
	"github.com/basedhq/backend/internal/session"
	"github.com/basedhq/backend/internal/store"
	"github.com/basedhq/backend/internal/validate"
	"github.com/basedhq/backend/internal/ws"
)

// queueGenerator pops canned responses in order. Safe for concurrent use:
// mutating handlers run on their own goroutines.
type queueGenerator struct {
	mu        sync.Mutex
	responses []string
}

func (g *queueGenerator) Generate(ctx context.Context, system string, turns []llm.Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.responses) == 0 {
		return "", errors.New("queueGenerator: no response scripted")
	}
	next := g.responses[0]
	g.responses = g.responses[1:]
	return next, nil
}

// blockingGenerator parks the first call until released, then behaves like
// queueGenerator.
type blockingGenerator struct {
	queueGenerator
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *blockingGenerator) Generate(ctx context.Context, system string, turns []llm.Message) (string, error) {
	g.once.Do(func() {
		close(g.started)
		<-g.release
	})
	return g.queueGenerator.Generate(ctx, system, turns)
}

type passValidator struct{}

func (passValidator) Validate(ctx context.Context, code string) (*validate.Result, error) {
	return &validate.Result{Status: validate.StatusSuccess}, nil
}

func newTestServer(t *testing.T, gen llm.Generator) string {
	t.Helper()
	cfg := &config.Config{
		PingInterval:   30 * time.Second,
		WriteTimeout:   5 * time.Second,
		ReadTimeout:    60 * time.Second,
		MaxMessageSize: 1 << 20,
	}
	logger := zap.NewNop()
	sessions := session.NewManager(store.NopStore{}, logger)
	ag := agent.New(gen, passValidator{}, logger)
	srv := ws.NewServer(cfg, sessions, ag, logger)

	e := echo.New()
	e.GET("/ws", srv.HandleWebSocket)
	e.GET("/health", srv.HandleHealth)
	e.GET("/stats", srv.HandleStats)

	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func sendJSON(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	if err := c.WriteJSON(v); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func recvJSON(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(5 * time.Second))
	var m map[string]any
	if err := c.ReadJSON(&m); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return m
}

func containsFile(files any, name string) bool {
	list, ok := files.([]any)
	if !ok {
		return false
	}
	for _, f := range list {
		if f == name {
			return true
		}
	}
	return false
}

func TestInitialState(t *testing.T) {
	url := newTestServer(t, &queueGenerator{})
	c := dial(t, url)

	msg := recvJSON(t, c)
	if msg["action"] != "initial_state" || msg["status"] != "success" {
		t.Fatalf("unexpected initial state: %v", msg)
	}
	files, ok := msg["files"].([]any)
	if !ok || len(files) != 0 {
		t.Fatalf("expected empty files list, got %v", msg["files"])
	}
	active, ok := msg["activeFile"]
	if !ok || active != nil {
		t.Fatalf("expected activeFile null, got %v (present: %v)", active, ok)
	}
}

func TestUploadListRead(t *testing.T) {
	url := newTestServer(t, &queueGenerator{})
	c := dial(t, url)
	recvJSON(t, c) // initial_state

	sendJSON(t, c, map[string]any{"action": "upload_file", "filename": "test.based", "content": "uploaded content"})
	msg := recvJSON(t, c)
	if msg["status"] != "success" || msg["action"] != "file_uploaded" || msg["filename"] != "test.based" {
		t.Fatalf("unexpected upload response: %v", msg)
	}
	if !containsFile(msg["files"], "test.based") {
		t.Fatalf("file list missing upload: %v", msg["files"])
	}

	sendJSON(t, c, map[string]any{"action": "list_files"})
	msg = recvJSON(t, c)
	if msg["action"] != "file_list" || !containsFile(msg["files"], "test.based") {
		t.Fatalf("unexpected list response: %v", msg)
	}

	sendJSON(t, c, map[string]any{"action": "read_file", "filename": "test.based"})
	msg = recvJSON(t, c)
	if msg["action"] != "file_content" || msg["content"] != "uploaded content" {
		t.Fatalf("unexpected read response: %v", msg)
	}
}

func TestReadNonexistentFile(t *testing.T) {
	url := newTestServer(t, &queueGenerator{})
	c := dial(t, url)
	recvJSON(t, c)

	sendJSON(t, c, map[string]any{"action": "read_file", "filename": "nonexistent.based"})
	msg := recvJSON(t, c)
	if msg["status"] != "error" || msg["error"] != "File not found" {
		t.Fatalf("unexpected response: %v", msg)
	}
}

func TestApplyDiffSuccess(t *testing.T) {
	url := newTestServer(t, &queueGenerator{})
	c := dial(t, url)
	recvJSON(t, c)

	sendJSON(t, c, map[string]any{"action": "upload_file", "filename": "apply.based", "content": "line1\nline2\nline3"})
	recvJSON(t, c)

	sendJSON(t, c, map[string]any{
		"action":   "apply_diff",
		"filename": "apply.based",
		"diff":     "@@ -1,3 +1,3 @@\n line1\n-line2\n+line two\n line3",
	})
	msg := recvJSON(t, c)
	if msg["status"] != "success" || msg["action"] != "diff_applied" {
		t.Fatalf("unexpected response: %v", msg)
	}
	if msg["new_code"] != "line1\nline two\nline3" {
		t.Fatalf("unexpected new_code: %q", msg["new_code"])
	}

	// The change must persist in the workspace.
	sendJSON(t, c, map[string]any{"action": "read_file", "filename": "apply.based"})
	msg = recvJSON(t, c)
	if msg["content"] != "line1\nline two\nline3" {
		t.Fatalf("change not persisted: %q", msg["content"])
	}
}

func TestApplyDiffFileNotFound(t *testing.T) {
	url := newTestServer(t, &queueGenerator{})
	c := dial(t, url)
	recvJSON(t, c)

	sendJSON(t, c, map[string]any{"action": "apply_diff", "filename": "nonexistent.based", "diff": "@@ -1 +1 @@\n+a"})
	msg := recvJSON(t, c)
	if msg["status"] != "error" || msg["action"] != "apply_diff_error" {
		t.Fatalf("unexpected response: %v", msg)
	}
	if msg["error"] != "File not found or invalid for diff" {
		t.Fatalf("unexpected error: %q", msg["error"])
	}
}

func TestApplyDiffPatchError(t *testing.T) {
	url := newTestServer(t, &queueGenerator{})
	c := dial(t, url)
	recvJSON(t, c)

	sendJSON(t, c, map[string]any{"action": "upload_file", "filename": "bad.based", "content": "line1"})
	recvJSON(t, c)

	sendJSON(t, c, map[string]any{
		"action":   "apply_diff",
		"filename": "bad.based",
		"diff":     "@@ -1,1 +1,1 @@\n-completely different\n+line one",
	})
	msg := recvJSON(t, c)
	if msg["status"] != "error" || msg["action"] != "apply_diff_error" {
		t.Fatalf("unexpected response: %v", msg)
	}
	if !strings.HasPrefix(msg["error"].(string), "Patch failed: ") {
		t.Fatalf("unexpected error: %q", msg["error"])
	}
}

func TestPromptCreateFile(t *testing.T) {
	gen := &queueGenerator{responses: []string{
		`{"intent": "CREATE_FILE", "description": "test agent"}`,
		"test-agent.based",
		"```based\nsay(\"hello agent\")\n```",
	}}
	url := newTestServer(t, gen)
	c := dial(t, url)
	recvJSON(t, c)

	sendJSON(t, c, map[string]any{"action": "prompt", "prompt": "Create a test agent"})
	msg := recvJSON(t, c)
	if msg["status"] != "success" || msg["action"] != "file_created" {
		t.Fatalf("unexpected response: %v", msg)
	}
	if msg["filename"] != "test-agent.based" || msg["content"] != `say("hello agent")` {
		t.Fatalf("unexpected file: %v", msg)
	}
	if !containsFile(msg["files"], "test-agent.based") {
		t.Fatalf("file list missing new file: %v", msg["files"])
	}
}

func TestPromptEditFile(t *testing.T) {
	gen := &queueGenerator{responses: []string{
		`{"intent": "EDIT_FILE"}`,
		"@@ -1,2 +1,2 @@\n line1\n-line2\n+line two",
	}}
	url := newTestServer(t, gen)
	c := dial(t, url)
	recvJSON(t, c)

	sendJSON(t, c, map[string]any{"action": "upload_file", "filename": "edit-me.based", "content": "line1\nline2"})
	recvJSON(t, c)

	sendJSON(t, c, map[string]any{"action": "prompt", "prompt": "Add line two", "activeFile": "edit-me.based"})
	msg := recvJSON(t, c)
	if msg["status"] != "success" || msg["action"] != "diff_generated" {
		t.Fatalf("unexpected response: %v", msg)
	}
	if msg["filename"] != "edit-me.based" || msg["new_code"] != "line1\nline two" || msg["old_code"] != "line1\nline2" {
		t.Fatalf("unexpected diff result: %v", msg)
	}

	// The edited text must persist in the workspace.
	sendJSON(t, c, map[string]any{"action": "read_file", "filename": "edit-me.based"})
	msg = recvJSON(t, c)
	if msg["content"] != "line1\nline two" {
		t.Fatalf("edit not persisted: %q", msg["content"])
	}
}

func TestPromptEditNoActiveFile(t *testing.T) {
	gen := &queueGenerator{responses: []string{`{"intent": "EDIT_FILE"}`}}
	url := newTestServer(t, gen)
	c := dial(t, url)
	recvJSON(t, c)

	sendJSON(t, c, map[string]any{"action": "upload_file", "filename": "existing.based", "content": "some code"})
	recvJSON(t, c)

	sendJSON(t, c, map[string]any{"action": "prompt", "prompt": "Edit the code"})
	msg := recvJSON(t, c)
	if msg["status"] != "error" || msg["action"] != "edit_error" {
		t.Fatalf("unexpected response: %v", msg)
	}
	if msg["error"] != "Please select a file to edit. Active file 'None' not found or invalid." {
		t.Fatalf("unexpected error: %q", msg["error"])
	}
}

func TestPromptEditInvalidActiveFile(t *testing.T) {
	gen := &queueGenerator{responses: []string{`{"intent": "EDIT_FILE"}`}}
	url := newTestServer(t, gen)
	c := dial(t, url)
	recvJSON(t, c)

	sendJSON(t, c, map[string]any{"action": "upload_file", "filename": "real.based", "content": "real code"})
	recvJSON(t, c)

	sendJSON(t, c, map[string]any{"action": "prompt", "prompt": "Edit the code", "activeFile": "nonexistent.based"})
	msg := recvJSON(t, c)
	if msg["status"] != "error" || msg["action"] != "edit_error" {
		t.Fatalf("unexpected response: %v", msg)
	}
	if msg["error"] != "Please select a file to edit. Active file 'nonexistent.based' not found or invalid." {
		t.Fatalf("unexpected error: %q", msg["error"])
	}
}

func TestPromptEditImplicitCreateWhenNoFiles(t *testing.T) {
	gen := &queueGenerator{responses: []string{
		`{"intent": "EDIT_FILE"}`,
		"implicit-agent.based",
		`say("implicit creation")`,
	}}
	url := newTestServer(t, gen)
	c := dial(t, url)
	recvJSON(t, c)

	sendJSON(t, c, map[string]any{"action": "prompt", "prompt": "Just make it work"})
	msg := recvJSON(t, c)
	if msg["status"] != "success" || msg["action"] != "file_created" {
		t.Fatalf("expected implicit creation, got: %v", msg)
	}
	if msg["filename"] != "implicit-agent.based" || msg["content"] != `say("implicit creation")` {
		t.Fatalf("unexpected file: %v", msg)
	}
}

func TestBusyRejection(t *testing.T) {
	gen := &blockingGenerator{
		queueGenerator: queueGenerator{responses: []string{
			`{"intent": "CREATE_FILE", "description": "slow agent"}`,
			"slow-agent.based",
			`say("done")`,
		}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	url := newTestServer(t, gen)
	c := dial(t, url)
	recvJSON(t, c)

	sendJSON(t, c, map[string]any{"action": "prompt", "prompt": "Make a slow agent"})

	// Wait until the first prompt is inside its generation call, then issue a
	// second mutating action.
	select {
	case <-gen.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first prompt never reached the generator")
	}
	sendJSON(t, c, map[string]any{"action": "prompt", "prompt": "Another one"})

	msg := recvJSON(t, c)
	if msg["status"] != "error" || msg["action"] != "busy_error" {
		t.Fatalf("expected busy rejection, got: %v", msg)
	}
	if msg["error"] != "Another operation is already in progress" {
		t.Fatalf("unexpected error: %q", msg["error"])
	}

	// Release the first prompt; it must still complete.
	close(gen.release)
	msg = recvJSON(t, c)
	if msg["action"] != "file_created" || msg["filename"] != "slow-agent.based" {
		t.Fatalf("first prompt did not complete: %v", msg)
	}
}

func TestNonMutatingActionsNotGated(t *testing.T) {
	gen := &blockingGenerator{
		queueGenerator: queueGenerator{responses: []string{
			`{"intent": "CREATE_FILE", "description": "slow agent"}`,
			"slow-agent.based",
			`say("done")`,
		}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	url := newTestServer(t, gen)
	c := dial(t, url)
	recvJSON(t, c)

	sendJSON(t, c, map[string]any{"action": "prompt", "prompt": "Make a slow agent"})
	select {
	case <-gen.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first prompt never reached the generator")
	}

	// list_files runs while the mutating prompt is still in flight.
	sendJSON(t, c, map[string]any{"action": "list_files"})
	msg := recvJSON(t, c)
	if msg["action"] != "file_list" {
		t.Fatalf("expected file_list during in-flight prompt, got: %v", msg)
	}

	close(gen.release)
	msg = recvJSON(t, c)
	if msg["action"] != "file_created" {
		t.Fatalf("first prompt did not complete: %v", msg)
	}
}

func TestUnknownAction(t *testing.T) {
	url := newTestServer(t, &queueGenerator{})
	c := dial(t, url)
	recvJSON(t, c)

	sendJSON(t, c, map[string]any{"action": "self_destruct"})
	msg := recvJSON(t, c)
	if msg["status"] != "error" || msg["action"] != "error" {
		t.Fatalf("unexpected response: %v", msg)
	}
	if !strings.Contains(msg["error"].(string), "unknown action") {
		t.Fatalf("unexpected error: %q", msg["error"])
	}
}

func TestMalformedMessage(t *testing.T) {
	url := newTestServer(t, &queueGenerator{})
	c := dial(t, url)
	recvJSON(t, c)

	if err := c.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	msg := recvJSON(t, c)
	if msg["status"] != "error" || msg["error"] != "invalid JSON message" {
		t.Fatalf("unexpected response: %v", msg)
	}

	// The connection stays open.
	sendJSON(t, c, map[string]any{"action": "list_files"})
	msg = recvJSON(t, c)
	if msg["action"] != "file_list" {
		t.Fatalf("connection did not survive malformed message: %v", msg)
	}
}

func TestContextStringOrArray(t *testing.T) {
	gen := &queueGenerator{responses: []string{
		`{"intent": "CREATE_FILE", "description": "polite agent"}`,
		"polite-agent.based",
		`say("bonjour")`,
	}}
	url := newTestServer(t, gen)
	c := dial(t, url)
	recvJSON(t, c)

	// A bare string context must decode the same as a one-element array.
	sendJSON(t, c, map[string]any{"action": "prompt", "prompt": "Make it polite", "context": "speaks French"})
	msg := recvJSON(t, c)
	if msg["action"] != "file_created" {
		t.Fatalf("unexpected response: %v", msg)
	}
}
