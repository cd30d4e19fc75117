package commands

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"kanban-sync/config"
	"kanban-sync/devapi"
	"kanban-sync/gateway"
	"kanban-sync/internal/testutil"
	"kanban-sync/relay"
)

// setup starts the dev API and relay and points the CLI at them through the
// environment.
func setup(t *testing.T) string {
	t.Helper()
	logger, _ := test.NewNullLogger()
	e := echo.New()
	devapi.New(testutil.Secret, logger).Register(e, "/api")
	relay.New(relay.NewTestAuth(testutil.Secret), relay.WithLogger(logger)).Register(e)
	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)

	for _, k := range []string{"KANBAN_TOKEN", "REALTIME_URL", "REQUEST_TIMEOUT", "RECONNECT_MAX_BACKOFF", "DEBUG"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	profile := filepath.Join(t.TempDir(), "profile.yaml")
	t.Setenv(config.ProfileEnv, profile)
	t.Setenv("API_URL", ts.URL+"/api")
	return profile
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func savedClient(t *testing.T) *gateway.Client {
	t.Helper()
	cfg, err := config.LoadClient()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Token == "" {
		t.Fatal("token not saved to profile")
	}
	return gateway.New(cfg.APIURL, gateway.WithToken(cfg.Token))
}

func TestSignupThenBoardWorkflow(t *testing.T) {
	setup(t)
	out, err := run(t, "signup", "--name", "Ada", "--email", "ada@example.com", "--password", "pw")
	if err != nil || !strings.Contains(out, "Logged in as Ada <ada@example.com>") {
		t.Fatalf("signup: %q %v", out, err)
	}

	if out, err = run(t, "board", "create", "Launch"); err != nil || !strings.Contains(out, "Created board Launch") {
		t.Fatalf("board create: %q %v", out, err)
	}
	c := savedClient(t)
	boards, err := c.ListBoards(context.Background())
	if err != nil || len(boards) != 1 {
		t.Fatalf("boards: %+v %v", boards, err)
	}
	boardID := boards[0].ID

	if out, err = run(t, "boards"); err != nil || !strings.Contains(out, boardID+"  Launch") {
		t.Fatalf("boards: %q %v", out, err)
	}
	for _, name := range []string{"To Do", "Done"} {
		if out, err = run(t, "list", "add", boardID, name); err != nil || !strings.Contains(out, "Created list "+name) {
			t.Fatalf("list add: %q %v", out, err)
		}
	}
	board, err := c.GetBoard(context.Background(), boardID)
	if err != nil || len(board.Lists) != 2 {
		t.Fatalf("get board: %+v %v", board, err)
	}
	todo, done := board.Lists[0].ID, board.Lists[1].ID

	if out, err = run(t, "task", "add", boardID, todo, "Draft roadmap"); err != nil || !strings.Contains(out, "Created task Draft roadmap") {
		t.Fatalf("task add: %q %v", out, err)
	}
	board, _ = c.GetBoard(context.Background(), boardID)
	taskID := board.Lists[0].Tasks[0].ID

	if out, err = run(t, "task", "move", boardID, taskID, done); err != nil || !strings.Contains(out, "Moved task") {
		t.Fatalf("task move: %q %v", out, err)
	}
	if out, err = run(t, "task", "edit", boardID, taskID, "--status", "shipped"); err != nil {
		t.Fatalf("task edit: %q %v", out, err)
	}
	out, err = run(t, "board", "show", boardID)
	if err != nil {
		t.Fatalf("board show: %v", err)
	}
	if !strings.Contains(out, "Done [1]") || !strings.Contains(out, "Draft roadmap") || !strings.Contains(out, "(status: shipped)") {
		t.Fatalf("unexpected board output:\n%s", out)
	}

	if out, err = run(t, "task", "rm", boardID, taskID); err != nil || !strings.Contains(out, "Deleted task "+taskID) {
		t.Fatalf("task rm: %q %v", out, err)
	}
}

func TestCommandsRequireLogin(t *testing.T) {
	setup(t)
	_, err := run(t, "boards")
	if err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Fatalf("expected login error, got %v", err)
	}
}

func TestLoginFailureIsDescribed(t *testing.T) {
	setup(t)
	if _, err := run(t, "signup", "--name", "Ada", "--email", "ada@example.com", "--password", "pw"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	_, err := run(t, "login", "--email", "ada@example.com", "--password", "wrong")
	if got := Describe(err); got != "error: Authentication failed. Please check your credentials." {
		t.Fatalf("unexpected description %q", got)
	}
	if gateway.KindOf(err) != gateway.KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestWatchNamesUserAndRendersBoard(t *testing.T) {
	setup(t)
	if _, err := run(t, "signup", "--name", "Ada", "--email", "ada@example.com", "--password", "pw"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := run(t, "board", "create", "Launch"); err != nil {
		t.Fatalf("board create: %v", err)
	}
	c := savedClient(t)
	boards, err := c.ListBoards(context.Background())
	if err != nil || len(boards) != 1 || len(boards[0].Members) != 1 {
		t.Fatalf("boards: %+v %v", boards, err)
	}
	user := boards[0].Members[0].ID

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &syncBuffer{}
	cmd := NewRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"watch", boards[0].ID})
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for !strings.Contains(out.String(), "Launch") {
		if time.Now().After(deadline) {
			t.Fatalf("watch printed nothing useful:\n%s", out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch: %v", err)
	}
	if !strings.Contains(out.String(), "Watching board "+boards[0].ID+" as "+user) {
		t.Fatalf("watch did not name the user:\n%s", out.String())
	}
}
