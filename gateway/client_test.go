package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"kanban-sync/domain"
	"kanban-sync/internal/consts"
	"kanban-sync/store"
)

type recorded struct {
	method         string
	path           string
	body           string
	authorization  string
	idempotencyKey string
}

func newTestServer(t *testing.T, status int, response string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, recorded{
			method:         r.Method,
			path:           r.URL.Path,
			body:           string(body),
			authorization:  r.Header.Get("Authorization"),
			idempotencyKey: r.Header.Get(consts.HeaderIdempotencyKey),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestLoginStoresTokenAndAttachesIt(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"success":true,"data":{"token":"tok","user":{"_id":"u1","name":"Ada","email":"ada@example.com"}}}`)
	c := New(srv.URL + "/api")

	creds, err := c.Login(context.Background(), "ada@example.com", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if creds.Token != "tok" || creds.User.ID != "u1" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
	if c.Token() != "tok" {
		t.Fatalf("token not stored")
	}
	if _, err := c.ListBoards(context.Background()); err != nil {
		// The canned response is not a board list; only the header matters here.
		if KindOf(err) != KindUnexpected {
			t.Fatalf("unexpected error kind: %v", err)
		}
	}
	got := *calls
	if len(got) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(got))
	}
	if got[0].path != "/api/auth/login" || got[0].method != http.MethodPost {
		t.Fatalf("unexpected login call %+v", got[0])
	}
	if got[0].idempotencyKey == "" {
		t.Fatalf("POST should carry an idempotency key")
	}
	if got[1].authorization != "Bearer tok" {
		t.Fatalf("expected bearer on follow-up call, got %q", got[1].authorization)
	}
	if got[1].idempotencyKey != "" {
		t.Fatalf("GET should not carry an idempotency key")
	}
}

func TestCreateTaskSendsStatus(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusCreated, `{"success":true,"data":{"_id":"t1","title":"Draft roadmap","listId":"l1","status":"To Do"}}`)
	c := New(srv.URL, WithToken("tok"))

	task, err := c.CreateTask(context.Background(), "  Draft roadmap ", "l1", "To Do")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.ID != "t1" || task.ListID != "l1" {
		t.Fatalf("unexpected task %+v", task)
	}
	body := (*calls)[0].body
	for _, want := range []string{`"title":"Draft roadmap"`, `"listId":"l1"`, `"status":"To Do"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("body %s missing %s", body, want)
		}
	}
}

func TestMoveTaskSendsListIDOnly(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"success":true,"data":{"_id":"t1","listId":"l2"}}`)
	c := New(srv.URL)

	if _, err := c.MoveTask(context.Background(), "t1", "l2"); err != nil {
		t.Fatalf("move: %v", err)
	}
	call := (*calls)[0]
	if call.method != http.MethodPut || call.path != "/tasks/t1" {
		t.Fatalf("unexpected call %+v", call)
	}
	if call.body != `{"listId":"l2"}` {
		t.Fatalf("unexpected body %s", call.body)
	}
}

func TestDeleteTaskAcceptsEmptyBody(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusNoContent, ``)
	c := New(srv.URL)
	if err := c.DeleteTask(context.Background(), "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestValidationHappensBeforeNetwork(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"success":true}`)
	c := New(srv.URL)

	_, err := c.CreateTask(context.Background(), "   ", "l1", "To Do")
	if KindOf(err) != KindValidation || !errors.Is(err, domain.ErrEmptyTitle) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = c.CreateBoard(context.Background(), "", "desc")
	if !errors.Is(err, domain.ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if len(*calls) != 0 {
		t.Fatalf("validation failures must not reach the server")
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		response string
		wantKind Kind
		wantMsg  string
	}{
		{name: "badRequest", status: 400, response: `{"success":false}`, wantKind: KindBadRequest, wantMsg: "Please check your email and password and try again."},
		{name: "unauthorized", status: 401, response: `{"success":false}`, wantKind: KindUnauthorized, wantMsg: "Authentication failed. Please check your credentials."},
		{name: "conflict", status: 409, response: `{"success":false}`, wantKind: KindConflict, wantMsg: "An account with this email already exists."},
		{name: "server", status: 500, response: `oops`, wantKind: KindServer, wantMsg: "Server error. Please try again later."},
		{name: "serverMessage", status: 500, response: `{"success":false,"message":"db down"}`, wantKind: KindServer, wantMsg: "db down"},
		{name: "notFound", status: 404, response: `{"success":false}`, wantKind: KindNotFound},
		{name: "successFalse", status: 200, response: `{"success":false,"message":"nope"}`, wantKind: KindUnexpected, wantMsg: "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.status, tt.response)
			_, err := New(srv.URL).Login(context.Background(), "a@b.c", "pw")
			var gwErr *Error
			if !errors.As(err, &gwErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if gwErr.Kind != tt.wantKind {
				t.Fatalf("kind = %s, want %s", gwErr.Kind, tt.wantKind)
			}
			if tt.wantMsg != "" && gwErr.UserMessage() != tt.wantMsg {
				t.Fatalf("UserMessage() = %q, want %q", gwErr.UserMessage(), tt.wantMsg)
			}
		})
	}
}

func TestRejectionTextDependsOnOperation(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{name: "loginBadRequest", err: &Error{Kind: KindBadRequest, Status: 400, Op: "login"}, want: "Please check your email and password and try again."},
		{name: "taskBadRequest", err: &Error{Kind: KindBadRequest, Status: 400, Op: "create task"}, want: "The request was rejected. Please check the values and try again."},
		{name: "signupConflict", err: &Error{Kind: KindConflict, Status: 409, Op: "signup"}, want: "An account with this email already exists."},
		{name: "listConflict", err: &Error{Kind: KindConflict, Status: 409, Op: "create list"}, want: "The item was changed elsewhere. Refresh and try again."},
		{name: "serverMessageWins", err: &Error{Kind: KindBadRequest, Status: 400, Op: "create task", Message: "title too long"}, want: "title too long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.UserMessage(); got != tt.want {
				t.Fatalf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCreateTaskBadRequestHasNoAuthHint(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusBadRequest, `{"success":false}`)
	_, err := New(srv.URL).CreateTask(context.Background(), "Draft roadmap", "l1", "To Do")
	var gwErr *Error
	if !errors.As(err, &gwErr) || gwErr.Kind != KindBadRequest {
		t.Fatalf("expected bad request, got %v", err)
	}
	if strings.Contains(gwErr.UserMessage(), "email") {
		t.Fatalf("task rejection should not mention credentials: %q", gwErr.UserMessage())
	}
}

func TestNetworkFailureIsDistinct(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = New("http://" + addr).ListBoards(context.Background())
	if !IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}
	var gwErr *Error
	errors.As(err, &gwErr)
	if gwErr.Status != 0 {
		t.Fatalf("network failures carry no status, got %d", gwErr.Status)
	}
	if !strings.Contains(gwErr.UserMessage(), "Unable to connect") {
		t.Fatalf("unexpected message %q", gwErr.UserMessage())
	}
}

func TestTimeoutIsNetworkFailure(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	_, err := New(srv.URL, WithTimeout(50*time.Millisecond)).GetBoard(context.Background(), "b1")
	if !IsNetwork(err) {
		t.Fatalf("expected network error on timeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded in chain, got %v", err)
	}
}

func TestUpdateTaskIntoMergesResponse(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"success":true,"data":{"_id":"t1","title":"server title","description":"d","listId":"todo","status":"To Do"}}`)
	st := store.New()
	st.SetBoard(domain.Board{ID: "b1", Lists: []domain.List{{ID: "todo", Tasks: []domain.Task{{ID: "t1", Title: "old", ListID: "todo"}}}}})

	if _, err := New(srv.URL).UpdateTaskInto(context.Background(), st, "t1", domain.TaskPatch{Title: domain.String("mine")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := st.Task("t1")
	if got.Title != "server title" || got.Description != "d" {
		t.Fatalf("response not merged: %+v", got)
	}
}

func TestUpdateTaskIntoLeavesStoreOnFailure(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusInternalServerError, `{"success":false}`)
	st := store.New()
	st.SetBoard(domain.Board{ID: "b1", Lists: []domain.List{{ID: "todo", Tasks: []domain.Task{{ID: "t1", Title: "old", ListID: "todo"}}}}})
	v := st.Version()

	if _, err := New(srv.URL).UpdateTaskInto(context.Background(), st, "t1", domain.TaskPatch{Title: domain.String("mine")}); KindOf(err) != KindServer {
		t.Fatalf("expected server error, got %v", err)
	}
	if st.Version() != v {
		t.Fatalf("store must not change on failure")
	}
}

func TestCreateTaskIntoAddsAuthoritativeRecord(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusCreated, `{"success":true,"data":{"_id":"t9","title":"x","listId":"todo"}}`)
	st := store.New()
	st.SetBoard(domain.Board{ID: "b1", Lists: []domain.List{{ID: "todo"}}})

	if _, err := New(srv.URL).CreateTaskInto(context.Background(), st, "x", "todo", "To Do"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if tasks := st.ListTasks("todo"); len(tasks) != 1 || tasks[0].ID != "t9" {
		t.Fatalf("expected t9 in todo, got %+v", tasks)
	}
}
