package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
)

func TestDecodeEventTaskMoved(t *testing.T) {
	payload := `{"boardId":"b1","taskId":"t1","sourceListId":"l1","targetListId":"l2","task":{"listId":"l2"}}`
	ev, err := DecodeEvent(TaskMoved, []byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	moved, ok := ev.(TaskMovedEvent)
	if !ok {
		t.Fatalf("unexpected event type %T", ev)
	}
	if moved.TaskID != "t1" || moved.SourceListID != "l1" || moved.TargetListID != "l2" || moved.Board() != "b1" {
		t.Fatalf("unexpected event %+v", moved)
	}
	if moved.Task.ListID == nil || *moved.Task.ListID != "l2" {
		t.Fatalf("expected task.listId l2, got %+v", moved.Task)
	}
}

func TestDecodeEventTaskUpdatedPartial(t *testing.T) {
	payload := `{"boardId":"b1","task":{"_id":"t1","title":"renamed"}}`
	ev, err := DecodeEvent(TaskUpdated, []byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	upd := ev.(TaskUpdatedEvent)
	if upd.Task.ID != "t1" || upd.Task.Title == nil || *upd.Task.Title != "renamed" {
		t.Fatalf("unexpected change %+v", upd.Task)
	}
	if upd.Task.Description != nil || upd.Task.ListID != nil {
		t.Fatalf("absent fields must stay nil: %+v", upd.Task)
	}
}

func TestDecodeEventRejectsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		payload string
		want    error
	}{
		{name: "unknown", event: "board-exploded", payload: `{}`, want: ErrUnknownEvent},
		{name: "malformed", event: TaskCreated, payload: `{"boardId":`, want: ErrInvalidPayload},
		{name: "missingBoard", event: TaskDeleted, payload: `{"taskId":"t1"}`, want: ErrInvalidPayload},
		{name: "missingTaskID", event: TaskCreated, payload: `{"boardId":"b1","task":{"listId":"l1"}}`, want: ErrInvalidPayload},
		{name: "missingListID", event: TaskCreated, payload: `{"boardId":"b1","task":{"_id":"t1"}}`, want: ErrInvalidPayload},
		{name: "moveDisagrees", event: TaskMoved, payload: `{"boardId":"b1","taskId":"t1","sourceListId":"l1","targetListId":"l2","task":{"listId":"l3"}}`, want: ErrInvalidPayload},
		{name: "listOtherBoard", event: ListCreated, payload: `{"boardId":"b1","list":{"_id":"l1","boardId":"b2"}}`, want: ErrInvalidPayload},
		{name: "wrongType", event: TaskDeleted, payload: `{"boardId":"b1","taskId":42}`, want: ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvent(tt.event, []byte(tt.payload))
			if !errors.Is(err, tt.want) {
				t.Fatalf("DecodeEvent(%s) error = %v, want %v", tt.event, err, tt.want)
			}
		})
	}
}

func TestEncodeEventRoundTripsThroughFrame(t *testing.T) {
	ev := TaskDeletedEvent{BoardID: "b1", TaskID: "t1", ListID: "l1"}
	frame, err := EncodeEvent(ev, "f1")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw, err := sonic.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	if !strings.Contains(string(raw), `"event":"task-deleted"`) || !strings.Contains(string(raw), `"id":"f1"`) {
		t.Fatalf("unexpected frame %s", raw)
	}
	var back Frame
	if err := sonic.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	decoded, err := DecodeEvent(back.Event, back.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != ev {
		t.Fatalf("got %+v want %+v", decoded, ev)
	}
}

func TestBoardFrame(t *testing.T) {
	frame, err := BoardFrame(JoinBoard, "b1")
	if err != nil {
		t.Fatalf("board frame: %v", err)
	}
	id, err := DecodeBoardID(frame.Data)
	if err != nil || id != "b1" {
		t.Fatalf("DecodeBoardID = %q, %v", id, err)
	}
	if _, err := DecodeBoardID([]byte(`""`)); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected invalid payload for empty id, got %v", err)
	}
}

func TestValidateTitle(t *testing.T) {
	if _, err := ValidateTitle("   "); !errors.Is(err, ErrEmptyTitle) {
		t.Fatalf("expected ErrEmptyTitle, got %v", err)
	}
	got, err := ValidateTitle("  Draft roadmap ")
	if err != nil || got != "Draft roadmap" {
		t.Fatalf("ValidateTitle = %q, %v", got, err)
	}
}
