package sessions

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/axon/pkg/models"
)

func newTestStore(t *testing.T) *TranscriptStore {
	t.Helper()
	store, err := NewTranscriptStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewTranscriptStore: %v", err)
	}
	return store
}

func TestTranscriptStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	if err := store.Create("cli_main", models.ChannelCLI); err != nil {
		t.Fatalf("Create: %v", err)
	}
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, Content: "hi there"},
		{Role: models.RoleTool, Content: "42", ToolCallID: "call_1", Name: "echo"},
	}
	for i := range msgs {
		if err := store.Append("cli_main", &msgs[i]); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	got, err := store.LoadTail("cli_main", 0)
	if err != nil {
		t.Fatalf("LoadTail: %v", err)
	}
	if len(got) != len(msgs) {
		t.Fatalf("LoadTail returned %d messages, want %d", len(got), len(msgs))
	}
	for i := range msgs {
		if got[i].Role != msgs[i].Role || got[i].Content != msgs[i].Content {
			t.Errorf("message %d = %+v, want %+v", i, got[i], msgs[i])
		}
	}
	if got[2].ToolCallID != "call_1" {
		t.Errorf("tool_call_id = %q, want call_1", got[2].ToolCallID)
	}
}

func TestTranscriptStore_CreateIdempotent(t *testing.T) {
	store := newTestStore(t)
	if err := store.Create("s1", models.ChannelCLI); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if err := store.Append("s1", &models.Message{Role: models.RoleUser, Content: "x"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Create("s1", models.ChannelCLI); err != nil {
		t.Fatalf("second Create: %v", err)
	}
	got, err := store.LoadTail("s1", 0)
	if err != nil {
		t.Fatalf("LoadTail: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("messages after re-create = %d, want 1", len(got))
	}
}

func TestTranscriptStore_AppendWithoutCreate(t *testing.T) {
	store := newTestStore(t)
	err := store.Append("ghost", &models.Message{Role: models.RoleUser, Content: "x"})
	if err == nil {
		t.Fatal("Append to uncreated session succeeded")
	}
}

func TestTranscriptStore_LoadTailMissing(t *testing.T) {
	store := newTestStore(t)
	got, err := store.LoadTail("nothing", 10)
	if err != nil {
		t.Fatalf("LoadTail: %v", err)
	}
	if got != nil {
		t.Errorf("LoadTail = %v, want nil", got)
	}
}

func TestTranscriptStore_LoadTailLimit(t *testing.T) {
	store := newTestStore(t)
	if err := store.Create("s1", models.ChannelCLI); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, content := range []string{"a", "b", "c", "d"} {
		if err := store.Append("s1", &models.Message{Role: models.RoleUser, Content: content}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, err := store.LoadTail("s1", 2)
	if err != nil {
		t.Fatalf("LoadTail: %v", err)
	}
	if len(got) != 2 || got[0].Content != "c" || got[1].Content != "d" {
		t.Errorf("LoadTail(2) = %+v, want last two messages", got)
	}
}

func TestTranscriptStore_SkipsTornTrailingRecord(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTranscriptStore(dir, nil)
	if err != nil {
		t.Fatalf("NewTranscriptStore: %v", err)
	}
	if err := store.Create("s1", models.ChannelCLI); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Append("s1", &models.Message{Role: models.RoleUser, Content: "complete"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Simulate a crash mid-write: a record with no trailing newline.
	path := filepath.Join(dir, "s1.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString(`{"role":"assistant","content":"torn`); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	got, err := store.LoadTail("s1", 0)
	if err != nil {
		t.Fatalf("LoadTail: %v", err)
	}
	if len(got) != 1 || got[0].Content != "complete" {
		t.Errorf("LoadTail = %+v, want only the complete record", got)
	}
}

func TestTranscriptStore_SkipsInvalidRecords(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTranscriptStore(dir, nil)
	if err != nil {
		t.Fatalf("NewTranscriptStore: %v", err)
	}
	if err := store.Create("s1", models.ChannelCLI); err != nil {
		t.Fatalf("Create: %v", err)
	}

	path := filepath.Join(dir, "s1.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f.WriteString("not json at all\n")
	f.WriteString(`{"role":"user","content":"good"}` + "\n")
	f.Close()

	got, err := store.LoadTail("s1", 0)
	if err != nil {
		t.Fatalf("LoadTail: %v", err)
	}
	if len(got) != 1 || got[0].Content != "good" {
		t.Errorf("LoadTail = %+v, want the one valid record", got)
	}
}

func TestTranscriptStore_InvalidSessionID(t *testing.T) {
	store := newTestStore(t)
	for _, id := range []string{"", "../escape", "has space", "semi;colon"} {
		if err := store.Create(id, models.ChannelCLI); err == nil {
			t.Errorf("Create(%q) succeeded", id)
		}
		if !strings.Contains(strings.ToLower(id), " ") {
			if _, err := store.LoadTail(id, 0); err == nil {
				t.Errorf("LoadTail(%q) succeeded", id)
			}
		}
	}
}

func TestTranscriptStore_DeleteAndList(t *testing.T) {
	store := newTestStore(t)
	for _, id := range []string{"a", "b"} {
		if err := store.Create(id, models.ChannelCLI); err != nil {
			t.Fatalf("Create(%q): %v", id, err)
		}
	}

	ids, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("List = %v, want 2 sessions", ids)
	}

	if err := store.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if store.Exists("a") {
		t.Error("session a still exists after delete")
	}
	// Deleting again is fine.
	if err := store.Delete("a"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}
