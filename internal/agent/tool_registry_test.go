package agent

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/axon/pkg/models"
)

func allSessionTypes() []models.SessionType {
	return []models.SessionType{models.SessionMain, models.SessionDM, models.SessionGroup, models.SessionTopic}
}

func TestToolRegistry_RegisterAndGet(t *testing.T) {
	r := NewToolRegistry(nil)
	r.Register(&testTool{name: "alpha"})
	r.Register(&testTool{name: "beta"})

	if _, ok := r.Get("alpha"); !ok {
		t.Error("Get(alpha) not found")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) found something")
	}
	if got := r.List(); len(got) != 2 || got[0] != "alpha" || got[1] != "beta" {
		t.Errorf("List = %v", got)
	}

	r.Unregister("alpha")
	if _, ok := r.Get("alpha"); ok {
		t.Error("alpha still present after Unregister")
	}
}

func TestToolRegistry_RegisterReplaces(t *testing.T) {
	r := NewToolRegistry(nil)
	r.Register(&testTool{name: "dup", schema: `{"type":"object"}`})
	replacement := &testTool{name: "dup", schema: `{"type":"object","required":["x"]}`}
	r.Register(replacement)

	got, _ := r.Get("dup")
	if got != Tool(replacement) {
		t.Error("Register did not replace the existing tool")
	}
	// The replacement's schema is the one that validates.
	if err := r.ValidateInput("dup", json.RawMessage(`{}`)); err == nil {
		t.Error("ValidateInput accepted input failing the replacement schema")
	}
}

func TestToolRegistry_SchemasFor(t *testing.T) {
	r := NewToolRegistry(nil)
	r.Register(&testTool{name: "everywhere", policy: &ToolPolicy{AllowedSessionTypes: allSessionTypes()}})
	r.Register(&testTool{name: "main_only"}) // nil policy, default applies

	main := r.SchemasFor(models.SessionMain)
	if len(main) != 2 || main[0].Name != "everywhere" || main[1].Name != "main_only" {
		t.Errorf("SchemasFor(MAIN) = %v", names(main))
	}

	dm := r.SchemasFor(models.SessionDM)
	if len(dm) != 1 || dm[0].Name != "everywhere" {
		t.Errorf("SchemasFor(DM) = %v", names(dm))
	}
}

func names(schemas []ToolSchema) []string {
	out := make([]string, len(schemas))
	for i, s := range schemas {
		out[i] = s.Name
	}
	return out
}

func TestToolRegistry_CheckPolicy(t *testing.T) {
	r := NewToolRegistry(nil)
	r.Register(&testTool{name: "main_only"})

	if !r.CheckPolicy("main_only", models.SessionMain) {
		t.Error("CheckPolicy denied MAIN for a default-policy tool")
	}
	if r.CheckPolicy("main_only", models.SessionGroup) {
		t.Error("CheckPolicy allowed GROUP for a default-policy tool")
	}
	if r.CheckPolicy("unknown", models.SessionMain) {
		t.Error("CheckPolicy allowed an unregistered tool")
	}
}

func TestToolRegistry_ValidateInput(t *testing.T) {
	r := NewToolRegistry(nil)
	r.Register(&testTool{
		name:   "typed",
		schema: `{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`,
	})

	if err := r.ValidateInput("typed", json.RawMessage(`{"text":"hi"}`)); err != nil {
		t.Errorf("valid input rejected: %v", err)
	}
	if err := r.ValidateInput("typed", json.RawMessage(`{"text":3}`)); err == nil {
		t.Error("wrong type accepted")
	}
	if err := r.ValidateInput("typed", json.RawMessage(`{}`)); err == nil {
		t.Error("missing required field accepted")
	}
	if err := r.ValidateInput("typed", json.RawMessage(`{"text":`)); err == nil {
		t.Error("malformed JSON accepted")
	}
	// Empty params normalize to an empty object, which the schema rejects.
	if err := r.ValidateInput("typed", nil); err == nil {
		t.Error("empty params accepted for schema with required fields")
	}
}

func TestToolRegistry_ValidateInputNoValidator(t *testing.T) {
	r := NewToolRegistry(nil)
	r.Register(&testTool{name: "loose", schema: `this is not a schema`})

	// A broken schema disables validation rather than blocking the tool.
	if err := r.ValidateInput("loose", json.RawMessage(`{"anything":true}`)); err != nil {
		t.Errorf("ValidateInput with disabled validator = %v", err)
	}
	if err := r.ValidateInput("never_registered", json.RawMessage(`{}`)); err != nil {
		t.Errorf("ValidateInput for unknown tool = %v", err)
	}
}

func TestToolPolicy_ExecutionTimeout(t *testing.T) {
	p := &ToolPolicy{MaxExecutionTime: 5 * time.Second}
	if got := p.ExecutionTimeout(); got != 5*time.Second {
		t.Errorf("ExecutionTimeout = %v", got)
	}
	p = &ToolPolicy{}
	if got := p.ExecutionTimeout(); got != DefaultExecutionTimeout {
		t.Errorf("zero MaxExecutionTime gave %v, want default", got)
	}
}

func TestWithPolicyOverride(t *testing.T) {
	base := &testTool{name: "shell"} // default policy: MAIN only, no approval
	approve := true
	wrapped := WithPolicyOverride(base, PolicyOverride{
		AllowedSessionTypes: []models.SessionType{models.SessionMain, models.SessionDM},
		RequiresApproval:    &approve,
		MaxExecutionTime:    2 * time.Minute,
	})

	p := PolicyFor(wrapped)
	if !p.Allows(models.SessionDM) {
		t.Error("override did not widen allowed session types")
	}
	if !p.RequiresApproval {
		t.Error("override did not set RequiresApproval")
	}
	if p.MaxExecutionTime != 2*time.Minute {
		t.Errorf("MaxExecutionTime = %v", p.MaxExecutionTime)
	}
	if wrapped.Name() != "shell" || !strings.Contains(wrapped.Description(), "shell") {
		t.Error("override changed the tool identity")
	}
}
