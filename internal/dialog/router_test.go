package dialog

import (
	"context"
	"testing"

	"github.com/gabepages/botkit/internal/models"
	"github.com/gabepages/botkit/internal/transport"
)

var allScopes = []models.DispatchScope{
	models.ScopeDirectMessage,
	models.ScopeDirectMention,
	models.ScopeMention,
	models.ScopeAmbient,
}

func inbound(text string, scope models.DispatchScope) *models.Message {
	return transport.Inbound("U1", "C1", text, scope)
}

func TestRouterFirstMatchWins(t *testing.T) {
	r := NewRouter()
	var hits []string

	mark := func(name string) HandlerFunc {
		return func(ctx context.Context, eng *Engine, msg *models.Message) {
			hits = append(hits, name)
		}
	}

	if err := r.Register([]string{"hello", "hi"}, allScopes, mark("greet")); err != nil {
		t.Fatal(err)
	}
	// Also matches "hello there" because patterns are unanchored, but the
	// earlier registration must win.
	if err := r.Register([]string{"hello there"}, allScopes, mark("specific")); err != nil {
		t.Fatal(err)
	}

	if !r.Dispatch(context.Background(), nil, inbound("well HELLO there", models.ScopeDirectMessage)) {
		t.Fatal("expected a match")
	}
	if len(hits) != 1 || hits[0] != "greet" {
		t.Fatalf("expected exactly the first registration to run, got %v", hits)
	}
}

func TestRouterScopeFilter(t *testing.T) {
	r := NewRouter()
	ran := false
	err := r.Register([]string{"hello"},
		[]models.DispatchScope{models.ScopeDirectMessage},
		func(ctx context.Context, eng *Engine, msg *models.Message) { ran = true })
	if err != nil {
		t.Fatal(err)
	}

	if r.Dispatch(context.Background(), nil, inbound("hello", models.ScopeAmbient)) {
		t.Fatal("ambient message matched a DM-only registration")
	}
	if ran {
		t.Fatal("handler ran for out-of-scope message")
	}
	if !r.Dispatch(context.Background(), nil, inbound("hello", models.ScopeDirectMessage)) {
		t.Fatal("in-scope message did not match")
	}
}

func TestRouterCaptureGroups(t *testing.T) {
	r := NewRouter()
	var got []string
	err := r.Register([]string{"call me (.*)"}, allScopes,
		func(ctx context.Context, eng *Engine, msg *models.Message) {
			got = msg.MatchGroups
		})
	if err != nil {
		t.Fatal(err)
	}

	if !r.Dispatch(context.Background(), nil, inbound("Call me Ishmael", models.ScopeDirectMention)) {
		t.Fatal("expected a match")
	}
	if len(got) != 2 || got[1] != "Ishmael" {
		t.Fatalf("unexpected capture groups %v", got)
	}
}

func TestRouterUnroutedIsNoOp(t *testing.T) {
	r := NewRouter()
	if err := r.Register([]string{"hello"}, allScopes, func(context.Context, *Engine, *models.Message) {}); err != nil {
		t.Fatal(err)
	}
	if r.Dispatch(context.Background(), nil, inbound("goodbye", models.ScopeDirectMessage)) {
		t.Fatal("unmatched text reported as routed")
	}
}

func TestRouterRejectsBadRegistration(t *testing.T) {
	r := NewRouter()
	if err := r.Register(nil, allScopes, func(context.Context, *Engine, *models.Message) {}); err == nil {
		t.Error("empty pattern list accepted")
	}
	if err := r.Register([]string{"hello"}, allScopes, nil); err == nil {
		t.Error("nil handler accepted")
	}
	if err := r.Register([]string{"("}, allScopes, func(context.Context, *Engine, *models.Message) {}); err == nil {
		t.Error("invalid regex accepted")
	}
}
