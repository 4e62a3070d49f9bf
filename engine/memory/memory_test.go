package memory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/viewnav/engine"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRenderer_MountThenSetData(t *testing.T) {
	r := New(discardLogger())
	ctx := context.Background()

	if err := r.SetData(ctx, map[string]any{}); !errors.Is(err, engine.ErrNotMounted) {
		t.Fatalf("SetData before Mount: got %v", err)
	}

	doc := map[string]any{"card": "one"}
	if err := r.Mount(ctx, engine.MountOptions{Document: doc}); err != nil {
		t.Fatal(err)
	}
	doc["card"] = "mutated"
	if err := r.SetData(ctx, map[string]any{"card": "two"}); err != nil {
		t.Fatal(err)
	}

	calls := r.Calls()
	want := []Call{
		{Op: "mount", Target: engine.DefaultTarget, Document: map[string]any{"card": "one"}},
		{Op: "set_data", Target: engine.DefaultTarget, Document: map[string]any{"card": "two"}},
	}
	if diff := cmp.Diff(want, calls); diff != "" {
		t.Fatalf("calls (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"card": "two"}, r.Current()); diff != "" {
		t.Fatalf("current (-want +got):\n%s", diff)
	}
}

func TestRenderer_Emit(t *testing.T) {
	r := New(discardLogger())
	if err := r.Emit(engine.Event{}); !errors.Is(err, engine.ErrNotMounted) {
		t.Fatalf("Emit before Mount: got %v", err)
	}

	var got []engine.Event
	r.Mount(context.Background(), engine.MountOptions{
		Document: map[string]any{},
		OnAction: func(e engine.Event) { got = append(got, e) },
		OnStat:   func(engine.Event) { panic("stat handler bug") },
	})

	if err := r.Emit(engine.Event{"log_id": "go_home"}); err != nil {
		t.Fatal(err)
	}
	if err := r.EmitStat(engine.Event{}); err != nil {
		t.Fatalf("stat panic should be recovered, got %v", err)
	}
	if len(got) != 1 || got[0]["log_id"] != "go_home" {
		t.Fatalf("events = %v", got)
	}
}

func TestStateful_SetState(t *testing.T) {
	s := NewStateful(discardLogger())
	ctx := context.Background()

	var _ engine.StateSetter = s
	if err := s.SetState(ctx, "x", "y"); !errors.Is(err, engine.ErrNotMounted) {
		t.Fatalf("SetState before Mount: got %v", err)
	}

	s.Mount(ctx, engine.MountOptions{Document: map[string]any{}})
	if err := s.SetState(ctx, "lesson_card_state", "brand"); err != nil {
		t.Fatal(err)
	}
	if v, ok := s.State("lesson_card_state"); !ok || v != "brand" {
		t.Fatalf("State = %v, %v", v, ok)
	}

	boom := errors.New("boom")
	s.FailWith(boom)
	if err := s.SetState(ctx, "lesson_card_state", "x"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if n := len(s.Calls()); n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
}

func TestRenderer_NoStateSetter(t *testing.T) {
	var r engine.Renderer = New(discardLogger())
	if _, ok := r.(engine.StateSetter); ok {
		t.Fatal("plain Renderer must not expose a native state API")
	}
}
