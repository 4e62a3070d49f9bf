package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/viewnav/document"
	"github.com/hazyhaar/viewnav/engine"
	"github.com/hazyhaar/viewnav/engine/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type store struct {
	doc     document.Node
	version uint64

	// beforeCommit runs at the start of Commit.
	beforeCommit func(s *store)
}

func (s *store) Snapshot() (document.Node, uint64) { return s.doc, s.version }

func (s *store) Commit(ctx context.Context, version uint64, next document.Node, push func(context.Context, document.Node) error) (bool, error) {
	if s.beforeCommit != nil {
		s.beforeCommit(s)
	}
	if version != s.version {
		return false, nil
	}
	s.doc = next
	s.version++
	return true, push(ctx, next)
}

func lessonDoc() document.Node {
	return map[string]any{
		"card": map[string]any{
			"log_id": "lesson",
			"states": []any{
				map[string]any{
					"state_id": 0,
					"div": map[string]any{
						"type":     "state",
						"id":       "lesson_card_state",
						"state_id": "plain",
					},
				},
			},
		},
	}
}

func mounted(t *testing.T, r engine.Renderer, doc document.Node) {
	t.Helper()
	if err := r.Mount(context.Background(), engine.MountOptions{Document: doc}); err != nil {
		t.Fatal(err)
	}
}

func TestApply_TreeFallback(t *testing.T) {
	ctx := context.Background()
	r := memory.New(discardLogger())
	orig := lessonDoc()
	s := &store{doc: orig}
	mounted(t, r, orig)

	rec := New(r, s, WithLogger(discardLogger()))
	if !rec.Apply(ctx, "lesson_card_state", "brand") {
		t.Fatal("Apply returned false")
	}

	node, ok := document.Find(s.doc, document.IsState("lesson_card_state"))
	if !ok {
		t.Fatal("state node missing from stored document")
	}
	if node["state_id"] != "brand" || document.Revision(node) != 1 {
		t.Fatalf("node = %v", node)
	}

	// The previous document is not mutated.
	if diff := cmp.Diff(lessonDoc(), orig); diff != "" {
		t.Fatalf("original mutated (-want +got):\n%s", diff)
	}

	calls := r.Calls()
	if last := calls[len(calls)-1]; last.Op != "set_data" {
		t.Fatalf("last call = %s, want set_data", last.Op)
	}
	if diff := cmp.Diff(s.doc, r.Current()); diff != "" {
		t.Fatalf("renderer out of sync (-stored +rendered):\n%s", diff)
	}

	rec.Apply(ctx, "lesson_card_state", "brand")
	node, _ = document.Find(s.doc, document.IsState("lesson_card_state"))
	if document.Revision(node) != 2 {
		t.Fatalf("revision = %d, want 2 after repeated state", document.Revision(node))
	}
}

func TestApply_NoMatch(t *testing.T) {
	ctx := context.Background()
	r := memory.New(discardLogger())
	orig := lessonDoc()
	s := &store{doc: orig}
	mounted(t, r, orig)

	rec := New(r, s, WithLogger(discardLogger()))
	if rec.Apply(ctx, "nonexistent", "x") {
		t.Fatal("Apply should report false without a matching node")
	}
	if diff := cmp.Diff(lessonDoc(), s.doc); diff != "" {
		t.Fatalf("document changed (-want +got):\n%s", diff)
	}
	if n := len(r.Calls()); n != 1 {
		t.Fatalf("renderer calls = %d, want only the mount", n)
	}
}

func TestApply_NoDocument(t *testing.T) {
	rec := New(memory.New(discardLogger()), &store{}, WithLogger(discardLogger()))
	if rec.Apply(context.Background(), "lesson_card_state", "x") {
		t.Fatal("Apply without a document should report false")
	}
}

func TestApply_EmptyTargetUsesDefault(t *testing.T) {
	ctx := context.Background()
	r := memory.New(discardLogger())
	s := &store{doc: map[string]any{"type": "state", "state_id": "a"}}
	mounted(t, r, s.doc)

	if !New(r, s, WithLogger(discardLogger())).Apply(ctx, "", "b") {
		t.Fatal("id-less state node should answer to the default target")
	}
	if s.doc.(map[string]any)["state_id"] != "b" {
		t.Fatalf("doc = %v", s.doc)
	}
}

func TestApply_Native(t *testing.T) {
	ctx := context.Background()
	r := memory.NewStateful(discardLogger())
	orig := lessonDoc()
	s := &store{doc: orig}
	mounted(t, r, orig)

	rec := New(r, s, WithLogger(discardLogger()))
	if !rec.Apply(ctx, "lesson_card_state", "brand") {
		t.Fatal("Apply returned false")
	}
	if v, _ := r.State("lesson_card_state"); v != "brand" {
		t.Fatalf("native state = %v", v)
	}
	if diff := cmp.Diff(lessonDoc(), s.doc); diff != "" {
		t.Fatalf("native path must not rewrite the document (-want +got):\n%s", diff)
	}
}

func TestApply_NativeFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	r := memory.NewStateful(discardLogger())
	s := &store{doc: lessonDoc()}
	mounted(t, r, s.doc)
	r.FailWith(errors.New("unsupported signature"))

	if !New(r, s, WithLogger(discardLogger())).Apply(ctx, "lesson_card_state", "brand") {
		t.Fatal("Apply returned false")
	}
	node, _ := document.Find(s.doc, document.IsState("lesson_card_state"))
	if node["state_id"] != "brand" {
		t.Fatalf("fallback did not rewrite: %v", node)
	}
}

func TestApply_SupersededDocument(t *testing.T) {
	ctx := context.Background()
	r := memory.New(discardLogger())
	s := &store{doc: lessonDoc()}
	mounted(t, r, s.doc)

	newer := map[string]any{"card": map[string]any{"log_id": "newer"}}
	s.beforeCommit = func(s *store) {
		s.doc = newer
		s.version++
	}

	if New(r, s, WithLogger(discardLogger())).Apply(ctx, "lesson_card_state", "brand") {
		t.Fatal("Apply should report false once the document was replaced")
	}
	if diff := cmp.Diff(newer, s.doc); diff != "" {
		t.Fatalf("newer document overwritten (-want +got):\n%s", diff)
	}
	if n := len(r.Calls()); n != 1 {
		t.Fatalf("renderer calls = %d, want only the mount", n)
	}
}
