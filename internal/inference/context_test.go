package inference_test

import (
	"testing"

	"github.com/foyerlabs/foyer/internal/inference"
	"github.com/foyerlabs/foyer/pkg/provider/llm"
)

func TestWithMemoryContext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		system   string
		memories []string
		want     string
	}{
		{
			name:     "no memories leaves prompt untouched",
			system:   "You are a helpful assistant.",
			memories: nil,
			want:     "You are a helpful assistant.",
		},
		{
			name:     "empty slice leaves prompt untouched",
			system:   "You are a helpful assistant.",
			memories: []string{},
			want:     "You are a helpful assistant.",
		},
		{
			name:     "single memory",
			system:   "Sois bref.",
			memories: []string{"dad likes strong coffee"},
			want:     "Sois bref.\n\nRelevant context from memory:\n- dad likes strong coffee",
		},
		{
			name:     "multiple memories keep order",
			system:   "Sois bref.",
			memories: []string{"first", "second"},
			want:     "Sois bref.\n\nRelevant context from memory:\n- first\n- second",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := inference.WithMemoryContext(tt.system, tt.memories); got != tt.want {
				t.Errorf("WithMemoryContext = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAssembleMessages(t *testing.T) {
	t.Parallel()

	history := []llm.Message{
		{Role: "user", Content: "salut"},
		{Role: "assistant", Content: "Salut !"},
		{Role: "system", Content: "injected prompt"},
		{Role: "tool", Content: "{}"},
		{Role: "user", Content: "et ensuite"},
	}

	got := inference.AssembleMessages("be nice", history, "quelle heure est-il")

	want := []llm.Message{
		{Role: "system", Content: "be nice"},
		{Role: "user", Content: "salut"},
		{Role: "assistant", Content: "Salut !"},
		{Role: "user", Content: "et ensuite"},
		{Role: "user", Content: "quelle heure est-il"},
	}

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (%+v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("messages[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestAssembleMessages_NoHistory(t *testing.T) {
	t.Parallel()

	got := inference.AssembleMessages("be nice", nil, "bonjour")
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Role != llm.RoleSystem || got[1].Role != llm.RoleUser {
		t.Errorf("roles = [%s %s], want [system user]", got[0].Role, got[1].Role)
	}
	if got[1].Content != "bonjour" {
		t.Errorf("user content = %q, want bonjour", got[1].Content)
	}
}
