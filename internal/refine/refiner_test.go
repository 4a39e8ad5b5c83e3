package refine

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/charleslwang/Lumara/internal"
	"github.com/charleslwang/Lumara/internal/model"
)

type mockClient struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (m *mockClient) Name() string { return "mock" }

func (m *mockClient) Invoke(ctx context.Context, cfg model.Config, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	i := m.calls
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i], nil
}

// captureLogger records emitted log messages so tests can assert on warnings.
func captureLogger(buf *strings.Builder) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestRefiner_Refine_ReturnsTrimmedOutput(t *testing.T) {
	client := &mockClient{responses: []string{"  A better haiku.\n"}}
	r := New(client, nil)

	refined, err := r.Refine(context.Background(), model.Config{}, "prompt", "old", "critique", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refined != "A better haiku." {
		t.Errorf("expected trimmed output, got %q", refined)
	}
}

func TestRefiner_Refine_EmptyResponseFallsBackToInput(t *testing.T) {
	client := &mockClient{responses: []string{"   \n"}}
	r := New(client, nil)

	refined, err := r.Refine(context.Background(), model.Config{}, "prompt", "the original", "critique", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refined != "the original" {
		t.Errorf("expected input solution back, got %q", refined)
	}
}

func TestRefiner_Refine_ModelErrorPropagates(t *testing.T) {
	client := &mockClient{err: internal.NewError(internal.KindTransientNetwork, "timeout")}
	r := New(client, nil)

	_, err := r.Refine(context.Background(), model.Config{}, "prompt", "old", "critique", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if kind, ok := internal.KindOf(err); !ok || kind != internal.KindTransientNetwork {
		t.Errorf("expected transient_network_error, got %v", err)
	}
}

func TestRefiner_Refine_StagnationWarnsOnSecondUnchanged(t *testing.T) {
	client := &mockClient{responses: []string{"same answer"}}
	var buf strings.Builder
	r := New(client, captureLogger(&buf))

	// First unchanged pass: no warning yet.
	if _, err := r.Refine(context.Background(), model.Config{}, "prompt", "same answer", "critique", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(buf.String(), "unchanged") {
		t.Error("did not expect a warning after one unchanged pass")
	}

	// Second consecutive unchanged pass warns.
	if _, err := r.Refine(context.Background(), model.Config{}, "prompt", "same answer", "critique", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "unchanged") {
		t.Error("expected a stagnation warning after two unchanged passes")
	}
}

func TestRefiner_Refine_ChangedOutputResetsStreak(t *testing.T) {
	client := &mockClient{responses: []string{"same answer", "different answer", "same answer"}}
	var buf strings.Builder
	r := New(client, captureLogger(&buf))

	for _, input := range []string{"same answer", "same answer", "same answer"} {
		if _, err := r.Refine(context.Background(), model.Config{}, "prompt", input, "critique", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if strings.Contains(buf.String(), "unchanged") {
		t.Error("expected no warning when a changed output breaks the streak")
	}
}

func TestRefiner_Refine_PromptEmbedsCritiqueAndScore(t *testing.T) {
	client := &mockClient{responses: []string{"improved"}}
	r := New(client, nil)

	score := &internal.ScoreReport{Overall: 6.4}
	_, err := r.Refine(context.Background(), model.Config{}, "the ask", "the solution", "the critique", score)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := client.prompts[0]
	for _, want := range []string{"the ask", "the solution", "the critique", "6.4/10"} {
		if !strings.Contains(p, want) {
			t.Errorf("expected %q in refinement prompt", want)
		}
	}
}

func TestSameText(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"identical", "hello", "hello", true},
		{"trailing whitespace", "hello  \n", "hello", true},
		{"different", "hello", "goodbye", false},
		{"composed vs decomposed", "café", "café", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sameText(tt.a, tt.b); got != tt.want {
				t.Errorf("sameText(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
