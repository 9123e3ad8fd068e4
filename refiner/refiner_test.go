package refiner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"promptpaint/llm"
)

// stubGenerator returns a canned output and remembers what it was asked.
type stubGenerator struct {
	output string
	err    error

	calls        int
	instruction  string
	maxNewTokens int
}

func (s *stubGenerator) Generate(_ context.Context, instruction string, maxNewTokens int) (string, error) {
	s.calls++
	s.instruction = instruction
	s.maxNewTokens = maxNewTokens
	return s.output, s.err
}

type outcomeLog []string

func (o *outcomeLog) RecordRefinement(outcome string) {
	*o = append(*o, outcome)
}

func TestRefine_ShortPromptSkipsModel(t *testing.T) {
	tests := []string{"", "cat", "a cat", "  a   cat  "}

	for _, prompt := range tests {
		gen := &stubGenerator{output: "should never be used here at all"}
		var outcomes outcomeLog
		r := New(gen, DefaultConfig(), nil, &outcomes)

		got, err := r.Refine(context.Background(), prompt)
		if err != nil {
			t.Fatalf("Refine(%q) error = %v", prompt, err)
		}
		if got != prompt {
			t.Errorf("Refine(%q) = %q, want input unchanged", prompt, got)
		}
		if gen.calls != 0 {
			t.Errorf("Refine(%q) called the model %d times, want 0", prompt, gen.calls)
		}
		if len(outcomes) != 1 || outcomes[0] != string(OutcomeSkipped) {
			t.Errorf("outcomes = %v, want [skipped]", outcomes)
		}
	}
}

func TestRefine_SendsInstructionAndBudget(t *testing.T) {
	gen := &stubGenerator{output: "a golden castle floating above pink clouds at dusk"}
	r := New(gen, DefaultConfig(), nil, nil)

	if _, err := r.Refine(context.Background(), "a castle in the clouds"); err != nil {
		t.Fatalf("Refine() error = %v", err)
	}

	wantInstruction := "Rewrite this as a vivid artistic scene description: a castle in the clouds"
	if gen.instruction != wantInstruction {
		t.Errorf("instruction = %q, want %q", gen.instruction, wantInstruction)
	}
	if gen.maxNewTokens != 40 {
		t.Errorf("maxNewTokens = %d, want 40", gen.maxNewTokens)
	}
}

func TestRefine_OutputRules(t *testing.T) {
	const prompt = "a castle in the clouds at dusk"

	tests := []struct {
		name        string
		output      string
		want        string
		wantOutcome Outcome
	}{
		{"good rewrite", "a golden castle above rose clouds", "a golden castle above rose clouds", OutcomeRewritten},
		{"rewrite is trimmed", "\n  a golden castle above rose clouds  \n", "a golden castle above rose clouds", OutcomeRewritten},
		{"empty output", "", prompt, OutcomeFallback},
		{"blank output", "   \n\t", prompt, OutcomeFallback},
		{"degenerate prefix", "a picture of a man standing near a castle", prompt, OutcomeFallback},
		{"degenerate prefix any case", "A Picture Of A Man in the clouds", prompt, OutcomeFallback},
		{"too few spaces", "castle clouds dusk", prompt, OutcomeFallback},
		{"exactly three spaces", "castle in pink clouds", "castle in pink clouds", OutcomeRewritten},
		{"prefix only mid-text", "at dusk a picture of a man appears", "at dusk a picture of a man appears", OutcomeRewritten},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var outcomes outcomeLog
			r := New(&stubGenerator{output: tt.output}, DefaultConfig(), nil, &outcomes)

			got, err := r.Refine(context.Background(), prompt)
			if err != nil {
				t.Fatalf("Refine() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Refine() = %q, want %q", got, tt.want)
			}
			if len(outcomes) != 1 || outcomes[0] != string(tt.wantOutcome) {
				t.Errorf("outcomes = %v, want [%s]", outcomes, tt.wantOutcome)
			}
		})
	}
}

func TestRefine_GeneratorErrorPassesThrough(t *testing.T) {
	modelErr := errors.New("out of memory")
	var outcomes outcomeLog
	r := New(&stubGenerator{err: modelErr}, DefaultConfig(), nil, &outcomes)

	_, err := r.Refine(context.Background(), "a castle in the clouds")
	if err != modelErr {
		t.Errorf("Refine() error = %v, want the generator error unchanged", err)
	}
	if len(outcomes) != 1 || outcomes[0] != string(OutcomeError) {
		t.Errorf("outcomes = %v, want [error]", outcomes)
	}
}

func TestChatGenerator_Generate(t *testing.T) {
	var got openai.ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "a vivid harbour at dawn"}},
			},
		})
	}))
	defer server.Close()

	gen := NewChatGenerator(llm.NewClient(llm.ClientConfig{BaseURL: server.URL + "/v1"}), "flan-t5-small")

	out, err := gen.Generate(context.Background(), "Rewrite this: a harbour", 40)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "a vivid harbour at dawn" {
		t.Errorf("Generate() = %q, want %q", out, "a vivid harbour at dawn")
	}
	if got.Model != "flan-t5-small" {
		t.Errorf("model = %q, want flan-t5-small", got.Model)
	}
	if got.MaxTokens != 40 {
		t.Errorf("max_tokens = %d, want 40", got.MaxTokens)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "Rewrite this: a harbour" {
		t.Errorf("messages = %+v, want one user message with the instruction", got.Messages)
	}
}

func TestChatGenerator_NoChoicesIsBlank(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	gen := NewChatGenerator(llm.NewClient(llm.ClientConfig{BaseURL: server.URL}), "m")
	out, err := gen.Generate(context.Background(), "x", 40)
	if err != nil || out != "" {
		t.Errorf("Generate() = (%q, %v), want (\"\", nil)", out, err)
	}
}

func TestChatGenerator_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"model not loaded","type":"server_error"}}`))
	}))
	defer server.Close()

	gen := NewChatGenerator(llm.NewClient(llm.ClientConfig{BaseURL: server.URL}), "m")
	_, err := gen.Generate(context.Background(), "x", 40)

	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Generate() error = %v, want *openai.APIError", err)
	}
	if apiErr.HTTPStatusCode != http.StatusServiceUnavailable {
		t.Errorf("HTTPStatusCode = %d, want 503", apiErr.HTTPStatusCode)
	}
}
