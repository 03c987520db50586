package llm_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Rrens/chatvault/internal/domain"
	"github.com/Rrens/chatvault/internal/llm"
)

func TestBuildPrompt(t *testing.T) {
	history := []domain.Message{
		{Role: domain.RoleUser, Content: "Hi"},
		{Role: domain.RoleAssistant, Content: "Hello! How can I help?"},
		{Role: domain.RoleUser, Content: "Tell me a joke"},
	}

	prompt := llm.BuildPrompt("Be nice.", history, 10)

	want := "Be nice.\n\nContext:\nuser: Hi\nassistant: Hello! How can I help?\nuser: Tell me a joke\n\nAssistant:"
	if prompt != want {
		t.Errorf("BuildPrompt() =\n%q\nwant\n%q", prompt, want)
	}
}

func TestBuildPrompt_KeepsLastMessages(t *testing.T) {
	var history []domain.Message
	for i := 0; i < 15; i++ {
		history = append(history, domain.Message{Role: domain.RoleUser, Content: fmt.Sprintf("msg-%02d", i)})
	}

	prompt := llm.BuildPrompt("sys", history, 10)

	for i := 0; i < 5; i++ {
		if strings.Contains(prompt, fmt.Sprintf("msg-%02d", i)) {
			t.Errorf("prompt should not contain msg-%02d", i)
		}
	}
	for i := 5; i < 15; i++ {
		if !strings.Contains(prompt, fmt.Sprintf("msg-%02d", i)) {
			t.Errorf("prompt should contain msg-%02d", i)
		}
	}
	if !strings.HasSuffix(prompt, llm.AssistantMarker) {
		t.Errorf("prompt should end with %q", llm.AssistantMarker)
	}
}

func TestExtractReply(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			name:   "plain completion",
			output: "  Sure, here you go.\n",
			want:   "Sure, here you go.",
		},
		{
			name:   "echoed prompt",
			output: "sys\n\nContext:\nuser: Hi\n\nAssistant: Hello there",
			want:   "Hello there",
		},
		{
			name:   "multiple markers keeps the last",
			output: "Assistant: one\nuser: more\nAssistant: two",
			want:   "two",
		},
		{
			name:   "empty",
			output: "",
			want:   llm.FallbackReply,
		},
		{
			name:   "only marker",
			output: "prompt\n\nAssistant:   ",
			want:   llm.FallbackReply,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := llm.ExtractReply(tt.output); got != tt.want {
				t.Errorf("ExtractReply() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOptions_EffectiveTemperature(t *testing.T) {
	opts := llm.DefaultOptions()
	if opts.EffectiveTemperature() != 0.7 {
		t.Errorf("expected 0.7, got %v", opts.EffectiveTemperature())
	}

	opts.DoSample = false
	if opts.EffectiveTemperature() != 0 {
		t.Errorf("expected greedy decoding, got %v", opts.EffectiveTemperature())
	}
}
