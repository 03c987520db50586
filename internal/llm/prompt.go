package llm

import (
	"fmt"
	"strings"

	"github.com/Rrens/chatvault/internal/domain"
)

const (
	// AssistantMarker ends every prompt and separates the reply from any echo
	AssistantMarker = "Assistant:"

	// FallbackReply replaces empty generations
	FallbackReply = "Sorry, I could not generate a response."
)

// BuildPrompt renders the system prompt and the last contextSize messages as
// "role: content" lines, ending with the assistant marker.
func BuildPrompt(systemPrompt string, history []domain.Message, contextSize int) string {
	if contextSize > 0 && len(history) > contextSize {
		history = history[len(history)-contextSize:]
	}

	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}

	return fmt.Sprintf("%s\n\nContext:\n%s\n\n%s", systemPrompt, strings.Join(lines, "\n"), AssistantMarker)
}

// ExtractReply keeps only the text after the last assistant marker. Backends
// that echo the prompt return it in full.
func ExtractReply(output string) string {
	if i := strings.LastIndex(output, AssistantMarker); i >= 0 {
		output = output[i+len(AssistantMarker):]
	}
	output = strings.TrimSpace(output)
	if output == "" {
		return FallbackReply
	}
	return output
}
