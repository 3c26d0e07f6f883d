// Package llm is the text-generation collaborator used by the guardrail
// chains. It hides the provider behind Generator so chains can be tested
// with a mock.
package llm

import "context"

// Role values for Message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// Request is a single generation call.
type Request struct {
	// System is sent as the system prompt. It may be empty.
	System   string
	Messages []Message

	// Model overrides the generator's default model when set.
	Model       string
	Temperature float64
	MaxTokens   int64

	// JSONMode asks the model for a bare JSON object.
	JSONMode bool

	// Phase labels cost attribution logs and metrics (e.g. "extraction").
	Phase string
}

// Generator produces text from a prompt. Implementations retry transport
// failures themselves; an error returned here is final for the call.
type Generator interface {
	Chat(ctx context.Context, req Request) (string, error)
}

// UserPrompt is a convenience for single-turn requests.
func UserPrompt(content string) []Message {
	return []Message{{Role: RoleUser, Content: content}}
}
