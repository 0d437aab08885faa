package llm

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Prompt is the full input to an LLM completion call.
type Prompt struct {
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`
}

// NewPrompt builds a prompt with fixed instructions and one user turn.
func NewPrompt(system, user string) *Prompt {
	return &Prompt{
		SystemPrompt: system,
		Messages:     []Message{{Role: RoleUser, Content: user}},
	}
}

// Text concatenates the system prompt and every message, for token
// estimation and logging.
func (p *Prompt) Text() string {
	n := len(p.SystemPrompt)
	for _, m := range p.Messages {
		n += len(m.Content) + 1
	}
	b := make([]byte, 0, n)
	b = append(b, p.SystemPrompt...)
	for _, m := range p.Messages {
		b = append(b, '\n')
		b = append(b, m.Content...)
	}
	return string(b)
}
