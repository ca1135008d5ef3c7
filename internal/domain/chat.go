package domain

// ChatMessage is the provider-agnostic message shape sent to the language model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Inbound is a single text message received from the messaging platform.
// Command is the bare command name without the leading slash or bot mention,
// empty when the message is free text.
type Inbound struct {
	ChatID  int64
	Text    string
	Command string
}

// Suggestion is the question sent to the language model and the answer it returned.
type Suggestion struct {
	Question string
	Answer   string
}
