package tokenizer

import "strings"

// RenderChat flattens chat messages into the instruction-tuned prompt format
// the model was trained on, ending with the assistant cue so generation
// continues the response.
func RenderChat(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case "system":
			b.WriteString(m.Content)
			b.WriteString("\n")
		case "user":
			b.WriteString("### Instruction: ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		case "assistant":
			b.WriteString("### Response: ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
	}
	b.WriteString("### Response:")
	return b.String()
}
