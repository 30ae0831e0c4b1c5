// Package tokenizer maps text to token ids and back. The model core never
// sees text; it consumes and produces ids only.
package tokenizer

// Tokenizer is the text <-> token-id collaborator the serving layer depends
// on. EOS returns the designated end-of-sequence id the generation consumer
// checks to stop pulling tokens.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
	EOS() int
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
