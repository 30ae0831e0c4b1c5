package tokenizer

import (
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-json"
)

// hfTokenizerJSON mirrors the parts of a HuggingFace tokenizer.json file this
// runtime consumes.
type hfTokenizerJSON struct {
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
	Model struct {
		Type   string         `json:"type"`
		Vocab  map[string]int `json:"vocab"`
		Merges []string       `json:"merges"`
	} `json:"model"`
}

// LoadFile reads a tokenizer.json and builds a BPE tokenizer. bosToken and
// eosToken name the special tokens to resolve; pass "" to default to the
// Llama conventions ("<s>", "</s>").
func LoadFile(path, bosToken, eosToken string) (*BPE, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tj hfTokenizerJSON
	if err := json.Unmarshal(raw, &tj); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if tj.Model.Type != "" && tj.Model.Type != "BPE" {
		return nil, fmt.Errorf("unsupported tokenizer model %q", tj.Model.Type)
	}
	if len(tj.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer has no vocabulary")
	}

	if bosToken == "" {
		bosToken = "<s>"
	}
	if eosToken == "" {
		eosToken = "</s>"
	}

	maxID := 0
	for _, id := range tj.Model.Vocab {
		if id > maxID {
			maxID = id
		}
	}
	for _, at := range tj.AddedTokens {
		if at.ID > maxID {
			maxID = at.ID
		}
	}

	tokens := make([]string, maxID+1)
	type entry struct {
		tok string
		id  int
	}
	ordered := make([]entry, 0, len(tj.Model.Vocab))
	for tok, id := range tj.Model.Vocab {
		ordered = append(ordered, entry{tok, id})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id < ordered[j].id })
	for _, e := range ordered {
		if e.id < 0 || e.id > maxID {
			return nil, fmt.Errorf("vocab id out of range: %d", e.id)
		}
		tokens[e.id] = e.tok
	}

	bosID, eosID := -1, -1
	for _, at := range tj.AddedTokens {
		tokens[at.ID] = at.Content
		switch at.Content {
		case bosToken:
			bosID = at.ID
		case eosToken:
			eosID = at.ID
		}
	}
	if eosID < 0 {
		if id, ok := tj.Model.Vocab[eosToken]; ok {
			eosID = id
		} else {
			return nil, fmt.Errorf("end-of-sequence token %q not in vocabulary", eosToken)
		}
	}
	if bosID < 0 {
		if id, ok := tj.Model.Vocab[bosToken]; ok {
			bosID = id
		}
	}

	return NewBPE(tokens, tj.Model.Merges, bosID, eosID, bosID >= 0)
}
