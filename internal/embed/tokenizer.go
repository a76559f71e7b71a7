package embed

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const (
	clsToken        = "[CLS]"
	sepToken        = "[SEP]"
	unkToken        = "[UNK]"
	wordpiecePrefix = "##"
)

// EncodedInput is the tensor-ready output of Tokenizer.Encode.
type EncodedInput struct {
	InputIDs      []int64
	AttentionMask []float32
}

// Tokenizer is a WordPiece tokenizer loaded from a HuggingFace
// tokenizer.json export (or a bare newline-delimited vocab file).
type Tokenizer struct {
	vocab map[string]int64
	clsID int64
	sepID int64
	unkID int64
}

// tokenizerJSON is the subset of the HuggingFace tokenizer.json layout this
// package reads: the model's token -> id vocabulary.
type tokenizerJSON struct {
	Model struct {
		Vocab map[string]int64 `json:"vocab"`
	} `json:"model"`
}

// LoadTokenizer reads the vocabulary paired with an ONNX model export. A
// file starting with '{' is parsed as HuggingFace tokenizer.json; anything
// else is treated as a newline-delimited vocab where line N (0-indexed) is
// the token with id N.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open tokenizer file: %w", err)
	}

	var vocab map[string]int64
	if trimmed := bytes.TrimLeft(data, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '{' {
		var parsed tokenizerJSON
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("parse tokenizer json: %w", err)
		}
		if len(parsed.Model.Vocab) == 0 {
			return nil, fmt.Errorf("tokenizer json carries no model vocabulary")
		}
		vocab = parsed.Model.Vocab
	} else {
		vocab = make(map[string]int64)
		scanner := bufio.NewScanner(bytes.NewReader(data))
		var id int64
		for scanner.Scan() {
			vocab[scanner.Text()] = id
			id++
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read vocab file: %w", err)
		}
	}

	t := &Tokenizer{vocab: vocab}
	t.clsID = t.lookupOrZero(clsToken)
	t.sepID = t.lookupOrZero(sepToken)
	t.unkID = t.lookupOrZero(unkToken)
	return t, nil
}

func (t *Tokenizer) lookupOrZero(tok string) int64 {
	if id, ok := t.vocab[tok]; ok {
		return id
	}
	return 0
}

// Encode tokenizes text into WordPiece subword ids, bracketed by [CLS] and
// [SEP] and truncated to maxTokens.
func (t *Tokenizer) Encode(text string, maxTokens int) (EncodedInput, error) {
	words := tokenRegex.FindAllString(strings.ToLower(text), -1)

	ids := make([]int64, 0, maxTokens)
	ids = append(ids, t.clsID)

	for _, word := range words {
		if len(ids) >= maxTokens-1 {
			break
		}
		ids = append(ids, t.encodeWord(word, maxTokens-len(ids)-1)...)
	}
	ids = append(ids, t.sepID)

	mask := make([]float32, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	return EncodedInput{InputIDs: ids, AttentionMask: mask}, nil
}

// encodeWord applies the greedy longest-match-first WordPiece algorithm:
// find the longest prefix of the remaining word present in the vocabulary,
// emit it, prefix the remainder with "##", and repeat.
func (t *Tokenizer) encodeWord(word string, budget int) []int64 {
	if id, ok := t.vocab[word]; ok {
		return []int64{id}
	}

	var pieces []int64
	start := 0
	for start < len(word) && len(pieces) < budget {
		end := len(word)
		var matchedID int64
		matchedLen := 0
		found := false
		for end > start {
			substr := word[start:end]
			candidate := substr
			if start > 0 {
				candidate = wordpiecePrefix + substr
			}
			if id, ok := t.vocab[candidate]; ok {
				matchedID = id
				matchedLen = len(substr)
				found = true
				break
			}
			end--
		}
		if !found {
			return []int64{t.unkID}
		}
		pieces = append(pieces, matchedID)
		start += matchedLen
	}
	return pieces
}
