package model

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

const (
	maxSequenceLen = 512
	maxWordRunes   = 100
)

// word is a whitespace/punctuation-delimited chunk of the input with its
// byte offsets into the original text.
type word struct {
	text       string
	start, end int
}

// encoding is a tokenized input ready for the graph. positionWord maps each
// sequence position back to the index of the word it belongs to, or -1 for
// the [CLS]/[SEP] specials.
type encoding struct {
	inputIDs      []int64
	attentionMask []int64
	tokenTypeIDs  []int64
	positionWord  []int
	words         []word
}

type wordPieceTokenizer struct {
	vocab     map[string]int
	unkID     int64
	clsID     int64
	sepID     int64
	lowercase bool
}

type tokenizerFileJSON struct {
	Model struct {
		Vocab map[string]int `json:"vocab"`
	} `json:"model"`
	Normalizer struct {
		Lowercase *bool `json:"lowercase"`
	} `json:"normalizer"`
}

func newWordPieceTokenizer(path string) (*wordPieceTokenizer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc tokenizerFileJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(doc.Model.Vocab) == 0 {
		return nil, fmt.Errorf("%s: model.vocab is empty", path)
	}
	t := &wordPieceTokenizer{vocab: doc.Model.Vocab, lowercase: true}
	if doc.Normalizer.Lowercase != nil {
		t.lowercase = *doc.Normalizer.Lowercase
	}
	for name, dst := range map[string]*int64{"[UNK]": &t.unkID, "[CLS]": &t.clsID, "[SEP]": &t.sepID} {
		id, ok := doc.Model.Vocab[name]
		if !ok {
			return nil, fmt.Errorf("%s: vocab is missing %s", path, name)
		}
		*dst = int64(id)
	}
	return t, nil
}

// encode produces the model input for text, truncated to the sequence limit.
func (t *wordPieceTokenizer) encode(text string) *encoding {
	words := splitWords(text)
	enc := &encoding{words: words}
	enc.appendPosition(t.clsID, -1)
	for wi := range words {
		for _, id := range t.pieces(words[wi].text) {
			if len(enc.inputIDs) >= maxSequenceLen-1 {
				break
			}
			enc.appendPosition(id, wi)
		}
		if len(enc.inputIDs) >= maxSequenceLen-1 {
			break
		}
	}
	enc.appendPosition(t.sepID, -1)
	return enc
}

func (e *encoding) appendPosition(id int64, wordIdx int) {
	e.inputIDs = append(e.inputIDs, id)
	e.attentionMask = append(e.attentionMask, 1)
	e.tokenTypeIDs = append(e.tokenTypeIDs, 0)
	e.positionWord = append(e.positionWord, wordIdx)
}

// pieces runs greedy longest-match-first wordpiece over one word. Words that
// cannot be covered by the vocabulary collapse to a single [UNK].
func (t *wordPieceTokenizer) pieces(w string) []int64 {
	if t.lowercase {
		w = strings.ToLower(w)
	}
	runes := []rune(w)
	if len(runes) == 0 || len(runes) > maxWordRunes {
		return []int64{t.unkID}
	}
	if id, ok := t.vocab[string(runes)]; ok {
		return []int64{int64(id)}
	}
	var ids []int64
	for start := 0; start < len(runes); {
		matched := -1
		end := len(runes)
		for ; end > start; end-- {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				matched = id
				break
			}
		}
		if matched < 0 {
			return []int64{t.unkID}
		}
		ids = append(ids, int64(matched))
		start = end
	}
	return ids
}

// splitWords breaks text into letter/digit runs, keeping byte offsets so
// decoded spans index the original input.
func splitWords(text string) []word {
	var words []word
	start := -1
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			words = append(words, word{text: text[start:i], start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		words = append(words, word{text: text[start:], start: start, end: len(text)})
	}
	return words
}
