// Package vocab provides the token dictionary shared by the data pipeline and
// the model, plus a SentencePiece unigram tokenizer for raw text.
package vocab

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Reserved symbols.
const (
	BOSSymbol      = "<s>"
	PadSymbol      = "<pad>"
	EOSSymbol      = "</s>"
	UnkSymbol      = "<unk>"
	CLSSymbol      = "[CLS]"
	SentMaskSymbol = "<sent_mask>"
)

var separators = map[string]string{
	"roberta-base":      EOSSymbol,
	"roberta-large":     EOSSymbol,
	"bert-base-uncased": "[SEP]",
	"bert-base-chinese": "[SEP]",
}

// SeparatorFor returns the sentence separator symbol of a pretrained model
// family.
func SeparatorFor(model string) (string, error) {
	sep, ok := separators[model]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedModel, model)
	}
	return sep, nil
}

// Dictionary maps symbols to ids. It is read-only once built and safe for
// concurrent readers.
type Dictionary struct {
	symbols []string
	indices map[string]int32

	bos, pad, eos, unk int32
}

// NewDictionary returns a dictionary holding only <s>, <pad>, </s> and <unk>
// at ids 0 to 3.
func NewDictionary() *Dictionary {
	d := &Dictionary{indices: make(map[string]int32)}
	d.bos = d.Add(BOSSymbol)
	d.pad = d.Add(PadSymbol)
	d.eos = d.Add(EOSSymbol)
	d.unk = d.Add(UnkSymbol)
	return d
}

// FromSymbols builds a dictionary from the specials followed by symbols.
func FromSymbols(symbols ...string) *Dictionary {
	d := NewDictionary()
	for _, s := range symbols {
		d.Add(s)
	}
	return d
}

// LoadDictionary reads a fairseq dict.txt file ("<symbol> <count>" per line).
func LoadDictionary(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dictionary: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ReadDictionary(f)
}

// ReadDictionary parses fairseq dict.txt content.
func ReadDictionary(r io.Reader) (*Dictionary, error) {
	d := NewDictionary()
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) > 3 {
			return nil, fmt.Errorf("%w: line %d: expected \"<symbol> <count>\"", ErrInvalidVocabulary, line)
		}
		d.Add(fields[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	return d, nil
}

// Add inserts sym if absent and returns its id.
func (d *Dictionary) Add(sym string) int32 {
	if id, ok := d.indices[sym]; ok {
		return id
	}
	id := int32(len(d.symbols))
	d.symbols = append(d.symbols, sym)
	d.indices[sym] = id
	return id
}

// Index returns the id of sym, or the unk id when absent.
func (d *Dictionary) Index(sym string) int32 {
	if id, ok := d.indices[sym]; ok {
		return id
	}
	return d.unk
}

// Contains reports whether sym has its own id.
func (d *Dictionary) Contains(sym string) bool {
	_, ok := d.indices[sym]
	return ok
}

// Symbol returns the symbol for id, or <unk> when out of range.
func (d *Dictionary) Symbol(id int32) string {
	if id < 0 || int(id) >= len(d.symbols) {
		return UnkSymbol
	}
	return d.symbols[id]
}

// Len returns the number of symbols.
func (d *Dictionary) Len() int { return len(d.symbols) }

// BOS returns the beginning-of-sentence id.
func (d *Dictionary) BOS() int32 { return d.bos }

// Pad returns the padding id.
func (d *Dictionary) Pad() int32 { return d.pad }

// EOS returns the end-of-sentence id.
func (d *Dictionary) EOS() int32 { return d.eos }

// Unk returns the unknown-symbol id.
func (d *Dictionary) Unk() int32 { return d.unk }

// CLS returns the class id: [CLS] for BERT vocabularies, <s> otherwise.
func (d *Dictionary) CLS() int32 {
	if id, ok := d.indices[CLSSymbol]; ok {
		return id
	}
	return d.bos
}

// String renders ids as space separated symbols.
func (d *Dictionary) String(ids []int32) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = d.Symbol(id)
	}
	return strings.Join(parts, " ")
}
