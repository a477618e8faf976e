package vocab

import (
	"fmt"
	"strings"
)

// Tokenizer implements RoBERTa-family SentencePiece Unigram tokenization.
//
// Ids follow the fairseq dictionary layout used by the pretrained encoders:
//   - 0 = <s>   (SP[1])
//   - 1 = <pad> (not in SentencePiece)
//   - 2 = </s>  (SP[2])
//   - 3 = <unk> (SP[0])
//   - n+1 = SP[n] for n >= 3
type Tokenizer struct {
	pieces    map[string]int32
	scores    map[string]float32
	idToPiece []string
	unkScore  float32

	addDummyPrefix bool
	maxTokenLen    int
}

// TokenInfo represents a token with its rune span in the normalized text.
type TokenInfo struct {
	ID    int32
	Text  string
	Start int
	End   int
}

// NewTokenizer loads a tokenizer from a SentencePiece .model file.
func NewTokenizer(modelPath string) (*Tokenizer, error) {
	model, err := LoadModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("loading model: %w", err)
	}
	return newTokenizer(model)
}

func newTokenizer(model *Model) (*Tokenizer, error) {
	if model.Trainer.ModelType != ModelUnigram {
		return nil, fmt.Errorf("%w: model type %d is not unigram", ErrInvalidVocabulary, model.Trainer.ModelType)
	}

	t := &Tokenizer{
		pieces:         make(map[string]int32, len(model.Pieces)),
		scores:         make(map[string]float32, len(model.Pieces)),
		idToPiece:      make([]string, len(model.Pieces)),
		addDummyPrefix: model.Normalizer.AddDummyPrefix,
	}

	for i, piece := range model.Pieces {
		t.idToPiece[i] = piece.Piece
		if piece.Type == PieceUnknown {
			t.unkScore = piece.Score
		}
		// Control and unused pieces never match raw text.
		if piece.Type == PieceControl || piece.Type == PieceUnused {
			continue
		}
		t.pieces[piece.Piece] = int32(i)
		t.scores[piece.Piece] = piece.Score
		if len(piece.Piece) > t.maxTokenLen {
			t.maxTokenLen = len(piece.Piece)
		}
	}

	return t, nil
}

func spIndexToID(spIndex int32) int32 {
	switch spIndex {
	case 0:
		return 3
	case 1:
		return 0
	case 2:
		return 2
	default:
		return spIndex + 1
	}
}

// Dictionary returns the token dictionary of this tokenizer: the four
// specials, every SentencePiece symbol in id order, and <sent_mask> last.
func (t *Tokenizer) Dictionary() *Dictionary {
	d := NewDictionary()
	for _, p := range t.idToPiece[3:] {
		d.Add(p)
	}
	d.Add(SentMaskSymbol)
	return d
}

// VocabSize returns the number of ids the tokenizer can emit.
func (t *Tokenizer) VocabSize() int {
	return len(t.idToPiece) + 1
}

// Decode joins token ids back to text. Special ids are dropped.
func (t *Tokenizer) Decode(ids []int32) string {
	var b strings.Builder
	for _, id := range ids {
		if id <= 3 || int(id)-1 >= len(t.idToPiece) {
			continue
		}
		b.WriteString(t.idToPiece[id-1])
	}
	return strings.TrimSpace(strings.ReplaceAll(b.String(), string(sentencePieceSpace), " "))
}

// Close releases tokenizer resources.
func (t *Tokenizer) Close() error {
	return nil
}
