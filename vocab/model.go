package vocab

import (
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// PieceType mirrors sentencepiece.ModelProto.SentencePiece.Type.
type PieceType int32

// Piece types as stored in the .model file.
const (
	PieceNormal      PieceType = 1
	PieceUnknown     PieceType = 2
	PieceControl     PieceType = 3
	PieceUserDefined PieceType = 4
	PieceUnused      PieceType = 5
	PieceByte        PieceType = 6
)

// ModelType mirrors sentencepiece.TrainerSpec.ModelType.
type ModelType int32

// Model types as stored in the trainer spec.
const (
	ModelUnigram ModelType = 1
	ModelBPE     ModelType = 2
	ModelWord    ModelType = 3
	ModelChar    ModelType = 4
)

// Piece is one vocabulary entry of a SentencePiece model.
type Piece struct {
	Piece string
	Score float32
	Type  PieceType
}

// TrainerSpec holds the trainer fields the tokenizer relies on.
type TrainerSpec struct {
	ModelType ModelType
	UnkID     int32
	BOSID     int32
	EOSID     int32
	PadID     int32
}

// NormalizerSpec holds the normalizer fields the tokenizer relies on.
type NormalizerSpec struct {
	Name                   string
	AddDummyPrefix         bool
	RemoveExtraWhitespaces bool
}

// Model is a decoded SentencePiece ModelProto.
type Model struct {
	Pieces     []Piece
	Trainer    TrainerSpec
	Normalizer NormalizerSpec
}

// Field numbers from sentencepiece_model.proto.
const (
	fieldModelPieces     = 1
	fieldModelTrainer    = 2
	fieldModelNormalizer = 3

	fieldPiecePiece = 1
	fieldPieceScore = 2
	fieldPieceType  = 3

	fieldTrainerModelType = 3
	fieldTrainerUnkID     = 40
	fieldTrainerBOSID     = 41
	fieldTrainerEOSID     = 42
	fieldTrainerPadID     = 43

	fieldNormalizerName        = 1
	fieldNormalizerDummyPrefix = 3
	fieldNormalizerWhitespaces = 4
)

// LoadModel loads a SentencePiece model from a .model file.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}

	m, err := ParseModel(data)
	if err != nil {
		return nil, fmt.Errorf("parsing protobuf: %w", err)
	}
	return m, nil
}

// ParseModel decodes a serialized ModelProto.
func ParseModel(data []byte) (*Model, error) {
	m := &Model{
		Trainer: TrainerSpec{
			ModelType: ModelUnigram,
			UnkID:     0,
			BOSID:     1,
			EOSID:     2,
			PadID:     -1,
		},
		Normalizer: NormalizerSpec{
			AddDummyPrefix:         true,
			RemoveExtraWhitespaces: true,
		},
	}

	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return skip(num, typ, b)
		}
		msg, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		switch num {
		case fieldModelPieces:
			p, err := parsePiece(msg)
			if err != nil {
				return 0, fmt.Errorf("piece %d: %w", len(m.Pieces), err)
			}
			m.Pieces = append(m.Pieces, p)
		case fieldModelTrainer:
			if err := parseTrainer(msg, &m.Trainer); err != nil {
				return 0, fmt.Errorf("trainer spec: %w", err)
			}
		case fieldModelNormalizer:
			if err := parseNormalizer(msg, &m.Normalizer); err != nil {
				return 0, fmt.Errorf("normalizer spec: %w", err)
			}
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	if len(m.Pieces) == 0 {
		return nil, fmt.Errorf("model has no pieces")
	}
	return m, nil
}

func parsePiece(data []byte) (Piece, error) {
	p := Piece{Type: PieceNormal}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldPiecePiece && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			p.Piece = s
			return n, nil
		case num == fieldPieceScore && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			p.Score = math.Float32frombits(v)
			return n, nil
		case num == fieldPieceType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			p.Type = PieceType(v)
			return n, nil
		}
		return skip(num, typ, b)
	})
	return p, err
}

func parseTrainer(data []byte, spec *TrainerSpec) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.VarintType {
			return skip(num, typ, b)
		}
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		switch num {
		case fieldTrainerModelType:
			spec.ModelType = ModelType(v)
		case fieldTrainerUnkID:
			spec.UnkID = int32(v)
		case fieldTrainerBOSID:
			spec.BOSID = int32(v)
		case fieldTrainerEOSID:
			spec.EOSID = int32(v)
		case fieldTrainerPadID:
			spec.PadID = int32(v)
		}
		return n, nil
	})
}

func parseNormalizer(data []byte, spec *NormalizerSpec) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldNormalizerName && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			spec.Name = s
			return n, nil
		case num == fieldNormalizerDummyPrefix && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			spec.AddDummyPrefix = protowire.DecodeBool(v)
			return n, nil
		case num == fieldNormalizerWhitespaces && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			spec.RemoveExtraWhitespaces = protowire.DecodeBool(v)
			return n, nil
		}
		return skip(num, typ, b)
	})
}

// walkFields calls fn for every field in data. fn consumes the field value
// and reports how many bytes it used.
func walkFields(data []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("reading tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		used, err := fn(num, typ, data)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		data = data[used:]
	}
	return nil
}

func skip(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}
