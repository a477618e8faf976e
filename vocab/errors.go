package vocab

import "errors"

var (
	// ErrInvalidVocabulary indicates a dictionary or model that cannot serve
	// the requested tokens.
	ErrInvalidVocabulary = errors.New("vocab: invalid vocabulary")

	// ErrUnsupportedModel indicates an unknown pretrained model family.
	ErrUnsupportedModel = errors.New("vocab: unsupported model family")
)
