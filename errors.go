package sentperm

import (
	"errors"

	"github.com/jamesainslie/go-sentperm/document"
	"github.com/jamesainslie/go-sentperm/tensor"
	"github.com/jamesainslie/go-sentperm/vocab"
)

// Sentinel errors for conditions callers may need to handle differently.
var (
	// ErrInvalidConfig indicates an option value outside its valid range.
	ErrInvalidConfig = errors.New("sentperm: invalid configuration")

	// ErrInvalidVocabulary indicates the dictionary lacks the separator or
	// sentence mask symbol.
	ErrInvalidVocabulary = vocab.ErrInvalidVocabulary

	// ErrUnsupportedModel indicates an unknown pretrained model family.
	ErrUnsupportedModel = vocab.ErrUnsupportedModel

	// ErrInvariant indicates a batch construction defect. The batch must be
	// discarded.
	ErrInvariant = document.ErrInvariant

	// ErrInconsistentViews indicates the permutation and masking views of a
	// batch disagree. It wraps ErrInvariant.
	ErrInconsistentViews = tensor.ErrInconsistentViews
)
