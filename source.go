package sentperm

import (
	"context"
	"fmt"
)

// Sample is one training document as flat token ids. Target is optional.
type Sample struct {
	ID     int
	Source []int32
	Target []int32
}

// SampleSource provides indexed samples.
type SampleSource interface {
	Len() int
	Get(ctx context.Context, i int) (Sample, error)
	// Sizes returns the source and target token counts of sample i.
	Sizes(i int) (src, tgt int)
}

// MemorySource is a SampleSource over in-memory token sequences.
type MemorySource struct {
	sources [][]int32
	targets [][]int32
}

// NewMemorySource wraps sources. targets may be nil.
func NewMemorySource(sources, targets [][]int32) *MemorySource {
	return &MemorySource{sources: sources, targets: targets}
}

// Len implements SampleSource.
func (m *MemorySource) Len() int { return len(m.sources) }

// Get implements SampleSource.
func (m *MemorySource) Get(_ context.Context, i int) (Sample, error) {
	if i < 0 || i >= len(m.sources) {
		return Sample{}, fmt.Errorf("sample %d out of range [0, %d)", i, len(m.sources))
	}
	s := Sample{ID: i, Source: m.sources[i]}
	if m.targets != nil {
		s.Target = m.targets[i]
	}
	return s, nil
}

// Sizes implements SampleSource.
func (m *MemorySource) Sizes(i int) (int, int) {
	tgt := 0
	if m.targets != nil {
		tgt = len(m.targets[i])
	}
	return len(m.sources[i]), tgt
}
