package embedder

import "context"

// Fake is a deterministic Embedder for tests: it never loads a real model
// and never does I/O, producing a fixed-dimension vector derived from the
// input's length so texts of different lengths are distinguishable in
// assertions; texts of equal length get the same vector.
type Fake struct {
	Dim int
}

// NewFake constructs a Fake with the standard Dimension.
func NewFake() *Fake { return &Fake{Dim: Dimension} }

func (f *Fake) Dimension() int {
	if f.Dim == 0 {
		return Dimension
	}
	return f.Dim
}

func (f *Fake) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.vector(text), nil
}

func (f *Fake) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if text == "" {
			return nil, ErrEmptyInput
		}
		out[i] = f.vector(text)
	}
	return out, nil
}

func (f *Fake) vector(text string) []float32 {
	dim := f.Dimension()
	v := make([]float32, dim)
	seed := float32(len(text))
	for i := range v {
		v[i] = seed / float32(i+1)
	}
	return v
}
