package ragtest

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/embedding"
)

// Embedder hashes lower-cased words into a small bag-of-words vector, so texts
// sharing words land close together.
type Embedder struct {
	Dim int
	Err error
}

var _ embedding.EmbeddingProvider = &Embedder{}

func (e *Embedder) Generate(ctx context.Context, text string, _ string) (*embedding.EmbeddingResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.Err != nil {
		return nil, e.Err
	}
	dim := e.Dim
	if dim <= 0 {
		dim = 64
	}

	vec := make([]float32, dim)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%uint32(dim)]++
	}
	return &embedding.EmbeddingResponse{Embedding: embedding.EmbeddingResponseEmbedding{Values: vec}}, nil
}
