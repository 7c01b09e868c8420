package postgres

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const embeddingDims = 16

// Embed produces a fixed 16-dimension hashing embedding of free text.
// Each token is hashed into a bucket; the vector is L2-normalized so
// cosine similarity reduces to a dot product.
func Embed(text string) []float64 {
	vec := make([]float64, embeddingDims)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	for _, tok := range tokens {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()

		bucket := sum % embeddingDims

		// second hash bit decides the sign, which spreads collisions
		sign := 1.0
		if (sum>>16)&1 == 1 {
			sign = -1.0
		}

		vec[bucket] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}

	if norm == 0 {
		return vec
	}

	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}

	return vec
}

// Cosine returns the similarity of two embeddings in [-1, 1].
// Mismatched or zero vectors score 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64

	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
