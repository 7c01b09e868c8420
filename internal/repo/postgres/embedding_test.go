package postgres

import (
	"math"
	"testing"
)

func TestEmbedDimensionsAndNorm(t *testing.T) {
	vec := Embed("database connection timeout on primary")

	if len(vec) != 16 {
		t.Fatalf("len = %d, want 16", len(vec))
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}

	if math.Abs(math.Sqrt(norm)-1) > 1e-9 {
		t.Errorf("norm = %v, want 1", math.Sqrt(norm))
	}
}

func TestEmbedDeterministic(t *testing.T) {
	a := Embed("worker heartbeat stale")
	b := Embed("worker heartbeat stale")

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embeddings differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestEmbedEmptyText(t *testing.T) {
	vec := Embed("")

	for i, v := range vec {
		if v != 0 {
			t.Fatalf("vec[%d] = %v, want 0", i, v)
		}
	}
}

func TestCosineRanksSimilarTextHigher(t *testing.T) {
	query := Embed("connection timeout error")
	close := Embed("timeout error on connection")
	far := Embed("scheduled cleanup completed successfully")

	if Cosine(query, close) <= Cosine(query, far) {
		t.Errorf("similar text should rank higher: close=%v far=%v",
			Cosine(query, close), Cosine(query, far))
	}
}

func TestCosineIdentical(t *testing.T) {
	v := Embed("replay snapshot")

	if sim := Cosine(v, v); math.Abs(sim-1) > 1e-9 {
		t.Errorf("Cosine(v, v) = %v, want 1", sim)
	}
}

func TestCosineMismatchedLengths(t *testing.T) {
	if sim := Cosine([]float64{1, 0}, []float64{1}); sim != 0 {
		t.Errorf("Cosine = %v, want 0", sim)
	}
}
