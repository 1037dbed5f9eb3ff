package retrieve

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// hashVector embeds text as a feature-hashed bag of words. Tokens are
// lowercased, split on non-alphanumerics, hashed into dims buckets and the
// result is L2-normalized so graph distances behave like cosine distance.
func hashVector(text string, dims int) []float32 {
	vec := make([]float32, dims)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[int(h.Sum32())%dims]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	toks := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			toks = append(toks, f)
		}
	}
	return toks
}
