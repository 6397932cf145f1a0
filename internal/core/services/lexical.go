package services

import (
	"maps"
	"math"
	"slices"
	"sort"
	"strings"
	"unicode"
)

// tokenizer splits text into lower-cased terms with stopwords removed.
type tokenizer struct {
	stopwords map[string]struct{}
}

func newTokenizer() *tokenizer {
	return &tokenizer{stopwords: defaultStopwords()}
}

// Tokenize returns the indexable terms of text in order of appearance.
func (t *tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		word = strings.ToLower(word)
		if len([]rune(word)) < 2 {
			continue
		}
		if _, stop := t.stopwords[word]; stop {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// splitWords splits text on anything that is not a letter, digit or underscore.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

func defaultStopwords() map[string]struct{} {
	stops := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with", "this",
		"have", "had", "but", "not", "you", "your", "we", "our",
		"they", "their", "she", "her", "his", "if", "or", "so",
		"no", "can", "do", "does", "did", "been", "being", "would",
		"could", "should", "may", "might", "must", "shall", "which",
		"who", "whom", "what", "when", "where", "why", "how", "all",
		"each", "every", "both", "few", "more", "most", "other",
		"some", "such", "than", "too", "very", "just", "also",
		"i", "me", "my", "am", "any", "there", "here", "into",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}

// lexicalModel is a TF-IDF model fit over the chunk corpus.
// Document vectors are raw term counts weighted by smoothed IDF and
// L2-normalised, so the dot product of two vectors is their cosine.
type lexicalModel struct {
	tok *tokenizer
	idf map[string]float64
}

// fitLexical computes IDF over docs and returns the weighted vector of each doc.
func fitLexical(docs []string) (*lexicalModel, []map[string]float64) {
	m := &lexicalModel{tok: newTokenizer(), idf: make(map[string]float64)}

	counts := make([]map[string]int, len(docs))
	df := make(map[string]int)
	for i, d := range docs {
		counts[i] = termCounts(m.tok.Tokenize(d))
		for term := range counts[i] {
			df[term]++
		}
	}

	n := float64(len(docs))
	for term, f := range df {
		m.idf[term] = math.Log((1+n)/(1+float64(f))) + 1
	}

	vectors := make([]map[string]float64, len(docs))
	for i := range counts {
		vectors[i] = m.weigh(counts[i])
	}
	return m, vectors
}

// loadLexical restores a model from persisted IDF weights.
func loadLexical(idf map[string]float64) *lexicalModel {
	if idf == nil {
		idf = make(map[string]float64)
	}
	return &lexicalModel{tok: newTokenizer(), idf: idf}
}

// Transform weighs a query. Terms outside the vocabulary are dropped.
func (m *lexicalModel) Transform(text string) map[string]float64 {
	return m.weigh(termCounts(m.tok.Tokenize(text)))
}

func (m *lexicalModel) weigh(counts map[string]int) map[string]float64 {
	vec := make(map[string]float64, len(counts))
	var norm float64
	for _, term := range sortedKeys(counts) {
		idf, ok := m.idf[term]
		if !ok {
			continue
		}
		w := float64(counts[term]) * idf
		vec[term] = w
		norm += w * w
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for term := range vec {
		vec[term] /= norm
	}
	return vec
}

// IDF returns the model's vocabulary weights.
func (m *lexicalModel) IDF() map[string]float64 {
	return m.idf
}

// sparseDot returns the dot product of two sparse vectors. Terms are summed
// in sorted order so equal inputs always produce bit-identical scores.
func sparseDot(a, b map[string]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for _, term := range sortedKeys(a) {
		sum += a[term] * b[term]
	}
	return sum
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

func termCounts(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}

// topPositions returns the positions of the k highest scores, ties broken by
// ascending position.
func topPositions(scores []float64, k int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	if len(idx) > k {
		idx = idx[:k]
	}
	return idx
}
