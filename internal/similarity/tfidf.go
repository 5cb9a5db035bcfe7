package similarity

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these",
		"those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into",
		"about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own",
		"same", "too", "very", "can", "will", "just", "don", "should", "now", "i", "you", "we", "they",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// sparse is an L2-normalized TF-IDF vector with ascending term indices
type sparse struct {
	idx []int
	val []float64
}

func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

// tfidfVectors builds a vocabulary over corpus and returns one vector per
// text. IDF is smoothed: ln((1+N)/(1+df)) + 1.
func tfidfVectors(corpus []string) []sparse {
	tokenized := make([][]string, len(corpus))
	df := make(map[string]int)
	for i, text := range corpus {
		tokenized[i] = tokenize(text)
		seen := make(map[string]struct{})
		for _, tok := range tokenized[i] {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	vocab := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	n := float64(len(corpus))
	for i, term := range terms {
		vocab[term] = i
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	out := make([]sparse, len(corpus))
	for i, tokens := range tokenized {
		if len(tokens) == 0 {
			continue
		}
		tf := make(map[int]int)
		for _, tok := range tokens {
			tf[vocab[tok]]++
		}
		v := sparse{idx: make([]int, 0, len(tf))}
		for idx := range tf {
			v.idx = append(v.idx, idx)
		}
		sort.Ints(v.idx)
		v.val = make([]float64, len(v.idx))
		var norm float64
		for k, idx := range v.idx {
			w := float64(tf[idx]) / float64(len(tokens)) * idf[idx]
			v.val[k] = w
			norm += w * w
		}
		norm = math.Sqrt(norm)
		for k := range v.val {
			v.val[k] /= norm
		}
		out[i] = v
	}
	return out
}

// dot of two normalized sparse vectors, which is their cosine
func (a sparse) dot(b sparse) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(a.idx) && j < len(b.idx) {
		switch {
		case a.idx[i] == b.idx[j]:
			sum += a.val[i] * b.val[j]
			i++
			j++
		case a.idx[i] < b.idx[j]:
			i++
		default:
			j++
		}
	}
	if sum > 1 {
		return 1
	}
	return sum
}
