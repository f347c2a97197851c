// Package checks scores submitted content across the fixed automated
// dimensions. Scoring is pure: identical content and configuration always
// produce identical output.
package checks

import (
	"context"
	"math"
	"net/url"
	"sort"
	"strings"
	"unicode"

	"github.com/contentforge/review-api/internal/model"
)

// Content is the unit of submitted content under review.
type Content struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	SiteHost string   `json:"site_host"`
	Links    []string `json:"links"`
}

// ReferenceSource is a known external text the plagiarism check compares
// against.
type ReferenceSource struct {
	Name string
	Text string
}

// Thresholds holds the configured pass minimums per dimension.
type Thresholds struct {
	PlagiarismMaxScore    float64
	GrammarMinScore       float64
	SEOMinScore           float64
	MinWordCount          int
	MinUniqueWordRatio    float64
	MinSentenceVariety    float64
	MinParagraphStructure float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		PlagiarismMaxScore:    15,
		GrammarMinScore:       80,
		SEOMinScore:           60,
		MinWordCount:          300,
		MinUniqueWordRatio:    35,
		MinSentenceVariety:    25,
		MinParagraphStructure: 50,
	}
}

type Aggregator struct {
	thresholds Thresholds
	sources    []ReferenceSource
}

func NewAggregator(thresholds Thresholds, sources []ReferenceSource) *Aggregator {
	return &Aggregator{thresholds: thresholds, sources: sources}
}

// Run scores every dimension. The context is honored between dimensions so a
// caller-imposed deadline cuts long runs short.
func (a *Aggregator) Run(ctx context.Context, content Content) (model.AutomatedChecks, error) {
	results := make(model.AutomatedChecks, 5)

	steps := []struct {
		dim CheckFn
	}{
		{a.plagiarism},
		{a.grammar},
		{a.seo},
		{a.links},
		{a.contentQuality},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dim, result := step.dim(content)
		results[dim] = result
	}
	return results, nil
}

// CheckFn scores one dimension.
type CheckFn func(Content) (model.CheckDimension, model.DimensionResult)

func (a *Aggregator) plagiarism(content Content) (model.CheckDimension, model.DimensionResult) {
	contentShingles := shingles(tokenize(content.Body), 4)

	type match struct {
		Name       string  `json:"name"`
		Similarity float64 `json:"similarity"`
	}
	var matches []match
	var worst float64

	for _, src := range a.sources {
		srcShingles := shingles(tokenize(src.Text), 4)
		sim := overlapPercent(contentShingles, srcShingles)
		if sim > 0 {
			matches = append(matches, match{Name: src.Name, Similarity: round1(sim)})
		}
		if sim > worst {
			worst = sim
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })

	score := round1(worst)
	return model.DimensionPlagiarism, model.DimensionResult{
		Score:  score,
		Passed: score <= a.thresholds.PlagiarismMaxScore,
		Details: model.JSONMap{
			"matched_sources": matches,
		},
	}
}

func (a *Aggregator) grammar(content Content) (model.CheckDimension, model.DimensionResult) {
	sentences := splitSentences(content.Body)
	words := strings.Fields(content.Body)

	var errors, warnings int

	// Repeated words and a bare lowercase "i" count as errors.
	prev := ""
	for _, w := range words {
		lw := strings.ToLower(trimPunct(w))
		if lw != "" && lw == prev {
			errors++
		}
		if trimPunct(w) == "i" {
			errors++
		}
		prev = lw
	}

	for _, s := range sentences {
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			continue
		}
		first := []rune(trimmed)[0]
		if unicode.IsLetter(first) && unicode.IsLower(first) {
			errors++
		}
		if len(strings.Fields(trimmed)) > 40 {
			warnings++
		}
	}

	warnings += strings.Count(content.Body, "  ")
	warnings += strings.Count(content.Body, "!!")

	score := 100 - float64(errors)*10 - float64(warnings)*3
	if score < 0 {
		score = 0
	}
	return model.DimensionGrammar, model.DimensionResult{
		Score:  score,
		Passed: errors == 0 && score >= a.thresholds.GrammarMinScore,
		Details: model.JSONMap{
			"errors":   errors,
			"warnings": warnings,
		},
	}
}

func (a *Aggregator) seo(content Content) (model.CheckDimension, model.DimensionResult) {
	words := tokenize(content.Body)
	sentences := splitSentences(content.Body)
	if len(words) == 0 || len(sentences) == 0 {
		return model.DimensionSEO, model.DimensionResult{
			Score:   0,
			Passed:  false,
			Details: model.JSONMap{"grade": "F", "readability": "unreadable"},
		}
	}

	syllables := 0
	for _, w := range words {
		syllables += countSyllables(w)
	}

	// Flesch reading ease, clamped to 0..100.
	score := 206.835 -
		1.015*(float64(len(words))/float64(len(sentences))) -
		84.6*(float64(syllables)/float64(len(words)))
	score = clamp(score, 0, 100)
	score = round1(score)

	grade := "F"
	switch {
	case score >= 80:
		grade = "A"
	case score >= 60:
		grade = "B"
	case score >= 40:
		grade = "C"
	case score >= 20:
		grade = "D"
	}

	return model.DimensionSEO, model.DimensionResult{
		Score:  score,
		Passed: score >= a.thresholds.SEOMinScore,
		Details: model.JSONMap{
			"grade":              grade,
			"words_per_sentence": round1(float64(len(words)) / float64(len(sentences))),
		},
	}
}

func (a *Aggregator) links(content Content) (model.CheckDimension, model.DimensionResult) {
	var internal, external int
	var broken []string

	for _, link := range content.Links {
		if strings.HasPrefix(link, "/") {
			internal++
			continue
		}
		u, err := url.Parse(link)
		if err != nil || u.Scheme == "" || u.Host == "" {
			broken = append(broken, link)
			continue
		}
		if content.SiteHost != "" && strings.EqualFold(u.Host, content.SiteHost) {
			internal++
		} else {
			external++
		}
	}

	score := 100.0
	if len(content.Links) > 0 {
		score = round1(float64(len(content.Links)-len(broken)) / float64(len(content.Links)) * 100)
	}
	return model.DimensionLinks, model.DimensionResult{
		Score:  score,
		Passed: len(broken) == 0,
		Details: model.JSONMap{
			"internal": internal,
			"external": external,
			"broken":   broken,
		},
	}
}

func (a *Aggregator) contentQuality(content Content) (model.CheckDimension, model.DimensionResult) {
	words := tokenize(content.Body)
	wordCount := len(words)

	unique := make(map[string]struct{}, wordCount)
	for _, w := range words {
		unique[w] = struct{}{}
	}
	uniqueRatio := 0.0
	if wordCount > 0 {
		uniqueRatio = float64(len(unique)) / float64(wordCount) * 100
	}

	variety := sentenceVariety(content.Body)
	structure := paragraphStructure(content.Body)

	lengthRatio := clamp(float64(wordCount)/float64(a.thresholds.MinWordCount)*100, 0, 100)
	score := round1((lengthRatio + uniqueRatio + variety + structure) / 4)

	passed := wordCount >= a.thresholds.MinWordCount &&
		uniqueRatio >= a.thresholds.MinUniqueWordRatio &&
		variety >= a.thresholds.MinSentenceVariety &&
		structure >= a.thresholds.MinParagraphStructure

	return model.DimensionContentQuality, model.DimensionResult{
		Score:  score,
		Passed: passed,
		Details: model.JSONMap{
			"word_count":          wordCount,
			"unique_words":        len(unique),
			"sentence_variety":    round1(variety),
			"paragraph_structure": round1(structure),
		},
	}
}

// sentenceVariety is the coefficient of variation of sentence lengths,
// expressed as a percentage. Uniform sentence lengths score near zero.
func sentenceVariety(body string) float64 {
	sentences := splitSentences(body)
	if len(sentences) < 2 {
		return 0
	}
	lengths := make([]float64, 0, len(sentences))
	var sum float64
	for _, s := range sentences {
		n := float64(len(strings.Fields(s)))
		if n == 0 {
			continue
		}
		lengths = append(lengths, n)
		sum += n
	}
	if len(lengths) < 2 {
		return 0
	}
	mean := sum / float64(len(lengths))
	var variance float64
	for _, n := range lengths {
		variance += (n - mean) * (n - mean)
	}
	variance /= float64(len(lengths))
	return clamp(math.Sqrt(variance)/mean*100, 0, 100)
}

// paragraphStructure is the share of paragraphs with a reasonable sentence
// count (2 to 8).
func paragraphStructure(body string) float64 {
	paragraphs := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n")
	var total, wellFormed int
	for _, p := range paragraphs {
		if strings.TrimSpace(p) == "" {
			continue
		}
		total++
		n := len(splitSentences(p))
		if n >= 2 && n <= 8 {
			wellFormed++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(wellFormed) / float64(total) * 100
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			sentences = append(sentences, p)
		}
	}
	return sentences
}

func shingles(words []string, n int) map[string]struct{} {
	out := make(map[string]struct{})
	if len(words) < n {
		if len(words) > 0 {
			out[strings.Join(words, " ")] = struct{}{}
		}
		return out
	}
	for i := 0; i+n <= len(words); i++ {
		out[strings.Join(words[i:i+n], " ")] = struct{}{}
	}
	return out
}

// overlapPercent is the share of content shingles also present in the source.
func overlapPercent(content, source map[string]struct{}) float64 {
	if len(content) == 0 {
		return 0
	}
	var hits int
	for s := range content {
		if _, ok := source[s]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(content)) * 100
}

func countSyllables(word string) int {
	const vowels = "aeiouy"
	count := 0
	prevVowel := false
	for _, r := range word {
		isVowel := strings.ContainsRune(vowels, r)
		if isVowel && !prevVowel {
			count++
		}
		prevVowel = isVowel
	}
	if count == 0 {
		count = 1
	}
	return count
}

func trimPunct(w string) string {
	return strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
