package checks

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentforge/review-api/internal/model"
)

func TestRunScoresAllDimensions(t *testing.T) {
	agg := NewAggregator(DefaultThresholds(), nil)

	results, err := agg.Run(context.Background(), Content{
		Title: "A title",
		Body:  "The cat sat on the mat. The dog ran fast today.",
	})
	require.NoError(t, err)

	for _, dim := range []model.CheckDimension{
		model.DimensionPlagiarism,
		model.DimensionGrammar,
		model.DimensionSEO,
		model.DimensionLinks,
		model.DimensionContentQuality,
	} {
		_, ok := results[dim]
		assert.True(t, ok, "missing dimension %s", dim)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	agg := NewAggregator(DefaultThresholds(), []ReferenceSource{
		{Name: "blog", Text: "some shared reference text that repeats across the web"},
	})
	content := Content{
		Body:  "Fresh writing with its own voice. Nothing here is copied from anywhere else.",
		Links: []string{"/about", "https://example.com/page"},
	}

	first, err := agg.Run(context.Background(), content)
	require.NoError(t, err)
	second, err := agg.Run(context.Background(), content)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRunHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agg := NewAggregator(DefaultThresholds(), nil)
	_, err := agg.Run(ctx, Content{Body: "anything"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlagiarismDetectsCopiedText(t *testing.T) {
	source := "The quick brown fox jumps over the lazy dog while the sun sets behind distant hills."
	agg := NewAggregator(DefaultThresholds(), []ReferenceSource{{Name: "known", Text: source}})

	_, copied := agg.plagiarism(Content{Body: source})
	assert.Equal(t, 100.0, copied.Score)
	assert.False(t, copied.Passed)

	_, original := agg.plagiarism(Content{
		Body: "Completely different sentences about cooking pasta with fresh garlic and ripe tomatoes in summer.",
	})
	assert.Equal(t, 0.0, original.Score)
	assert.True(t, original.Passed)
}

func TestGrammarFlagsErrors(t *testing.T) {
	agg := NewAggregator(DefaultThresholds(), nil)

	_, clean := agg.grammar(Content{Body: "This is fine. It reads well."})
	assert.True(t, clean.Passed)
	assert.Equal(t, 100.0, clean.Score)

	// Lowercase sentence start and a repeated word are both errors, and any
	// error fails the dimension regardless of score.
	_, dirty := agg.grammar(Content{Body: "this starts wrong. The the word repeats."})
	assert.False(t, dirty.Passed)
	assert.Equal(t, 2, dirty.Details["errors"])
}

func TestSEOEmptyBodyFails(t *testing.T) {
	agg := NewAggregator(DefaultThresholds(), nil)

	_, result := agg.seo(Content{Body: ""})
	assert.False(t, result.Passed)
	assert.Equal(t, 0.0, result.Score)
}

func TestSEOSimpleTextScoresHigh(t *testing.T) {
	agg := NewAggregator(DefaultThresholds(), nil)

	_, result := agg.seo(Content{Body: "The cat sat. The dog ran."})
	assert.True(t, result.Passed)
	assert.Equal(t, "A", result.Details["grade"])
}

func TestLinksClassification(t *testing.T) {
	agg := NewAggregator(DefaultThresholds(), nil)

	_, result := agg.links(Content{
		SiteHost: "mysite.com",
		Links: []string{
			"/pricing",
			"https://mysite.com/docs",
			"https://other.com/article",
			"not a url at all",
		},
	})
	assert.False(t, result.Passed)
	assert.Equal(t, 2, result.Details["internal"])
	assert.Equal(t, 1, result.Details["external"])
	assert.Len(t, result.Details["broken"], 1)
}

func TestLinksNoLinksPasses(t *testing.T) {
	agg := NewAggregator(DefaultThresholds(), nil)

	_, result := agg.links(Content{})
	assert.True(t, result.Passed)
	assert.Equal(t, 100.0, result.Score)
}

func TestContentQualityShortBodyFails(t *testing.T) {
	agg := NewAggregator(DefaultThresholds(), nil)

	_, result := agg.contentQuality(Content{Body: "Too short."})
	assert.False(t, result.Passed)
	assert.Equal(t, 2, result.Details["word_count"])
}

func TestContentQualityLongVariedBodyPasses(t *testing.T) {
	thresholds := DefaultThresholds()
	thresholds.MinWordCount = 30

	agg := NewAggregator(thresholds, nil)

	paragraph := "Short one here. This sentence is noticeably longer than the one before it, adding variation. Another short one. " +
		"Finally a sentence of moderate length closes the thought nicely."
	body := strings.Join([]string{paragraph, paragraph}, "\n\n")

	_, result := agg.contentQuality(Content{Body: body})
	assert.True(t, result.Passed, "details: %v", result.Details)
}

func TestOverallPassedRequiresEveryDimension(t *testing.T) {
	all := model.AutomatedChecks{
		model.DimensionGrammar: {Score: 90, Passed: true},
		model.DimensionSEO:     {Score: 70, Passed: true},
	}
	assert.True(t, all.OverallPassed())

	all[model.DimensionLinks] = model.DimensionResult{Score: 50, Passed: false}
	assert.False(t, all.OverallPassed())
}
