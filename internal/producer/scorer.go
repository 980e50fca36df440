package producer

import (
	"regexp"
	"strings"

	"github.com/jonreiter/govader"
	"github.com/russross/blackfriday/v2"
)

// Scorer estimates candidate quality in [0,1]. Scores are informational,
// surfaced to review tooling only; nothing in the pipeline gates on them.
type Scorer interface {
	Score(text string, attempt int) float64
}

// HeuristicScorer mixes length, punctuation, sentiment intensity and attempt
// number into a rough confidence value.
type HeuristicScorer struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

var linkPattern = regexp.MustCompile(`\[(.*?)\]\((https?:\/\/[^\s\)]+)\)`)
var urlPattern = regexp.MustCompile(`https?://\S+|www\.\S+`)

func removeLinks(input string) string {
	input = linkPattern.ReplaceAllString(input, "$1")
	return urlPattern.ReplaceAllString(input, "")
}

// convertMarkdownToText flattens any markdown the model emitted before
// scoring.
func convertMarkdownToText(input string) string {
	output := blackfriday.Run([]byte(input), blackfriday.WithNoExtensions())
	plainText := strings.Join(strings.Fields(string(output)), " ")

	return removeLinks(plainText)
}

func (s *HeuristicScorer) Score(text string, attempt int) float64 {
	plain := convertMarkdownToText(text)

	score := 0.5

	// A comfortable card length reads best in the swipe UI.
	if n := len(plain); n >= 40 && n <= 180 {
		score += 0.2
	}

	if strings.HasSuffix(strings.TrimSpace(plain), "!") || strings.HasSuffix(strings.TrimSpace(plain), "?") {
		score += 0.1
	}

	sentiment := s.analyzer.PolarityScores(plain)
	if compound := sentiment.Compound; compound >= 0.5 || compound <= -0.5 {
		score += 0.2
	}

	// Later attempts came from hotter sampling and tend to be noisier.
	score -= 0.1 * float64(attempt-1)

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
