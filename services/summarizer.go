package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	// MinExcerptRunes is the shortest excerpt worth showing.
	MinExcerptRunes = 60
	// MaxExcerptRunes bounds the deterministic excerpt.
	MaxExcerptRunes = 420
	maxSentences    = 3
)

var numberRE = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// SummaryInput is what the summarizer works from, in order of preference.
type SummaryInput struct {
	Title      string
	Snippet    string
	PageText   string
	SourceName string
	// Suggested is an excerpt already produced by the classifier, used instead of a second call.
	Suggested string
}

// Summarizer produces the short excerpt stored with an item.
type Summarizer struct {
	Generator Generator
	Logger    *zap.Logger
}

// NewSummarizer creates a summarizer. generator may be nil.
func NewSummarizer(generator Generator, logger *zap.Logger) *Summarizer {
	return &Summarizer{Generator: generator, Logger: logger}
}

// Excerpt returns the first one to three sentences of the best available text,
// or a read-the-source line when nothing long enough exists.
func Excerpt(in SummaryInput) string {
	for _, text := range []string{in.Snippet, in.PageText} {
		text = CleanText(text)
		if utf8.RuneCountInString(text) < MinExcerptRunes {
			continue
		}
		if excerpt := leadingSentences(text, in.Title); utf8.RuneCountInString(excerpt) >= MinExcerptRunes {
			return excerpt
		}
	}
	return FallbackExcerpt(in.SourceName)
}

// FallbackExcerpt points the reader at the source.
func FallbackExcerpt(source string) string {
	if strings.TrimSpace(source) == "" {
		return "Read the full article at the source for details."
	}
	return fmt.Sprintf("Read the full article at %s for details.", source)
}

// Summarize uses the generator when allowed and falls back to the deterministic excerpt
// on error, empty output, or output that introduces numbers absent from the source text.
func (s *Summarizer) Summarize(ctx context.Context, in SummaryInput, useGenerator bool) string {
	fallback := Excerpt(in)
	if !useGenerator || s.Generator == nil {
		return fallback
	}
	source := CleanText(in.Snippet + " " + in.PageText)
	if utf8.RuneCountInString(source) < MinExcerptRunes {
		return fallback
	}

	generated := in.Suggested
	if generated == "" {
		var err error
		generated, err = s.Generator.Generate(ctx, in.Title, source)
		if err != nil {
			s.logger().Warn("Excerpt generation failed, using extract", zap.String("title", in.Title), zap.Error(err))
			return fallback
		}
	}
	generated = CleanText(generated)
	if generated == "" {
		return fallback
	}
	if introducesNumbers(generated, in.Title+" "+source) {
		s.logger().Warn("Generated excerpt added figures not in source, using extract", zap.String("title", in.Title))
		return fallback
	}
	return TruncateRunes(generated, MaxExcerptRunes)
}

func (s *Summarizer) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// leadingSentences joins up to three sentences, skipping one that only repeats the title.
func leadingSentences(text, title string) string {
	sentences := SplitSentences(text)
	var picked []string
	length := 0
	for _, sentence := range sentences {
		if len(picked) == 0 && strings.EqualFold(strings.TrimRight(sentence, ".!? "), strings.TrimSpace(title)) {
			continue
		}
		n := utf8.RuneCountInString(sentence)
		if len(picked) > 0 && length+n+1 > MaxExcerptRunes {
			break
		}
		picked = append(picked, sentence)
		length += n + 1
		if len(picked) == maxSentences {
			break
		}
	}
	excerpt := strings.Join(picked, " ")
	if utf8.RuneCountInString(excerpt) > MaxExcerptRunes {
		excerpt = strings.TrimSpace(TruncateRunes(excerpt, MaxExcerptRunes-1)) + "…"
	}
	return excerpt
}

func introducesNumbers(generated, source string) bool {
	known := make(map[string]bool)
	for _, n := range numberRE.FindAllString(source, -1) {
		known[n] = true
	}
	for _, n := range numberRE.FindAllString(generated, -1) {
		if !known[n] {
			return true
		}
	}
	return false
}
