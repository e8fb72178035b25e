package services

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	htmlTagRE     = regexp.MustCompile(`<[a-zA-Z/!][^>]*>`)
	hyphenBreakRE = regexp.MustCompile(`([\p{L}\p{N}])-\r?\n([\p{Ll}])`)
	whitespaceRE  = regexp.MustCompile(`\s+`)
	// sentence end: terminal punctuation, optional closing quote/bracket, then space and an upper-case letter or digit
	sentenceEndRE = regexp.MustCompile(`[.!?]["'”’)\]]?\s+["'“‘(]?[\p{Lu}\p{N}]`)

	ligatures = strings.NewReplacer(
		"ﬁ", "fi",
		"ﬂ", "fl",
		"ﬀ", "ff",
		"ﬃ", "ffi",
		"ﬄ", "ffl",
		"ﬆ", "st",
	)
)

// CleanText turns feed or page text into one normalized line: markup removed,
// entities decoded, Unicode NFKC, whitespace collapsed.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	if htmlTagRE.MatchString(s) {
		s = stripHTML(s)
	}
	s = html.UnescapeString(s)
	s = ligatures.Replace(s)
	s, _, _ = transform.String(transform.Chain(norm.NFKC), s)
	s = hyphenBreakRE.ReplaceAllString(s, "$1$2")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}

func stripHTML(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return htmlTagRE.ReplaceAllString(s, " ")
	}
	doc.Find("script, style, noscript, iframe").Remove()
	// keep block boundaries as spaces so words do not run together
	doc.Find("p, br, div, li, h1, h2, h3, h4, td").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})
	return doc.Text()
}

// SplitSentences splits cleaned text into sentences.
func SplitSentences(s string) []string {
	var out []string
	for {
		loc := sentenceEndRE.FindStringIndex(s)
		if loc == nil {
			break
		}
		// the match ends on the first character of the next sentence
		cut := loc[1] - 1
		for cut > loc[0] && !isASCIISpace(s[cut-1]) {
			cut--
		}
		if cut == loc[0] {
			cut = loc[1] - 1
		}
		if sentence := strings.TrimSpace(s[:cut]); sentence != "" {
			out = append(out, sentence)
		}
		s = s[cut:]
	}
	if rest := strings.TrimSpace(s); rest != "" {
		out = append(out, rest)
	}
	return out
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func isASCIISpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
