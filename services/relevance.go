package services

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"crc-news/models"
)

// AcceptScore is the minimum classifier score that admits an item on its own.
const AcceptScore = 5

// MaxClassifierChars bounds the body text sent to the scoring backend.
const MaxClassifierChars = 12000

var (
	positiveRE = regexp.MustCompile(`(?i)\b(colorectal|colon cancer|rectal cancer|bowel cancer|colonoscop\w*|sigmoidoscop\w*|fecal immunochemical|faecal immunochemical|fit test\w*|stool[- ]based|stool dna|cologuard|colon polyps?|adenomas?|crc)\b`)
	negativeRE = regexp.MustCompile(`(?i)\b(hepatitis|hepatocellular|liver cancer|gastric|stomach cancer|o?esophageal|pancreatic|anal cancer|veterinary|canine|feline)\b`)

	policyRE    = regexp.MustCompile(`(?i)\b(uspstf|guidelines?|recommendations?|policy|policies|medicare|medicaid|insurance|coverage|legislation|legislators?|(senate|house|assembly) bills?|bills? (would|requiring|to require)|(new|state|federal) laws?|signed into law|cms|reimburse\w*|mandate\w*)\b`)
	awarenessRE = regexp.MustCompile(`(?i)\b(awareness|campaigns?|fundrais\w*|(charity|awareness|fundraising) walks?|walks? (for|to end|against)|5k|gala|advocacy|ambassador|survivor stor\w*|dress in blue)\b`)
)

// topicRules maps each vocabulary tag to the keywords that imply it.
var topicRules = map[string]*regexp.Regexp{
	"screening":      regexp.MustCompile(`(?i)\b(screening|screened|early detection)\b`),
	"colonoscopy":    regexp.MustCompile(`(?i)\b(colonoscop\w*|sigmoidoscop\w*)\b`),
	"stool-tests":    regexp.MustCompile(`(?i)\b(fit tests?|fit kits?|fecal immunochemical|faecal immunochemical|stool[- ]based|stool dna|cologuard|fobt)\b`),
	"blood-tests":    regexp.MustCompile(`(?i)\b(blood test|blood-based|liquid biopsy|ctdna|shield test)\b`),
	"early-onset":    regexp.MustCompile(`(?i)\b(early[- ]onset|young adults?|under 50|younger than 50)\b`),
	"treatment":      regexp.MustCompile(`(?i)\b(treatment|therapy|chemotherapy|immunotherapy|surgery|resection|radiation)\b`),
	"clinical-trial": regexp.MustCompile(`(?i)\b(clinical trial|randomi[sz]ed|phase (i{1,3}|[123]))\b`),
	"prevention":     regexp.MustCompile(`(?i)\b(prevention|prevent\w*|risk reduction|aspirin)\b`),
	"diet-lifestyle": regexp.MustCompile(`(?i)\b(diet\w*|fiber|fibre|red meat|processed meat|alcohol|obesity|exercise|physical activity)\b`),
	"genetics":       regexp.MustCompile(`(?i)\b(genetic\w*|lynch syndrome|hereditary|germline|mutation\w*|fap)\b`),
	"guidelines":     regexp.MustCompile(`(?i)\b(guidelines?|recommendations?|uspstf)\b`),
	"policy":         regexp.MustCompile(`(?i)\b(policy|medicare|medicaid|insurance|coverage|legislation|reimburse\w*)\b`),
	"awareness":      regexp.MustCompile(`(?i)\b(awareness|campaigns?|advocacy)\b`),
	"survivorship":   regexp.MustCompile(`(?i)\b(survivors?|survivorship|quality of life)\b`),
	"ai-diagnostics": regexp.MustCompile(`(?i)\b(artificial intelligence|machine learning|deep learning|ai[- ]assisted|computer[- ]aided)\b`),
	"disparities":    regexp.MustCompile(`(?i)\b(disparit\w*|underserved|equity|rural|black patients|minority)\b`),
}

// Document is the text the relevance filter looks at.
type Document struct {
	Title string
	Text  string
}

func (d Document) combined() string {
	return d.Title + "\n" + d.Text
}

// Decision is the outcome of relevance evaluation for one candidate.
type Decision struct {
	Accepted bool
	// Deterministic is true when the keyword gate alone admitted the item.
	Deterministic bool
	Score         int
	Tags          []string
	Category      models.Category
	Reason        string
	// Summary is a classifier-provided excerpt; may be empty.
	Summary string
}

// RelevanceFilter decides whether a candidate is about colorectal cancer.
// With a nil Classifier it runs the keyword gate only.
type RelevanceFilter struct {
	Classifier Classifier
	Logger     *zap.Logger
}

// NewRelevanceFilter creates a filter. classifier may be nil.
func NewRelevanceFilter(classifier Classifier, logger *zap.Logger) *RelevanceFilter {
	return &RelevanceFilter{Classifier: classifier, Logger: logger}
}

// MatchesDeterministic applies the keyword gate: a positive term must match and no negative term may.
func MatchesDeterministic(doc Document) bool {
	text := doc.combined()
	return positiveRE.MatchString(text) && !negativeRE.MatchString(text)
}

// DeterministicScore is 0 for rejected text, otherwise it grows with the number of distinct positive terms.
func DeterministicScore(doc Document) int {
	if !MatchesDeterministic(doc) {
		return 0
	}
	distinct := make(map[string]bool)
	for _, m := range positiveRE.FindAllString(doc.combined(), -1) {
		distinct[strings.ToLower(m)] = true
	}
	score := 4 + 2*len(distinct)
	if score > 10 {
		score = 10
	}
	return score
}

// Categorize assigns a category with fixed precedence: policy, then awareness, then clinical research.
func Categorize(doc Document) models.Category {
	text := doc.combined()
	switch {
	case policyRE.MatchString(text):
		return models.CategoryScreeningPolicy
	case awarenessRE.MatchString(text):
		return models.CategoryAwareness
	default:
		return models.CategoryClinicalResearch
	}
}

// DeterministicTags returns the sorted vocabulary tags whose keywords appear in doc.
func DeterministicTags(doc Document) []string {
	text := doc.combined()
	var tags []string
	for tag, re := range topicRules {
		if re.MatchString(text) {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}

// Evaluate runs the keyword gate and, when a classifier is configured and useClassifier is set,
// the scored path. An item is accepted if either path accepts it.
func (f *RelevanceFilter) Evaluate(ctx context.Context, doc Document, useClassifier bool) Decision {
	decision := Decision{
		Deterministic: MatchesDeterministic(doc),
		Score:         DeterministicScore(doc),
		Tags:          DeterministicTags(doc),
		Category:      Categorize(doc),
	}
	if decision.Deterministic {
		decision.Reason = "keyword match"
	}

	if useClassifier && f.Classifier != nil {
		doc.Text = TruncateRunes(doc.Text, MaxClassifierChars)
		result, err := f.Classifier.Classify(ctx, doc)
		if err != nil {
			// an unusable answer counts as relevance 0 and leaves the keyword decision alone
			f.logger().Warn("Classification failed, using keyword decision", zap.String("title", doc.Title), zap.Error(err))
		} else {
			if result.Relevance > decision.Score {
				decision.Score = result.Relevance
			}
			decision.Tags = mergeTags(decision.Tags, result.Tags)
			decision.Summary = result.Summary
			if !decision.Deterministic && result.Relevance >= AcceptScore {
				decision.Reason = result.Reason
			}
		}
	}

	decision.Accepted = decision.Deterministic || decision.Score >= AcceptScore
	if !decision.Accepted {
		decision.Reason = "no colorectal signal"
		decision.Score = 0
		decision.Summary = ""
	}
	return decision
}

func (f *RelevanceFilter) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

func mergeTags(a, b []string) []string {
	set := make(map[string]bool, len(a)+len(b))
	for _, t := range a {
		set[t] = true
	}
	for _, t := range b {
		if models.IsTopicTag(t) {
			set[t] = true
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
