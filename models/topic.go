package models

// TopicTags is the closed vocabulary for NewsItem.TopicTags.
var TopicTags = []string{
	"screening",
	"colonoscopy",
	"stool-tests",
	"blood-tests",
	"early-onset",
	"treatment",
	"clinical-trial",
	"prevention",
	"diet-lifestyle",
	"genetics",
	"guidelines",
	"policy",
	"awareness",
	"survivorship",
	"ai-diagnostics",
	"disparities",
}

// IsTopicTag reports whether tag belongs to the vocabulary.
func IsTopicTag(tag string) bool {
	for _, t := range TopicTags {
		if t == tag {
			return true
		}
	}
	return false
}
