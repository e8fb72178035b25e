package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"crc-news/models"
)

// Classification is the structured answer of a scoring backend.
type Classification struct {
	Tags      []string `json:"tags"`
	Relevance int      `json:"relevance"`
	Reason    string   `json:"reason"`
	Summary   string   `json:"summary"`
}

// Classifier scores a document for colorectal-cancer relevance.
type Classifier interface {
	Classify(ctx context.Context, doc Document) (Classification, error)
}

// Generator writes a short neutral excerpt for an article.
type Generator interface {
	Generate(ctx context.Context, title, text string) (string, error)
}

// ParseClassification decodes a backend answer. Unknown fields, trailing data,
// or an out-of-range relevance yield a ClassificationParseError. Tags outside
// the vocabulary are dropped.
func ParseClassification(raw string) (Classification, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(raw))))
	dec.DisallowUnknownFields()

	var c Classification
	if err := dec.Decode(&c); err != nil {
		return Classification{}, &ClassificationParseError{Raw: raw, Err: err}
	}
	if dec.More() {
		return Classification{}, &ClassificationParseError{Raw: raw, Err: fmt.Errorf("trailing data after object")}
	}
	if c.Relevance < 0 || c.Relevance > 10 {
		return Classification{}, &ClassificationParseError{Raw: raw, Err: fmt.Errorf("relevance %d out of range 0-10", c.Relevance)}
	}

	tags := make([]string, 0, len(c.Tags))
	for _, t := range c.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if models.IsTopicTag(t) {
			tags = append(tags, t)
		}
	}
	c.Tags = tags
	c.Reason = strings.TrimSpace(c.Reason)
	c.Summary = strings.TrimSpace(c.Summary)
	return c, nil
}
