package models

import (
	"time"
)

// Category is the editorial bucket an item is filed under.
type Category string

const (
	CategoryClinicalResearch Category = "Clinical Research"
	CategoryScreeningPolicy  Category = "Screening & Policy"
	CategoryAwareness        Category = "Awareness & Campaigns"
)

// Categories lists every valid category in display order.
var Categories = []Category{CategoryClinicalResearch, CategoryScreeningPolicy, CategoryAwareness}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Status is the moderation state of a stored item.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusHidden   Status = "hidden"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusHidden:
		return true
	}
	return false
}

// NewsItem is the persisted, curated record. URLKey is the upsert identity.
type NewsItem struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title        string `json:"title" gorm:"type:text;not null"`
	URL          string `json:"url" gorm:"type:text;not null"`
	URLKey       string `json:"url_key" gorm:"column:url_key;uniqueIndex;not null"`
	SourceName   string `json:"source_name"`
	SourceDomain string `json:"source_domain" gorm:"index"`

	Category    Category   `json:"category" gorm:"type:text;index"`
	PublishedAt *time.Time `json:"published_at,omitempty" gorm:"index"`
	Summary     string     `json:"summary" gorm:"type:text"`
	Venue       string     `json:"venue,omitempty" gorm:"type:text"`

	TopicTags      []string `json:"topic_tags" gorm:"type:jsonb;serializer:json"`
	RelevanceScore int      `json:"relevance_score"`

	Status Status `json:"status" gorm:"type:text;index;default:'pending'"`
	Hash   string `json:"hash" gorm:"size:64"`
}

// TableName gives GORM the explicit table name.
func (NewsItem) TableName() string {
	return "news_items"
}
