package europepmc

import "time"

// SearchResponse is the top-level Europe PMC search answer.
type SearchResponse struct {
	HitCount       int    `json:"hitCount"`
	NextCursorMark string `json:"nextCursorMark"`
	ResultList     struct {
		Result []Article `json:"result"`
	} `json:"resultList"`
}

// Article is one search hit.
type Article struct {
	ID                   string `json:"id"`
	Source               string `json:"source"`
	PMID                 string `json:"pmid"`
	DOI                  string `json:"doi"`
	Title                string `json:"title"`
	JournalTitle         string `json:"journalTitle"`
	FirstPublicationDate string `json:"firstPublicationDate"`
	AbstractText         string `json:"abstractText"`
	PubTypeList          struct {
		PubType []string `json:"pubType"`
	} `json:"pubTypeList"`
}

func parseEuroDate(dateStr string) *time.Time {
	layouts := []string{"2006-01-02", "2006-01", "2006"}
	for _, layout := range layouts {
		t, err := time.Parse(layout, dateStr)
		if err == nil {
			return &t
		}
	}
	return nil
}
