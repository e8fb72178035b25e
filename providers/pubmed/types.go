// Package pubmed fetches recent colorectal-cancer literature from NCBI E-utilities.
package pubmed

import (
	"encoding/xml"
	"strings"
)

// ESearchResponse is the JSON answer of esearch.
type ESearchResponse struct {
	ESearchResult struct {
		Count  string   `json:"count"`
		IdList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// PubmedArticleSet is the XML document returned by a batch efetch.
type PubmedArticleSet struct {
	XMLName       xml.Name        `xml:"PubmedArticleSet"`
	PubmedArticle []PubmedArticle `xml:"PubmedArticle"`
}

// PubmedArticle is one record of the efetch answer.
type PubmedArticle struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title    InnerText `xml:"ArticleTitle"`
			Abstract struct {
				Text []InnerText `xml:"AbstractText"`
			} `xml:"Abstract"`
			Journal struct {
				Title   string `xml:"Title"`
				PubDate struct {
					Year        string `xml:"Year"`
					Month       string `xml:"Month"`
					Day         string `xml:"Day"`
					MedlineDate string `xml:"MedlineDate"`
				} `xml:"JournalIssue>PubDate"`
			} `xml:"Journal"`
			ArticleDate []struct {
				Year  string `xml:"Year"`
				Month string `xml:"Month"`
				Day   string `xml:"Day"`
			} `xml:"ArticleDate"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
}

// InnerText collects the character data of an element including nested markup such as <i> or <sup>.
type InnerText string

// UnmarshalXML flattens the element's content to plain text.
func (t *InnerText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch v := tok.(type) {
		case xml.CharData:
			b.Write(v)
		case xml.EndElement:
			if v.Name == start.Name {
				*t = InnerText(strings.TrimSpace(b.String()))
				return nil
			}
		}
	}
}
