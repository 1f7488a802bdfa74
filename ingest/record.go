package ingest

import (
	"strings"
	"time"
)

// Record kinds produced by sources
const (
	KindProposal   = "proposal"
	KindDiscussion = "discussion"
	KindTweet      = "tweet"
	KindArticle    = "article"
	KindSentiment  = "sentiment"
)

// RawRecord is one item as reported by a source before normalization
type RawRecord struct {
	Kind        string    `json:"kind" yaml:"kind"`
	DAO         string    `json:"dao" yaml:"dao"`
	ExternalID  string    `json:"external_id" yaml:"external_id"`
	ProposalID  string    `json:"proposal_id,omitempty" yaml:"proposal_id"`
	Title       string    `json:"title,omitempty" yaml:"title"`
	Body        string    `json:"body,omitempty" yaml:"body"`
	Author      string    `json:"author,omitempty" yaml:"author"`
	URL         string    `json:"url,omitempty" yaml:"url"`
	Category    string    `json:"category,omitempty" yaml:"category"`
	Status      string    `json:"status,omitempty" yaml:"status"`
	Choices     []string  `json:"choices,omitempty" yaml:"choices"`
	Keywords    []string  `json:"keywords,omitempty" yaml:"keywords"`
	Topics      []string  `json:"topics,omitempty" yaml:"topics"`
	Polarity    *float64  `json:"polarity,omitempty" yaml:"polarity"`
	Volume      int       `json:"volume,omitempty" yaml:"volume"`
	Support     int       `json:"support,omitempty" yaml:"support"`
	Opposition  int       `json:"opposition,omitempty" yaml:"opposition"`
	Neutral     int       `json:"neutral,omitempty" yaml:"neutral"`
	CreatedAt   time.Time `json:"created_at,omitempty" yaml:"created_at"`
	EndTime     time.Time `json:"end_time,omitempty" yaml:"end_time"`
	CollectedAt time.Time `json:"collected_at,omitempty" yaml:"collected_at"`
}

func (r RawRecord) key() string {
	return strings.ToLower(strings.TrimSpace(r.DAO)) + "/" + strings.TrimSpace(r.ExternalID)
}

func (r RawRecord) valid() bool {
	return strings.TrimSpace(r.DAO) != "" && strings.TrimSpace(r.ExternalID) != ""
}

// overlay copies every non-empty field of newer onto r
func (r *RawRecord) overlay(newer RawRecord) {
	setString(&r.Kind, newer.Kind)
	setString(&r.Title, newer.Title)
	setString(&r.Body, newer.Body)
	setString(&r.Author, newer.Author)
	setString(&r.URL, newer.URL)
	setString(&r.Category, newer.Category)
	setString(&r.Status, newer.Status)
	setString(&r.ProposalID, newer.ProposalID)
	if len(newer.Choices) > 0 {
		r.Choices = append([]string(nil), newer.Choices...)
	}
	if len(newer.Keywords) > 0 {
		r.Keywords = append([]string(nil), newer.Keywords...)
	}
	if len(newer.Topics) > 0 {
		r.Topics = append([]string(nil), newer.Topics...)
	}
	if newer.Polarity != nil {
		v := *newer.Polarity
		r.Polarity = &v
	}
	setInt(&r.Volume, newer.Volume)
	setInt(&r.Support, newer.Support)
	setInt(&r.Opposition, newer.Opposition)
	setInt(&r.Neutral, newer.Neutral)
	setTime(&r.CreatedAt, newer.CreatedAt)
	setTime(&r.EndTime, newer.EndTime)
	setTime(&r.CollectedAt, newer.CollectedAt)
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setTime(dst *time.Time, v time.Time) {
	if !v.IsZero() {
		*dst = v
	}
}

// Polarity returns a pointer to v, for building records in code
func Polarity(v float64) *float64 {
	return &v
}
