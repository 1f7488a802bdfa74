package core

import (
	"fmt"
	"strings"
	"time"
)

// ProposalStatus is the lifecycle state of a governance proposal
type ProposalStatus string

const (
	StatusActive ProposalStatus = "active"
	StatusClosed ProposalStatus = "closed"
)

// ProposalMetadata carries provenance and classification details of a proposal
type ProposalMetadata struct {
	SourceURL string    `json:"source_url" yaml:"source_url"`
	Author    string    `json:"author" yaml:"author"`
	Category  string    `json:"category,omitempty" yaml:"category"`
	Keywords  []string  `json:"keywords,omitempty" yaml:"keywords"`
	EndTime   time.Time `json:"end_time,omitempty" yaml:"end_time"`
	Sources   []string  `json:"sources,omitempty" yaml:"sources"`
}

// Proposal represents a governance item with a set of choices to be voted on
type Proposal struct {
	ID        string           `json:"id" yaml:"id"`
	DAO       string           `json:"dao" yaml:"dao"`
	Title     string           `json:"title" yaml:"title"`
	Body      string           `json:"body" yaml:"body"`
	Status    ProposalStatus   `json:"status" yaml:"status"`
	CreatedAt time.Time        `json:"created_at" yaml:"created_at"`
	Choices   []string         `json:"choices" yaml:"choices"`
	Metadata  ProposalMetadata `json:"metadata" yaml:"metadata"`
}

// Key returns the DAO-scoped identifier of the proposal
func (p Proposal) Key() string {
	return ProposalKey(p.DAO, p.ID)
}

// ProposalKey builds the namespace key used to keep proposal ids unique per DAO
func ProposalKey(dao, id string) string {
	return strings.ToLower(dao) + "/" + id
}

// Validate checks required fields and status values
func (p Proposal) Validate() error {
	if p.ID == "" {
		return NewValidationError("proposal", "id", "is required")
	}
	if p.DAO == "" {
		return NewValidationError("proposal", "dao", "is required")
	}
	if strings.TrimSpace(p.Title) == "" {
		return NewValidationError("proposal", "title", "is required")
	}
	switch p.Status {
	case StatusActive, StatusClosed:
	default:
		return NewValidationError("proposal", "status", fmt.Sprintf("unknown status %q", p.Status))
	}
	seen := make(map[string]bool, len(p.Choices))
	for _, c := range p.Choices {
		if strings.TrimSpace(c) == "" {
			return NewValidationError("proposal", "choices", "contains an empty choice")
		}
		if seen[strings.ToLower(c)] {
			return NewValidationError("proposal", "choices", fmt.Sprintf("duplicate choice %q", c))
		}
		seen[strings.ToLower(c)] = true
	}
	return nil
}

// CanTransition reports whether a status change is allowed. Only active -> closed is.
func (p Proposal) CanTransition(to ProposalStatus) bool {
	return p.Status == to || (p.Status == StatusActive && to == StatusClosed)
}

// Terms returns the lower-cased keywords used to match community preferences
func (p Proposal) Terms() []string {
	seen := make(map[string]bool)
	var terms []string
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		terms = append(terms, s)
	}
	for _, k := range p.Metadata.Keywords {
		add(k)
	}
	if p.Metadata.Category != "" {
		add(p.Metadata.Category)
		add("category:" + p.Metadata.Category)
	}
	for _, w := range Tokenize(p.Title) {
		add(w)
	}
	return terms
}

// Tokenize splits free text into lower-cased word tokens
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_')
	})
}
