package ingest

import (
	"sort"
	"strings"
	"time"

	"github.com/NethermindEth/eternalgov/core"
)

// Document is a normalized discussion, tweet or article
type Document struct {
	ID          string    `json:"id"`
	DAO         string    `json:"dao"`
	ProposalID  string    `json:"proposal_id,omitempty"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title,omitempty"`
	Body        string    `json:"body,omitempty"`
	Author      string    `json:"author,omitempty"`
	URL         string    `json:"url,omitempty"`
	Topics      []string  `json:"topics,omitempty"`
	Sources     []string  `json:"sources"`
	CollectedAt time.Time `json:"collected_at"`
}

// Merged is the deduplicated view of one (dao, external id) item
type Merged struct {
	RawRecord
	Sources        []string `json:"sources"`
	PolaritySource string   `json:"polarity_source,omitempty"`
}

// Result is the normalized output of an aggregation run
type Result struct {
	Proposals  []core.Proposal        `json:"proposals"`
	Documents  []Document             `json:"documents"`
	Sentiments []core.SentimentRecord `json:"sentiments"`
	Rejected   int                    `json:"rejected"`
	Succeeded  []string               `json:"succeeded"`
	Failed     []*core.SourceError    `json:"-"`
}

// FailedSources lists the names of sources that could not be fetched
func (r *Result) FailedSources() []string {
	names := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		names = append(names, f.Source)
	}
	return names
}

type sourced struct {
	RawRecord
	source string
}

// MergeRecords deduplicates raw records by (dao, external id). Overlapping fields
// keep the most recently collected non-empty value. Records without a dao or
// external id are counted as rejected.
func MergeRecords(raw map[string][]RawRecord) ([]Merged, int) {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	rejected := 0
	var all []sourced
	for _, name := range names {
		for _, r := range raw[name] {
			if !r.valid() {
				rejected++
				continue
			}
			all = append(all, sourced{RawRecord: r, source: name})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CollectedAt.Before(all[j].CollectedAt)
	})

	index := make(map[string]int)
	var merged []Merged
	provenance := make([]map[string]bool, 0)
	for _, r := range all {
		i, ok := index[r.key()]
		if !ok {
			i = len(merged)
			index[r.key()] = i
			merged = append(merged, Merged{RawRecord: RawRecord{DAO: strings.TrimSpace(r.DAO), ExternalID: strings.TrimSpace(r.ExternalID)}})
			provenance = append(provenance, make(map[string]bool))
		}
		merged[i].overlay(r.RawRecord)
		if r.Polarity != nil {
			merged[i].PolaritySource = r.source
		}
		provenance[i][r.source] = true
	}

	for i := range merged {
		for s := range provenance[i] {
			merged[i].Sources = append(merged[i].Sources, s)
		}
		sort.Strings(merged[i].Sources)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].key() < merged[j].key() })
	return merged, rejected
}

// Merge deduplicates raw records and normalizes them into proposals, documents
// and sentiment samples
func Merge(raw map[string][]RawRecord) *Result {
	merged, rejected := MergeRecords(raw)
	res := &Result{Rejected: rejected}

	for _, m := range merged {
		switch strings.ToLower(m.Kind) {
		case KindProposal:
			p := toProposal(m)
			if err := p.Validate(); err != nil {
				res.Rejected++
				continue
			}
			res.Proposals = append(res.Proposals, p)
		case KindDiscussion, KindTweet, KindArticle:
			res.Documents = append(res.Documents, toDocument(m))
		case KindSentiment:
		default:
			res.Rejected++
			continue
		}

		if s, ok := toSentiment(m); ok {
			if err := s.Validate(); err != nil {
				res.Rejected++
				continue
			}
			res.Sentiments = append(res.Sentiments, s)
		}
	}
	return res
}

func toProposal(m Merged) core.Proposal {
	status := core.ProposalStatus(strings.ToLower(m.Status))
	if status == "" {
		status = core.StatusActive
	}
	return core.Proposal{
		ID:        m.ExternalID,
		DAO:       strings.ToLower(m.DAO),
		Title:     m.Title,
		Body:      m.Body,
		Status:    status,
		CreatedAt: m.CreatedAt,
		Choices:   m.Choices,
		Metadata: core.ProposalMetadata{
			SourceURL: m.URL,
			Author:    m.Author,
			Category:  m.Category,
			Keywords:  m.Keywords,
			EndTime:   m.EndTime,
			Sources:   m.Sources,
		},
	}
}

func toDocument(m Merged) Document {
	return Document{
		ID:          m.ExternalID,
		DAO:         strings.ToLower(m.DAO),
		ProposalID:  m.ProposalID,
		Kind:        strings.ToLower(m.Kind),
		Title:       m.Title,
		Body:        m.Body,
		Author:      m.Author,
		URL:         m.URL,
		Topics:      m.Topics,
		Sources:     m.Sources,
		CollectedAt: m.CollectedAt,
	}
}

func toSentiment(m Merged) (core.SentimentRecord, bool) {
	if m.Polarity == nil {
		return core.SentimentRecord{}, false
	}
	proposalID := m.ProposalID
	if strings.EqualFold(m.Kind, KindProposal) {
		proposalID = m.ExternalID
	}
	if proposalID == "" {
		return core.SentimentRecord{}, false
	}
	volume := m.Volume
	if volume == 0 {
		volume = m.Support + m.Opposition + m.Neutral
	}
	return core.SentimentRecord{
		ID:          strings.ToLower(m.DAO) + "/" + m.ExternalID,
		ProposalID:  proposalID,
		DAO:         strings.ToLower(m.DAO),
		Source:      m.PolaritySource,
		Polarity:    *m.Polarity,
		Volume:      volume,
		Support:     m.Support,
		Opposition:  m.Opposition,
		Neutral:     m.Neutral,
		Topics:      m.Topics,
		CollectedAt: m.CollectedAt,
	}, true
}
