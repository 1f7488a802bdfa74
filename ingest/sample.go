package ingest

import (
	"strings"
	"time"
)

type sampleProposal struct {
	id, title, body, author, category string
	age, remaining                    time.Duration
	choices                           []string
	keywords                          []string
}

type sampleSentiment struct {
	proposal                     string
	support, opposition, neutral int
	score                        float64 // share of support in [0, 1]
	topics                       []string
}

var sampleProposals = map[string][]sampleProposal{
	"uniswap": {
		{
			id:     "UNI-1",
			title:  "Increase Uniswap V4 Liquidity Incentives",
			body:   "This proposal aims to increase liquidity incentives for Uniswap V4 concentrated liquidity positions. The increased incentives will help bootstrap liquidity in the new V4 system.",
			author: "Uniswap Team", category: "tokenomics",
			age: 7 * 24 * time.Hour, remaining: 3 * 24 * time.Hour,
			choices:  []string{"For", "Against", "Abstain"},
			keywords: []string{"liquidity", "incentives"},
		},
		{
			id:     "UNI-2",
			title:  "Enable UNI on Layer 2 Governance",
			body:   "Proposal to enable native UNI governance participation on Arbitrum and Optimism to reduce transaction costs for token holders.",
			author: "Community", category: "governance",
			age: 14 * 24 * time.Hour, remaining: 10 * 24 * time.Hour,
			choices:  []string{"For", "Against"},
			keywords: []string{"layer2", "participation"},
		},
	},
	"aave": {
		{
			id:     "AAVE-1",
			title:  "Enable eMode for New Assets",
			body:   "This proposal enables eMode (efficiency mode) for ETH-correlated assets, allowing higher LTV ratios for these assets when used in the same eMode category.",
			author: "Aave Team", category: "risk",
			age: 5 * 24 * time.Hour, remaining: 5 * 24 * time.Hour,
			choices:  []string{"For", "Against", "Abstain"},
			keywords: []string{"emode", "ltv"},
		},
		{
			id:     "AAVE-2",
			title:  "Increase Reserve Factor for stETH",
			body:   "Increase the reserve factor for stETH to 20% to reduce risk exposure and increase protocol revenue from the large stETH supply.",
			author: "Risk Team", category: "risk",
			age: 3 * 24 * time.Hour, remaining: 7 * 24 * time.Hour,
			choices:  []string{"For", "Against"},
			keywords: []string{"reserve", "revenue"},
		},
	},
	"compound": {
		{
			id:     "COMP-1",
			title:  "Community Development Fund Allocation",
			body:   "Allocate COMP tokens to community development initiatives and ecosystem grants to accelerate innovation on top of Compound.",
			author: "Community", category: "treasury",
			age: 10 * 24 * time.Hour, remaining: 2 * 24 * time.Hour,
			choices:  []string{"For", "Against", "Abstain"},
			keywords: []string{"grants", "ecosystem"},
		},
	},
	"makerdao": {
		{
			id:     "MKR-1",
			title:  "Increase Dai Savings Rate",
			body:   "Proposal to increase the Dai Savings Rate (DSR) to 5% to incentivize Dai holding and reduce supply pressure.",
			author: "Maker Team", category: "monetary-policy",
			age: 6 * 24 * time.Hour, remaining: 4 * 24 * time.Hour,
			choices:  []string{"For", "Against"},
			keywords: []string{"dsr", "dai"},
		},
	},
}

var sampleSentiments = map[string][]sampleSentiment{
	"uniswap": {
		{proposal: "UNI-1", support: 120, opposition: 30, neutral: 20, score: 0.75, topics: []string{"liquidity", "incentives", "v4"}},
		{proposal: "UNI-2", support: 85, opposition: 45, neutral: 15, score: 0.65, topics: []string{"layer2", "gas"}},
	},
	"aave": {
		{proposal: "AAVE-1", support: 95, opposition: 35, neutral: 25, score: 0.70, topics: []string{"emode", "risk"}},
		{proposal: "AAVE-2", support: 72, opposition: 55, neutral: 18, score: 0.58, topics: []string{"steth", "revenue"}},
	},
	"compound": {
		{proposal: "COMP-1", support: 68, opposition: 42, neutral: 30, score: 0.60, topics: []string{"grants"}},
	},
	"makerdao": {
		{proposal: "MKR-1", support: 110, opposition: 25, neutral: 35, score: 0.80, topics: []string{"dsr", "stability"}},
	},
}

// SampleDAOs lists the DAOs that have built-in sample data
func SampleDAOs() []string {
	return []string{"uniswap", "aave", "compound", "makerdao"}
}

// SampleSources returns a snapshot, a forum and a twitter source with demo data
// for the given DAOs, timestamped relative to now
func SampleSources(daos []string, now time.Time) []Source {
	var proposals, forum, tweets []RawRecord
	for _, dao := range daos {
		dao = strings.ToLower(dao)
		for _, p := range sampleProposals[dao] {
			proposals = append(proposals, RawRecord{
				Kind:        KindProposal,
				DAO:         dao,
				ExternalID:  p.id,
				Title:       p.title,
				Body:        p.body,
				Author:      p.author,
				URL:         "https://snapshot.org/#/" + dao,
				Category:    p.category,
				Status:      "active",
				Choices:     p.choices,
				Keywords:    p.keywords,
				CreatedAt:   now.Add(-p.age),
				EndTime:     now.Add(p.remaining),
				CollectedAt: now,
			})
		}
		for _, s := range sampleSentiments[dao] {
			forum = append(forum, RawRecord{
				Kind:        KindDiscussion,
				DAO:         dao,
				ExternalID:  "forum-" + s.proposal,
				ProposalID:  s.proposal,
				Title:       "Discussion: " + s.proposal,
				Topics:      s.topics,
				Polarity:    Polarity(2*s.score - 1),
				Support:     s.support,
				Opposition:  s.opposition,
				Neutral:     s.neutral,
				CollectedAt: now,
			})
			tweets = append(tweets, RawRecord{
				Kind:        KindTweet,
				DAO:         dao,
				ExternalID:  "tweets-" + s.proposal,
				ProposalID:  s.proposal,
				Topics:      s.topics[:1],
				Polarity:    Polarity(2*s.score - 1.2),
				Volume:      (s.support + s.opposition) / 4,
				CollectedAt: now,
			})
		}
	}
	return []Source{
		NewStaticSource("snapshot", proposals...),
		NewStaticSource("forum", forum...),
		NewStaticSource("twitter", tweets...),
	}
}
