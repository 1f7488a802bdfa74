package reasoning

import (
	"strings"

	"github.com/NethermindEth/eternalgov/core"
)

var (
	approveWords = map[string]bool{"for": true, "yes": true, "yae": true, "yay": true, "aye": true, "approve": true, "accept": true, "support": true, "favor": true, "favour": true, "enact": true}
	rejectWords  = map[string]bool{"against": true, "no": true, "nay": true, "reject": true, "oppose": true, "deny": true, "veto": true}
)

// StanceOf classifies a choice as approving (+1), rejecting (-1) or neither (0)
func StanceOf(choice string) int {
	for _, tok := range core.Tokenize(choice) {
		switch {
		case approveWords[tok]:
			return 1
		case rejectWords[tok]:
			return -1
		case tok == "in":
			continue
		default:
			return 0
		}
	}
	return 0
}

// DAOPolicy carries the per-DAO knobs the engine needs
type DAOPolicy struct {
	// StatusQuo is the choice that keeps things as they are
	StatusQuo string
	// Stances overrides StanceOf for specific choices (case-insensitive)
	Stances map[string]int
}

func (p DAOPolicy) stance(choice string) int {
	for c, s := range p.Stances {
		if strings.EqualFold(c, choice) {
			switch {
			case s > 0:
				return 1
			case s < 0:
				return -1
			}
			return 0
		}
	}
	return StanceOf(choice)
}

// statusQuo resolves the status-quo choice among the proposal choices, falling
// back to the first rejecting choice
func (p DAOPolicy) statusQuo(choices []string) string {
	if p.StatusQuo != "" {
		for _, c := range choices {
			if strings.EqualFold(c, p.StatusQuo) {
				return c
			}
		}
	}
	for _, c := range choices {
		if p.stance(c) < 0 {
			return c
		}
	}
	return ""
}
