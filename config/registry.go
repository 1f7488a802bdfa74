package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/NethermindEth/eternalgov/reasoning"
	"gopkg.in/yaml.v3"
)

// DAO describes one supported DAO
type DAO struct {
	Name      string         `yaml:"name"`
	Space     string         `yaml:"space"`
	Token     string         `yaml:"token"`
	ForumURL  string         `yaml:"forum_url"`
	Twitter   string         `yaml:"twitter,omitempty"`
	StatusQuo string         `yaml:"status_quo,omitempty"`
	Stances   map[string]int `yaml:"stances,omitempty"`
	Sources   []string       `yaml:"sources,omitempty"`
}

// Registry is the set of DAOs the delegate follows, keyed by lower-case name
type Registry struct {
	DAOs map[string]DAO `yaml:"daos"`
}

func DefaultRegistry() *Registry {
	return &Registry{DAOs: map[string]DAO{
		"uniswap": {
			Name: "uniswap", Space: "uniswap.eth", Token: "UNI",
			ForumURL: "https://gov.uniswap.org", Twitter: "UniswapProtocol",
			StatusQuo: "Against", Sources: []string{"snapshot", "forum", "twitter"},
		},
		"aave": {
			Name: "aave", Space: "aave.eth", Token: "AAVE",
			ForumURL: "https://governance.aave.com", Twitter: "aaveaave",
			StatusQuo: "Against", Sources: []string{"snapshot", "forum", "twitter"},
		},
		"compound": {
			Name: "compound", Space: "compound.eth", Token: "COMP",
			ForumURL: "https://compound.community", Twitter: "compoundfinance",
			StatusQuo: "Against", Sources: []string{"snapshot", "forum", "twitter"},
		},
		"makerdao": {
			Name: "makerdao", Space: "maker.eth", Token: "MKR",
			ForumURL: "https://forum.makerdao.com", Twitter: "MakerDAO",
			StatusQuo: "Against", Sources: []string{"snapshot", "forum", "twitter"},
		},
	}}
}

// LoadRegistry reads a YAML registry. Entries extend or replace the built-in DAOs.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read DAO registry: %w", err)
	}
	var file Registry
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: failed to parse DAO registry %s: %w", path, err)
	}

	reg := DefaultRegistry()
	for key, dao := range file.DAOs {
		if dao.Name == "" {
			dao.Name = key
		}
		if err := reg.Add(dao); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Add inserts or replaces a DAO
func (r *Registry) Add(dao DAO) error {
	name := strings.ToLower(strings.TrimSpace(dao.Name))
	if name == "" {
		return fmt.Errorf("config: DAO name is required")
	}
	dao.Name = name
	if r.DAOs == nil {
		r.DAOs = make(map[string]DAO)
	}
	r.DAOs[name] = dao
	return nil
}

func (r *Registry) Get(name string) (DAO, bool) {
	dao, ok := r.DAOs[strings.ToLower(name)]
	return dao, ok
}

// Names lists the registered DAOs in alphabetical order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.DAOs))
	for name := range r.DAOs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Policies converts the registry into reasoning policies
func (r *Registry) Policies() map[string]reasoning.DAOPolicy {
	out := make(map[string]reasoning.DAOPolicy, len(r.DAOs))
	for name, dao := range r.DAOs {
		if dao.StatusQuo == "" && len(dao.Stances) == 0 {
			continue
		}
		out[name] = reasoning.DAOPolicy{StatusQuo: dao.StatusQuo, Stances: dao.Stances}
	}
	return out
}

func (r *Registry) Validate() error {
	if len(r.DAOs) == 0 {
		return fmt.Errorf("config: DAO registry is empty")
	}
	for name, dao := range r.DAOs {
		if dao.Space == "" {
			return fmt.Errorf("config: DAO %s has no snapshot space", name)
		}
		for choice, stance := range dao.Stances {
			if stance < -1 || stance > 1 {
				return fmt.Errorf("config: DAO %s stance for %q must be -1, 0 or 1", name, choice)
			}
		}
	}
	return nil
}

// Save writes the registry as YAML
func (r *Registry) Save(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
