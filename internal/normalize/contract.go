package normalize

import (
	"errors"
	"fmt"
	"strings"
)

// Contract is the ordered list of feature names the model consumes.
// It is immutable once built.
type Contract struct {
	names []string
	index map[string]int
}

func NewContract(names []string) (*Contract, error) {
	if len(names) == 0 {
		return nil, errors.New("feature contract is empty")
	}
	c := &Contract{
		names: make([]string, 0, len(names)),
		index: make(map[string]int, len(names)),
	}
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("feature contract: blank name at position %d", i)
		}
		if _, dup := c.index[name]; dup {
			return nil, fmt.Errorf("feature contract: duplicate name %q", name)
		}
		c.index[name] = len(c.names)
		c.names = append(c.names, name)
	}
	return c, nil
}

func (c *Contract) Len() int {
	return len(c.names)
}

func (c *Contract) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Position reports the column of name in the contract.
func (c *Contract) Position(name string) (int, bool) {
	i, ok := c.index[name]
	return i, ok
}

// Validate returns every contract feature absent from keys, in contract
// order. An empty result means the key set satisfies the contract.
func (c *Contract) Validate(keys map[string]struct{}) []string {
	var missing []string
	for _, name := range c.names {
		if _, ok := keys[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func (c *Contract) ValidateNames(names []string) []string {
	keys := make(map[string]struct{}, len(names))
	for _, n := range names {
		keys[strings.TrimSpace(n)] = struct{}{}
	}
	return c.Validate(keys)
}

type MissingFeaturesError struct {
	Missing []string
}

func (e *MissingFeaturesError) Error() string {
	if len(e.Missing) == 1 {
		return "missing feature: " + e.Missing[0]
	}
	return "missing features: " + strings.Join(e.Missing, ", ")
}
