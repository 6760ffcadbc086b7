package policy

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ErrDuplicatePolicy is returned by LoadCatalog when two definitions share an id.
var ErrDuplicatePolicy = errors.New("duplicate policy id")

// Rejection reasons.
const (
	ReasonInvalid       = "invalid"
	ReasonUnsafePattern = "unsafe_pattern"
)

// Rejection records a definition that was skipped at load time.
type Rejection struct {
	PolicyID string `json:"policyId"`
	Reason   string `json:"reason"`
	Err      string `json:"error"`
}

// Catalog holds the validated policy set. It is read-only after LoadCatalog
// returns and safe for concurrent use without locking.
type Catalog struct {
	policies []Policy
	index    map[string]int
	rejected []Rejection
}

// LoadCatalog validates definitions and builds a catalog from those that pass.
// Invalid definitions and unsafe patterns are logged and skipped. A duplicate
// id among the admitted definitions is fatal.
func LoadCatalog(logger zerolog.Logger, definitions []Policy) (*Catalog, error) {
	log := logger.With().Str("component", "policy-catalog").Logger()
	validate := validator.New()

	c := &Catalog{
		policies: make([]Policy, 0, len(definitions)),
		index:    make(map[string]int, len(definitions)),
	}

	// Ids are claimed before validation so a rejected first copy still
	// conflicts with a later duplicate.
	seen := make(map[string]struct{}, len(definitions))

	for i := range definitions {
		def := &definitions[i]

		if def.ID != "" {
			if _, exists := seen[def.ID]; exists {
				return nil, fmt.Errorf("%w: %s", ErrDuplicatePolicy, def.ID)
			}
			seen[def.ID] = struct{}{}
		}

		if err := validate.Struct(def); err != nil {
			c.reject(log, def.ID, ReasonInvalid, err)
			continue
		}
		if def.Rule.Operator == OperatorMatches {
			pattern, ok := def.Pattern()
			if !ok {
				c.reject(log, def.ID, ReasonInvalid, errors.New("matches rule requires a string pattern"))
				continue
			}
			if !IsSafe(pattern) {
				c.reject(log, def.ID, ReasonUnsafePattern, fmt.Errorf("%w: %q", ErrUnsafePattern, truncate(pattern, 40)))
				continue
			}
		}

		c.index[def.ID] = len(c.policies)
		c.policies = append(c.policies, def.clone())
	}

	log.Info().
		Int("loaded", len(c.policies)).
		Int("rejected", len(c.rejected)).
		Msg("Policy catalog loaded")

	return c, nil
}

func (c *Catalog) reject(log zerolog.Logger, id, reason string, err error) {
	log.Warn().
		Err(err).
		Str("policy_id", id).
		Str("reason", reason).
		Msg("Skipping policy definition")
	c.rejected = append(c.rejected, Rejection{PolicyID: id, Reason: reason, Err: err.Error()})
}

// Loaded returns the number of admitted policies.
func (c *Catalog) Loaded() int {
	return len(c.policies)
}

// Get returns a copy of the policy with the given id.
func (c *Catalog) Get(id string) (Policy, bool) {
	i, ok := c.index[id]
	if !ok {
		return Policy{}, false
	}
	return c.policies[i].clone(), true
}

// List returns copies of the policies matching filter, in load order.
func (c *Catalog) List(filter Filter) []Policy {
	out := make([]Policy, 0, len(c.policies))
	for i := range c.policies {
		if filter.match(&c.policies[i]) {
			out = append(out, c.policies[i].clone())
		}
	}
	return out
}

// Rejected returns the definitions skipped at load time.
func (c *Catalog) Rejected() []Rejection {
	return append([]Rejection(nil), c.rejected...)
}

// Each calls fn for every admitted policy in load order without copying.
// fn must not modify the policy.
func (c *Catalog) Each(fn func(p *Policy)) {
	for i := range c.policies {
		fn(&c.policies[i])
	}
}

// Lookup returns the admitted policy without copying. The result must not be modified.
func (c *Catalog) Lookup(id string) (*Policy, bool) {
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return &c.policies[i], true
}
