package page

import "slices"

// EndPageID is the reserved NextPageID that completes the session
// immediately, whatever pages remain.
const EndPageID = "_end"

// Reward is granted when a page completes. Points may be negative.
type Reward struct {
	Points int      `json:"points,omitempty" yaml:"points,omitempty"`
	Items  []string `json:"items,omitempty" yaml:"items,omitempty"`
}

// Outcome is what every page emits when it completes, whatever its type.
// An empty NextPageID means "advance to the next page in sort order".
// Variables are merged into the session variables before the next page is
// resolved.
type Outcome struct {
	Reward     *Reward        `json:"reward,omitempty"`
	NextPageID string         `json:"nextPageId,omitempty"`
	Variables  map[string]any `json:"variables,omitempty"`
}

// Ends reports whether the outcome completes the session.
func (o Outcome) Ends() bool {
	return o.NextPageID == EndPageID
}

// Apply adds the reward to score and inventory and returns the new values.
// Items are appended one by one, so granting an item twice yields two
// entries. The inventory argument is not modified.
func (r *Reward) Apply(score int, inventory []string) (int, []string) {
	out := slices.Clone(inventory)
	if r == nil {
		return score, out
	}
	return score + r.Points, append(out, r.Items...)
}

func (r *Reward) clone() *Reward {
	if r == nil {
		return nil
	}
	return &Reward{Points: r.Points, Items: slices.Clone(r.Items)}
}
