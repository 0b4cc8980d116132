package page

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/waypointgames/waypoint/pkg/geo"
)

// Completion errors.
var (
	// ErrRouterPage is returned when asked to complete a flow_router page.
	// Routers are resolved by the engine, never completed by a player.
	ErrRouterPage = errors.New("flow router pages are resolved, not completed")

	// ErrNotSatisfied means the input was understood but does not complete
	// the page (wrong answer, too far away, not enough hits). The player may
	// try again.
	ErrNotSatisfied = errors.New("page not satisfied")

	// ErrInvalidInput means the input does not fit the page at all.
	ErrInvalidInput = errors.New("invalid page input")
)

// Input is what a player did on a page. Each page type reads only the
// fields it needs.
type Input struct {
	ButtonIndex    int             `json:"buttonIndex,omitempty" yaml:"button"`
	Answer         string          `json:"answer,omitempty" yaml:"answer"`
	ChoiceIndex    int             `json:"choiceIndex,omitempty" yaml:"choice"`
	Position       *geo.Coordinate `json:"position,omitempty" yaml:"position"`
	Code           string          `json:"code,omitempty" yaml:"code"`
	Hits           int             `json:"hits,omitempty" yaml:"hits"`
	Count          int             `json:"count,omitempty" yaml:"count"`
	ElapsedSeconds int             `json:"elapsedSeconds,omitempty" yaml:"elapsed_seconds"`
	VoteOption     int             `json:"voteOption,omitempty" yaml:"vote"`
	PhotoRef       string          `json:"photoRef,omitempty" yaml:"photo"`
	Watched        bool            `json:"watched,omitempty" yaml:"watched"`
}

// Completer turns an Input into the Outcome a page completes with. It is
// the headless counterpart of the page renderers.
type Completer struct {
	Input Input
}

// Complete dispatches p to a Completer for in.
func Complete(p Page, in Input) (Outcome, error) {
	return Dispatch[Outcome](p, Completer{Input: in})
}

func rewarded(r *Reward) (Outcome, error) {
	return Outcome{Reward: r.clone()}, nil
}

func normalizeAnswer(s string, caseSensitive bool) string {
	s = strings.Join(strings.Fields(s), " ")
	if caseSensitive {
		return s
	}
	return strings.ToLower(s)
}

// TextCard implements Visitor.
func (Completer) TextCard(_ Page, c TextCardConfig) (Outcome, error) {
	return rewarded(c.Reward)
}

// Dialogue implements Visitor.
func (Completer) Dialogue(_ Page, c DialogueConfig) (Outcome, error) {
	return rewarded(c.Reward)
}

// Video implements Visitor.
func (cp Completer) Video(_ Page, c VideoConfig) (Outcome, error) {
	if c.RequireWatch && !cp.Input.Watched {
		return Outcome{}, fmt.Errorf("%w: video must be watched to the end", ErrNotSatisfied)
	}
	return rewarded(c.Reward)
}

// Button implements Visitor.
func (cp Completer) Button(_ Page, c ButtonConfig) (Outcome, error) {
	i := cp.Input.ButtonIndex
	if i < 0 || i >= len(c.Buttons) {
		return Outcome{}, fmt.Errorf("%w: button %d of %d", ErrInvalidInput, i, len(c.Buttons))
	}
	b := c.Buttons[i]
	return Outcome{Reward: b.Reward.clone(), NextPageID: b.NextPageID}, nil
}

// TextVerify implements Visitor.
func (cp Completer) TextVerify(_ Page, c TextVerifyConfig) (Outcome, error) {
	got := normalizeAnswer(cp.Input.Answer, c.CaseSensitive)
	if got == "" {
		return Outcome{}, fmt.Errorf("%w: empty answer", ErrInvalidInput)
	}
	if slices.ContainsFunc(c.Answers, func(a string) bool { return normalizeAnswer(a, c.CaseSensitive) == got }) {
		return rewarded(c.Reward)
	}
	return Outcome{}, fmt.Errorf("%w: wrong answer", ErrNotSatisfied)
}

// ChoiceVerify implements Visitor.
func (cp Completer) ChoiceVerify(_ Page, c ChoiceVerifyConfig) (Outcome, error) {
	i := cp.Input.ChoiceIndex
	if i < 0 || i >= len(c.Options) {
		return Outcome{}, fmt.Errorf("%w: choice %d of %d", ErrInvalidInput, i, len(c.Options))
	}
	if i != c.CorrectIndex {
		return Outcome{}, fmt.Errorf("%w: wrong choice", ErrNotSatisfied)
	}
	return rewarded(c.Reward)
}

// ConditionalVerify implements Visitor. The first rule whose answer
// matches decides the reward.
func (cp Completer) ConditionalVerify(_ Page, c ConditionalVerifyConfig) (Outcome, error) {
	got := normalizeAnswer(cp.Input.Answer, false)
	for _, r := range c.Rules {
		if normalizeAnswer(r.Answer, false) == got {
			return rewarded(r.Reward)
		}
	}
	return Outcome{}, fmt.Errorf("%w: no rule accepts the answer", ErrNotSatisfied)
}

// ShootingMission implements Visitor.
func (cp Completer) ShootingMission(_ Page, c ShootingMissionConfig) (Outcome, error) {
	if c.TimeLimitSeconds > 0 && cp.Input.ElapsedSeconds > c.TimeLimitSeconds {
		return Outcome{}, fmt.Errorf("%w: time limit of %ds exceeded", ErrNotSatisfied, c.TimeLimitSeconds)
	}
	if cp.Input.Hits < c.RequiredHits {
		return Outcome{}, fmt.Errorf("%w: %d of %d hits", ErrNotSatisfied, cp.Input.Hits, c.RequiredHits)
	}
	return rewarded(c.Reward)
}

// PhotoMission implements Visitor.
func (cp Completer) PhotoMission(_ Page, c PhotoMissionConfig) (Outcome, error) {
	if cp.Input.PhotoRef == "" {
		return Outcome{}, fmt.Errorf("%w: no photo taken", ErrInvalidInput)
	}
	return rewarded(c.Reward)
}

// GPSMission implements Visitor. When the player is outside the radius the
// error carries walking guidance to the target.
func (cp Completer) GPSMission(_ Page, c GPSMissionConfig) (Outcome, error) {
	pos := cp.Input.Position
	if pos == nil {
		return Outcome{}, fmt.Errorf("%w: no position", ErrInvalidInput)
	}
	if err := geo.ValidateCoordinate(*pos); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if geo.WithinRadius(*pos, c.Target, c.RadiusMeters) {
		return rewarded(c.Reward)
	}
	g := geo.Navigate(*pos, c.Target)
	return Outcome{}, fmt.Errorf("%w: target is %.0f m to the %s, about %ds on foot",
		ErrNotSatisfied, g.DistanceMeters, g.Direction, g.ETASeconds)
}

// QRScan implements Visitor.
func (cp Completer) QRScan(_ Page, c QRScanConfig) (Outcome, error) {
	if strings.TrimSpace(cp.Input.Code) != c.ExpectedCode {
		return Outcome{}, fmt.Errorf("%w: unexpected code", ErrNotSatisfied)
	}
	return rewarded(c.Reward)
}

// TimeBomb implements Visitor. A bomb that runs out completes the page with
// the penalty instead of the reward.
func (cp Completer) TimeBomb(_ Page, c TimeBombConfig) (Outcome, error) {
	if c.TimeLimitSeconds > 0 && cp.Input.ElapsedSeconds > c.TimeLimitSeconds {
		return Outcome{Reward: &Reward{Points: c.Penalty}}, nil
	}
	if strings.TrimSpace(cp.Input.Code) != c.Code {
		return Outcome{}, fmt.Errorf("%w: wrong code", ErrNotSatisfied)
	}
	return rewarded(c.Reward)
}

// Lock implements Visitor.
func (cp Completer) Lock(_ Page, c LockConfig) (Outcome, error) {
	if strings.TrimSpace(cp.Input.Code) != c.Code {
		return Outcome{}, fmt.Errorf("%w: wrong combination", ErrNotSatisfied)
	}
	return rewarded(c.Reward)
}

// MotionChallenge implements Visitor.
func (cp Completer) MotionChallenge(_ Page, c MotionChallengeConfig) (Outcome, error) {
	if cp.Input.Count < c.Count {
		return Outcome{}, fmt.Errorf("%w: %d of %d %s", ErrNotSatisfied, cp.Input.Count, c.Count, c.Motion)
	}
	return rewarded(c.Reward)
}

// Vote implements Visitor.
func (cp Completer) Vote(_ Page, c VoteConfig) (Outcome, error) {
	i := cp.Input.VoteOption
	if i < 0 || i >= len(c.Options) {
		return Outcome{}, fmt.Errorf("%w: option %d of %d", ErrInvalidInput, i, len(c.Options))
	}
	out := Outcome{Reward: c.Reward.clone()}
	if c.Variable != "" {
		out.Variables = map[string]any{c.Variable: c.Options[i]}
	}
	return out, nil
}

// FlowRouter implements Visitor.
func (Completer) FlowRouter(Page, RouterConfig) (Outcome, error) {
	return Outcome{}, ErrRouterPage
}

var _ Visitor[Outcome] = Completer{}
