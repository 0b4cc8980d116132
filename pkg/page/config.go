package page

import (
	"encoding/json"
	"fmt"

	"github.com/waypointgames/waypoint/pkg/flow"
	"github.com/waypointgames/waypoint/pkg/geo"
)

// Config is the typed config of a page. Dispatch only understands the
// config types declared in this package.
type Config interface {
	PageType() Type
}

// TextCardConfig shows a block of narrative text.
type TextCardConfig struct {
	Title      string  `json:"title,omitempty"`
	Body       string  `json:"body"`
	ButtonText string  `json:"buttonText,omitempty"`
	Reward     *Reward `json:"reward,omitempty"`
}

// DialogueLine is one line spoken by a character.
type DialogueLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// DialogueConfig is a scripted conversation.
type DialogueConfig struct {
	Lines  []DialogueLine `json:"lines"`
	Reward *Reward        `json:"reward,omitempty"`
}

// VideoConfig plays a clip. With RequireWatch set the player must watch to
// the end before continuing.
type VideoConfig struct {
	URL          string  `json:"url"`
	RequireWatch bool    `json:"requireWatch,omitempty"`
	Reward       *Reward `json:"reward,omitempty"`
}

// Button is one choice on a button page.
type Button struct {
	Text       string  `json:"text"`
	NextPageID string  `json:"nextPageId,omitempty"`
	Reward     *Reward `json:"reward,omitempty"`
}

// ButtonConfig offers a set of buttons, each optionally jumping to a page.
type ButtonConfig struct {
	Prompt  string   `json:"prompt,omitempty"`
	Buttons []Button `json:"buttons"`
}

// TextVerifyConfig asks a free-text question.
type TextVerifyConfig struct {
	Question      string   `json:"question"`
	Answers       []string `json:"answers"`
	CaseSensitive bool     `json:"caseSensitive,omitempty"`
	Reward        *Reward  `json:"reward,omitempty"`
}

// ChoiceVerifyConfig asks a multiple-choice question.
type ChoiceVerifyConfig struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Reward       *Reward  `json:"reward,omitempty"`
}

// VerifyRule is one accepted answer of a conditional verify page and the
// reward it grants.
type VerifyRule struct {
	Answer string  `json:"answer"`
	Reward *Reward `json:"reward,omitempty"`
}

// ConditionalVerifyConfig accepts several answers, each with its own reward.
type ConditionalVerifyConfig struct {
	Question string       `json:"question"`
	Rules    []VerifyRule `json:"rules"`
}

// ShootingMissionConfig is an aim-and-hit challenge.
type ShootingMissionConfig struct {
	Targets          int     `json:"targets"`
	RequiredHits     int     `json:"requiredHits"`
	TimeLimitSeconds int     `json:"timeLimitSeconds,omitempty"`
	Reward           *Reward `json:"reward,omitempty"`
}

// PhotoMissionConfig asks the player to take a photo.
type PhotoMissionConfig struct {
	Prompt string  `json:"prompt"`
	Reward *Reward `json:"reward,omitempty"`
}

// GPSMissionConfig requires the player to reach a location.
type GPSMissionConfig struct {
	Target       geo.Coordinate `json:"target"`
	RadiusMeters float64        `json:"radiusMeters"`
	Hint         string         `json:"hint,omitempty"`
	Reward       *Reward        `json:"reward,omitempty"`
}

// QRScanConfig requires scanning a specific code.
type QRScanConfig struct {
	ExpectedCode string  `json:"expectedCode"`
	Reward       *Reward `json:"reward,omitempty"`
}

// TimeBombConfig must be defused with Code within the time limit. Failing
// applies Penalty points (normally negative) instead of Reward.
type TimeBombConfig struct {
	TimeLimitSeconds int     `json:"timeLimitSeconds"`
	Code             string  `json:"code"`
	Penalty          int     `json:"penalty,omitempty"`
	Reward           *Reward `json:"reward,omitempty"`
}

// LockConfig is a combination lock.
type LockConfig struct {
	Code   string  `json:"code"`
	Hint   string  `json:"hint,omitempty"`
	Reward *Reward `json:"reward,omitempty"`
}

// MotionChallengeConfig asks for a number of device motions.
type MotionChallengeConfig struct {
	Motion string  `json:"motion"`
	Count  int     `json:"count"`
	Reward *Reward `json:"reward,omitempty"`
}

// VoteConfig lets the player pick an option. Every vote is accepted. When
// Variable is set the chosen option is stored under that variable name.
type VoteConfig struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Variable string   `json:"variable,omitempty"`
	Reward   *Reward  `json:"reward,omitempty"`
}

// RouterConfig is the config of a flow_router page.
type RouterConfig struct {
	flow.RouterConfig
}

// PageType implements Config.
func (TextCardConfig) PageType() Type { return TypeTextCard }

// PageType implements Config.
func (DialogueConfig) PageType() Type { return TypeDialogue }

// PageType implements Config.
func (VideoConfig) PageType() Type { return TypeVideo }

// PageType implements Config.
func (ButtonConfig) PageType() Type { return TypeButton }

// PageType implements Config.
func (TextVerifyConfig) PageType() Type { return TypeTextVerify }

// PageType implements Config.
func (ChoiceVerifyConfig) PageType() Type { return TypeChoiceVerify }

// PageType implements Config.
func (ConditionalVerifyConfig) PageType() Type { return TypeConditionalVerify }

// PageType implements Config.
func (ShootingMissionConfig) PageType() Type { return TypeShootingMission }

// PageType implements Config.
func (PhotoMissionConfig) PageType() Type { return TypePhotoMission }

// PageType implements Config.
func (GPSMissionConfig) PageType() Type { return TypeGPSMission }

// PageType implements Config.
func (QRScanConfig) PageType() Type { return TypeQRScan }

// PageType implements Config.
func (TimeBombConfig) PageType() Type { return TypeTimeBomb }

// PageType implements Config.
func (LockConfig) PageType() Type { return TypeLock }

// PageType implements Config.
func (MotionChallengeConfig) PageType() Type { return TypeMotionChallenge }

// PageType implements Config.
func (VoteConfig) PageType() Type { return TypeVote }

// PageType implements Config.
func (RouterConfig) PageType() Type { return TypeFlowRouter }

// DecodeConfig decodes raw into the config struct for t. An empty raw
// config decodes to the zero config.
func DecodeConfig(t Type, raw json.RawMessage) (Config, error) {
	switch t {
	case TypeTextCard:
		return decodeInto[TextCardConfig](t, raw)
	case TypeDialogue:
		return decodeInto[DialogueConfig](t, raw)
	case TypeVideo:
		return decodeInto[VideoConfig](t, raw)
	case TypeButton:
		return decodeInto[ButtonConfig](t, raw)
	case TypeTextVerify:
		return decodeInto[TextVerifyConfig](t, raw)
	case TypeChoiceVerify:
		return decodeInto[ChoiceVerifyConfig](t, raw)
	case TypeConditionalVerify:
		return decodeInto[ConditionalVerifyConfig](t, raw)
	case TypeShootingMission:
		return decodeInto[ShootingMissionConfig](t, raw)
	case TypePhotoMission:
		return decodeInto[PhotoMissionConfig](t, raw)
	case TypeGPSMission:
		return decodeInto[GPSMissionConfig](t, raw)
	case TypeQRScan:
		return decodeInto[QRScanConfig](t, raw)
	case TypeTimeBomb:
		return decodeInto[TimeBombConfig](t, raw)
	case TypeLock:
		return decodeInto[LockConfig](t, raw)
	case TypeMotionChallenge:
		return decodeInto[MotionChallengeConfig](t, raw)
	case TypeVote:
		return decodeInto[VoteConfig](t, raw)
	case TypeFlowRouter:
		return decodeInto[RouterConfig](t, raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

func decodeInto[C Config](t Type, raw json.RawMessage) (Config, error) {
	var cfg C
	if len(raw) == 0 || string(raw) == "null" {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decoding %s config: %w", t, err)
	}
	return cfg, nil
}

// Router decodes the flow router config of p.
func (p Page) Router() (RouterConfig, error) {
	if !p.IsRouter() {
		return RouterConfig{}, fmt.Errorf("page %s is %s, not %s", p.ID, p.Type, TypeFlowRouter)
	}
	cfg, err := DecodeConfig(p.Type, p.Config)
	if err != nil {
		return RouterConfig{}, err
	}
	return cfg.(RouterConfig), nil
}

// ValidateConfig decodes p's config and checks type-specific requirements.
func ValidateConfig(p Page) error {
	cfg, err := DecodeConfig(p.Type, p.Config)
	if err != nil {
		return err
	}
	switch c := cfg.(type) {
	case ButtonConfig:
		if len(c.Buttons) == 0 {
			return fmt.Errorf("button page %s has no buttons", p.ID)
		}
	case ChoiceVerifyConfig:
		if c.CorrectIndex < 0 || c.CorrectIndex >= len(c.Options) {
			return fmt.Errorf("choice page %s: correctIndex %d out of range", p.ID, c.CorrectIndex)
		}
	case GPSMissionConfig:
		if err := geo.ValidateCoordinate(c.Target); err != nil {
			return fmt.Errorf("gps page %s: %w", p.ID, err)
		}
		if c.RadiusMeters <= 0 {
			return fmt.Errorf("gps page %s: radiusMeters must be positive", p.ID)
		}
	case RouterConfig:
		if err := c.Validate(); err != nil {
			return fmt.Errorf("router page %s: %w", p.ID, err)
		}
	}
	return nil
}
