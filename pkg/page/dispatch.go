package page

import "fmt"

// Visitor handles every page type. Adding a page type adds a method here,
// so every implementation stops compiling until it handles the new type.
type Visitor[R any] interface {
	TextCard(Page, TextCardConfig) (R, error)
	Dialogue(Page, DialogueConfig) (R, error)
	Video(Page, VideoConfig) (R, error)
	Button(Page, ButtonConfig) (R, error)
	TextVerify(Page, TextVerifyConfig) (R, error)
	ChoiceVerify(Page, ChoiceVerifyConfig) (R, error)
	ConditionalVerify(Page, ConditionalVerifyConfig) (R, error)
	ShootingMission(Page, ShootingMissionConfig) (R, error)
	PhotoMission(Page, PhotoMissionConfig) (R, error)
	GPSMission(Page, GPSMissionConfig) (R, error)
	QRScan(Page, QRScanConfig) (R, error)
	TimeBomb(Page, TimeBombConfig) (R, error)
	Lock(Page, LockConfig) (R, error)
	MotionChallenge(Page, MotionChallengeConfig) (R, error)
	Vote(Page, VoteConfig) (R, error)
	FlowRouter(Page, RouterConfig) (R, error)
}

// Dispatch decodes p's config and hands it to the matching Visitor method.
func Dispatch[R any](p Page, v Visitor[R]) (R, error) {
	var zero R
	cfg, err := DecodeConfig(p.Type, p.Config)
	if err != nil {
		return zero, err
	}
	switch c := cfg.(type) {
	case TextCardConfig:
		return v.TextCard(p, c)
	case DialogueConfig:
		return v.Dialogue(p, c)
	case VideoConfig:
		return v.Video(p, c)
	case ButtonConfig:
		return v.Button(p, c)
	case TextVerifyConfig:
		return v.TextVerify(p, c)
	case ChoiceVerifyConfig:
		return v.ChoiceVerify(p, c)
	case ConditionalVerifyConfig:
		return v.ConditionalVerify(p, c)
	case ShootingMissionConfig:
		return v.ShootingMission(p, c)
	case PhotoMissionConfig:
		return v.PhotoMission(p, c)
	case GPSMissionConfig:
		return v.GPSMission(p, c)
	case QRScanConfig:
		return v.QRScan(p, c)
	case TimeBombConfig:
		return v.TimeBomb(p, c)
	case LockConfig:
		return v.Lock(p, c)
	case MotionChallengeConfig:
		return v.MotionChallenge(p, c)
	case VoteConfig:
		return v.Vote(p, c)
	case RouterConfig:
		return v.FlowRouter(p, c)
	default:
		return zero, fmt.Errorf("%w: %q", ErrUnknownType, p.Type)
	}
}
