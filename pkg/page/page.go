// Package page defines the closed set of page types a game is built from,
// their typed configs, and the outcome contract every page completes with.
package page

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Type selects a page's behavior.
type Type string

// Page types. The set is closed: Visitor has one method per type.
const (
	TypeTextCard          Type = "text_card"
	TypeDialogue          Type = "dialogue"
	TypeVideo             Type = "video"
	TypeButton            Type = "button"
	TypeTextVerify        Type = "text_verify"
	TypeChoiceVerify      Type = "choice_verify"
	TypeConditionalVerify Type = "conditional_verify"
	TypeShootingMission   Type = "shooting_mission"
	TypePhotoMission      Type = "photo_mission"
	TypeGPSMission        Type = "gps_mission"
	TypeQRScan            Type = "qr_scan"
	TypeTimeBomb          Type = "time_bomb"
	TypeLock              Type = "lock"
	TypeMotionChallenge   Type = "motion_challenge"
	TypeVote              Type = "vote"
	TypeFlowRouter        Type = "flow_router"
)

var allTypes = []Type{
	TypeTextCard, TypeDialogue, TypeVideo, TypeButton, TypeTextVerify,
	TypeChoiceVerify, TypeConditionalVerify, TypeShootingMission,
	TypePhotoMission, TypeGPSMission, TypeQRScan, TypeTimeBomb, TypeLock,
	TypeMotionChallenge, TypeVote, TypeFlowRouter,
}

// ErrUnknownType is returned for a page type outside the closed set.
var ErrUnknownType = errors.New("unknown page type")

// Types returns every page type in declaration order.
func Types() []Type {
	return slices.Clone(allTypes)
}

// Valid reports whether t is one of the known page types.
func (t Type) Valid() bool {
	return slices.Contains(allTypes, t)
}

// ParseType converts a string to a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Page is one step of a game. Pages belong to a game (and optionally a
// chapter) and are ordered by SortOrder. Config holds the raw per-type
// config; DecodeConfig turns it into a typed value.
type Page struct {
	ID        string          `json:"id"`
	GameID    string          `json:"gameId"`
	ChapterID string          `json:"chapterId,omitempty"`
	Type      Type            `json:"pageType"`
	SortOrder int             `json:"sortOrder"`
	Config    json.RawMessage `json:"config,omitempty"`
}

// IsRouter reports whether the page is resolved by the flow router rather
// than completed by a player.
func (p Page) IsRouter() bool {
	return p.Type == TypeFlowRouter
}

// Clone returns a copy of p that shares no memory with it.
func (p Page) Clone() Page {
	p.Config = slices.Clone(p.Config)
	return p
}

// IndexOf returns the index of the page with the given id, or -1.
func IndexOf(pages []Page, id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(pages, func(p Page) bool { return p.ID == id })
}

// SortPages orders pages by SortOrder, breaking ties by id so the order is
// stable across loads.
func SortPages(pages []Page) {
	slices.SortStableFunc(pages, func(a, b Page) int {
		if a.SortOrder != b.SortOrder {
			return a.SortOrder - b.SortOrder
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
