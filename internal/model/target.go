package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTarget is returned when a target type or location string does
// not name one of the known variants.
var ErrInvalidTarget = errors.New("invalid target")

// TargetType distinguishes the two kinds of targets a script can be applied
// to.  Code that needs to behave differently per kind switches over the two
// constants and treats anything else as ErrInvalidTarget.
type TargetType string

const (
	TargetSite TargetType = "site"
	TargetPage TargetType = "page"
)

// ParseTargetType validates s and returns the matching TargetType.
func ParseTargetType(s string) (TargetType, error) {
	switch t := TargetType(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetSite, TargetPage:
		return t, nil
	default:
		return "", fmt.Errorf("%w: type %q", ErrInvalidTarget, s)
	}
}

// Target identifies one site or one page.
type Target struct {
	Type TargetType `json:"targetType"`
	ID   string     `json:"targetId"`
}

// SiteTarget returns a site target.
func SiteTarget(id string) Target { return Target{Type: TargetSite, ID: id} }

// PageTarget returns a page target.
func PageTarget(id string) Target { return Target{Type: TargetPage, ID: id} }

func (t Target) String() string { return string(t.Type) + ":" + t.ID }

// Location is the injection point of a script inside a target.
type Location string

const (
	LocationHeader Location = "header"
	LocationFooter Location = "footer"
)

// ParseLocation validates s and returns the matching Location.
func ParseLocation(s string) (Location, error) {
	switch l := Location(strings.ToLower(strings.TrimSpace(s))); l {
	case LocationHeader, LocationFooter:
		return l, nil
	default:
		return "", fmt.Errorf("%w: location %q", ErrInvalidTarget, s)
	}
}
