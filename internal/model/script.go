package model

import (
	"errors"
	"strings"
	"time"
)

// ScriptRef is one element of a target's custom code list.  A code list is a
// set keyed by ID: it never holds two refs with the same ID.
type ScriptRef struct {
	ID       string   `json:"id"`
	Location Location `json:"location"`
	Version  string   `json:"version"`
}

// CodeList is the custom code attached to a site or page.
type CodeList struct {
	Scripts     []ScriptRef `json:"scripts"`
	LastUpdated *time.Time  `json:"lastUpdated,omitempty"`
	CreatedOn   *time.Time  `json:"createdOn,omitempty"`
}

// WithScript returns a copy of scripts where any ref with ref.ID is replaced
// by ref, appended at the end.
func WithScript(scripts []ScriptRef, ref ScriptRef) []ScriptRef {
	out := WithoutScript(scripts, ref.ID)
	return append(out, ref)
}

// WithoutScript returns a copy of scripts without refs matching id.
func WithoutScript(scripts []ScriptRef, id string) []ScriptRef {
	out := make([]ScriptRef, 0, len(scripts)+1)
	for _, s := range scripts {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}

// CodeApplication is the request to apply one registered script to one
// target.
type CodeApplication struct {
	ScriptID   string     `json:"scriptId"`
	TargetType TargetType `json:"targetType"`
	TargetID   string     `json:"targetId"`
	Location   Location   `json:"location"`
	Version    string     `json:"version"`
}

// Target returns the application's target.
func (a CodeApplication) Target() Target { return Target{Type: a.TargetType, ID: a.TargetID} }

// Ref returns the code list element this application writes.
func (a CodeApplication) Ref() ScriptRef {
	return ScriptRef{ID: a.ScriptID, Location: a.Location, Version: a.Version}
}

// Validate checks that every field is present and that the enums hold known
// values.
func (a CodeApplication) Validate() error {
	_, err := a.Normalize()
	return err
}

// Normalize validates a and returns a copy with the target type and
// location in their canonical lowercase form and ids trimmed.
func (a CodeApplication) Normalize() (CodeApplication, error) {
	a.ScriptID = strings.TrimSpace(a.ScriptID)
	a.TargetID = strings.TrimSpace(a.TargetID)
	a.Version = strings.TrimSpace(a.Version)
	if a.ScriptID == "" || a.TargetID == "" || a.Version == "" || a.TargetType == "" || a.Location == "" {
		return CodeApplication{}, errors.New("missing required fields")
	}
	tt, err := ParseTargetType(string(a.TargetType))
	if err != nil {
		return CodeApplication{}, err
	}
	loc, err := ParseLocation(string(a.Location))
	if err != nil {
		return CodeApplication{}, err
	}
	a.TargetType, a.Location = tt, loc
	return a, nil
}

// RegisteredScript is a script known to a site's script registry.  Exactly
// one of SourceCode and HostedLocation is set.
type RegisteredScript struct {
	ID             string     `json:"id,omitempty"`
	DisplayName    string     `json:"displayName"`
	Version        string     `json:"version"`
	SourceCode     string     `json:"sourceCode,omitempty"`
	HostedLocation string     `json:"hostedLocation,omitempty"`
	IntegrityHash  string     `json:"integrityHash,omitempty"`
	CanCopy        bool       `json:"canCopy"`
	CreatedOn      *time.Time `json:"createdOn,omitempty"`
	LastUpdated    *time.Time `json:"lastUpdated,omitempty"`
}

// Hosted reports whether the script is served from HostedLocation.
func (s RegisteredScript) Hosted() bool { return s.HostedLocation != "" }

// Validate enforces the inline XOR hosted rule and the required fields.
func (s RegisteredScript) Validate() error {
	if strings.TrimSpace(s.DisplayName) == "" || strings.TrimSpace(s.Version) == "" {
		return errors.New("displayName and version are required")
	}
	inline := strings.TrimSpace(s.SourceCode) != ""
	hosted := strings.TrimSpace(s.HostedLocation) != ""
	if inline == hosted {
		return errors.New("exactly one of sourceCode or hostedLocation must be set")
	}
	return nil
}
