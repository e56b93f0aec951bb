package model

// StatusEntry reports whether a script is applied to one target and where.
// Location is only set when IsApplied is true.
type StatusEntry struct {
	IsApplied bool     `json:"isApplied"`
	Location  Location `json:"location,omitempty"`
}

// NotApplied is the entry used for targets that carry no reference to the
// script, and for targets whose status could not be determined.
var NotApplied = StatusEntry{}

// StatusFromCodeList derives the status of scriptID from a target's code list.
func StatusFromCodeList(scriptID string, scripts []ScriptRef) StatusEntry {
	for _, s := range scripts {
		if s.ID == scriptID {
			return StatusEntry{IsApplied: true, Location: s.Location}
		}
	}
	return NotApplied
}
