package models

import (
	"encoding/json"
	"fmt"
)

// AccessKind is the discriminant of AccessState.
type AccessKind int

const (
	// AccessNotAvailable: the post is not published; neither price nor media may be exposed.
	AccessNotAvailable AccessKind = iota
	AccessFree
	AccessLocked
	AccessUnlocked
)

var accessKindNames = map[AccessKind]string{
	AccessNotAvailable: "not_available",
	AccessFree:         "free",
	AccessLocked:       "locked",
	AccessUnlocked:     "unlocked",
}

func (k AccessKind) String() string {
	if s, ok := accessKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("AccessKind(%d)", int(k))
}

// AccessState is derived per request and never persisted.
// PriceLamports is only meaningful for AccessLocked.
type AccessState struct {
	Kind          AccessKind
	PriceLamports uint64
}

func Free() AccessState         { return AccessState{Kind: AccessFree} }
func Unlocked() AccessState     { return AccessState{Kind: AccessUnlocked} }
func NotAvailable() AccessState { return AccessState{Kind: AccessNotAvailable} }

func Locked(price uint64) AccessState {
	return AccessState{Kind: AccessLocked, PriceLamports: price}
}

// Visible reports whether full media may be shown.
func (s AccessState) Visible() bool {
	return s.Kind == AccessFree || s.Kind == AccessUnlocked
}

func (s AccessState) String() string {
	if s.Kind == AccessLocked {
		return fmt.Sprintf("locked(%d)", s.PriceLamports)
	}
	return s.Kind.String()
}

type accessStateJSON struct {
	State         string `json:"state"`
	PriceLamports uint64 `json:"priceLamports,omitempty"`
}

func (s AccessState) MarshalJSON() ([]byte, error) {
	out := accessStateJSON{State: s.Kind.String()}
	if s.Kind == AccessLocked {
		out.PriceLamports = s.PriceLamports
	}
	return json.Marshal(out)
}

func (s *AccessState) UnmarshalJSON(data []byte) error {
	var in accessStateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	for k, name := range accessKindNames {
		if name == in.State {
			s.Kind = k
			s.PriceLamports = 0
			if k == AccessLocked {
				s.PriceLamports = in.PriceLamports
			}
			return nil
		}
	}
	return fmt.Errorf("unknown access state %q", in.State)
}
