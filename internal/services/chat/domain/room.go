// Package domain holds the chat room and message model.
package domain

import (
	"strings"

	apperrors "github.com/openhack/teamup/internal/platform/errors"
)

// RoomKind distinguishes the two room scopes.
type RoomKind string

const (
	// RoomKindWorld is the event-wide room every attendee may join.
	RoomKindWorld RoomKind = "world"
	// RoomKindTeam is a private room scoped to one team's members.
	RoomKindTeam RoomKind = "team"
)

// RoomID is a parsed room identifier of the form "world:<eventID>" or
// "team:<teamID>".
type RoomID struct {
	Kind  RoomKind
	Scope string
}

// ErrRoomIDInvalid indicates a malformed room identifier.
var ErrRoomIDInvalid = apperrors.New(apperrors.CodeRoomIDInvalid, "room id must be world:<event> or team:<team>")

// ParseRoomID validates and splits a raw room identifier.
func ParseRoomID(raw string) (RoomID, error) {
	raw = strings.TrimSpace(raw)
	kind, scope, ok := strings.Cut(raw, ":")
	if !ok {
		return RoomID{}, ErrRoomIDInvalid
	}
	scope = strings.TrimSpace(scope)
	if scope == "" || strings.Contains(scope, ":") {
		return RoomID{}, ErrRoomIDInvalid
	}
	switch RoomKind(kind) {
	case RoomKindWorld:
		return RoomID{Kind: RoomKindWorld, Scope: scope}, nil
	case RoomKindTeam:
		return RoomID{Kind: RoomKindTeam, Scope: scope}, nil
	default:
		return RoomID{}, ErrRoomIDInvalid
	}
}

// String returns the wire form of the room identifier.
func (r RoomID) String() string {
	return string(r.Kind) + ":" + r.Scope
}

// WorldRoomID builds the room identifier for an event's shared room.
func WorldRoomID(eventID string) RoomID {
	return RoomID{Kind: RoomKindWorld, Scope: strings.TrimSpace(eventID)}
}

// TeamRoomID builds the room identifier for a team's private room.
func TeamRoomID(teamID string) RoomID {
	return RoomID{Kind: RoomKindTeam, Scope: strings.TrimSpace(teamID)}
}
