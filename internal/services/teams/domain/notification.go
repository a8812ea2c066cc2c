package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// NotificationKind tags one notification variant. The set is closed: payload
// decoding and rendering switch over it exhaustively.
type NotificationKind string

const (
	// NotificationKindInvite tells an invitee a team wants them.
	NotificationKindInvite NotificationKind = "invite"
	// NotificationKindJoinRequest tells a leader someone wants in.
	NotificationKindJoinRequest NotificationKind = "join_request"
	// NotificationKindInviteResolved tells a leader how their invitation ended.
	NotificationKindInviteResolved NotificationKind = "invite_resolved"
	// NotificationKindRequestResolved tells a requester how their request ended.
	NotificationKindRequestResolved NotificationKind = "request_resolved"
	// NotificationKindMemberJoined tells existing members about a new teammate.
	NotificationKindMemberJoined NotificationKind = "member_joined"
)

// NotificationPayload is the typed payload carried by one notification.
type NotificationPayload interface {
	notificationKind() NotificationKind
}

// InvitePayload invites an email address to a team seat.
type InvitePayload struct {
	InvitationID string `json:"invitation_id"`
	TeamID       string `json:"team_id"`
	TeamName     string `json:"team_name"`
	Role         Role   `json:"role"`
	Note         string `json:"note,omitempty"`
}

func (InvitePayload) notificationKind() NotificationKind { return NotificationKindInvite }

// JoinRequestPayload notifies the leader of a pending join request.
type JoinRequestPayload struct {
	RequestID       string `json:"request_id"`
	TeamID          string `json:"team_id"`
	TeamName        string `json:"team_name"`
	RequesterUserID string `json:"requester_user_id"`
	RequesterName   string `json:"requester_name"`
	Message         string `json:"message,omitempty"`
}

func (JoinRequestPayload) notificationKind() NotificationKind { return NotificationKindJoinRequest }

// InviteResolvedPayload reports an invitation outcome to the leader.
type InviteResolvedPayload struct {
	InvitationID string `json:"invitation_id"`
	TeamID       string `json:"team_id"`
	TeamName     string `json:"team_name"`
	InviteeEmail string `json:"invitee_email"`
	Accepted     bool   `json:"accepted"`
}

func (InviteResolvedPayload) notificationKind() NotificationKind {
	return NotificationKindInviteResolved
}

// RequestResolvedPayload reports a join request outcome to the requester.
type RequestResolvedPayload struct {
	RequestID string `json:"request_id"`
	TeamID    string `json:"team_id"`
	TeamName  string `json:"team_name"`
	Approved  bool   `json:"approved"`
}

func (RequestResolvedPayload) notificationKind() NotificationKind {
	return NotificationKindRequestResolved
}

// MemberJoinedPayload tells existing members about a new teammate.
type MemberJoinedPayload struct {
	TeamID   string `json:"team_id"`
	TeamName string `json:"team_name"`
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
}

func (MemberJoinedPayload) notificationKind() NotificationKind { return NotificationKindMemberJoined }

// Notification is one ledger entry in a recipient's inbox.
//
// Recipient is a user id, or a lowercased email for invite notifications
// addressed before the invitee has connected (accepting binds the identity).
// Ref links actionable notifications to the record they resolve with; the
// resolving transaction flips ActionedAt through it, so the two can never
// disagree after a crash.
type Notification struct {
	ID         string
	Recipient  string
	Kind       NotificationKind
	Payload    NotificationPayload
	Ref        string
	ReadAt     *time.Time
	ActionedAt *time.Time
	CreatedAt  time.Time
}

// NotificationPage is a paged recipient inbox view, newest first.
type NotificationPage struct {
	Notifications []Notification
	NextPageToken string
}

// InvitationRef builds the ledger ref for an invitation.
func InvitationRef(invitationID string) string {
	return "invitation:" + strings.TrimSpace(invitationID)
}

// JoinRequestRef builds the ledger ref for a join request.
func JoinRequestRef(requestID string) string {
	return "join_request:" + strings.TrimSpace(requestID)
}

// EmailRecipient builds the ledger recipient key for an email address.
func EmailRecipient(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EncodeNotificationPayload serializes a typed payload for storage.
func EncodeNotificationPayload(payload NotificationPayload) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("notification payload is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", payload.notificationKind(), err)
	}
	return string(raw), nil
}

// DecodeNotificationPayload deserializes a stored payload by kind.
func DecodeNotificationPayload(kind NotificationKind, raw string) (NotificationPayload, error) {
	switch kind {
	case NotificationKindInvite:
		return decodePayload[InvitePayload](kind, raw)
	case NotificationKindJoinRequest:
		return decodePayload[JoinRequestPayload](kind, raw)
	case NotificationKindInviteResolved:
		return decodePayload[InviteResolvedPayload](kind, raw)
	case NotificationKindRequestResolved:
		return decodePayload[RequestResolvedPayload](kind, raw)
	case NotificationKindMemberJoined:
		return decodePayload[MemberJoinedPayload](kind, raw)
	default:
		return nil, fmt.Errorf("unknown notification kind %q", kind)
	}
}

func decodePayload[T NotificationPayload](kind NotificationKind, raw string) (NotificationPayload, error) {
	var target T
	if err := json.Unmarshal([]byte(raw), &target); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return target, nil
}
