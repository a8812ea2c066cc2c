package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/openhack/teamup/internal/platform/errors"
	"github.com/openhack/teamup/internal/platform/id"
)

var (
	// ErrInvitationEmptyTeamID indicates a missing team ID.
	ErrInvitationEmptyTeamID = apperrors.New(apperrors.CodeInvitationEmptyTeam, "team id is required")
	// ErrInvitationEmptyEmail indicates a missing invitee email.
	ErrInvitationEmptyEmail = apperrors.New(apperrors.CodeInvitationEmptyEmail, "invitee email is required")
)

// InvitationStatus represents the lifecycle status of an invitation.
type InvitationStatus int

const (
	// InvitationStatusUnspecified represents an invalid invitation status.
	InvitationStatusUnspecified InvitationStatus = iota
	// InvitationStatusPending indicates an invitation awaits the invitee.
	InvitationStatusPending
	// InvitationStatusAccepted indicates the invitee joined the team.
	InvitationStatusAccepted
	// InvitationStatusDeclined indicates the invitee turned the offer down.
	InvitationStatusDeclined
)

// Terminal reports whether the status permits no further transitions.
func (s InvitationStatus) Terminal() bool {
	return s == InvitationStatusAccepted || s == InvitationStatusDeclined
}

// Invitation is a leader-initiated offer of membership to an email address.
type Invitation struct {
	ID           string
	TeamID       string
	InviteeEmail string
	Role         Role
	Note         string
	Status       InvitationStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateInvitationInput describes the metadata needed to create an invitation.
type CreateInvitationInput struct {
	TeamID       string
	InviteeEmail string
	Role         string
	Note         string
}

// CreateInvitation creates a pending invitation with a generated ID.
//
// Capacity is deliberately not checked here: invitations may be sent freely
// and the limit is enforced at acceptance time, inside the member insertion.
func CreateInvitation(input CreateInvitationInput, now func() time.Time, idGenerator func() (string, error)) (Invitation, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateInvitationInput(input)
	if err != nil {
		return Invitation{}, err
	}

	invitationID, err := idGenerator()
	if err != nil {
		return Invitation{}, fmt.Errorf("generate invitation id: %w", err)
	}

	createdAt := now().UTC()
	return Invitation{
		ID:           invitationID,
		TeamID:       normalized.TeamID,
		InviteeEmail: normalized.InviteeEmail,
		Role:         NormalizeRole(normalized.Role),
		Note:         normalized.Note,
		Status:       InvitationStatusPending,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}, nil
}

// NormalizeCreateInvitationInput trims and validates invitation input.
func NormalizeCreateInvitationInput(input CreateInvitationInput) (CreateInvitationInput, error) {
	input.TeamID = strings.TrimSpace(input.TeamID)
	if input.TeamID == "" {
		return CreateInvitationInput{}, ErrInvitationEmptyTeamID
	}
	input.InviteeEmail = strings.ToLower(strings.TrimSpace(input.InviteeEmail))
	if input.InviteeEmail == "" {
		return CreateInvitationInput{}, ErrInvitationEmptyEmail
	}
	input.Note = strings.TrimSpace(input.Note)
	return input, nil
}

// InvitationStatusLabel returns the string label for an invitation status.
func InvitationStatusLabel(status InvitationStatus) string {
	switch status {
	case InvitationStatusPending:
		return "PENDING"
	case InvitationStatusAccepted:
		return "ACCEPTED"
	case InvitationStatusDeclined:
		return "DECLINED"
	default:
		return "UNSPECIFIED"
	}
}

// InvitationStatusFromLabel converts a status label to a status value.
func InvitationStatusFromLabel(label string) InvitationStatus {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "PENDING":
		return InvitationStatusPending
	case "ACCEPTED":
		return InvitationStatusAccepted
	case "DECLINED":
		return InvitationStatusDeclined
	default:
		return InvitationStatusUnspecified
	}
}
