package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/openhack/teamup/internal/platform/errors"
	"github.com/openhack/teamup/internal/platform/id"
)

// ErrJoinRequestEmptyTeamID indicates a missing team ID.
var ErrJoinRequestEmptyTeamID = apperrors.New(apperrors.CodeJoinRequestEmptyTeam, "team id is required")

// JoinRequestStatus represents the lifecycle status of a join request.
type JoinRequestStatus int

const (
	// JoinRequestStatusUnspecified represents an invalid join request status.
	JoinRequestStatusUnspecified JoinRequestStatus = iota
	// JoinRequestStatusPending indicates a request awaits the leader.
	JoinRequestStatusPending
	// JoinRequestStatusApproved indicates the requester joined the team.
	JoinRequestStatusApproved
	// JoinRequestStatusRejected indicates the leader turned the request down.
	JoinRequestStatusRejected
	// JoinRequestStatusWithdrawn indicates the requester pulled the request.
	JoinRequestStatusWithdrawn
)

// Terminal reports whether the status permits no further transitions.
func (s JoinRequestStatus) Terminal() bool {
	switch s {
	case JoinRequestStatusApproved, JoinRequestStatusRejected, JoinRequestStatusWithdrawn:
		return true
	default:
		return false
	}
}

// JoinRequest is a user-initiated request to join an open team.
type JoinRequest struct {
	ID              string
	TeamID          string
	RequesterUserID string
	RequesterName   string
	Message         string
	Status          JoinRequestStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateJoinRequestInput describes the metadata needed to create a join request.
type CreateJoinRequestInput struct {
	TeamID          string
	RequesterUserID string
	RequesterName   string
	Message         string
}

// CreateJoinRequest creates a pending join request with a generated ID.
func CreateJoinRequest(input CreateJoinRequestInput, now func() time.Time, idGenerator func() (string, error)) (JoinRequest, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateJoinRequestInput(input)
	if err != nil {
		return JoinRequest{}, err
	}

	requestID, err := idGenerator()
	if err != nil {
		return JoinRequest{}, fmt.Errorf("generate join request id: %w", err)
	}

	createdAt := now().UTC()
	return JoinRequest{
		ID:              requestID,
		TeamID:          normalized.TeamID,
		RequesterUserID: normalized.RequesterUserID,
		RequesterName:   normalized.RequesterName,
		Message:         normalized.Message,
		Status:          JoinRequestStatusPending,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}, nil
}

// NormalizeCreateJoinRequestInput trims and validates join request input.
func NormalizeCreateJoinRequestInput(input CreateJoinRequestInput) (CreateJoinRequestInput, error) {
	input.TeamID = strings.TrimSpace(input.TeamID)
	if input.TeamID == "" {
		return CreateJoinRequestInput{}, ErrJoinRequestEmptyTeamID
	}
	input.RequesterUserID = strings.TrimSpace(input.RequesterUserID)
	if input.RequesterUserID == "" {
		return CreateJoinRequestInput{}, apperrors.New(apperrors.CodeUnauthorized, "requester identity is required")
	}
	input.RequesterName = strings.TrimSpace(input.RequesterName)
	if input.RequesterName == "" {
		input.RequesterName = input.RequesterUserID
	}
	input.Message = strings.TrimSpace(input.Message)
	return input, nil
}

// JoinRequestStatusLabel returns the string label for a join request status.
func JoinRequestStatusLabel(status JoinRequestStatus) string {
	switch status {
	case JoinRequestStatusPending:
		return "PENDING"
	case JoinRequestStatusApproved:
		return "APPROVED"
	case JoinRequestStatusRejected:
		return "REJECTED"
	case JoinRequestStatusWithdrawn:
		return "WITHDRAWN"
	default:
		return "UNSPECIFIED"
	}
}

// JoinRequestStatusFromLabel converts a status label to a status value.
func JoinRequestStatusFromLabel(label string) JoinRequestStatus {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "PENDING":
		return JoinRequestStatusPending
	case "APPROVED":
		return JoinRequestStatusApproved
	case "REJECTED":
		return JoinRequestStatusRejected
	case "WITHDRAWN":
		return JoinRequestStatusWithdrawn
	default:
		return JoinRequestStatusUnspecified
	}
}
