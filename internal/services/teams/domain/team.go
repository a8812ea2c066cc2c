// Package domain implements the team-formation state machine: teams,
// invitations, join requests, and the notification ledger entries those
// transitions produce.
package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/openhack/teamup/internal/platform/errors"
	"github.com/openhack/teamup/internal/platform/id"
)

var (
	// ErrTeamNameEmpty indicates a missing team name.
	ErrTeamNameEmpty = apperrors.New(apperrors.CodeTeamNameEmpty, "team name is required")
	// ErrTeamEventIDEmpty indicates a missing event ID.
	ErrTeamEventIDEmpty = apperrors.New(apperrors.CodeTeamEventIDEmpty, "event id is required")
	// ErrTeamCapacityInvalid indicates a non-positive member capacity.
	ErrTeamCapacityInvalid = apperrors.New(apperrors.CodeTeamCapacityInvalid, "team capacity must be at least 1")
	// ErrTeamLeaderEmpty indicates a missing leader identity.
	ErrTeamLeaderEmpty = apperrors.New(apperrors.CodeTeamLeaderEmpty, "team leader is required")
)

// Role labels a member's position within a team.
type Role string

const (
	// RoleLeader marks the team leader. Exactly one per team.
	RoleLeader Role = "leader"
	// RoleMember marks a regular team member.
	RoleMember Role = "member"
)

// NormalizeRole maps a raw role label to a known Role, defaulting to member.
func NormalizeRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(RoleLeader):
		return RoleLeader
	default:
		return RoleMember
	}
}

// Team is the durable team record. Capacity counts the leader.
type Team struct {
	ID           string
	Name         string
	EventID      string
	LeaderUserID string
	Capacity     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Member is one seat on a team, unique by user within the team.
type Member struct {
	TeamID   string
	UserID   string
	Name     string
	Role     Role
	JoinedAt time.Time
}

// CreateTeamInput describes the metadata needed to create a team.
type CreateTeamInput struct {
	Name         string
	EventID      string
	Capacity     int
	LeaderUserID string
	LeaderName   string
}

// CreateTeam creates a new team with a generated ID and timestamps. The
// leader occupies the first seat.
func CreateTeam(input CreateTeamInput, now func() time.Time, idGenerator func() (string, error)) (Team, Member, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateTeamInput(input)
	if err != nil {
		return Team{}, Member{}, err
	}

	teamID, err := idGenerator()
	if err != nil {
		return Team{}, Member{}, fmt.Errorf("generate team id: %w", err)
	}

	createdAt := now().UTC()
	team := Team{
		ID:           teamID,
		Name:         normalized.Name,
		EventID:      normalized.EventID,
		LeaderUserID: normalized.LeaderUserID,
		Capacity:     normalized.Capacity,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	leader := Member{
		TeamID:   teamID,
		UserID:   normalized.LeaderUserID,
		Name:     normalized.LeaderName,
		Role:     RoleLeader,
		JoinedAt: createdAt,
	}
	return team, leader, nil
}

// NormalizeCreateTeamInput trims and validates team input metadata.
func NormalizeCreateTeamInput(input CreateTeamInput) (CreateTeamInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return CreateTeamInput{}, ErrTeamNameEmpty
	}
	input.EventID = strings.TrimSpace(input.EventID)
	if input.EventID == "" {
		return CreateTeamInput{}, ErrTeamEventIDEmpty
	}
	if input.Capacity < 1 {
		return CreateTeamInput{}, ErrTeamCapacityInvalid
	}
	input.LeaderUserID = strings.TrimSpace(input.LeaderUserID)
	if input.LeaderUserID == "" {
		return CreateTeamInput{}, ErrTeamLeaderEmpty
	}
	input.LeaderName = strings.TrimSpace(input.LeaderName)
	if input.LeaderName == "" {
		input.LeaderName = input.LeaderUserID
	}
	return input, nil
}
