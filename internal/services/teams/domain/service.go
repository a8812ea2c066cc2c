package domain

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/openhack/teamup/internal/platform/errors"
	"github.com/openhack/teamup/internal/platform/id"
	"github.com/openhack/teamup/internal/platform/identity"
)

var (
	// ErrTeamNotFound indicates a missing team record.
	ErrTeamNotFound = apperrors.New(apperrors.CodeNotFound, "team not found")
	// ErrInvitationNotFound indicates a missing invitation record.
	ErrInvitationNotFound = apperrors.New(apperrors.CodeNotFound, "invitation not found")
	// ErrJoinRequestNotFound indicates a missing join request record.
	ErrJoinRequestNotFound = apperrors.New(apperrors.CodeNotFound, "join request not found")
	// ErrMemberNotFound indicates the target user holds no seat on the team.
	ErrMemberNotFound = apperrors.New(apperrors.CodeNotFound, "member not found")
	// ErrNotLeader indicates the actor is not the team leader.
	ErrNotLeader = apperrors.New(apperrors.CodeForbidden, "only the team leader may do this")
	// ErrNotInvitee indicates the actor is not the invited email.
	ErrNotInvitee = apperrors.New(apperrors.CodeForbidden, "only the invitee may act on this invitation")
	// ErrNotRequester indicates the actor did not file the join request.
	ErrNotRequester = apperrors.New(apperrors.CodeForbidden, "only the requester may act on this request")
	// ErrAlreadyActioned indicates a terminal invitation or request.
	ErrAlreadyActioned = apperrors.New(apperrors.CodeAlreadyActioned, "already resolved")
	// ErrCapacityExceeded indicates the team has no open seat.
	ErrCapacityExceeded = apperrors.New(apperrors.CodeCapacityExceeded, "team is at capacity")
	// ErrAlreadyMember indicates the actor already holds a seat.
	ErrAlreadyMember = apperrors.New(apperrors.CodeAlreadyMember, "already a team member")
	// ErrDuplicateRequest indicates a pending request already exists.
	ErrDuplicateRequest = apperrors.New(apperrors.CodeDuplicateRequest, "a pending join request already exists")
	// ErrCannotRemoveLeader indicates an attempt to remove the team leader.
	ErrCannotRemoveLeader = apperrors.New(apperrors.CodeCannotRemoveLeader, "the team leader cannot be removed")
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = apperrors.New(apperrors.CodeUnavailable, "membership store is not configured")
)

// InvitationResolution flips one invitation out of pending.
type InvitationResolution struct {
	ID     string
	Status InvitationStatus
}

// JoinRequestResolution flips one join request out of pending.
type JoinRequestResolution struct {
	ID     string
	Status JoinRequestStatus
}

// AddMemberInput is the capacity-checked member insertion. It is the only
// operation that grows a member set, and the store must execute all of it in
// one transaction: the capacity predicate, the member row, the pending check
// and status flip on the resolution, the actioned flip on the ledger entry
// matching the resolution ref, and the new ledger entries.
type AddMemberInput struct {
	TeamID        string
	Member        Member
	Invitation    *InvitationResolution
	JoinRequest   *JoinRequestResolution
	Notifications []Notification
	Now           time.Time
}

// ResolveInvitationInput flips an invitation without adding a member.
type ResolveInvitationInput struct {
	Resolution    InvitationResolution
	Notifications []Notification
	Now           time.Time
}

// ResolveJoinRequestInput flips a join request without adding a member.
type ResolveJoinRequestInput struct {
	Resolution    JoinRequestResolution
	Notifications []Notification
	Now           time.Time
}

// Store is the durable membership and ledger boundary.
//
// Errors cross this boundary as platform error codes: NotFound,
// AlreadyActioned, CapacityExceeded, AlreadyMember, DuplicateRequest.
type Store interface {
	CreateTeam(ctx context.Context, team Team, leader Member) error
	GetTeam(ctx context.Context, teamID string) (Team, error)
	ListMembers(ctx context.Context, teamID string) ([]Member, error)
	PutInvitation(ctx context.Context, invitation Invitation, notification Notification) error
	GetInvitation(ctx context.Context, invitationID string) (Invitation, error)
	PutJoinRequest(ctx context.Context, request JoinRequest, notification Notification) error
	GetJoinRequest(ctx context.Context, requestID string) (JoinRequest, error)
	HasPendingJoinRequest(ctx context.Context, teamID string, requesterUserID string) (bool, error)
	AddMember(ctx context.Context, input AddMemberInput) error
	ResolveInvitation(ctx context.Context, input ResolveInvitationInput) error
	ResolveJoinRequest(ctx context.Context, input ResolveJoinRequestInput) error
	RemoveMember(ctx context.Context, teamID string, userID string, now time.Time) error
	ListNotifications(ctx context.Context, recipients []string, pageSize int, pageToken string) (NotificationPage, error)
	MarkNotificationRead(ctx context.Context, recipients []string, notificationID string, readAt time.Time) (Notification, error)
}

// Service orchestrates the team-formation state machine over the store.
type Service struct {
	store Store
	clock func() time.Time
	newID func() (string, error)
}

// NewService constructs team-formation use-cases.
func NewService(store Store, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		store: store,
		clock: clock,
		newID: newID,
	}
}

// CreateTeam persists a new team with the actor as leader.
func (s *Service) CreateTeam(ctx context.Context, actor identity.Principal, input CreateTeamInput) (Team, error) {
	if s == nil || s.store == nil {
		return Team{}, ErrStoreNotConfigured
	}
	input.LeaderUserID = actor.UserID
	input.LeaderName = actor.Name
	team, leader, err := CreateTeam(input, s.clock, s.newID)
	if err != nil {
		return Team{}, err
	}
	if err := s.store.CreateTeam(ctx, team, leader); err != nil {
		return Team{}, err
	}
	return team, nil
}

// GetTeam loads one team with its members.
func (s *Service) GetTeam(ctx context.Context, teamID string) (Team, []Member, error) {
	if s == nil || s.store == nil {
		return Team{}, nil, ErrStoreNotConfigured
	}
	team, err := s.store.GetTeam(ctx, strings.TrimSpace(teamID))
	if err != nil {
		return Team{}, nil, err
	}
	members, err := s.store.ListMembers(ctx, team.ID)
	if err != nil {
		return Team{}, nil, err
	}
	return team, members, nil
}

// IsMember reports whether the user currently holds a seat on the team.
func (s *Service) IsMember(ctx context.Context, teamID string, userID string) (bool, error) {
	if s == nil || s.store == nil {
		return false, ErrStoreNotConfigured
	}
	members, err := s.store.ListMembers(ctx, strings.TrimSpace(teamID))
	if err != nil {
		return false, err
	}
	userID = strings.TrimSpace(userID)
	for _, member := range members {
		if member.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

// CreateInvitation writes a pending invitation and notifies the invitee.
func (s *Service) CreateInvitation(ctx context.Context, actor identity.Principal, input CreateInvitationInput) (Invitation, error) {
	if s == nil || s.store == nil {
		return Invitation{}, ErrStoreNotConfigured
	}
	team, err := s.store.GetTeam(ctx, strings.TrimSpace(input.TeamID))
	if err != nil {
		return Invitation{}, err
	}
	if team.LeaderUserID != actor.UserID {
		return Invitation{}, ErrNotLeader
	}

	invitation, err := CreateInvitation(input, s.clock, s.newID)
	if err != nil {
		return Invitation{}, err
	}
	notification, err := s.newNotification(EmailRecipient(invitation.InviteeEmail), InvitePayload{
		InvitationID: invitation.ID,
		TeamID:       team.ID,
		TeamName:     team.Name,
		Role:         invitation.Role,
		Note:         invitation.Note,
	}, InvitationRef(invitation.ID))
	if err != nil {
		return Invitation{}, err
	}
	if err := s.store.PutInvitation(ctx, invitation, notification); err != nil {
		return Invitation{}, err
	}
	return invitation, nil
}

// AcceptInvitation adds the invitee to the team through the capacity-checked
// insertion. Exactly one of two racing accepts of the last seat wins.
func (s *Service) AcceptInvitation(ctx context.Context, actor identity.Principal, invitationID string) (Invitation, error) {
	if s == nil || s.store == nil {
		return Invitation{}, ErrStoreNotConfigured
	}
	invitation, err := s.store.GetInvitation(ctx, strings.TrimSpace(invitationID))
	if err != nil {
		return Invitation{}, err
	}
	if actor.Email == "" || invitation.InviteeEmail != EmailRecipient(actor.Email) {
		return Invitation{}, ErrNotInvitee
	}
	if invitation.Status != InvitationStatusPending {
		return Invitation{}, ErrAlreadyActioned
	}

	team, err := s.store.GetTeam(ctx, invitation.TeamID)
	if err != nil {
		return Invitation{}, err
	}
	members, err := s.store.ListMembers(ctx, team.ID)
	if err != nil {
		return Invitation{}, err
	}

	now := s.nowUTC()
	member := Member{
		TeamID:   team.ID,
		UserID:   actor.UserID,
		Name:     principalName(actor),
		Role:     invitation.Role,
		JoinedAt: now,
	}

	notifications, err := s.memberJoinedNotifications(team, members, member)
	if err != nil {
		return Invitation{}, err
	}
	resolved, err := s.newNotification(team.LeaderUserID, InviteResolvedPayload{
		InvitationID: invitation.ID,
		TeamID:       team.ID,
		TeamName:     team.Name,
		InviteeEmail: invitation.InviteeEmail,
		Accepted:     true,
	}, "")
	if err != nil {
		return Invitation{}, err
	}
	notifications = append(notifications, resolved)

	if err := s.store.AddMember(ctx, AddMemberInput{
		TeamID:        team.ID,
		Member:        member,
		Invitation:    &InvitationResolution{ID: invitation.ID, Status: InvitationStatusAccepted},
		Notifications: notifications,
		Now:           now,
	}); err != nil {
		return Invitation{}, err
	}

	invitation.Status = InvitationStatusAccepted
	invitation.UpdatedAt = now
	return invitation, nil
}

// DeclineInvitation resolves an invitation without touching membership.
func (s *Service) DeclineInvitation(ctx context.Context, actor identity.Principal, invitationID string) (Invitation, error) {
	if s == nil || s.store == nil {
		return Invitation{}, ErrStoreNotConfigured
	}
	invitation, err := s.store.GetInvitation(ctx, strings.TrimSpace(invitationID))
	if err != nil {
		return Invitation{}, err
	}
	if actor.Email == "" || invitation.InviteeEmail != EmailRecipient(actor.Email) {
		return Invitation{}, ErrNotInvitee
	}
	if invitation.Status != InvitationStatusPending {
		return Invitation{}, ErrAlreadyActioned
	}

	team, err := s.store.GetTeam(ctx, invitation.TeamID)
	if err != nil {
		return Invitation{}, err
	}
	resolved, err := s.newNotification(team.LeaderUserID, InviteResolvedPayload{
		InvitationID: invitation.ID,
		TeamID:       team.ID,
		TeamName:     team.Name,
		InviteeEmail: invitation.InviteeEmail,
		Accepted:     false,
	}, "")
	if err != nil {
		return Invitation{}, err
	}

	now := s.nowUTC()
	if err := s.store.ResolveInvitation(ctx, ResolveInvitationInput{
		Resolution:    InvitationResolution{ID: invitation.ID, Status: InvitationStatusDeclined},
		Notifications: []Notification{resolved},
		Now:           now,
	}); err != nil {
		return Invitation{}, err
	}

	invitation.Status = InvitationStatusDeclined
	invitation.UpdatedAt = now
	return invitation, nil
}

// RequestToJoin files a pending join request and notifies the leader.
func (s *Service) RequestToJoin(ctx context.Context, actor identity.Principal, teamID string, message string) (JoinRequest, error) {
	if s == nil || s.store == nil {
		return JoinRequest{}, ErrStoreNotConfigured
	}
	team, err := s.store.GetTeam(ctx, strings.TrimSpace(teamID))
	if err != nil {
		return JoinRequest{}, err
	}
	members, err := s.store.ListMembers(ctx, team.ID)
	if err != nil {
		return JoinRequest{}, err
	}
	for _, member := range members {
		if member.UserID == actor.UserID {
			return JoinRequest{}, ErrAlreadyMember
		}
	}
	if len(members) >= team.Capacity {
		return JoinRequest{}, ErrCapacityExceeded
	}
	pending, err := s.store.HasPendingJoinRequest(ctx, team.ID, actor.UserID)
	if err != nil {
		return JoinRequest{}, err
	}
	if pending {
		return JoinRequest{}, ErrDuplicateRequest
	}

	request, err := CreateJoinRequest(CreateJoinRequestInput{
		TeamID:          team.ID,
		RequesterUserID: actor.UserID,
		RequesterName:   principalName(actor),
		Message:         message,
	}, s.clock, s.newID)
	if err != nil {
		return JoinRequest{}, err
	}
	notification, err := s.newNotification(team.LeaderUserID, JoinRequestPayload{
		RequestID:       request.ID,
		TeamID:          team.ID,
		TeamName:        team.Name,
		RequesterUserID: request.RequesterUserID,
		RequesterName:   request.RequesterName,
		Message:         request.Message,
	}, JoinRequestRef(request.ID))
	if err != nil {
		return JoinRequest{}, err
	}
	if err := s.store.PutJoinRequest(ctx, request, notification); err != nil {
		return JoinRequest{}, err
	}
	return request, nil
}

// ApproveRequest adds the requester to the team through the capacity-checked
// insertion and notifies both sides.
func (s *Service) ApproveRequest(ctx context.Context, actor identity.Principal, requestID string) (JoinRequest, error) {
	if s == nil || s.store == nil {
		return JoinRequest{}, ErrStoreNotConfigured
	}
	request, err := s.store.GetJoinRequest(ctx, strings.TrimSpace(requestID))
	if err != nil {
		return JoinRequest{}, err
	}
	team, err := s.store.GetTeam(ctx, request.TeamID)
	if err != nil {
		return JoinRequest{}, err
	}
	if team.LeaderUserID != actor.UserID {
		return JoinRequest{}, ErrNotLeader
	}
	if request.Status != JoinRequestStatusPending {
		return JoinRequest{}, ErrAlreadyActioned
	}
	members, err := s.store.ListMembers(ctx, team.ID)
	if err != nil {
		return JoinRequest{}, err
	}

	now := s.nowUTC()
	member := Member{
		TeamID:   team.ID,
		UserID:   request.RequesterUserID,
		Name:     request.RequesterName,
		Role:     RoleMember,
		JoinedAt: now,
	}

	notifications, err := s.memberJoinedNotifications(team, members, member)
	if err != nil {
		return JoinRequest{}, err
	}
	resolved, err := s.newNotification(request.RequesterUserID, RequestResolvedPayload{
		RequestID: request.ID,
		TeamID:    team.ID,
		TeamName:  team.Name,
		Approved:  true,
	}, "")
	if err != nil {
		return JoinRequest{}, err
	}
	notifications = append(notifications, resolved)

	if err := s.store.AddMember(ctx, AddMemberInput{
		TeamID:        team.ID,
		Member:        member,
		JoinRequest:   &JoinRequestResolution{ID: request.ID, Status: JoinRequestStatusApproved},
		Notifications: notifications,
		Now:           now,
	}); err != nil {
		return JoinRequest{}, err
	}

	request.Status = JoinRequestStatusApproved
	request.UpdatedAt = now
	return request, nil
}

// RejectRequest resolves a join request without touching membership.
func (s *Service) RejectRequest(ctx context.Context, actor identity.Principal, requestID string) (JoinRequest, error) {
	if s == nil || s.store == nil {
		return JoinRequest{}, ErrStoreNotConfigured
	}
	request, err := s.store.GetJoinRequest(ctx, strings.TrimSpace(requestID))
	if err != nil {
		return JoinRequest{}, err
	}
	team, err := s.store.GetTeam(ctx, request.TeamID)
	if err != nil {
		return JoinRequest{}, err
	}
	if team.LeaderUserID != actor.UserID {
		return JoinRequest{}, ErrNotLeader
	}
	if request.Status != JoinRequestStatusPending {
		return JoinRequest{}, ErrAlreadyActioned
	}

	resolved, err := s.newNotification(request.RequesterUserID, RequestResolvedPayload{
		RequestID: request.ID,
		TeamID:    team.ID,
		TeamName:  team.Name,
		Approved:  false,
	}, "")
	if err != nil {
		return JoinRequest{}, err
	}

	now := s.nowUTC()
	if err := s.store.ResolveJoinRequest(ctx, ResolveJoinRequestInput{
		Resolution:    JoinRequestResolution{ID: request.ID, Status: JoinRequestStatusRejected},
		Notifications: []Notification{resolved},
		Now:           now,
	}); err != nil {
		return JoinRequest{}, err
	}

	request.Status = JoinRequestStatusRejected
	request.UpdatedAt = now
	return request, nil
}

// WithdrawRequest pulls a pending join request. Withdrawing an already
// withdrawn request is a no-op: the requester's intent is satisfied.
func (s *Service) WithdrawRequest(ctx context.Context, actor identity.Principal, requestID string) (JoinRequest, error) {
	if s == nil || s.store == nil {
		return JoinRequest{}, ErrStoreNotConfigured
	}
	request, err := s.store.GetJoinRequest(ctx, strings.TrimSpace(requestID))
	if err != nil {
		return JoinRequest{}, err
	}
	if request.RequesterUserID != actor.UserID {
		return JoinRequest{}, ErrNotRequester
	}
	switch request.Status {
	case JoinRequestStatusWithdrawn:
		return request, nil
	case JoinRequestStatusPending:
	default:
		return JoinRequest{}, ErrAlreadyActioned
	}

	now := s.nowUTC()
	if err := s.store.ResolveJoinRequest(ctx, ResolveJoinRequestInput{
		Resolution: JoinRequestResolution{ID: request.ID, Status: JoinRequestStatusWithdrawn},
		Now:        now,
	}); err != nil {
		// A concurrent withdraw already resolved it; the intent holds.
		if apperrors.IsCode(err, apperrors.CodeAlreadyActioned) {
			request.Status = JoinRequestStatusWithdrawn
			return request, nil
		}
		return JoinRequest{}, err
	}

	request.Status = JoinRequestStatusWithdrawn
	request.UpdatedAt = now
	return request, nil
}

// RemoveMember frees a seat. The leader seat cannot be freed this way.
func (s *Service) RemoveMember(ctx context.Context, actor identity.Principal, teamID string, targetUserID string) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	team, err := s.store.GetTeam(ctx, strings.TrimSpace(teamID))
	if err != nil {
		return err
	}
	if team.LeaderUserID != actor.UserID {
		return ErrNotLeader
	}
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == team.LeaderUserID {
		return ErrCannotRemoveLeader
	}
	return s.store.RemoveMember(ctx, team.ID, targetUserID, s.nowUTC())
}

// ListNotifications lists the actor's inbox, newest first. Invite
// notifications addressed to the actor's email are included.
func (s *Service) ListNotifications(ctx context.Context, actor identity.Principal, pageSize int, pageToken string) (NotificationPage, error) {
	if s == nil || s.store == nil {
		return NotificationPage{}, ErrStoreNotConfigured
	}
	return s.store.ListNotifications(ctx, recipientKeys(actor), pageSize, strings.TrimSpace(pageToken))
}

// MarkNotificationRead acknowledges one inbox entry.
func (s *Service) MarkNotificationRead(ctx context.Context, actor identity.Principal, notificationID string) (Notification, error) {
	if s == nil || s.store == nil {
		return Notification{}, ErrStoreNotConfigured
	}
	return s.store.MarkNotificationRead(ctx, recipientKeys(actor), strings.TrimSpace(notificationID), s.nowUTC())
}

func (s *Service) memberJoinedNotifications(team Team, existing []Member, joined Member) ([]Notification, error) {
	payload := MemberJoinedPayload{
		TeamID:   team.ID,
		TeamName: team.Name,
		UserID:   joined.UserID,
		Name:     joined.Name,
	}
	notifications := make([]Notification, 0, len(existing))
	for _, member := range existing {
		if member.UserID == joined.UserID {
			continue
		}
		notification, err := s.newNotification(member.UserID, payload, "")
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, notification)
	}
	return notifications, nil
}

func (s *Service) newNotification(recipient string, payload NotificationPayload, ref string) (Notification, error) {
	notificationID, err := s.newID()
	if err != nil {
		return Notification{}, err
	}
	return Notification{
		ID:        notificationID,
		Recipient: recipient,
		Kind:      payload.notificationKind(),
		Payload:   payload,
		Ref:       ref,
		CreatedAt: s.nowUTC(),
	}, nil
}

func (s *Service) nowUTC() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func principalName(actor identity.Principal) string {
	if name := strings.TrimSpace(actor.Name); name != "" {
		return name
	}
	return actor.UserID
}

func recipientKeys(actor identity.Principal) []string {
	keys := []string{actor.UserID}
	if email := EmailRecipient(actor.Email); email != "" && email != actor.UserID {
		keys = append(keys, email)
	}
	return keys
}
