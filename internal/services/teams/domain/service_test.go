package domain

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	apperrors "github.com/openhack/teamup/internal/platform/errors"
	"github.com/openhack/teamup/internal/platform/identity"
)

type fakeStore struct {
	teams         map[string]Team
	members       map[string][]Member
	invitations   map[string]Invitation
	joinRequests  map[string]JoinRequest
	notifications []Notification
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		teams:        make(map[string]Team),
		members:      make(map[string][]Member),
		invitations:  make(map[string]Invitation),
		joinRequests: make(map[string]JoinRequest),
	}
}

func (f *fakeStore) CreateTeam(_ context.Context, team Team, leader Member) error {
	f.teams[team.ID] = team
	f.members[team.ID] = []Member{leader}
	return nil
}

func (f *fakeStore) GetTeam(_ context.Context, teamID string) (Team, error) {
	team, ok := f.teams[teamID]
	if !ok {
		return Team{}, ErrTeamNotFound
	}
	return team, nil
}

func (f *fakeStore) ListMembers(_ context.Context, teamID string) ([]Member, error) {
	return append([]Member(nil), f.members[teamID]...), nil
}

func (f *fakeStore) PutInvitation(_ context.Context, invitation Invitation, notification Notification) error {
	f.invitations[invitation.ID] = invitation
	f.notifications = append(f.notifications, notification)
	return nil
}

func (f *fakeStore) GetInvitation(_ context.Context, invitationID string) (Invitation, error) {
	invitation, ok := f.invitations[invitationID]
	if !ok {
		return Invitation{}, ErrInvitationNotFound
	}
	return invitation, nil
}

func (f *fakeStore) PutJoinRequest(_ context.Context, request JoinRequest, notification Notification) error {
	f.joinRequests[request.ID] = request
	f.notifications = append(f.notifications, notification)
	return nil
}

func (f *fakeStore) GetJoinRequest(_ context.Context, requestID string) (JoinRequest, error) {
	request, ok := f.joinRequests[requestID]
	if !ok {
		return JoinRequest{}, ErrJoinRequestNotFound
	}
	return request, nil
}

func (f *fakeStore) HasPendingJoinRequest(_ context.Context, teamID string, requesterUserID string) (bool, error) {
	for _, request := range f.joinRequests {
		if request.TeamID == teamID && request.RequesterUserID == requesterUserID && request.Status == JoinRequestStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) AddMember(_ context.Context, input AddMemberInput) error {
	team, ok := f.teams[input.TeamID]
	if !ok {
		return ErrTeamNotFound
	}
	if len(f.members[input.TeamID]) >= team.Capacity {
		return ErrCapacityExceeded
	}
	var ref string
	if input.Invitation != nil {
		invitation, ok := f.invitations[input.Invitation.ID]
		if !ok {
			return ErrInvitationNotFound
		}
		if invitation.Status != InvitationStatusPending {
			return ErrAlreadyActioned
		}
		invitation.Status = input.Invitation.Status
		invitation.UpdatedAt = input.Now
		f.invitations[invitation.ID] = invitation
		ref = InvitationRef(invitation.ID)
	}
	if input.JoinRequest != nil {
		request, ok := f.joinRequests[input.JoinRequest.ID]
		if !ok {
			return ErrJoinRequestNotFound
		}
		if request.Status != JoinRequestStatusPending {
			return ErrAlreadyActioned
		}
		request.Status = input.JoinRequest.Status
		request.UpdatedAt = input.Now
		f.joinRequests[request.ID] = request
		ref = JoinRequestRef(request.ID)
	}
	f.members[input.TeamID] = append(f.members[input.TeamID], input.Member)
	f.actionByRef(ref, input.Now)
	f.notifications = append(f.notifications, input.Notifications...)
	return nil
}

func (f *fakeStore) ResolveInvitation(_ context.Context, input ResolveInvitationInput) error {
	invitation, ok := f.invitations[input.Resolution.ID]
	if !ok {
		return ErrInvitationNotFound
	}
	if invitation.Status != InvitationStatusPending {
		return ErrAlreadyActioned
	}
	invitation.Status = input.Resolution.Status
	invitation.UpdatedAt = input.Now
	f.invitations[invitation.ID] = invitation
	f.actionByRef(InvitationRef(invitation.ID), input.Now)
	f.notifications = append(f.notifications, input.Notifications...)
	return nil
}

func (f *fakeStore) ResolveJoinRequest(_ context.Context, input ResolveJoinRequestInput) error {
	request, ok := f.joinRequests[input.Resolution.ID]
	if !ok {
		return ErrJoinRequestNotFound
	}
	if request.Status != JoinRequestStatusPending {
		return ErrAlreadyActioned
	}
	request.Status = input.Resolution.Status
	request.UpdatedAt = input.Now
	f.joinRequests[request.ID] = request
	f.actionByRef(JoinRequestRef(request.ID), input.Now)
	f.notifications = append(f.notifications, input.Notifications...)
	return nil
}

func (f *fakeStore) RemoveMember(_ context.Context, teamID string, userID string, _ time.Time) error {
	members := f.members[teamID]
	for i, member := range members {
		if member.UserID == userID {
			f.members[teamID] = append(members[:i:i], members[i+1:]...)
			return nil
		}
	}
	return ErrMemberNotFound
}

func (f *fakeStore) ListNotifications(_ context.Context, recipients []string, pageSize int, _ string) (NotificationPage, error) {
	var page NotificationPage
	for _, notification := range f.notifications {
		for _, recipient := range recipients {
			if notification.Recipient == recipient {
				page.Notifications = append(page.Notifications, notification)
			}
		}
	}
	sort.SliceStable(page.Notifications, func(i, j int) bool {
		return page.Notifications[i].CreatedAt.After(page.Notifications[j].CreatedAt)
	})
	if pageSize > 0 && len(page.Notifications) > pageSize {
		page.Notifications = page.Notifications[:pageSize]
	}
	return page, nil
}

func (f *fakeStore) MarkNotificationRead(_ context.Context, recipients []string, notificationID string, readAt time.Time) (Notification, error) {
	for i, notification := range f.notifications {
		if notification.ID != notificationID {
			continue
		}
		for _, recipient := range recipients {
			if notification.Recipient == recipient {
				f.notifications[i].ReadAt = &readAt
				return f.notifications[i], nil
			}
		}
	}
	return Notification{}, apperrors.New(apperrors.CodeNotFound, "notification not found")
}

func (f *fakeStore) actionByRef(ref string, now time.Time) {
	if ref == "" {
		return
	}
	for i, notification := range f.notifications {
		if notification.Ref == ref && notification.ActionedAt == nil {
			f.notifications[i].ActionedAt = &now
		}
	}
}

func (f *fakeStore) byKind(recipient string, kind NotificationKind) []Notification {
	var out []Notification
	for _, notification := range f.notifications {
		if notification.Recipient == recipient && notification.Kind == kind {
			out = append(out, notification)
		}
	}
	return out
}

var _ Store = (*fakeStore)(nil)

func testService(store Store) *Service {
	var seq int
	return NewService(store, func() time.Time {
		return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	}, func() (string, error) {
		seq++
		return fmt.Sprintf("id-%04d", seq), nil
	})
}

func principal(userID, email, name string) identity.Principal {
	return identity.Principal{UserID: userID, Email: email, Name: name}
}

func mustCreateTeam(t *testing.T, svc *Service, leader identity.Principal, capacity int) Team {
	t.Helper()
	team, err := svc.CreateTeam(context.Background(), leader, CreateTeamInput{
		Name:     "Compilers at Dawn",
		EventID:  "event-1",
		Capacity: capacity,
	})
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	return team
}

func mustInvite(t *testing.T, svc *Service, leader identity.Principal, teamID, email string) Invitation {
	t.Helper()
	invitation, err := svc.CreateInvitation(context.Background(), leader, CreateInvitationInput{
		TeamID:       teamID,
		InviteeEmail: email,
	})
	if err != nil {
		t.Fatalf("CreateInvitation: %v", err)
	}
	return invitation
}

func TestCreateTeamSeatsLeader(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc := testService(store)
	leader := principal("u-lead", "lead@example.com", "Ada")

	team := mustCreateTeam(t, svc, leader, 4)

	if team.LeaderUserID != "u-lead" {
		t.Fatalf("leader = %q, want u-lead", team.LeaderUserID)
	}
	members := store.members[team.ID]
	if len(members) != 1 {
		t.Fatalf("members = %d, want 1", len(members))
	}
	if members[0].Role != RoleLeader {
		t.Fatalf("role = %q, want %q", members[0].Role, RoleLeader)
	}
}

func TestCreateInvitationLeaderOnly(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc := testService(store)
	leader := principal("u-lead", "lead@example.com", "Ada")
	team := mustCreateTeam(t, svc, leader, 4)

	_, err := svc.CreateInvitation(context.Background(), principal("u-other", "other@example.com", ""), CreateInvitationInput{
		TeamID:       team.ID,
		InviteeEmail: "x@example.com",
	})
	if !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}

	invitation := mustInvite(t, svc, leader, team.ID, "Guest@Example.COM")
	if invitation.InviteeEmail != "guest@example.com" {
		t.Fatalf("invitee = %q, want lowercased", invitation.InviteeEmail)
	}
	inbox := store.byKind("guest@example.com", NotificationKindInvite)
	if len(inbox) != 1 {
		t.Fatalf("invite notifications = %d, want 1", len(inbox))
	}
	if inbox[0].Ref != InvitationRef(invitation.ID) {
		t.Fatalf("ref = %q, want %q", inbox[0].Ref, InvitationRef(invitation.ID))
	}
}

func TestAcceptInvitation(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc := testService(store)
	leader := principal("u-lead", "lead@example.com", "Ada")
	team := mustCreateTeam(t, svc, leader, 4)
	invitation := mustInvite(t, svc, leader, team.ID, "guest@example.com")
	guest := principal("u-guest", "guest@example.com", "Grace")

	accepted, err := svc.AcceptInvitation(context.Background(), guest, invitation.ID)
	if err != nil {
		t.Fatalf("AcceptInvitation: %v", err)
	}
	if accepted.Status != InvitationStatusAccepted {
		t.Fatalf("status = %v, want accepted", accepted.Status)
	}
	if len(store.members[team.ID]) != 2 {
		t.Fatalf("members = %d, want 2", len(store.members[team.ID]))
	}
	if got := store.byKind("u-lead", NotificationKindInviteResolved); len(got) != 1 {
		t.Fatalf("leader resolved notifications = %d, want 1", len(got))
	}
	if got := store.byKind("u-lead", NotificationKindMemberJoined); len(got) != 1 {
		t.Fatalf("member joined notifications = %d, want 1", len(got))
	}
	invite := store.byKind("guest@example.com", NotificationKindInvite)[0]
	if invite.ActionedAt == nil {
		t.Fatal("invite notification not actioned")
	}

	// A second accept of the same invitation is terminal.
	if _, err := svc.AcceptInvitation(context.Background(), guest, invitation.ID); !apperrors.IsCode(err, apperrors.CodeAlreadyActioned) {
		t.Fatalf("second accept err = %v, want already actioned", err)
	}
}

func TestAcceptInvitationWrongInvitee(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc := testService(store)
	leader := principal("u-lead", "lead@example.com", "Ada")
	team := mustCreateTeam(t, svc, leader, 4)
	invitation := mustInvite(t, svc, leader, team.ID, "guest@example.com")

	_, err := svc.AcceptInvitation(context.Background(), principal("u-imp", "imposter@example.com", ""), invitation.ID)
	if !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
}

func TestAcceptInvitationAtCapacity(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc := testService(store)
	leader := principal("u-lead", "lead@example.com", "Ada")
	team := mustCreateTeam(t, svc, leader, 2)

	first := mustInvite(t, svc, leader, team.ID, "one@example.com")
	second := mustInvite(t, svc, leader, team.ID, "two@example.com")

	if _, err := svc.AcceptInvitation(context.Background(), principal("u-one", "one@example.com", ""), first.ID); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	_, err := svc.AcceptInvitation(context.Background(), principal("u-two", "two@example.com", ""), second.ID)
	if !apperrors.IsCode(err, apperrors.CodeCapacityExceeded) {
		t.Fatalf("err = %v, want capacity exceeded", err)
	}
	if second := store.invitations[second.ID]; second.Status != InvitationStatusPending {
		t.Fatalf("losing invitation flipped to %v, want pending", second.Status)
	}
}

func TestDeclineInvitation(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc := testService(store)
	leader := principal("u-lead", "lead@example.com", "Ada")
	team := mustCreateTeam(t, svc, leader, 4)
	invitation := mustInvite(t, svc, leader, team.ID, "guest@example.com")
	guest := principal("u-guest", "guest@example.com", "")

	declined, err := svc.DeclineInvitation(context.Background(), guest, invitation.ID)
	if err != nil {
		t.Fatalf("DeclineInvitation: %v", err)
	}
	if declined.Status != InvitationStatusDeclined {
		t.Fatalf("status = %v, want declined", declined.Status)
	}
	if len(store.members[team.ID]) != 1 {
		t.Fatalf("members = %d, want 1", len(store.members[team.ID]))
	}
	resolved := store.byKind("u-lead", NotificationKindInviteResolved)
	if len(resolved) != 1 {
		t.Fatalf("resolved notifications = %d, want 1", len(resolved))
	}
	payload, ok := resolved[0].Payload.(InviteResolvedPayload)
	if !ok {
		t.Fatalf("payload type = %T", resolved[0].Payload)
	}
	if payload.Accepted {
		t.Fatal("payload reports accepted for a decline")
	}
}

func TestRequestToJoinGuards(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc := testService(store)
	leader := principal("u-lead", "lead@example.com", "Ada")
	team := mustCreateTeam(t, svc, leader, 2)

	// The leader already holds a seat.
	if _, err := svc.RequestToJoin(context.Background(), leader, team.ID, ""); !apperrors.IsCode(err, apperrors.CodeAlreadyMember) {
		t.Fatalf("err = %v, want already member", err)
	}

	requester := principal("u-req", "req@example.com", "Lin")
	request, err := svc.RequestToJoin(context.Background(), requester, team.ID, "let me in")
	if err != nil {
		t.Fatalf("RequestToJoin: %v", err)
	}
	if request.Status != JoinRequestStatusPending {
		t.Fatalf("status = %v, want pending", request.Status)
	}
	if got := store.byKind("u-lead", NotificationKindJoinRequest); len(got) != 1 {
		t.Fatalf("leader request notifications = %d, want 1", len(got))
	}

	// Duplicate pending request from the same user.
	if _, err := svc.RequestToJoin(context.Background(), requester, team.ID, ""); !apperrors.IsCode(err, apperrors.CodeDuplicateRequest) {
		t.Fatalf("err = %v, want duplicate request", err)
	}

	// Fill the team, then a fresh requester bounces on capacity.
	if _, err := svc.ApproveRequest(context.Background(), leader, request.ID); err != nil {
		t.Fatalf("ApproveRequest: %v", err)
	}
	if _, err := svc.RequestToJoin(context.Background(), principal("u-late", "late@example.com", ""), team.ID, ""); !apperrors.IsCode(err, apperrors.CodeCapacityExceeded) {
		t.Fatalf("err = %v, want capacity exceeded", err)
	}
}

func TestApproveRequest(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc := testService(store)
	leader := principal("u-lead", "lead@example.com", "Ada")
	team := mustCreateTeam(t, svc, leader, 4)
	requester := principal("u-req", "req@example.com", "Lin")
	request, err := svc.RequestToJoin(context.Background(), requester, team.ID, "")
	if err != nil {
		t.Fatalf("RequestToJoin: %v", err)
	}

	if _, err := svc.ApproveRequest(context.Background(), requester, request.ID); !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("non-leader approve err = %v, want forbidden", err)
	}

	approved, err := svc.ApproveRequest(context.Background(), leader, request.ID)
	if err != nil {
		t.Fatalf("ApproveRequest: %v", err)
	}
	if approved.Status != JoinRequestStatusApproved {
		t.Fatalf("status = %v, want approved", approved.Status)
	}
	if len(store.members[team.ID]) != 2 {
		t.Fatalf("members = %d, want 2", len(store.members[team.ID]))
	}
	resolved := store.byKind("u-req", NotificationKindRequestResolved)
	if len(resolved) != 1 {
		t.Fatalf("requester resolved notifications = %d, want 1", len(resolved))
	}
	pendingNote := store.byKind("u-lead", NotificationKindJoinRequest)[0]
	if pendingNote.ActionedAt == nil {
		t.Fatal("join request notification not actioned")
	}

	if _, err := svc.ApproveRequest(context.Background(), leader, request.ID); !apperrors.IsCode(err, apperrors.CodeAlreadyActioned) {
		t.Fatalf("second approve err = %v, want already actioned", err)
	}
}

func TestRejectRequest(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc := testService(store)
	leader := principal("u-lead", "lead@example.com", "Ada")
	team := mustCreateTeam(t, svc, leader, 4)
	requester := principal("u-req", "req@example.com", "Lin")
	request, err := svc.RequestToJoin(context.Background(), requester, team.ID, "")
	if err != nil {
		t.Fatalf("RequestToJoin: %v", err)
	}

	rejected, err := svc.RejectRequest(context.Background(), leader, request.ID)
	if err != nil {
		t.Fatalf("RejectRequest: %v", err)
	}
	if rejected.Status != JoinRequestStatusRejected {
		t.Fatalf("status = %v, want rejected", rejected.Status)
	}
	if len(store.members[team.ID]) != 1 {
		t.Fatalf("members = %d, want 1", len(store.members[team.ID]))
	}
	payload, ok := store.byKind("u-req", NotificationKindRequestResolved)[0].Payload.(RequestResolvedPayload)
	if !ok || payload.Approved {
		t.Fatalf("payload = %+v, want approved=false", payload)
	}
}

func TestWithdrawRequest(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc := testService(store)
	leader := principal("u-lead", "lead@example.com", "Ada")
	team := mustCreateTeam(t, svc, leader, 4)
	requester := principal("u-req", "req@example.com", "Lin")
	request, err := svc.RequestToJoin(context.Background(), requester, team.ID, "")
	if err != nil {
		t.Fatalf("RequestToJoin: %v", err)
	}

	if _, err := svc.WithdrawRequest(context.Background(), leader, request.ID); !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("foreign withdraw err = %v, want forbidden", err)
	}

	withdrawn, err := svc.WithdrawRequest(context.Background(), requester, request.ID)
	if err != nil {
		t.Fatalf("WithdrawRequest: %v", err)
	}
	if withdrawn.Status != JoinRequestStatusWithdrawn {
		t.Fatalf("status = %v, want withdrawn", withdrawn.Status)
	}

	// Withdrawing again is a no-op success.
	again, err := svc.WithdrawRequest(context.Background(), requester, request.ID)
	if err != nil {
		t.Fatalf("repeat WithdrawRequest: %v", err)
	}
	if again.Status != JoinRequestStatusWithdrawn {
		t.Fatalf("repeat status = %v, want withdrawn", again.Status)
	}
}

func TestWithdrawAfterResolution(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc := testService(store)
	leader := principal("u-lead", "lead@example.com", "Ada")
	team := mustCreateTeam(t, svc, leader, 4)
	requester := principal("u-req", "req@example.com", "Lin")
	request, err := svc.RequestToJoin(context.Background(), requester, team.ID, "")
	if err != nil {
		t.Fatalf("RequestToJoin: %v", err)
	}
	if _, err := svc.ApproveRequest(context.Background(), leader, request.ID); err != nil {
		t.Fatalf("ApproveRequest: %v", err)
	}

	if _, err := svc.WithdrawRequest(context.Background(), requester, request.ID); !apperrors.IsCode(err, apperrors.CodeAlreadyActioned) {
		t.Fatalf("err = %v, want already actioned", err)
	}
}

func TestRemoveMember(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc := testService(store)
	leader := principal("u-lead", "lead@example.com", "Ada")
	team := mustCreateTeam(t, svc, leader, 4)
	invitation := mustInvite(t, svc, leader, team.ID, "guest@example.com")
	guest := principal("u-guest", "guest@example.com", "")
	if _, err := svc.AcceptInvitation(context.Background(), guest, invitation.ID); err != nil {
		t.Fatalf("AcceptInvitation: %v", err)
	}

	if err := svc.RemoveMember(context.Background(), guest, team.ID, "u-lead"); !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("non-leader remove err = %v, want forbidden", err)
	}
	if err := svc.RemoveMember(context.Background(), leader, team.ID, "u-lead"); !apperrors.IsCode(err, apperrors.CodeCannotRemoveLeader) {
		t.Fatalf("remove leader err = %v, want cannot remove leader", err)
	}
	if err := svc.RemoveMember(context.Background(), leader, team.ID, "u-guest"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if len(store.members[team.ID]) != 1 {
		t.Fatalf("members = %d, want 1", len(store.members[team.ID]))
	}
}

func TestListNotificationsMergesEmailInbox(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc := testService(store)
	leader := principal("u-lead", "lead@example.com", "Ada")
	team := mustCreateTeam(t, svc, leader, 4)
	mustInvite(t, svc, leader, team.ID, "guest@example.com")

	guest := principal("u-guest", "Guest@Example.com", "")
	page, err := svc.ListNotifications(context.Background(), guest, 10, "")
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(page.Notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(page.Notifications))
	}
	if page.Notifications[0].Kind != NotificationKindInvite {
		t.Fatalf("kind = %q, want invite", page.Notifications[0].Kind)
	}
}

func TestMarkNotificationRead(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc := testService(store)
	leader := principal("u-lead", "lead@example.com", "Ada")
	team := mustCreateTeam(t, svc, leader, 4)
	mustInvite(t, svc, leader, team.ID, "guest@example.com")
	guest := principal("u-guest", "guest@example.com", "")

	page, err := svc.ListNotifications(context.Background(), guest, 10, "")
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	read, err := svc.MarkNotificationRead(context.Background(), guest, page.Notifications[0].ID)
	if err != nil {
		t.Fatalf("MarkNotificationRead: %v", err)
	}
	if read.ReadAt == nil {
		t.Fatal("ReadAt not set")
	}

	// A stranger cannot acknowledge someone else's entry.
	if _, err := svc.MarkNotificationRead(context.Background(), leader, page.Notifications[0].ID); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("foreign mark err = %v, want not found", err)
	}
}
