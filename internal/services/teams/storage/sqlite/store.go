// Package sqlite provides a SQLite-backed teams storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/openhack/teamup/internal/platform/errors"
	sqlitemigrate "github.com/openhack/teamup/internal/platform/storage/sqlitemigrate"
	"github.com/openhack/teamup/internal/services/teams/domain"
	"github.com/openhack/teamup/internal/services/teams/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists team-formation state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toNullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	at := fromMillis(value.Int64)
	return &at
}

// Open opens a SQLite teams store and applies embedded migrations.
//
// Write transactions start immediate so the capacity check and the member
// insert obtain the write lock together.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateTeam inserts one team with its leader seat.
func (s *Store) CreateTeam(ctx context.Context, team domain.Team, leader domain.Member) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO teams (id, name, event_id, leader_user_id, capacity, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		team.ID,
		team.Name,
		team.EventID,
		team.LeaderUserID,
		team.Capacity,
		toMillis(team.CreatedAt),
		toMillis(team.UpdatedAt),
	); err != nil {
		if isConstraintViolation(err) {
			return apperrors.New(apperrors.CodeConflict, "team already exists")
		}
		return fmt.Errorf("insert team: %w", err)
	}

	if err := insertMember(ctx, tx, leader); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetTeam loads one team record.
func (s *Store) GetTeam(ctx context.Context, teamID string) (domain.Team, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Team{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, name, event_id, leader_user_id, capacity, created_at, updated_at
		 FROM teams WHERE id = ?`,
		strings.TrimSpace(teamID),
	)
	var (
		team                 domain.Team
		createdAt, updatedAt int64
	)
	if err := row.Scan(&team.ID, &team.Name, &team.EventID, &team.LeaderUserID, &team.Capacity, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Team{}, domain.ErrTeamNotFound
		}
		return domain.Team{}, fmt.Errorf("get team: %w", err)
	}
	team.CreatedAt = fromMillis(createdAt)
	team.UpdatedAt = fromMillis(updatedAt)
	return team, nil
}

// ListMembers loads the member seats for one team, oldest first.
func (s *Store) ListMembers(ctx context.Context, teamID string) ([]domain.Member, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT team_id, user_id, name, role, joined_at
		 FROM team_members WHERE team_id = ?
		 ORDER BY joined_at ASC, user_id ASC`,
		strings.TrimSpace(teamID),
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		var (
			member   domain.Member
			role     string
			joinedAt int64
		)
		if err := rows.Scan(&member.TeamID, &member.UserID, &member.Name, &role, &joinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		member.Role = domain.Role(role)
		member.JoinedAt = fromMillis(joinedAt)
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// PutInvitation inserts a pending invitation and its inbox entry together.
func (s *Store) PutInvitation(ctx context.Context, invitation domain.Invitation, notification domain.Notification) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO invitations (id, team_id, invitee_email, role, note, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		invitation.ID,
		invitation.TeamID,
		invitation.InviteeEmail,
		string(invitation.Role),
		invitation.Note,
		domain.InvitationStatusLabel(invitation.Status),
		toMillis(invitation.CreatedAt),
		toMillis(invitation.UpdatedAt),
	); err != nil {
		if isConstraintViolation(err) {
			return apperrors.New(apperrors.CodeConflict, "invitation already exists")
		}
		return fmt.Errorf("insert invitation: %w", err)
	}

	if err := insertNotifications(ctx, tx, []domain.Notification{notification}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetInvitation loads one invitation record.
func (s *Store) GetInvitation(ctx context.Context, invitationID string) (domain.Invitation, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Invitation{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, team_id, invitee_email, role, note, status, created_at, updated_at
		 FROM invitations WHERE id = ?`,
		strings.TrimSpace(invitationID),
	)
	return scanInvitation(row)
}

// PutJoinRequest inserts a pending join request and its inbox entry together.
func (s *Store) PutJoinRequest(ctx context.Context, request domain.JoinRequest, notification domain.Notification) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO join_requests (id, team_id, requester_user_id, requester_name, message, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		request.ID,
		request.TeamID,
		request.RequesterUserID,
		request.RequesterName,
		request.Message,
		domain.JoinRequestStatusLabel(request.Status),
		toMillis(request.CreatedAt),
		toMillis(request.UpdatedAt),
	); err != nil {
		if isConstraintViolation(err) {
			return domain.ErrDuplicateRequest
		}
		return fmt.Errorf("insert join request: %w", err)
	}

	if err := insertNotifications(ctx, tx, []domain.Notification{notification}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetJoinRequest loads one join request record.
func (s *Store) GetJoinRequest(ctx context.Context, requestID string) (domain.JoinRequest, error) {
	if err := s.ready(ctx); err != nil {
		return domain.JoinRequest{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, team_id, requester_user_id, requester_name, message, status, created_at, updated_at
		 FROM join_requests WHERE id = ?`,
		strings.TrimSpace(requestID),
	)
	return scanJoinRequest(row)
}

// HasPendingJoinRequest reports whether the user has an open request on the team.
func (s *Store) HasPendingJoinRequest(ctx context.Context, teamID string, requesterUserID string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}

	var found int
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT 1 FROM join_requests
		 WHERE team_id = ? AND requester_user_id = ? AND status = ?`,
		strings.TrimSpace(teamID),
		strings.TrimSpace(requesterUserID),
		domain.JoinRequestStatusLabel(domain.JoinRequestStatusPending),
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check pending join request: %w", err)
	}
	return true, nil
}

// AddMember performs the capacity-checked member insertion in one immediate
// transaction. When two accepts race for the last seat, the second one finds
// the seat taken here and fails without writing anything.
func (s *Store) AddMember(ctx context.Context, input domain.AddMemberInput) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var capacity int
	if err := tx.QueryRowContext(ctx, `SELECT capacity FROM teams WHERE id = ?`, input.TeamID).Scan(&capacity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrTeamNotFound
		}
		return fmt.Errorf("get team capacity: %w", err)
	}

	var seated int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM team_members WHERE team_id = ?`, input.TeamID).Scan(&seated); err != nil {
		return fmt.Errorf("count members: %w", err)
	}
	if seated >= capacity {
		return domain.ErrCapacityExceeded
	}

	var ref string
	if input.Invitation != nil {
		if err := flipInvitation(ctx, tx, *input.Invitation, input.Now); err != nil {
			return err
		}
		ref = domain.InvitationRef(input.Invitation.ID)
	}
	if input.JoinRequest != nil {
		if err := flipJoinRequest(ctx, tx, *input.JoinRequest, input.Now); err != nil {
			return err
		}
		ref = domain.JoinRequestRef(input.JoinRequest.ID)
	}

	if err := insertMember(ctx, tx, input.Member); err != nil {
		return err
	}
	if err := actionNotificationsByRef(ctx, tx, ref, input.Now); err != nil {
		return err
	}
	if err := insertNotifications(ctx, tx, input.Notifications); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ResolveInvitation flips one invitation out of pending without adding a member.
func (s *Store) ResolveInvitation(ctx context.Context, input domain.ResolveInvitationInput) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := flipInvitation(ctx, tx, input.Resolution, input.Now); err != nil {
		return err
	}
	if err := actionNotificationsByRef(ctx, tx, domain.InvitationRef(input.Resolution.ID), input.Now); err != nil {
		return err
	}
	if err := insertNotifications(ctx, tx, input.Notifications); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ResolveJoinRequest flips one join request out of pending without adding a member.
func (s *Store) ResolveJoinRequest(ctx context.Context, input domain.ResolveJoinRequestInput) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := flipJoinRequest(ctx, tx, input.Resolution, input.Now); err != nil {
		return err
	}
	if err := actionNotificationsByRef(ctx, tx, domain.JoinRequestRef(input.Resolution.ID), input.Now); err != nil {
		return err
	}
	if err := insertNotifications(ctx, tx, input.Notifications); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// RemoveMember frees one seat.
func (s *Store) RemoveMember(ctx context.Context, teamID string, userID string, now time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(
		ctx,
		`DELETE FROM team_members WHERE team_id = ? AND user_id = ?`,
		strings.TrimSpace(teamID),
		strings.TrimSpace(userID),
	)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if affected == 0 {
		return domain.ErrMemberNotFound
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE teams SET updated_at = ? WHERE id = ?`,
		toMillis(now),
		strings.TrimSpace(teamID),
	); err != nil {
		return fmt.Errorf("touch team: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListNotifications pages one inbox, newest first. The page token is the
// position of the last entry on the previous page.
func (s *Store) ListNotifications(ctx context.Context, recipients []string, pageSize int, pageToken string) (domain.NotificationPage, error) {
	if err := s.ready(ctx); err != nil {
		return domain.NotificationPage{}, err
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	recipients = trimRecipients(recipients)
	if len(recipients) == 0 {
		return domain.NotificationPage{}, nil
	}

	query := `SELECT id, recipient, kind, payload, ref, read_at, actioned_at, created_at
		 FROM notifications
		 WHERE recipient IN (` + placeholders(len(recipients)) + `)`
	args := make([]any, 0, len(recipients)+3)
	for _, recipient := range recipients {
		args = append(args, recipient)
	}
	if pageToken != "" {
		tokenMillis, tokenID, err := decodePageToken(pageToken)
		if err != nil {
			return domain.NotificationPage{}, err
		}
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, tokenMillis, tokenMillis, tokenID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, pageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.NotificationPage{}, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var page domain.NotificationPage
	for rows.Next() {
		notification, err := scanNotification(rows)
		if err != nil {
			return domain.NotificationPage{}, err
		}
		page.Notifications = append(page.Notifications, notification)
	}
	if err := rows.Err(); err != nil {
		return domain.NotificationPage{}, fmt.Errorf("list notifications: %w", err)
	}
	if len(page.Notifications) > pageSize {
		last := page.Notifications[pageSize-1]
		page.NextPageToken = encodePageToken(last.CreatedAt, last.ID)
		page.Notifications = page.Notifications[:pageSize]
	}
	return page, nil
}

// MarkNotificationRead sets the read marker once. Re-reading keeps the
// original timestamp.
func (s *Store) MarkNotificationRead(ctx context.Context, recipients []string, notificationID string, readAt time.Time) (domain.Notification, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Notification{}, err
	}
	recipients = trimRecipients(recipients)
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" || len(recipients) == 0 {
		return domain.Notification{}, apperrors.New(apperrors.CodeNotFound, "notification not found")
	}

	args := []any{toMillis(readAt), notificationID}
	for _, recipient := range recipients {
		args = append(args, recipient)
	}
	if _, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE notifications SET read_at = ?
		 WHERE id = ? AND recipient IN (`+placeholders(len(recipients))+`) AND read_at IS NULL`,
		args...,
	); err != nil {
		return domain.Notification{}, fmt.Errorf("mark notification read: %w", err)
	}

	selectArgs := []any{notificationID}
	for _, recipient := range recipients {
		selectArgs = append(selectArgs, recipient)
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, recipient, kind, payload, ref, read_at, actioned_at, created_at
		 FROM notifications
		 WHERE id = ? AND recipient IN (`+placeholders(len(recipients))+`)`,
		selectArgs...,
	)
	notification, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Notification{}, apperrors.New(apperrors.CodeNotFound, "notification not found")
		}
		return domain.Notification{}, err
	}
	return notification, nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func insertMember(ctx context.Context, tx *sql.Tx, member domain.Member) error {
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO team_members (team_id, user_id, name, role, joined_at)
		 VALUES (?, ?, ?, ?, ?)`,
		member.TeamID,
		member.UserID,
		member.Name,
		string(member.Role),
		toMillis(member.JoinedAt),
	); err != nil {
		if isConstraintViolation(err) {
			return domain.ErrAlreadyMember
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func flipInvitation(ctx context.Context, tx *sql.Tx, resolution domain.InvitationResolution, now time.Time) error {
	result, err := tx.ExecContext(
		ctx,
		`UPDATE invitations SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.InvitationStatusLabel(resolution.Status),
		toMillis(now),
		resolution.ID,
		domain.InvitationStatusLabel(domain.InvitationStatusPending),
	)
	if err != nil {
		return fmt.Errorf("resolve invitation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve invitation: %w", err)
	}
	if affected == 0 {
		var found int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM invitations WHERE id = ?`, resolution.ID).Scan(&found); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrInvitationNotFound
			}
			return fmt.Errorf("resolve invitation: %w", err)
		}
		return domain.ErrAlreadyActioned
	}
	return nil
}

func flipJoinRequest(ctx context.Context, tx *sql.Tx, resolution domain.JoinRequestResolution, now time.Time) error {
	result, err := tx.ExecContext(
		ctx,
		`UPDATE join_requests SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.JoinRequestStatusLabel(resolution.Status),
		toMillis(now),
		resolution.ID,
		domain.JoinRequestStatusLabel(domain.JoinRequestStatusPending),
	)
	if err != nil {
		return fmt.Errorf("resolve join request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve join request: %w", err)
	}
	if affected == 0 {
		var found int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM join_requests WHERE id = ?`, resolution.ID).Scan(&found); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrJoinRequestNotFound
			}
			return fmt.Errorf("resolve join request: %w", err)
		}
		return domain.ErrAlreadyActioned
	}
	return nil
}

func actionNotificationsByRef(ctx context.Context, tx *sql.Tx, ref string, now time.Time) error {
	if ref == "" {
		return nil
	}
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE notifications SET actioned_at = ? WHERE ref = ? AND actioned_at IS NULL`,
		toMillis(now),
		ref,
	); err != nil {
		return fmt.Errorf("action notifications: %w", err)
	}
	return nil
}

func insertNotifications(ctx context.Context, tx *sql.Tx, notifications []domain.Notification) error {
	for _, notification := range notifications {
		payload, err := domain.EncodeNotificationPayload(notification.Payload)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO notifications (id, recipient, kind, payload, ref, read_at, actioned_at, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			notification.ID,
			notification.Recipient,
			string(notification.Kind),
			payload,
			notification.Ref,
			toNullMillis(notification.ReadAt),
			toNullMillis(notification.ActionedAt),
			toMillis(notification.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvitation(row rowScanner) (domain.Invitation, error) {
	var (
		invitation           domain.Invitation
		role, status         string
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&invitation.ID,
		&invitation.TeamID,
		&invitation.InviteeEmail,
		&role,
		&invitation.Note,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Invitation{}, domain.ErrInvitationNotFound
		}
		return domain.Invitation{}, fmt.Errorf("scan invitation: %w", err)
	}
	invitation.Role = domain.Role(role)
	invitation.Status = domain.InvitationStatusFromLabel(status)
	invitation.CreatedAt = fromMillis(createdAt)
	invitation.UpdatedAt = fromMillis(updatedAt)
	return invitation, nil
}

func scanJoinRequest(row rowScanner) (domain.JoinRequest, error) {
	var (
		request              domain.JoinRequest
		status               string
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&request.ID,
		&request.TeamID,
		&request.RequesterUserID,
		&request.RequesterName,
		&request.Message,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.JoinRequest{}, domain.ErrJoinRequestNotFound
		}
		return domain.JoinRequest{}, fmt.Errorf("scan join request: %w", err)
	}
	request.Status = domain.JoinRequestStatusFromLabel(status)
	request.CreatedAt = fromMillis(createdAt)
	request.UpdatedAt = fromMillis(updatedAt)
	return request, nil
}

func scanNotification(row rowScanner) (domain.Notification, error) {
	var (
		notification       domain.Notification
		kind, payload      string
		readAt, actionedAt sql.NullInt64
		createdAt          int64
	)
	if err := row.Scan(
		&notification.ID,
		&notification.Recipient,
		&kind,
		&payload,
		&notification.Ref,
		&readAt,
		&actionedAt,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Notification{}, err
		}
		return domain.Notification{}, fmt.Errorf("scan notification: %w", err)
	}
	notification.Kind = domain.NotificationKind(kind)
	decoded, err := domain.DecodeNotificationPayload(notification.Kind, payload)
	if err != nil {
		return domain.Notification{}, err
	}
	notification.Payload = decoded
	notification.ReadAt = fromNullMillis(readAt)
	notification.ActionedAt = fromNullMillis(actionedAt)
	notification.CreatedAt = fromMillis(createdAt)
	return notification, nil
}

func trimRecipients(recipients []string) []string {
	out := recipients[:0]
	for _, recipient := range recipients {
		recipient = strings.TrimSpace(recipient)
		if recipient != "" {
			out = append(out, recipient)
		}
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func encodePageToken(createdAt time.Time, id string) string {
	return fmt.Sprintf("%d:%s", toMillis(createdAt), id)
}

func decodePageToken(token string) (int64, string, error) {
	var millis int64
	var id string
	if _, err := fmt.Sscanf(token, "%d:%s", &millis, &id); err != nil {
		return 0, "", apperrors.New(apperrors.CodeInvalidArgument, "invalid page token")
	}
	return millis, id, nil
}

func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ domain.Store = (*Store)(nil)
