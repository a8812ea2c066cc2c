// Package app hosts the teams HTTP process.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/openhack/teamup/internal/platform/errors"
	"github.com/openhack/teamup/internal/platform/identity"
	"github.com/openhack/teamup/internal/platform/timeouts"
	"github.com/openhack/teamup/internal/services/teams/domain"
	"github.com/openhack/teamup/internal/services/teams/storage/sqlite"
)

const tokenCookieName = "tu_token"

// Config defines the inputs for the teams HTTP boundary.
type Config struct {
	HTTPAddr          string
	StoragePath       string
	ResourceSecret    string
	Identity          identity.Config
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the teams HTTP process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	store           *sqlite.Store
}

// NewServer builds a configured teams server backed by SQLite storage.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	store, err := sqlite.Open(config.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open teams storage: %w", err)
	}

	service := domain.NewService(store, nil, nil)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           NewHandler(service, config.Identity, config.ResourceSecret),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
		store:           store,
	}, nil
}

// Run creates and serves a teams server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init teams server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve teams: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("teams server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("teams server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close teams storage: %v", err)
		}
	}
}

type handler struct {
	service        *domain.Service
	identity       identity.Config
	resourceSecret string
}

// NewHandler creates teams routes over the given service.
func NewHandler(service *domain.Service, identityConfig identity.Config, resourceSecret string) http.Handler {
	h := &handler{
		service:        service,
		identity:       identityConfig,
		resourceSecret: strings.TrimSpace(resourceSecret),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc(http.MethodPost+" /teams", h.authed(h.createTeam))
	mux.HandleFunc(http.MethodGet+" /teams/{teamID}", h.authed(h.getTeam))
	mux.HandleFunc(http.MethodPost+" /teams/{teamID}/invitations", h.authed(h.createInvitation))
	mux.HandleFunc(http.MethodPost+" /invitations/{invitationID}/accept", h.authed(h.acceptInvitation))
	mux.HandleFunc(http.MethodPost+" /invitations/{invitationID}/decline", h.authed(h.declineInvitation))
	mux.HandleFunc(http.MethodPost+" /teams/{teamID}/join-requests", h.authed(h.createJoinRequest))
	mux.HandleFunc(http.MethodPost+" /join-requests/{requestID}/approve", h.authed(h.approveJoinRequest))
	mux.HandleFunc(http.MethodPost+" /join-requests/{requestID}/reject", h.authed(h.rejectJoinRequest))
	mux.HandleFunc(http.MethodPost+" /join-requests/{requestID}/withdraw", h.authed(h.withdrawJoinRequest))
	mux.HandleFunc(http.MethodDelete+" /teams/{teamID}/members/{userID}", h.authed(h.removeMember))
	mux.HandleFunc(http.MethodGet+" /notifications", h.authed(h.listNotifications))
	mux.HandleFunc(http.MethodPost+" /notifications/{notificationID}/read", h.authed(h.markNotificationRead))
	mux.HandleFunc(http.MethodGet+" /internal/membership", h.internalMembership)

	return mux
}

type authedHandler func(w http.ResponseWriter, r *http.Request, actor identity.Principal)

func (h *handler) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := identity.VerifyToken(accessTokenFromRequest(r), h.identity)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r, actor)
	}
}

func accessTokenFromRequest(r *http.Request) string {
	if auth := strings.TrimSpace(r.Header.Get("Authorization")); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(tokenCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

type createTeamRequest struct {
	Name     string `json:"name"`
	EventID  string `json:"event_id"`
	Capacity int    `json:"capacity"`
}

type teamResponse struct {
	Team    teamJSON     `json:"team"`
	Members []memberJSON `json:"members,omitempty"`
}

type teamJSON struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	EventID      string `json:"event_id"`
	LeaderUserID string `json:"leader_user_id"`
	Capacity     int    `json:"capacity"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type memberJSON struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	JoinedAt string `json:"joined_at"`
}

func (h *handler) createTeam(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	var req createTeamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	team, err := h.service.CreateTeam(r.Context(), actor, domain.CreateTeamInput{
		Name:     req.Name,
		EventID:  req.EventID,
		Capacity: req.Capacity,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, teamResponse{Team: toTeamJSON(team)})
}

func (h *handler) getTeam(w http.ResponseWriter, r *http.Request, _ identity.Principal) {
	team, members, err := h.service.GetTeam(r.Context(), r.PathValue("teamID"))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := teamResponse{Team: toTeamJSON(team)}
	for _, member := range members {
		resp.Members = append(resp.Members, toMemberJSON(member))
	}
	writeJSON(w, http.StatusOK, resp)
}

type createInvitationRequest struct {
	InviteeEmail string `json:"invitee_email"`
	Role         string `json:"role,omitempty"`
	Note         string `json:"note,omitempty"`
}

type invitationResponse struct {
	Invitation invitationJSON `json:"invitation"`
}

type invitationJSON struct {
	ID           string `json:"id"`
	TeamID       string `json:"team_id"`
	InviteeEmail string `json:"invitee_email"`
	Role         string `json:"role"`
	Note         string `json:"note,omitempty"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func (h *handler) createInvitation(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	var req createInvitationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	invitation, err := h.service.CreateInvitation(r.Context(), actor, domain.CreateInvitationInput{
		TeamID:       r.PathValue("teamID"),
		InviteeEmail: req.InviteeEmail,
		Role:         req.Role,
		Note:         req.Note,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, invitationResponse{Invitation: toInvitationJSON(invitation)})
}

func (h *handler) acceptInvitation(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	invitation, err := h.service.AcceptInvitation(r.Context(), actor, r.PathValue("invitationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invitationResponse{Invitation: toInvitationJSON(invitation)})
}

func (h *handler) declineInvitation(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	invitation, err := h.service.DeclineInvitation(r.Context(), actor, r.PathValue("invitationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invitationResponse{Invitation: toInvitationJSON(invitation)})
}

type createJoinRequestRequest struct {
	Message string `json:"message,omitempty"`
}

type joinRequestResponse struct {
	JoinRequest joinRequestJSON `json:"join_request"`
}

type joinRequestJSON struct {
	ID              string `json:"id"`
	TeamID          string `json:"team_id"`
	RequesterUserID string `json:"requester_user_id"`
	RequesterName   string `json:"requester_name"`
	Message         string `json:"message,omitempty"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func (h *handler) createJoinRequest(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	var req createJoinRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	request, err := h.service.RequestToJoin(r.Context(), actor, r.PathValue("teamID"), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, joinRequestResponse{JoinRequest: toJoinRequestJSON(request)})
}

func (h *handler) approveJoinRequest(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	request, err := h.service.ApproveRequest(r.Context(), actor, r.PathValue("requestID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joinRequestResponse{JoinRequest: toJoinRequestJSON(request)})
}

func (h *handler) rejectJoinRequest(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	request, err := h.service.RejectRequest(r.Context(), actor, r.PathValue("requestID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joinRequestResponse{JoinRequest: toJoinRequestJSON(request)})
}

func (h *handler) withdrawJoinRequest(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	request, err := h.service.WithdrawRequest(r.Context(), actor, r.PathValue("requestID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joinRequestResponse{JoinRequest: toJoinRequestJSON(request)})
}

func (h *handler) removeMember(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	if err := h.service.RemoveMember(r.Context(), actor, r.PathValue("teamID"), r.PathValue("userID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type notificationsResponse struct {
	Notifications []notificationJSON `json:"notifications"`
	NextPageToken string             `json:"next_page_token,omitempty"`
}

type notificationJSON struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	ReadAt     string          `json:"read_at,omitempty"`
	ActionedAt string          `json:"actioned_at,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

func (h *handler) listNotifications(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	pageSize := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("page_size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "page_size must be a non-negative integer"))
			return
		}
		pageSize = parsed
	}
	page, err := h.service.ListNotifications(r.Context(), actor, pageSize, r.URL.Query().Get("page_token"))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := notificationsResponse{
		Notifications: make([]notificationJSON, 0, len(page.Notifications)),
		NextPageToken: page.NextPageToken,
	}
	for _, notification := range page.Notifications {
		encoded, err := toNotificationJSON(notification)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Notifications = append(resp.Notifications, encoded)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) markNotificationRead(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	notification, err := h.service.MarkNotificationRead(r.Context(), actor, r.PathValue("notificationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	encoded, err := toNotificationJSON(notification)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Notification notificationJSON `json:"notification"`
	}{Notification: encoded})
}

type membershipResponse struct {
	Member bool `json:"member"`
}

// internalMembership answers membership checks for sibling services. It is
// guarded by a shared resource secret instead of user identity.
func (h *handler) internalMembership(w http.ResponseWriter, r *http.Request) {
	if h.resourceSecret == "" || r.Header.Get("X-Resource-Secret") != h.resourceSecret {
		writeError(w, apperrors.New(apperrors.CodeUnauthorized, "resource secret required"))
		return
	}
	teamID := strings.TrimSpace(r.URL.Query().Get("team_id"))
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if teamID == "" || userID == "" {
		writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "team_id and user_id are required"))
		return
	}
	member, err := h.service.IsMember(r.Context(), teamID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, membershipResponse{Member: member})
}

func toTeamJSON(team domain.Team) teamJSON {
	return teamJSON{
		ID:           team.ID,
		Name:         team.Name,
		EventID:      team.EventID,
		LeaderUserID: team.LeaderUserID,
		Capacity:     team.Capacity,
		CreatedAt:    team.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    team.UpdatedAt.Format(time.RFC3339),
	}
}

func toMemberJSON(member domain.Member) memberJSON {
	return memberJSON{
		UserID:   member.UserID,
		Name:     member.Name,
		Role:     string(member.Role),
		JoinedAt: member.JoinedAt.Format(time.RFC3339),
	}
}

func toInvitationJSON(invitation domain.Invitation) invitationJSON {
	return invitationJSON{
		ID:           invitation.ID,
		TeamID:       invitation.TeamID,
		InviteeEmail: invitation.InviteeEmail,
		Role:         string(invitation.Role),
		Note:         invitation.Note,
		Status:       domain.InvitationStatusLabel(invitation.Status),
		CreatedAt:    invitation.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    invitation.UpdatedAt.Format(time.RFC3339),
	}
}

func toJoinRequestJSON(request domain.JoinRequest) joinRequestJSON {
	return joinRequestJSON{
		ID:              request.ID,
		TeamID:          request.TeamID,
		RequesterUserID: request.RequesterUserID,
		RequesterName:   request.RequesterName,
		Message:         request.Message,
		Status:          domain.JoinRequestStatusLabel(request.Status),
		CreatedAt:       request.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       request.UpdatedAt.Format(time.RFC3339),
	}
}

func toNotificationJSON(notification domain.Notification) (notificationJSON, error) {
	payload, err := domain.EncodeNotificationPayload(notification.Payload)
	if err != nil {
		return notificationJSON{}, err
	}
	encoded := notificationJSON{
		ID:        notification.ID,
		Kind:      string(notification.Kind),
		Payload:   json.RawMessage(payload),
		CreatedAt: notification.CreatedAt.Format(time.RFC3339),
	}
	if notification.ReadAt != nil {
		encoded.ReadAt = notification.ReadAt.Format(time.RFC3339)
	}
	if notification.ActionedAt != nil {
		encoded.ActionedAt = notification.ActionedAt.Format(time.RFC3339)
	}
	return encoded, nil
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid request body", err)
	}
	return nil
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("teams request failed: %v", err)
	}
	message := "internal error"
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    string(apperrors.GetCode(err)),
		Message: message,
	}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}
