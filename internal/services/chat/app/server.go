// Package app hosts the chat HTTP/WebSocket process.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/openhack/teamup/internal/platform/errors"
	"github.com/openhack/teamup/internal/platform/identity"
	"github.com/openhack/teamup/internal/platform/timeouts"
	"github.com/openhack/teamup/internal/services/chat/domain"
	"github.com/openhack/teamup/internal/services/chat/storage/sqlite"
	"golang.org/x/net/websocket"
)

const (
	tokenCookieName = "tu_token"

	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Config defines the inputs for the chat transport boundary.
//
// Chat owns message persistence but delegates room admission to the teams
// service, so membership state lives in one place.
type Config struct {
	HTTPAddr          string
	StoragePath       string
	TeamsBaseURL      string
	ResourceSecret    string
	Identity          identity.Config
	LeaveGrace        time.Duration
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the chat HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	store           *sqlite.Store
}

// NewServer builds a configured chat server backed by SQLite storage.
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
	if config.LeaveGrace <= 0 {
		config.LeaveGrace = timeouts.LeaveGrace
	}

	store, err := sqlite.Open(config.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open chat storage: %w", err)
	}

	authorizer := newTeamsAuthorizer(config.TeamsBaseURL, config.ResourceSecret)
	if authorizer == nil {
		log.Printf("teams membership checks unconfigured, team rooms will reject joins")
	}

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           NewHandler(store, authorizer, config.Identity, config.LeaveGrace),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
		store:           store,
	}, nil
}

// Run creates and serves a chat server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init chat server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve chat: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("chat server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("chat server listening on %s", s.httpAddr)
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
			log.Printf("close chat storage: %v", err)
		}
	}
}

type messageStore interface {
	AppendMessage(ctx context.Context, message domain.Message) (domain.Message, bool, error)
	ListMessagesSince(ctx context.Context, roomID domain.RoomID, sinceSeq int64, limit int) ([]domain.Message, error)
	ListMessagesBefore(ctx context.Context, roomID domain.RoomID, beforeSeq int64, limit int) ([]domain.Message, error)
	LatestSeq(ctx context.Context, roomID domain.RoomID) (int64, error)
}

type handler struct {
	store      messageStore
	authorizer roomAuthorizer
	identity   identity.Config
	hub        *roomHub
	leaveGrace time.Duration
}

type wsPrincipalContextKey struct{}

// NewHandler creates chat routes over the given message store.
func NewHandler(store messageStore, authorizer roomAuthorizer, identityConfig identity.Config, leaveGrace time.Duration) http.Handler {
	if leaveGrace <= 0 {
		leaveGrace = timeouts.LeaveGrace
	}
	h := &handler{
		store:      store,
		authorizer: authorizer,
		identity:   identityConfig,
		hub:        newRoomHub(),
		leaveGrace: leaveGrace,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(h.handleWSConn)
	mux.HandleFunc(http.MethodGet+" /ws", func(w http.ResponseWriter, r *http.Request) {
		actor, err := identity.VerifyToken(accessTokenFromRequest(r), h.identity)
		if err != nil {
			log.Printf("chat: websocket unauthorized: remote=%s err=%v", r.RemoteAddr, err)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), wsPrincipalContextKey{}, actor)
		wsHandler.ServeHTTP(w, r.WithContext(ctx))
	})

	// REST fallback for clients without a live socket.
	mux.HandleFunc(http.MethodGet+" /rooms/{roomID}/messages", h.authed(h.listMessages))
	mux.HandleFunc(http.MethodPost+" /rooms/{roomID}/messages", h.authed(h.postMessage))

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

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type joinPayload struct {
	RoomID   string `json:"room_id"`
	SinceSeq int64  `json:"since_seq,omitempty"`
}

type joinedPayload struct {
	RoomID     string `json:"room_id"`
	LatestSeq  int64  `json:"latest_seq"`
	ServerTime string `json:"server_time"`
}

type leavePayload struct {
	RoomID string `json:"room_id"`
}

type sendPayload struct {
	RoomID          string `json:"room_id"`
	ClientMessageID string `json:"client_message_id"`
	Body            string `json:"body"`
}

type historyPayload struct {
	RoomID    string `json:"room_id"`
	BeforeSeq int64  `json:"before_seq,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type typingPayload struct {
	RoomID string `json:"room_id"`
	Typing bool   `json:"typing"`
}

type typingUpdatePayload struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Typing bool   `json:"typing"`
}

type presencePayload struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

type messageEnvelope struct {
	Message messageJSON `json:"message"`
}

type messageJSON struct {
	ID              string `json:"id"`
	RoomID          string `json:"room_id"`
	Seq             int64  `json:"seq"`
	SenderID        string `json:"sender_id"`
	SenderName      string `json:"sender_name"`
	Body            string `json:"body"`
	ClientMessageID string `json:"client_message_id,omitempty"`
	SentAt          string `json:"sent_at"`
}

type ackEnvelope struct {
	Result ackResult `json:"result"`
}

type ackResult struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
	Seq       int64  `json:"seq,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Count     int    `json:"count,omitempty"`
}

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// wsSession tracks one connection's identity and joined rooms. A session may
// hold the world room and any number of team rooms at once.
type wsSession struct {
	mu        sync.Mutex
	principal identity.Principal
	peer      *wsPeer
	rooms     map[string]*chatRoom
}

func newWSSession(principal identity.Principal, peer *wsPeer) *wsSession {
	return &wsSession{
		principal: principal,
		peer:      peer,
		rooms:     make(map[string]*chatRoom),
	}
}

func (s *wsSession) addRoom(room *chatRoom) {
	s.mu.Lock()
	s.rooms[room.id.String()] = room
	s.mu.Unlock()
}

func (s *wsSession) removeRoom(key string) *chatRoom {
	s.mu.Lock()
	room := s.rooms[key]
	delete(s.rooms, key)
	s.mu.Unlock()
	return room
}

func (s *wsSession) joinedRoom(key string) *chatRoom {
	s.mu.Lock()
	room := s.rooms[key]
	s.mu.Unlock()
	return room
}

func (s *wsSession) allRooms() []*chatRoom {
	s.mu.Lock()
	rooms := make([]*chatRoom, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	s.mu.Unlock()
	return rooms
}

func (h *handler) handleWSConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	var principal identity.Principal
	if request := conn.Request(); request != nil {
		if resolved, ok := request.Context().Value(wsPrincipalContextKey{}).(identity.Principal); ok {
			principal = resolved
		}
	}
	if principal.UserID == "" {
		return
	}

	decoder := json.NewDecoder(conn)
	session := newWSSession(principal, newWSPeer(json.NewEncoder(conn)))
	defer func() {
		for _, room := range session.allRooms() {
			h.leaveRoom(session, room)
		}
	}()

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(session.peer, "", apperrors.CodeInvalidArgument, "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeInvalidArgument, "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeUnavailable, "rate limit exceeded")
			return
		}

		ctx := conn.Request().Context()
		switch frame.Type {
		case "room.join":
			h.handleJoinFrame(ctx, session, frame)
		case "room.leave":
			h.handleLeaveFrame(session, frame)
		case "chat.send":
			h.handleSendFrame(ctx, session, frame)
		case "chat.history":
			h.handleHistoryFrame(ctx, session, frame)
		case "typing.set":
			h.handleTypingFrame(session, frame)
		default:
			_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeInvalidArgument, "unsupported frame type")
		}
	}
}

func (h *handler) handleJoinFrame(ctx context.Context, session *wsSession, frame wsFrame) {
	var payload joinPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeInvalidArgument, "invalid join payload")
		return
	}
	roomID, err := domain.ParseRoomID(payload.RoomID)
	if err != nil {
		_ = writeWSErrorFrom(session.peer, frame.RequestID, err)
		return
	}

	if session.joinedRoom(roomID.String()) == nil {
		allowed, err := h.canJoin(ctx, session.principal, roomID)
		if err != nil {
			log.Printf("chat: room admission check failed user=%q room=%q err=%v", session.principal.UserID, roomID, err)
			_ = writeWSErrorFrom(session.peer, frame.RequestID, err)
			return
		}
		if !allowed {
			_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeForbidden, "team membership required for room")
			return
		}
	}

	room := h.hub.room(roomID)
	announce := room.join(session.peer, session.principal.UserID, principalName(session.principal))
	session.addRoom(room)

	latest, err := h.store.LatestSeq(ctx, roomID)
	if err != nil {
		log.Printf("chat: latest seq lookup failed room=%q err=%v", roomID, err)
	}
	_ = session.peer.writeFrame(wsFrame{
		Type:      "room.joined",
		RequestID: frame.RequestID,
		Payload: mustJSON(joinedPayload{
			RoomID:     roomID.String(),
			LatestSeq:  latest,
			ServerTime: time.Now().UTC().Format(time.RFC3339),
		}),
	})

	// Replay what the client missed since its last seen sequence.
	if payload.SinceSeq > 0 && payload.SinceSeq < latest {
		missed, err := h.store.ListMessagesSince(ctx, roomID, payload.SinceSeq, maxHistoryLimit)
		if err != nil {
			log.Printf("chat: replay failed room=%q err=%v", roomID, err)
		}
		for _, message := range missed {
			_ = session.peer.writeFrame(wsFrame{
				Type:    "chat.message",
				Payload: mustJSON(messageEnvelope{Message: toMessageJSON(message)}),
			})
		}
	}

	if announce {
		room.broadcast(wsFrame{
			Type: "presence.joined",
			Payload: mustJSON(presencePayload{
				RoomID: roomID.String(),
				UserID: session.principal.UserID,
				Name:   principalName(session.principal),
			}),
		}, session.peer)
	}
}

func (h *handler) handleLeaveFrame(session *wsSession, frame wsFrame) {
	var payload leavePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeInvalidArgument, "invalid leave payload")
		return
	}
	roomID, err := domain.ParseRoomID(payload.RoomID)
	if err != nil {
		_ = writeWSErrorFrom(session.peer, frame.RequestID, err)
		return
	}

	room := session.removeRoom(roomID.String())
	if room == nil {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeNotFound, "room not joined")
		return
	}
	h.leaveRoom(session, room)
	_ = session.peer.writeFrame(wsFrame{
		Type:      "chat.ack",
		RequestID: frame.RequestID,
		Payload:   mustJSON(ackEnvelope{Result: ackResult{Status: "ok"}}),
	})
}

func (h *handler) leaveRoom(session *wsSession, room *chatRoom) {
	room.leave(session.peer, session.principal.UserID, h.leaveGrace, func(userID, name string, wasTyping bool) {
		if wasTyping {
			room.broadcast(wsFrame{
				Type: "typing.update",
				Payload: mustJSON(typingUpdatePayload{
					RoomID: room.id.String(),
					UserID: userID,
					Name:   name,
					Typing: false,
				}),
			}, nil)
		}
		room.broadcast(wsFrame{
			Type: "presence.left",
			Payload: mustJSON(presencePayload{
				RoomID: room.id.String(),
				UserID: userID,
				Name:   name,
			}),
		}, nil)
		h.hub.evict(room)
	})
}

func (h *handler) handleSendFrame(ctx context.Context, session *wsSession, frame wsFrame) {
	var payload sendPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeInvalidArgument, "invalid send payload")
		return
	}
	roomID, err := domain.ParseRoomID(payload.RoomID)
	if err != nil {
		_ = writeWSErrorFrom(session.peer, frame.RequestID, err)
		return
	}
	room := session.joinedRoom(roomID.String())
	if room == nil {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeForbidden, "must join room before sending")
		return
	}

	message, err := domain.NewMessage(domain.NewMessageInput{
		RoomID:          roomID,
		SenderID:        session.principal.UserID,
		SenderName:      principalName(session.principal),
		Body:            payload.Body,
		ClientMessageID: payload.ClientMessageID,
	}, nil, nil)
	if err != nil {
		_ = writeWSErrorFrom(session.peer, frame.RequestID, err)
		return
	}

	stored, duplicate, err := h.store.AppendMessage(ctx, message)
	if err != nil {
		log.Printf("chat: append message failed room=%q err=%v", roomID, err)
		_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeUnavailable, "message could not be stored")
		return
	}

	_ = session.peer.writeFrame(wsFrame{
		Type:      "chat.ack",
		RequestID: frame.RequestID,
		Payload: mustJSON(ackEnvelope{Result: ackResult{
			Status:    "ok",
			MessageID: stored.ID,
			Seq:       stored.Seq,
			Duplicate: duplicate,
		}}),
	})
	if duplicate {
		return
	}

	room.broadcast(wsFrame{
		Type:    "chat.message",
		Payload: mustJSON(messageEnvelope{Message: toMessageJSON(stored)}),
	}, nil)
}

func (h *handler) handleHistoryFrame(ctx context.Context, session *wsSession, frame wsFrame) {
	var payload historyPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeInvalidArgument, "invalid history payload")
		return
	}
	roomID, err := domain.ParseRoomID(payload.RoomID)
	if err != nil {
		_ = writeWSErrorFrom(session.peer, frame.RequestID, err)
		return
	}
	if session.joinedRoom(roomID.String()) == nil {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeForbidden, "must join room before requesting history")
		return
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	history, err := h.store.ListMessagesBefore(ctx, roomID, payload.BeforeSeq, limit)
	if err != nil {
		log.Printf("chat: history lookup failed room=%q err=%v", roomID, err)
		_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeUnavailable, "history unavailable")
		return
	}
	for _, message := range history {
		_ = session.peer.writeFrame(wsFrame{
			Type:    "chat.message",
			Payload: mustJSON(messageEnvelope{Message: toMessageJSON(message)}),
		})
	}
	_ = session.peer.writeFrame(wsFrame{
		Type:      "chat.ack",
		RequestID: frame.RequestID,
		Payload:   mustJSON(ackEnvelope{Result: ackResult{Status: "ok", Count: len(history)}}),
	})
}

func (h *handler) handleTypingFrame(session *wsSession, frame wsFrame) {
	var payload typingPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeInvalidArgument, "invalid typing payload")
		return
	}
	roomID, err := domain.ParseRoomID(payload.RoomID)
	if err != nil {
		_ = writeWSErrorFrom(session.peer, frame.RequestID, err)
		return
	}
	room := session.joinedRoom(roomID.String())
	if room == nil {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeForbidden, "must join room before typing")
		return
	}

	if !room.setTyping(session.principal.UserID, principalName(session.principal), payload.Typing) {
		return
	}
	room.broadcast(wsFrame{
		Type: "typing.update",
		Payload: mustJSON(typingUpdatePayload{
			RoomID: roomID.String(),
			UserID: session.principal.UserID,
			Name:   principalName(session.principal),
			Typing: payload.Typing,
		}),
	}, session.peer)
}

func (h *handler) canJoin(ctx context.Context, actor identity.Principal, roomID domain.RoomID) (bool, error) {
	if roomID.Kind == domain.RoomKindWorld {
		return true, nil
	}
	if h.authorizer == nil {
		return false, apperrors.New(apperrors.CodeUnavailable, "membership checks are not configured")
	}
	return h.authorizer.CanJoin(ctx, actor, roomID)
}

type messagesResponse struct {
	Messages  []messageJSON `json:"messages"`
	LatestSeq int64         `json:"latest_seq"`
}

func (h *handler) listMessages(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	roomID, err := domain.ParseRoomID(r.PathValue("roomID"))
	if err != nil {
		writeError(w, err)
		return
	}
	allowed, err := h.canJoin(r.Context(), actor, roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !allowed {
		writeError(w, apperrors.New(apperrors.CodeForbidden, "team membership required for room"))
		return
	}

	var sinceSeq int64
	if raw := strings.TrimSpace(r.URL.Query().Get("since_seq")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "since_seq must be a non-negative integer"))
			return
		}
		sinceSeq = parsed
	}
	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	messages, err := h.store.ListMessagesSince(r.Context(), roomID, sinceSeq, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	latest, err := h.store.LatestSeq(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := messagesResponse{
		Messages:  make([]messageJSON, 0, len(messages)),
		LatestSeq: latest,
	}
	for _, message := range messages {
		resp.Messages = append(resp.Messages, toMessageJSON(message))
	}
	writeJSON(w, http.StatusOK, resp)
}

type postMessageRequest struct {
	ClientMessageID string `json:"client_message_id"`
	Body            string `json:"body"`
}

func (h *handler) postMessage(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	roomID, err := domain.ParseRoomID(r.PathValue("roomID"))
	if err != nil {
		writeError(w, err)
		return
	}
	allowed, err := h.canJoin(r.Context(), actor, roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !allowed {
		writeError(w, apperrors.New(apperrors.CodeForbidden, "team membership required for room"))
		return
	}

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid request body", err))
		return
	}
	message, err := domain.NewMessage(domain.NewMessageInput{
		RoomID:          roomID,
		SenderID:        actor.UserID,
		SenderName:      principalName(actor),
		Body:            req.Body,
		ClientMessageID: req.ClientMessageID,
	}, nil, nil)
	if err != nil {
		writeError(w, err)
		return
	}

	stored, duplicate, err := h.store.AppendMessage(r.Context(), message)
	if err != nil {
		writeError(w, err)
		return
	}

	// Socket subscribers still hear about messages posted over REST.
	if !duplicate {
		h.hub.room(roomID).broadcast(wsFrame{
			Type:    "chat.message",
			Payload: mustJSON(messageEnvelope{Message: toMessageJSON(stored)}),
		}, nil)
	}

	status := http.StatusCreated
	if duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, messageEnvelope{Message: toMessageJSON(stored)})
}

func toMessageJSON(message domain.Message) messageJSON {
	return messageJSON{
		ID:              message.ID,
		RoomID:          message.RoomID.String(),
		Seq:             message.Seq,
		SenderID:        message.SenderID,
		SenderName:      message.SenderName,
		Body:            message.Body,
		ClientMessageID: message.ClientMessageID,
		SentAt:          message.SentAt.Format(time.RFC3339),
	}
}

func principalName(actor identity.Principal) string {
	if name := strings.TrimSpace(actor.Name); name != "" {
		return name
	}
	return actor.UserID
}

func writeWSError(peer *wsPeer, requestID string, code apperrors.Code, message string) error {
	return peer.writeFrame(wsFrame{
		Type:      "chat.error",
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{
				Code:    string(code),
				Message: message,
			},
		}),
	})
}

func writeWSErrorFrom(peer *wsPeer, requestID string, err error) error {
	message := "internal error"
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	return writeWSError(peer, requestID, apperrors.GetCode(err), message)
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
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
		log.Printf("chat request failed: %v", err)
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
