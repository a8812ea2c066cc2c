package app

import (
	"sync"
	"time"

	"github.com/openhack/teamup/internal/services/chat/domain"
)

type roomHub struct {
	mu    sync.Mutex
	rooms map[string]*chatRoom
}

func newRoomHub() *roomHub {
	return &roomHub{rooms: make(map[string]*chatRoom)}
}

func (h *roomHub) room(roomID domain.RoomID) *chatRoom {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := roomID.String()
	room, ok := h.rooms[key]
	if ok {
		return room
	}
	room = newChatRoom(roomID)
	h.rooms[key] = room
	return room
}

// evict drops the room once its last occupant is gone. A later lookup
// recreates it on demand.
func (h *roomHub) evict(room *chatRoom) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := room.id.String()
	current, ok := h.rooms[key]
	if !ok || current != room {
		return
	}
	room.mu.Lock()
	empty := len(room.occupants) == 0
	room.mu.Unlock()
	if empty {
		delete(h.rooms, key)
	}
}

// occupant tracks one user's live connections in a room. A user with several
// tabs open is a single occupant; presence events fire on the first
// connection in and the last connection out.
type occupant struct {
	name       string
	peers      map[*wsPeer]struct{}
	leaveTimer *time.Timer
}

type chatRoom struct {
	mu        sync.Mutex
	id        domain.RoomID
	occupants map[string]*occupant
	typing    map[string]string
}

func newChatRoom(id domain.RoomID) *chatRoom {
	return &chatRoom{
		id:        id,
		occupants: make(map[string]*occupant),
		typing:    make(map[string]string),
	}
}

// join adds a connection and reports whether the user newly entered the room.
// Rejoining within the leave grace window cancels the pending departure, so a
// quick reconnect produces no presence churn.
func (r *chatRoom) join(peer *wsPeer, userID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	resident, ok := r.occupants[userID]
	if ok {
		if resident.leaveTimer != nil {
			resident.leaveTimer.Stop()
			resident.leaveTimer = nil
		}
		resident.peers[peer] = struct{}{}
		return false
	}

	r.occupants[userID] = &occupant{
		name:  name,
		peers: map[*wsPeer]struct{}{peer: {}},
	}
	return true
}

// leave removes a connection. When the user's last connection drops, the
// departure is deferred by grace; onGone runs if the user has not rejoined by
// then.
func (r *chatRoom) leave(peer *wsPeer, userID string, grace time.Duration, onGone func(userID, name string, wasTyping bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	resident, ok := r.occupants[userID]
	if !ok {
		return
	}
	delete(resident.peers, peer)
	if len(resident.peers) > 0 {
		return
	}

	if resident.leaveTimer != nil {
		resident.leaveTimer.Stop()
	}
	if grace <= 0 {
		_, wasTyping := r.typing[userID]
		delete(r.occupants, userID)
		delete(r.typing, userID)
		if onGone != nil {
			name := resident.name
			go onGone(userID, name, wasTyping)
		}
		return
	}
	resident.leaveTimer = time.AfterFunc(grace, func() {
		r.mu.Lock()
		current, ok := r.occupants[userID]
		if !ok || len(current.peers) > 0 {
			r.mu.Unlock()
			return
		}
		_, wasTyping := r.typing[userID]
		delete(r.occupants, userID)
		delete(r.typing, userID)
		name := current.name
		r.mu.Unlock()
		if onGone != nil {
			onGone(userID, name, wasTyping)
		}
	})
}

// setTyping updates the user's typing flag and reports whether it changed.
func (r *chatRoom) setTyping(userID, name string, typing bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, was := r.typing[userID]
	if typing == was {
		return false
	}
	if typing {
		r.typing[userID] = name
	} else {
		delete(r.typing, userID)
	}
	return true
}

// peersExcept snapshots the room's live connections, skipping one.
func (r *chatRoom) peersExcept(skip *wsPeer) []*wsPeer {
	r.mu.Lock()
	defer r.mu.Unlock()

	var peers []*wsPeer
	for _, resident := range r.occupants {
		for peer := range resident.peers {
			if peer == skip {
				continue
			}
			peers = append(peers, peer)
		}
	}
	return peers
}

func (r *chatRoom) broadcast(frame wsFrame, skip *wsPeer) {
	for _, peer := range r.peersExcept(skip) {
		_ = peer.writeFrame(frame)
	}
}
