// Package app owns the real-time coordination core: live presence,
// signaling relay, session fanout and the playback coordinator.
package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/syncsound/syncsound/internal/core"
	"github.com/syncsound/syncsound/internal/domain"
)

type member struct {
	conn     core.Conn
	user     domain.UserRef
	joinedAt time.Time
}

// sessionPresence is the membership list of one session. It carries its
// own mutex so sessions never block each other.
type sessionPresence struct {
	mu      sync.Mutex
	order   []core.ConnectionID
	members map[core.ConnectionID]*member
}

type connBinding struct {
	conn    core.Conn
	session domain.SessionID
	user    domain.UserRef
}

// Registry tracks who is connected and which session each connection
// has joined. Nothing here is persisted; a restart drops all presence
// and clients re-join over a fresh connection.
//
// The registry-level RWMutex only guards the two maps. Membership
// mutation happens under the per-session mutex.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*sessionPresence
	conns    map[core.ConnectionID]*connBinding
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.SessionID]*sessionPresence),
		conns:    make(map[core.ConnectionID]*connBinding),
	}
}

// Bind registers a live connection before it joins any session.
func (r *Registry) Bind(cid core.ConnectionID, conn core.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[cid] = &connBinding{conn: conn}
	log.Info().Str("module", "app.presence").Str("cid", string(cid)).Msg("connection bound")
}

// Unbind forgets a connection entirely. Call Leave first.
func (r *Registry) Unbind(cid core.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, cid)
	log.Info().Str("module", "app.presence").Str("cid", string(cid)).Msg("connection unbound")
}

// Lookup returns the live connection for cid, if any.
func (r *Registry) Lookup(cid core.ConnectionID) (core.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.conns[cid]
	if !ok {
		return nil, false
	}
	return b.conn, true
}

// BindingOf reports which session and user a connection belongs to.
func (r *Registry) BindingOf(cid core.ConnectionID) (domain.SessionID, domain.UserRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.conns[cid]
	if !ok || b.session == "" {
		return "", domain.UserRef{}, false
	}
	return b.session, b.user, true
}

// Join registers the member and returns a snapshot of everyone already
// present, in join order, never including the joiner. A missing user
// ref makes the whole call a no-op.
func (r *Registry) Join(sid domain.SessionID, cid core.ConnectionID, user domain.UserRef) ([]core.MemberInfo, error) {
	if !user.Valid() {
		log.Warn().Str("module", "app.presence").Str("cid", string(cid)).Msg("join rejected: missing user ref")
		return nil, domain.ErrUserMissing
	}

	r.mu.Lock()
	b, ok := r.conns[cid]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotConnected
	}
	sp, ok := r.sessions[sid]
	if !ok {
		sp = &sessionPresence{members: make(map[core.ConnectionID]*member)}
		r.sessions[sid] = sp
	}
	b.session = sid
	b.user = user
	conn := b.conn
	r.mu.Unlock()

	sp.mu.Lock()
	defer sp.mu.Unlock()
	snapshot := sp.snapshotLocked(cid)
	if _, dup := sp.members[cid]; !dup {
		sp.order = append(sp.order, cid)
	}
	sp.members[cid] = &member{conn: conn, user: user, joinedAt: time.Now()}
	log.Info().Str("module", "app.presence").Str("cid", string(cid)).Str("session", string(sid)).
		Int("present", len(sp.members)).Msg("member joined")
	return snapshot, nil
}

// Leave removes the member. Idempotent: a second call for the same
// connection returns found=false and changes nothing.
func (r *Registry) Leave(sid domain.SessionID, cid core.ConnectionID) (bool, []core.MemberInfo) {
	r.mu.RLock()
	sp, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}

	sp.mu.Lock()
	_, found := sp.members[cid]
	if found {
		delete(sp.members, cid)
		for i, id := range sp.order {
			if id == cid {
				sp.order = append(sp.order[:i], sp.order[i+1:]...)
				break
			}
		}
	}
	remaining := sp.snapshotLocked("")
	empty := len(sp.members) == 0
	sp.mu.Unlock()

	if found {
		r.mu.Lock()
		if b, ok := r.conns[cid]; ok && b.session == sid {
			b.session = ""
		}
		if empty {
			// Re-check under both locks: a concurrent Join may have
			// resurrected the session entry.
			if cur, ok := r.sessions[sid]; ok && cur == sp {
				sp.mu.Lock()
				if len(sp.members) == 0 {
					delete(r.sessions, sid)
				}
				sp.mu.Unlock()
			}
		}
		r.mu.Unlock()
		log.Info().Str("module", "app.presence").Str("cid", string(cid)).Str("session", string(sid)).Msg("member left")
	}
	return found, remaining
}

// MembersOf returns the session's members in join order.
func (r *Registry) MembersOf(sid domain.SessionID) []core.MemberInfo {
	r.mu.RLock()
	sp, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.snapshotLocked("")
}

type fanoutTarget struct {
	cid  core.ConnectionID
	conn core.Conn
}

func (r *Registry) targets(sid domain.SessionID) []fanoutTarget {
	r.mu.RLock()
	sp, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	out := make([]fanoutTarget, 0, len(sp.order))
	for _, cid := range sp.order {
		if m, ok := sp.members[cid]; ok {
			out = append(out, fanoutTarget{cid: cid, conn: m.conn})
		}
	}
	return out
}

func (sp *sessionPresence) snapshotLocked(exclude core.ConnectionID) []core.MemberInfo {
	out := make([]core.MemberInfo, 0, len(sp.order))
	for _, cid := range sp.order {
		if cid == exclude {
			continue
		}
		if m, ok := sp.members[cid]; ok {
			out = append(out, core.MemberInfo{ConnectionID: cid, User: m.user})
		}
	}
	return out
}
