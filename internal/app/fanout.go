package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/syncsound/syncsound/internal/core"
	"github.com/syncsound/syncsound/internal/domain"
)

// Fanout delivers events to session members over their live
// connections. Delivery to each member is independent: TrySend never
// blocks, so a slow or dead connection only loses its own copy.
type Fanout struct {
	reg *Registry
}

func NewFanout(reg *Registry) *Fanout {
	return &Fanout{reg: reg}
}

// BroadcastToSession sends v to every member of sid except, optionally,
// exclude. Drops are counted, logged and never surfaced to the sender.
func (f *Fanout) BroadcastToSession(sid domain.SessionID, v any, exclude core.ConnectionID) core.PublishResult {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.fanout").Msg("broadcast marshal")
		return core.PublishResult{}
	}
	res := core.PublishResult{}
	for _, t := range f.reg.targets(sid) {
		if t.cid == exclude {
			continue
		}
		if err := t.conn.TrySend(data); err != nil {
			res.Dropped++
			log.Debug().Str("module", "app.fanout").Str("cid", string(t.cid)).Err(err).Msg("broadcast drop")
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "app.fanout").Str("session", string(sid)).
		Int("sent_to", res.SentTo).Int("dropped", res.Dropped).Msg("broadcast result")
	return res
}

// SendTo unicasts v to one connection. Silently dropped when the
// connection is no longer live; departure races are expected traffic.
func (f *Fanout) SendTo(cid core.ConnectionID, v any) bool {
	conn, ok := f.reg.Lookup(cid)
	if !ok {
		log.Debug().Str("module", "app.fanout").Str("cid", string(cid)).Msg("unicast to departed connection")
		return false
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.fanout").Msg("unicast marshal")
		return false
	}
	if err := conn.TrySend(data); err != nil {
		log.Debug().Str("module", "app.fanout").Str("cid", string(cid)).Err(err).Msg("unicast drop")
		return false
	}
	return true
}
