package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/ledgercore/internal/events"
)

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.HealthCheck(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(healthResponse{Status: "unhealthy"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok"})
}

// eventMessage is the wire shape pushed to each WebSocket subscriber: one
// ServerEvent per message, JSON-encoded.
type eventMessage struct {
	Topic     string      `json:"topic"`
	Payload   interface{} `json:"payload"`
	EmittedAt string      `json:"emitted_at"`
}

// handleEventStream upgrades to a WebSocket and forwards every server event
// published on s.bus until the client disconnects. The bus is
// last-value-wins per topic, so a slow client sees only the freshest
// value.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	sub := s.bus.Subscribe()
	defer sub.Unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-sub.Notify():
			for _, topic := range []events.ServerEventTopic{
				events.TopicMarketSyncStart, events.TopicMarketSyncComplete, events.TopicMarketSyncError,
				events.TopicPortfolioUpdateStart, events.TopicPortfolioUpdateComplete, events.TopicPortfolioUpdateError,
				events.TopicBrokerSyncStart, events.TopicBrokerSyncComplete, events.TopicBrokerSyncError,
				events.TopicSyncProgress,
			} {
				event, ok := sub.Latest(topic)
				if !ok {
					continue
				}
				if err := s.writeEvent(ctx, conn, event); err != nil {
					return
				}
			}
		}
	}
}

func (s *Server) writeEvent(ctx context.Context, conn *websocket.Conn, event events.ServerEvent) error {
	msg := eventMessage{
		Topic:     string(event.Topic),
		Payload:   event.Payload,
		EmittedAt: event.EmittedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		s.log.Debug().Err(err).Msg("websocket write failed, closing")
		return err
	}
	return nil
}
