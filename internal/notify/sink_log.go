package notify

import (
	"context"

	"github.com/park285/rps-room-server/internal/obslog"
	"go.uber.org/zap"
)

// LogSink writes events to the logger instead of a transport.
type LogSink struct{ Logger *zap.Logger }

func (s LogSink) Send(_ context.Context, ev Event) error {
	obslog.Or(s.Logger).Info("notify_event",
		zap.String("destination", ev.Destination),
		zap.String("room_id", ev.ID),
		zap.String("type", string(ev.Type)),
		zap.String("player_id", ev.Data.PlayerID),
	)
	return nil
}
