package types

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

type logger struct {
	log *slog.Logger
}

// NewLogger returns a handler that logs every message travelling on the bus
// except the high-rate ones.
func NewLogger(log *slog.Logger) MessageHandler {
	return &logger{log.With("component", "bus")}
}

func (l *logger) Receive(message Message) {
	switch message.MessageType {
	case MessageTypeOdometry, MessageTypeTick, MessageTypeDiagnostics, MessageTypeDesiredPose:
		return
	}

	b, _ := json.Marshal(message.Message)
	l.log.Debug("Message", "type", message.MessageType, "from", message.From, "to", message.To, "id", message.ID, "payload", string(b))
}

func (l *logger) Run(ctx context.Context, wg *sync.WaitGroup, post PostFn) {
}
