package resource

import "go.uber.org/zap"

// LogObserver writes slot lifecycle events to a zap logger at debug level.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver returns an observer logging to l. A nil logger is a no-op.
func NewLogObserver(l *zap.Logger) *LogObserver {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogObserver{logger: l}
}

func (o *LogObserver) OnSlotEvent(e Event) {
	o.logger.Debug("slot "+e.Type.String(),
		zap.Uint32("slot", uint32(e.Slot)),
		zap.String("class", e.Class),
	)
}
