package eventbus

import (
	"fmt"

	"github.com/rs/zerolog"
)

// RegisterDebugLogger logs bus activity: published events at trace level
// (state.changed fires on every frame of a smooth scroll), drops at warn and
// subscriber panics at error.
func RegisterDebugLogger(bus *EventBus, logger zerolog.Logger) {
	bus.OnPublish(func(event Event, payload any) {
		lvl := zerolog.DebugLevel
		if event == EventStateChanged {
			lvl = zerolog.TraceLevel
		}
		logger.WithLevel(lvl).Str("event", string(event)).Type("payload", payload).Msg("event fired")
	})

	bus.OnDrop(func(event Event, _ any) {
		logger.Warn().Str("event", string(event)).Msg("event dropped: buffer full")
	})

	bus.OnPanic(func(event Event, _ any, recovered any) {
		logger.Error().
			Str("event", string(event)).
			Str("panic", fmt.Sprint(recovered)).
			Msg("subscriber panicked")
	})
}
