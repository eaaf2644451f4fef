package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// ContextHook extracts document_id and render_session from context and adds them to log events.
type ContextHook struct{}

// Run adds contextual fields to the zerolog event.
func (h ContextHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == context.Background() || ctx == nil {
		return
	}

	if id, ok := GetDocumentID(ctx); ok {
		e.Uint64("document_id", id)
	}

	if session, ok := GetRenderSession(ctx); ok {
		e.Uint64("render_session", session)
	}
}
