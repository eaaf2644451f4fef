package logging

import "context"

type contextKey string

const (
	documentIDKey    contextKey = "document_id"
	renderSessionKey contextKey = "render_session"
)

// WithDocumentID adds a document ID to the context.
func WithDocumentID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, documentIDKey, id)
}

// WithRenderSession adds a render session tag to the context.
func WithRenderSession(ctx context.Context, session uint64) context.Context {
	return context.WithValue(ctx, renderSessionKey, session)
}

// GetDocumentID retrieves the document ID from the context.
// Returns false if not present.
func GetDocumentID(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(documentIDKey).(uint64)
	return id, ok
}

// GetRenderSession retrieves the render session from the context.
// Returns false if not present.
func GetRenderSession(ctx context.Context) (uint64, bool) {
	s, ok := ctx.Value(renderSessionKey).(uint64)
	return s, ok
}
