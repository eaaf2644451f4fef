package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextHook_Run(t *testing.T) {
	tests := []struct {
		name      string
		setupCtx  func() context.Context
		wantKeys  []string
		wantEmpty []string
	}{
		{
			name: "both document_id and render_session",
			setupCtx: func() context.Context {
				ctx := context.Background()
				ctx = WithDocumentID(ctx, 3)
				ctx = WithRenderSession(ctx, 9)
				return ctx
			},
			wantKeys: []string{"document_id", "render_session"},
		},
		{
			name: "only document_id",
			setupCtx: func() context.Context {
				return WithDocumentID(context.Background(), 3)
			},
			wantKeys:  []string{"document_id"},
			wantEmpty: []string{"render_session"},
		},
		{
			name: "only render_session",
			setupCtx: func() context.Context {
				return WithRenderSession(context.Background(), 9)
			},
			wantKeys:  []string{"render_session"},
			wantEmpty: []string{"document_id"},
		},
		{
			name:      "no context values",
			setupCtx:  context.Background,
			wantEmpty: []string{"document_id", "render_session"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			ctx := tt.setupCtx()

			logger := zerolog.New(&buf).Hook(ContextHook{})
			logger.Info().Ctx(ctx).Msg("test")

			var logEntry map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
				t.Fatalf("failed to parse log: %v", err)
			}

			for _, key := range tt.wantKeys {
				if _, ok := logEntry[key]; !ok {
					t.Errorf("expected %s to be present in log", key)
				}
			}

			for _, key := range tt.wantEmpty {
				if _, ok := logEntry[key]; ok {
					t.Errorf("expected %s to be absent from log", key)
				}
			}
		})
	}
}

func TestContextHook_Values(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Hook(ContextHook{})

	ctx := WithRenderSession(WithDocumentID(context.Background(), 5), 12)
	logger.Warn().Ctx(ctx).Msg("page render failed")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log: %v", err)
	}

	if got := logEntry["document_id"]; got != float64(5) {
		t.Errorf("document_id = %v, want 5", got)
	}
	if got := logEntry["render_session"]; got != float64(12) {
		t.Errorf("render_session = %v, want 12", got)
	}
}
