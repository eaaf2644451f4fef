package logutils

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/folio/internal/core/logging"
)

func TestNew_FileWithContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "folio.log")

	logger, closer, err := New("debug", path)
	require.NoError(t, err)

	ctx := logging.WithDocumentID(context.Background(), 7)
	ctx = logging.WithRenderSession(ctx, 3)
	logger.Info().Ctx(ctx).Msg("page rendered")
	closer()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "page rendered", entry["message"])
	assert.InDelta(t, 7, entry["document_id"], 0)
	assert.InDelta(t, 3, entry["render_session"], 0)
	assert.Contains(t, entry, "time")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, _, err := New("loud", "")
	require.Error(t, err)
}
