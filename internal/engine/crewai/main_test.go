package crewai

import (
	"context"
	"sync"
	"testing"

	"github.com/murtihash94/kasal/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	return conn
}

// fakeCompletionClient records requests and replies from a
// scripted handler.
type fakeCompletionClient struct {
	mu    sync.Mutex
	calls []CompletionRequest
	reply func(req *CompletionRequest) (string, error)
}

func (f *fakeCompletionClient) Complete(ctx context.Context, req *CompletionRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, *req)
	f.mu.Unlock()

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if f.reply != nil {
		return f.reply(req)
	}
	return "ok", nil
}

func (f *fakeCompletionClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
