package mcpserver

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *serverService {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	return &serverService{ctx: context.Background(), db: conn}
}

func TestCreateDefaults(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.Create(&CreateRequest{
		Name:      "tools",
		ServerURL: "https://mcp.example.com/sse",
		APIKeyRef: "secret://env/MCP_KEY",
	})
	require.NoError(t, err)

	assert.Equal(t, models.MCPTransportSSE, created.Transport)
	assert.Equal(t, models.MCPAuthAPIKey, created.AuthType)
	assert.Equal(t, 30, created.TimeoutSeconds)
	assert.Equal(t, 3, created.MaxRetries)
	assert.Equal(t, 60, created.RateLimit)
	assert.False(t, created.Enabled)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Create(&CreateRequest{ServerURL: "https://x.example.com"})
	require.ErrorContains(t, err, "name is required")

	_, err = svc.Create(&CreateRequest{Name: "s", ServerURL: "not a url"})
	require.ErrorContains(t, err, "server_url")

	_, err = svc.Create(&CreateRequest{Name: "s", ServerURL: "https://x.example.com", Transport: "grpc"})
	require.ErrorContains(t, err, "invalid transport")

	_, err = svc.Create(&CreateRequest{Name: "s", ServerURL: "https://x.example.com", AuthType: "basic"})
	require.ErrorContains(t, err, "invalid auth_type")

	// Enabling with api_key auth demands a key reference.
	_, err = svc.Create(&CreateRequest{Name: "s", ServerURL: "https://x.example.com", Enabled: true})
	require.ErrorContains(t, err, "api_key_ref is required")

	_, err = svc.Create(&CreateRequest{
		Name:      "s",
		ServerURL: "https://x.example.com",
		AuthType:  "databricks_obo",
		Enabled:   true,
	})
	require.NoError(t, err)
}

func TestToggle(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.Create(&CreateRequest{
		Name:      "tools",
		ServerURL: "https://mcp.example.com/sse",
	})
	require.NoError(t, err)

	_, err = svc.Toggle(created.ID)
	require.ErrorContains(t, err, "api_key_ref is required")

	ref := "secret://env/MCP_KEY"
	_, err = svc.Update(created.ID, &UpdateRequest{APIKeyRef: &ref})
	require.NoError(t, err)

	toggled, err := svc.Toggle(created.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Enabled)

	enabled, err := svc.ListEnabled()
	require.NoError(t, err)
	require.Len(t, enabled, 1)

	toggled, err = svc.Toggle(created.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Enabled)

	_, err = svc.Toggle(uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateAndDelete(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.Create(&CreateRequest{
		Name:      "tools",
		ServerURL: "https://mcp.example.com/sse",
	})
	require.NoError(t, err)

	transport := "streamable"
	timeout := 90
	updated, err := svc.Update(created.ID, &UpdateRequest{Transport: &transport, TimeoutSeconds: &timeout})
	require.NoError(t, err)
	assert.Equal(t, models.MCPTransportStreamable, updated.Transport)
	assert.Equal(t, 90, updated.TimeoutSeconds)

	bad := "ftp://mcp.example.com"
	_, err = svc.Update(created.ID, &UpdateRequest{ServerURL: &bad})
	require.ErrorContains(t, err, "server_url")

	require.NoError(t, svc.Delete(created.ID))
	require.ErrorIs(t, svc.Delete(created.ID), ErrNotFound)
}
