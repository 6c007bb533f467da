package memorybackend

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/murtihash94/kasal/internal/databricks"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/murtihash94/kasal/internal/secret"
	"github.com/murtihash94/kasal/pkg/env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeWorkspace implements VectorSearchAPI in memory.
type fakeWorkspace struct {
	endpoints map[string]*databricks.Endpoint
	indexes   map[string]*databricks.Index
	pingErr   error

	createEndpointCalls int
	createIndexCalls    int
}

func newFakeWorkspace() *fakeWorkspace {
	return &fakeWorkspace{
		endpoints: map[string]*databricks.Endpoint{},
		indexes:   map[string]*databricks.Index{},
	}
}

func notFoundErr() error {
	return &databricks.Error{StatusCode: http.StatusNotFound, Code: "RESOURCE_DOES_NOT_EXIST"}
}

func (f *fakeWorkspace) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeWorkspace) CreateEndpoint(ctx context.Context, req *databricks.CreateEndpointRequest) (*databricks.Endpoint, error) {
	f.createEndpointCalls++
	endpoint := &databricks.Endpoint{Name: req.Name, State: "ONLINE", Type: req.Type}
	f.endpoints[req.Name] = endpoint
	return endpoint, nil
}

func (f *fakeWorkspace) GetEndpoint(ctx context.Context, name string) (*databricks.Endpoint, error) {
	if endpoint, ok := f.endpoints[name]; ok {
		return endpoint, nil
	}
	return nil, notFoundErr()
}

func (f *fakeWorkspace) CreateIndex(ctx context.Context, req *databricks.CreateIndexRequest) (*databricks.Index, error) {
	f.createIndexCalls++
	index := &databricks.Index{Name: req.Name, EndpointName: req.EndpointName, State: "READY"}
	f.indexes[req.Name] = index
	return index, nil
}

func (f *fakeWorkspace) GetIndex(ctx context.Context, name string) (*databricks.Index, error) {
	if index, ok := f.indexes[name]; ok {
		return index, nil
	}
	return nil, notFoundErr()
}

func (f *fakeWorkspace) ListIndexes(ctx context.Context, endpointName string) ([]databricks.Index, error) {
	out := []databricks.Index{}
	for _, index := range f.indexes {
		if index.EndpointName == endpointName {
			out = append(out, *index)
		}
	}
	return out, nil
}

func (f *fakeWorkspace) DeleteIndex(ctx context.Context, name string) error {
	if _, ok := f.indexes[name]; !ok {
		return notFoundErr()
	}
	delete(f.indexes, name)
	return nil
}

func newTestService(t *testing.T) (*backendService, *fakeWorkspace) {
	t.Helper()

	require.NoError(t, env.Process())

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	workspace := newFakeWorkspace()
	svc := &backendService{
		ctx: context.Background(),
		db:  conn,
		factory: func(workspaceURL, token string) (VectorSearchAPI, error) {
			return workspace, nil
		},
		resolver: secret.NewMultiResolver(map[string]secret.Resolver{
			"env": secret.NewEnvResolver(),
		}),
	}
	return svc, workspace
}

func databricksConfig() *models.DatabricksMemoryConfig {
	return &models.DatabricksMemoryConfig{
		WorkspaceURL:       "https://ws.cloud.databricks.com",
		EndpointName:       "kasal-memory",
		ShortTermIndex:     "ml.agents.short_term_memory",
		LongTermIndex:      "ml.agents.long_term_memory",
		EntityIndex:        "ml.agents.entity_memory",
		DocumentIndex:      "ml.agents.document_memory",
		EmbeddingDimension: 768,
		Catalog:            "ml",
		Schema:             "agents",
	}
}

func TestCreateAndSetDefault(t *testing.T) {
	svc, _ := newTestService(t)

	first, err := svc.Create(&CreateRequest{
		GroupID:     "g1",
		Name:        "primary",
		BackendType: models.MemoryBackendTypeDatabricks,
		IsDefault:   true,
		Databricks:  databricksConfig(),
	})
	require.NoError(t, err)
	assert.True(t, first.IsDefault)

	second, err := svc.Create(&CreateRequest{
		GroupID:     "g1",
		Name:        "secondary",
		BackendType: models.MemoryBackendTypeDatabricks,
		IsDefault:   true,
		Databricks:  databricksConfig(),
	})
	require.NoError(t, err)

	// One default per group: creating a second default demotes
	// the first.
	reloaded, err := svc.Get(first.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsDefault)

	promoted, err := svc.SetDefault(first.ID)
	require.NoError(t, err)
	assert.True(t, promoted.IsDefault)

	demoted, err := svc.Get(second.ID)
	require.NoError(t, err)
	assert.False(t, demoted.IsDefault)

	fallback, err := svc.GetDefault("g1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, fallback.ID)
}

func TestCreateRejectsInvalidConfig(t *testing.T) {
	svc, _ := newTestService(t)

	cfg := databricksConfig()
	cfg.EndpointName = ""

	_, err := svc.Create(&CreateRequest{
		GroupID:     "g1",
		BackendType: models.MemoryBackendTypeDatabricks,
		Databricks:  cfg,
	})
	require.ErrorContains(t, err, "endpoint_name is required")
}

func TestValidate(t *testing.T) {
	svc, _ := newTestService(t)

	result := svc.Validate(databricksConfig())
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)

	cfg := databricksConfig()
	cfg.WorkspaceURL = "ftp://nope"
	cfg.EndpointName = ""
	cfg.ShortTermIndex = "not_qualified"
	result = svc.Validate(cfg)
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 3)

	cfg = databricksConfig()
	cfg.EmbeddingDimension = 0
	result = svc.Validate(cfg)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "embedding_dimension must be positive")

	result = svc.Validate(nil)
	assert.False(t, result.Valid)
}

func TestGetAndDelete(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(uuid.New())
	require.ErrorIs(t, err, ErrNotFound)

	backend, err := svc.Create(&CreateRequest{GroupID: "g1", Name: "b"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(backend.ID))
	require.ErrorIs(t, svc.Delete(backend.ID), ErrNotFound)
}

func TestUpdateSkipsNoOpWrites(t *testing.T) {
	svc, _ := newTestService(t)

	backend, err := svc.Create(&CreateRequest{
		GroupID:     "g1",
		Name:        "primary",
		BackendType: models.MemoryBackendTypeDatabricks,
		Databricks:  databricksConfig(),
	})
	require.NoError(t, err)

	same := backend.Name
	updated, err := svc.Update(backend.ID, &UpdateRequest{Name: &same, Databricks: databricksConfig()})
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.Equal(backend.UpdatedAt))

	renamed := "renamed"
	updated, err = svc.Update(backend.ID, &UpdateRequest{Name: &renamed})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.False(t, updated.UpdatedAt.Before(backend.UpdatedAt))
}

func TestTestConnectionFallsBackToPAT(t *testing.T) {
	svc, workspace := newTestService(t)

	oboRejected := false
	svc.factory = func(workspaceURL, token string) (VectorSearchAPI, error) {
		if token == "obo-token" {
			oboRejected = true
			rejecting := newFakeWorkspace()
			rejecting.pingErr = &databricks.Error{StatusCode: http.StatusUnauthorized}
			return rejecting, nil
		}
		return workspace, nil
	}

	t.Setenv("DATABRICKS_TOKEN", "pat-token")

	result := svc.TestConnection(&ConnectionRequest{
		WorkspaceURL: "https://ws.cloud.databricks.com",
		OBOToken:     "obo-token",
	})

	assert.True(t, oboRejected)
	assert.True(t, result.Success)
	assert.Equal(t, "pat", result.AuthMethod)
}

func TestTestConnectionStructuredFailure(t *testing.T) {
	svc, workspace := newTestService(t)
	workspace.pingErr = &databricks.Error{StatusCode: http.StatusUnauthorized, Message: "bad token"}

	t.Setenv("DATABRICKS_TOKEN", "pat-token")

	result := svc.TestConnection(&ConnectionRequest{
		WorkspaceURL: "https://ws.cloud.databricks.com",
	})

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Message)
}

func TestCreateIndexWhitelist(t *testing.T) {
	svc, _ := newTestService(t)
	t.Setenv("DATABRICKS_TOKEN", "pat-token")

	_, err := svc.CreateIndex(&CreateIndexRequest{
		ConnectionRequest: ConnectionRequest{
			WorkspaceURL: "https://ws.cloud.databricks.com",
			EndpointName: "kasal-memory",
		},
		IndexType: "episodic",
	})
	require.ErrorContains(t, err, "invalid index_type")

	index, err := svc.CreateIndex(&CreateIndexRequest{
		ConnectionRequest: ConnectionRequest{
			WorkspaceURL: "https://ws.cloud.databricks.com",
			EndpointName: "kasal-memory",
		},
		IndexType: "short_term",
	})
	require.NoError(t, err)
	assert.Equal(t, "ml.agents.short_term_memory", index.Name)
}

func TestOneClickSetupProvisionsEverything(t *testing.T) {
	svc, workspace := newTestService(t)
	t.Setenv("DATABRICKS_TOKEN", "pat-token")

	request := &OneClickRequest{
		ConnectionRequest: ConnectionRequest{
			WorkspaceURL: "https://ws.cloud.databricks.com",
			EndpointName: "kasal-memory",
		},
		GroupID: "g1",
	}

	result, err := svc.OneClickSetup(request)
	require.NoError(t, err)

	assert.Equal(t, 1, workspace.createEndpointCalls)
	assert.Equal(t, 4, workspace.createIndexCalls)
	assert.Len(t, result.Indexes, 4)
	assert.Equal(t, "ml.agents.short_term_memory", result.Config.ShortTermIndex)
	assert.Equal(t, 768, result.Config.EmbeddingDimension)
	assert.True(t, result.Backend.IsDefault)

	// Retrying reuses what already exists.
	_, err = svc.OneClickSetup(request)
	require.NoError(t, err)
	assert.Equal(t, 1, workspace.createEndpointCalls)
	assert.Equal(t, 4, workspace.createIndexCalls)

	verify, err := svc.VerifyResources(&ConnectionRequest{
		WorkspaceURL: "https://ws.cloud.databricks.com",
		EndpointName: "kasal-memory",
	})
	require.NoError(t, err)
	assert.True(t, verify.Complete)
}

func TestVerifyResourcesHonorsCustomCatalogSchema(t *testing.T) {
	svc, _ := newTestService(t)
	t.Setenv("DATABRICKS_TOKEN", "pat-token")

	request := &OneClickRequest{
		ConnectionRequest: ConnectionRequest{
			WorkspaceURL: "https://ws.cloud.databricks.com",
			EndpointName: "kasal-memory",
			Catalog:      "prod",
			Schema:       "memories",
		},
		GroupID: "g1",
	}

	result, err := svc.OneClickSetup(request)
	require.NoError(t, err)
	assert.Equal(t, "prod.memories.short_term_memory", result.Config.ShortTermIndex)

	verify, err := svc.VerifyResources(&ConnectionRequest{
		WorkspaceURL: "https://ws.cloud.databricks.com",
		EndpointName: "kasal-memory",
		Catalog:      "prod",
		Schema:       "memories",
	})
	require.NoError(t, err)
	assert.True(t, verify.Complete)
	for indexType, ok := range verify.Indexes {
		assert.True(t, ok, indexType)
	}

	// The conventional names were never created, so verifying
	// against the defaults reports the gap.
	verify, err = svc.VerifyResources(&ConnectionRequest{
		WorkspaceURL: "https://ws.cloud.databricks.com",
		EndpointName: "kasal-memory",
	})
	require.NoError(t, err)
	assert.False(t, verify.Complete)
}

func TestGetIndexesAndEndpointStatus(t *testing.T) {
	svc, workspace := newTestService(t)
	t.Setenv("DATABRICKS_TOKEN", "pat-token")

	workspace.endpoints["kasal-memory"] = &databricks.Endpoint{Name: "kasal-memory", State: "ONLINE"}
	workspace.indexes["ml.agents.short_term_memory"] = &databricks.Index{
		Name:         "ml.agents.short_term_memory",
		EndpointName: "kasal-memory",
	}

	request := &ConnectionRequest{
		WorkspaceURL: "https://ws.cloud.databricks.com",
		EndpointName: "kasal-memory",
	}

	indexes, err := svc.GetIndexes(request)
	require.NoError(t, err)
	assert.Equal(t, "pat", indexes.AuthMethod)
	require.Len(t, indexes.Indexes, 1)

	endpoint, err := svc.EndpointStatus(request)
	require.NoError(t, err)
	assert.Equal(t, "ONLINE", endpoint.State)
}

func TestDisabledModeLifecycle(t *testing.T) {
	svc, _ := newTestService(t)

	for i := 0; i < 2; i++ {
		_, err := svc.Create(&CreateRequest{
			GroupID:     "g1",
			BackendType: models.MemoryBackendTypeDatabricks,
			Databricks:  databricksConfig(),
		})
		require.NoError(t, err)
	}

	disabled, err := svc.SwitchToDisabledMode("g1")
	require.NoError(t, err)
	assert.Equal(t, models.MemoryBackendTypeDefault, disabled.BackendType)
	assert.True(t, disabled.IsDefault)

	// The group's row set was replaced wholesale.
	backends, err := svc.List("g1")
	require.NoError(t, err)
	require.Len(t, backends, 1)
	assert.Equal(t, disabled.ID, backends[0].ID)

	count, err := svc.CleanupDisabledConfigs("g1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Cleanup is idempotent.
	count, err = svc.CleanupDisabledConfigs("g1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestDeleteAllDatabricksConfigs(t *testing.T) {
	svc, _ := newTestService(t)

	for _, group := range []string{"g1", "g1", "g2"} {
		_, err := svc.Create(&CreateRequest{
			GroupID:     group,
			BackendType: models.MemoryBackendTypeDatabricks,
			Databricks:  databricksConfig(),
		})
		require.NoError(t, err)
	}

	count, err := svc.DeleteAllDatabricksConfigs("g1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	remaining, err := svc.List("")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "g2", remaining[0].GroupID)
}
