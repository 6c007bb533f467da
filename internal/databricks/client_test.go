package databricks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientRequiresWorkspaceAndToken(t *testing.T) {
	_, err := New("", "token")
	require.Error(t, err)

	_, err = New("https://example.cloud.databricks.com", "")
	require.Error(t, err)
}

func TestErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/2.0/vector-search/endpoints/missing":
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{
				"error_code": "RESOURCE_DOES_NOT_EXIST",
				"message":    "endpoint not found",
			})
		case "/api/2.0/vector-search/endpoints":
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{
				"error_code": "PERMISSION_DENIED",
				"message":    "invalid token",
			})
		}
	}))
	defer srv.Close()

	c, err := New(srv.URL, "bad-token")
	require.NoError(t, err)

	_, err = c.GetEndpoint(context.Background(), "missing")
	require.True(t, IsNotFound(err))
	require.False(t, IsAuthFailure(err))

	err = c.Ping(context.Background())
	require.True(t, IsAuthFailure(err))
}

func TestCreateIndexSendsBearerToken(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(Index{Name: "ml.agents.short_term"})
	}))
	defer srv.Close()

	c, err := New(srv.URL, "pat-token")
	require.NoError(t, err)

	idx, err := c.CreateIndex(context.Background(), &CreateIndexRequest{
		Name:               "ml.agents.short_term",
		EndpointName:       "kasal-memory",
		PrimaryKey:         "id",
		EmbeddingDimension: 768,
	})
	require.NoError(t, err)
	require.Equal(t, "ml.agents.short_term", idx.Name)
	require.Equal(t, "Bearer pat-token", auth)
}
