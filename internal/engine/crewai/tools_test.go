package crewai

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefixToolName(t *testing.T) {
	assert.Equal(t, "bar_foo", prefixToolName("bar", "foo"))
	// Already-prefixed tools are left alone; no double prefix.
	assert.Equal(t, "bar_foo", prefixToolName("bar", "bar_foo"))
	assert.Equal(t, "srv_srv_tool", prefixToolName("srv", "srv_srv_tool"))
}

func TestCreateByIDRejectsBadInput(t *testing.T) {
	builder := newTestBuilder(t)
	ctx := context.Background()

	_, err := builder.factory.CreateByID(ctx, "nope", false)
	require.Error(t, err)

	_, err = builder.factory.CreateByID(ctx, uuid.New().String(), false)
	require.Error(t, err)
}

func TestCreateByNameUnknownImplementation(t *testing.T) {
	builder := newTestBuilder(t)

	record := &models.Tool{
		ID:        uuid.New(),
		Name:      "NotARealTool",
		Enabled:   true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, builder.db.Create(record).Error)

	_, err := builder.factory.CreateByID(context.Background(), record.ID.String(), false)
	require.ErrorContains(t, err, "unknown tool implementation")
}
