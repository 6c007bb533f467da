package jsonmap

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestFromStringMap(t *testing.T) {
	require.Equal(t, datatypes.JSONMap{}, FromStringMap(nil))
	require.Equal(t, datatypes.JSONMap{"catalog": "ml"}, FromStringMap(map[string]string{"catalog": "ml"}))
}

func TestFromAnyMap(t *testing.T) {
	require.Equal(t, datatypes.JSONMap{}, FromAnyMap(nil))
	require.Equal(t, datatypes.JSONMap{"dimension": 768}, FromAnyMap(map[string]any{"dimension": 768}))
}

func TestToStringMap(t *testing.T) {
	require.Equal(t, map[string]string{}, ToStringMap(nil))
	require.Equal(t, map[string]string{"attempt": "2", "schema": "agents"}, ToStringMap(datatypes.JSONMap{
		"schema":  "agents",
		"attempt": 2,
	}))
}
