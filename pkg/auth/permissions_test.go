package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/insight-auth/internal/testutil"
	"github.com/StricklySoft/insight-auth/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/insight-auth/pkg/errors"
)

func TestParsePermissionConfig_JSON(t *testing.T) {
	t.Parallel()

	cfg, err := ParsePermissionConfig([]byte(fixtures.PermissionsJSON), "json")
	require.NoError(t, err)

	assert.False(t, cfg.AllowUnrecognized())
	assert.Equal(t, []string{fixtures.Database1, fixtures.OpsDatabase}, cfg.Resources())

	perm, ok := cfg.Permission(fixtures.OpsDatabase)
	require.True(t, ok)
	assert.Equal(t, ResourcePermission{
		{"role": []any{"admin", "ops"}},
		{"team": "x"},
	}, perm)
}

func TestParsePermissionConfig_YAML(t *testing.T) {
	t.Parallel()

	cfg, err := ParsePermissionConfig([]byte(fixtures.PermissionsYAML), "yaml")
	require.NoError(t, err)

	assert.True(t, cfg.AllowUnrecognized())
	perm, ok := cfg.Permission(fixtures.Database1)
	require.True(t, ok)
	assert.Equal(t, ResourcePermission{{"role": []any{"admin"}}}, perm)
}

func TestParsePermissionConfig_Empty(t *testing.T) {
	t.Parallel()

	cfg, err := ParsePermissionConfig([]byte(`{}`), "json")
	require.NoError(t, err)
	assert.Empty(t, cfg.Resources())
	assert.False(t, cfg.AllowUnrecognized())
}

func TestParsePermissionConfig_NullResourceIsUnrecognized(t *testing.T) {
	t.Parallel()

	cfg, err := ParsePermissionConfig([]byte(`{"redisToPermissionMapping":{"db1":null}}`), "json")
	require.NoError(t, err)
	_, ok := cfg.Permission("db1")
	assert.False(t, ok)
}

func TestParsePermissionConfig_InvalidShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{name: "syntax error", doc: `{"redisToPermissionMapping":`},
		{name: "mapping not an object", doc: `{"redisToPermissionMapping":[1,2]}`},
		{name: "permission not an array", doc: `{"redisToPermissionMapping":{"db1":{"role":"admin"}}}`},
		{name: "rule not an object", doc: `{"redisToPermissionMapping":{"db1":["admin"]}}`},
		{name: "nested array", doc: `{"redisToPermissionMapping":{"db1":[{"role":[["admin"]]}]}}`},
		{name: "object requirement", doc: `{"redisToPermissionMapping":{"db1":[{"role":{"a":1}}]}}`},
		{name: "default not a bool", doc: `{"allowAccessToUnrecognizedRedises":"yes"}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParsePermissionConfig([]byte(tt.doc), "json")
			testutil.RequireErrorCode(t, err, sserr.CodeValidation)
		})
	}
}

func TestParsePermissionConfig_UnknownFormat(t *testing.T) {
	t.Parallel()
	_, err := ParsePermissionConfig([]byte(`{}`), "toml")
	testutil.RequireErrorCode(t, err, sserr.CodeValidation)
}

func TestLoadPermissionConfig(t *testing.T) {
	t.Parallel()

	jsonPath := testutil.TempConfigFile(t, fixtures.PermissionsJSON, ".json")
	cfg, err := LoadPermissionConfig(jsonPath)
	require.NoError(t, err)
	assert.Len(t, cfg.Resources(), 2)

	yamlPath := testutil.TempConfigFile(t, fixtures.PermissionsYAML, ".yml")
	cfg, err = LoadPermissionConfig(yamlPath)
	require.NoError(t, err)
	assert.True(t, cfg.AllowUnrecognized())

	_, err = LoadPermissionConfig(testutil.TempConfigFile(t, "x", ".txt"))
	testutil.RequireErrorCode(t, err, sserr.CodeValidation)

	_, err = LoadPermissionConfig(jsonPath + ".missing")
	testutil.RequireErrorCode(t, err, sserr.CodeInternalConfiguration)
}

func TestPermissionConfig_Immutable(t *testing.T) {
	t.Parallel()
	src := map[string]ResourcePermission{"db1": {{"role": []any{"admin"}}}}
	cfg := NewPermissionConfig(src, false)

	src["db1"][0]["role"].([]any)[0] = "viewer"
	src["db2"] = ResourcePermission{{}}

	perm, _ := cfg.Permission("db1")
	assert.Equal(t, []any{"admin"}, perm[0]["role"])
	_, ok := cfg.Permission("db2")
	assert.False(t, ok)

	perm[0]["role"] = "changed"
	again, _ := cfg.Permission("db1")
	assert.Equal(t, []any{"admin"}, again[0]["role"], "returned permissions must be copies")
}
