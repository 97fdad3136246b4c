package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "ORGSYNC_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "pkg", "crud")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	t.Chdir(sub)

	_ = os.Unsetenv("ORGSYNC_TEST_ENV_LOAD")

	n, err := LoadEnv([]string{".env", ".env.local"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "ok", os.Getenv("ORGSYNC_TEST_ENV_LOAD"))
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	c, err := Load(nil)
	require.NoError(t, err)
	t.Cleanup(c.Unload)

	require.Equal(t, 64, c.OrgHierarchy.MaxDepth)
	require.Equal(t, 10000, c.OrgHierarchy.MaxNodes)
	require.Equal(t, 5*time.Second, c.OrgHierarchy.LockTimeout)
	require.Equal(t, "memory", c.OrgHierarchy.Cache)
	require.Equal(t, "disabled", c.RLSEnforce)
	require.Equal(t, "localhost:3200", c.SocketAddress)
	require.Contains(t, c.Database.Opts, "dbname=orgsync")
	require.NotNil(t, c.Logger())
	require.Equal(t, []string{"http://localhost:3000"}, c.CORS.AllowedOrigins)
	require.False(t, c.RateLimit.Enabled)
	require.Equal(t, "600-M", c.RateLimit.Rate)
	require.False(t, c.OpenTelemetry.Enabled)
}

func TestLoad_RejectsInvalidRateLimitStorage(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("RATE_LIMIT_STORAGE", "disk")
	_, err := Load(nil)
	require.ErrorContains(t, err, "RATE_LIMIT_STORAGE")
}

func TestLoad_RejectsInvalidHierarchyOptions(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("ORG_HIERARCHY_MAX_DEPTH", "0")
	_, err := Load(nil)
	require.ErrorContains(t, err, "ORG_HIERARCHY_MAX_DEPTH")

	t.Setenv("ORG_HIERARCHY_MAX_DEPTH", "10")
	t.Setenv("ORG_HIERARCHY_CACHE", "memcached")
	_, err = Load(nil)
	require.ErrorContains(t, err, "ORG_HIERARCHY_CACHE")
}

func TestLoad_RLSEnforceRequiresNonSuperuser(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("RLS_ENFORCE", "enforce")
	t.Setenv("DB_USER", "postgres")
	_, err := Load(nil)
	require.ErrorContains(t, err, "non-superuser")

	t.Setenv("DB_USER", "orgsync_app")
	c, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, "enforce", c.RLSEnforce)
}

func TestOrgHierarchyOptions_NormalizesCache(t *testing.T) {
	o := OrgHierarchyOptions{MaxDepth: 8, MaxNodes: 10, Cache: " Redis "}
	require.NoError(t, o.Validate())
	require.Equal(t, "redis", o.Cache)

	o.Cache = ""
	require.NoError(t, o.Validate())
	require.Equal(t, "none", o.Cache)
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
