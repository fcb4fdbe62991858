package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	path := writeTempJSON(t, dir, "cfg.json", map[string]any{
		"endpoint_addr_grpc":   "www.example:9000",
		"job_store":            "postgres",
		"database_dsn":         "postgres://x",
		"s3_bucket":            "bucket",
		"s3_url_style":         "path",
		"attempt_timeout":      "90s",
		"max_retries":          0,
		"workers":              3,
		"insecure_skip_verify": true,
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", path}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "www.example:9000", cfg.EndpointAddrGRPC)
		assert.Equal(t, StorePostgres, cfg.JobStore)
		assert.Equal(t, "postgres://x", cfg.DatabaseDSN)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, URLStylePath, cfg.S3URLStyle)
		assert.Equal(t, 90*time.Second, cfg.AttemptTimeout)
		assert.Equal(t, 0, cfg.MaxRetries, "explicit zero must override the default")
		assert.Equal(t, 3, cfg.Workers)
		assert.True(t, cfg.InsecureSkipVerify)

		// untouched keys keep defaults
		assert.Equal(t, "us-east-1", cfg.S3Region)
	})

	t.Run("no config flag → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{EndpointAddrGRPC: "defaults:1234", S3Bucket: "keep"}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.EndpointAddrGRPC)
		assert.Equal(t, "keep", cfg.S3Bucket)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-c", bad}

		require.Panics(t, func() { parseJson(&Config{}) })
	})
}
