package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FillsDatabasePoolDefaults(t *testing.T) {
	path := writeConfig(t, `
datasource:
  type: file
  path: ./fixtures
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.EqualValues(t, 25, cfg.Database.MaxConns)
	assert.EqualValues(t, 5, cfg.Database.MinConns)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_RequiresDatasourceType(t *testing.T) {
	cfg := &Config{}
	assert.ErrorContains(t, cfg.Validate(), "datasource.type")
}

func TestValidate_ExternalAPIRequiresServerVersionAndHashSecret(t *testing.T) {
	cfg := &Config{Datasource: DatasourceConfig{Type: "external_api"}}
	assert.ErrorContains(t, cfg.Validate(), "resource_api_server")

	cfg.ResourceAPIServer = "https://api.example.test"
	assert.ErrorContains(t, cfg.Validate(), "resource_api_version")

	cfg.ResourceAPIVersion = "2.5"
	assert.ErrorContains(t, cfg.Validate(), "HASH_SECRET")

	cfg.HashSecret = "s3cr3t"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_DocumentServiceRequiresURL(t *testing.T) {
	cfg := &Config{
		Datasource:          DatasourceConfig{Type: "file", Path: "./fixtures"},
		WithDocumentService: true,
	}
	assert.ErrorContains(t, cfg.Validate(), "DOCUMENT_SERVICE.url")

	cfg.DocumentService.URL = "https://docs.example.test"
	assert.NoError(t, cfg.Validate())
}
