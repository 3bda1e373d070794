package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"9000\"\n")
	require.NoError(t, Load(path))

	assert.Equal(t, "9000", Cfg.Server.Port)
	assert.Equal(t, "local", Cfg.RAG.StoreBackend)
	assert.Equal(t, "local", Cfg.RAG.EmbedProvider)
	assert.Equal(t, "none", Cfg.RAG.LLMProvider)
	assert.Equal(t, 500, Cfg.RAG.ChunkSize)
	assert.Equal(t, 80, Cfg.RAG.ChunkOverlap)
	assert.Equal(t, "student_docs", Cfg.RAG.CollectionName)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, "rag:\n  store_backend: chroma\n")
	err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store_backend")
}

func TestLoadRejectsUnknownProviders(t *testing.T) {
	err := Load(writeConfig(t, "rag:\n  embed_provider: cohere\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed_provider")

	err = Load(writeConfig(t, "rag:\n  llm_provider: claude\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm_provider")
}

func TestLoadRequiresBackendSettings(t *testing.T) {
	err := Load(writeConfig(t, "rag:\n  store_backend: milvus\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "milvus.endpoint")

	err = Load(writeConfig(t, "rag:\n  store_backend: pgvector\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres.dsn")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("JWT_SECRET_KEY", "secret-from-env")

	require.NoError(t, Load(writeConfig(t, "rag:\n  store_backend: local\n")))
	assert.Equal(t, "sk-test", Cfg.RAG.OpenAI.APIKey)
	assert.Equal(t, "secret-from-env", Cfg.JWT.SecretKey)
}

func TestLoadMissingFile(t *testing.T) {
	assert.Error(t, Load(filepath.Join(t.TempDir(), "missing.yaml")))
}
