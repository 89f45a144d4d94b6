package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `version: v1
source:
  tenant-id: tenant-1
  client-id: client-1
collector:
  workspace-id: ws-1
  table: CopilotAudit
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultContentType, cfg.Source.ContentType)
	assert.Equal(t, DefaultAPIBase, cfg.Source.APIBase)
	assert.Equal(t, 1, cfg.Source.LookbackHours)
	assert.Equal(t, ":8080", cfg.Serve.Addr)
	assert.Equal(t, time.Hour, cfg.Serve.Interval)
}

func TestLoadEnvFallbacks(t *testing.T) {
	t.Setenv("AUDITINGEST_TENANT_ID", "env-tenant")
	t.Setenv("AUDITINGEST_WORKSPACE_ID", "env-ws")

	path := writeConfig(t, `version: v1
source:
  client-id: client-1
collector:
  table: CopilotAudit
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-tenant", cfg.Source.TenantID)
	assert.Equal(t, "env-ws", cfg.Collector.WorkspaceID)
}

func TestLoadFileValueBeatsEnv(t *testing.T) {
	t.Setenv("AUDITINGEST_TENANT_ID", "env-tenant")

	path := writeConfig(t, `version: v1
source:
  tenant-id: file-tenant
  client-id: client-1
collector:
  workspace-id: ws-1
  table: CopilotAudit
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file-tenant", cfg.Source.TenantID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Source.TenantID = "tenant-1"
	cfg.Source.ClientID = "client-1"
	cfg.Collector.WorkspaceID = "ws-1"
	cfg.Collector.Table = "CopilotAudit"
	require.NoError(t, Save(path, &cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", loaded.Source.TenantID)
	assert.Equal(t, "CopilotAudit", loaded.Collector.Table)
}

func TestAuthorityURL(t *testing.T) {
	cfg := Config{Source: SourceConfig{TenantID: "tenant-1"}}
	assert.Equal(t, "https://login.microsoftonline.com/tenant-1/v2.0", cfg.AuthorityURL())

	cfg.Source.Authority = "https://login.example.com/custom"
	assert.Equal(t, "https://login.example.com/custom", cfg.AuthorityURL())
}

func TestScope(t *testing.T) {
	cfg := Config{}
	assert.Equal(t, "https://manage.office.com/.default", cfg.Scope())

	cfg.Source.APIBase = "https://manage.example.com/"
	assert.Equal(t, "https://manage.example.com/.default", cfg.Scope())
}

func TestLogTypeStripsSuffix(t *testing.T) {
	cfg := Config{Collector: CollectorConfig{Table: "CopilotAudit_CL"}}
	assert.Equal(t, "CopilotAudit", cfg.LogType())

	cfg.Collector.Table = "CopilotAudit"
	assert.Equal(t, "CopilotAudit", cfg.LogType())
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Version: VersionV1,
			Source: SourceConfig{
				TenantID: "tenant-1",
				ClientID: "client-1",
			},
			Collector: CollectorConfig{
				WorkspaceID: "ws-1",
				Table:       "CopilotAudit",
			},
		}
	}

	t.Run("valid config passes", func(t *testing.T) {
		cfg := valid()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing tenant", func(t *testing.T) {
		cfg := valid()
		cfg.Source.TenantID = " "
		assert.ErrorContains(t, cfg.Validate(), "tenant-id")
	})

	t.Run("missing workspace", func(t *testing.T) {
		cfg := valid()
		cfg.Collector.WorkspaceID = ""
		assert.ErrorContains(t, cfg.Validate(), "workspace-id")
	})

	t.Run("kafka without topic", func(t *testing.T) {
		cfg := valid()
		cfg.Kafka = &KafkaConfig{Brokers: []string{"broker:9092"}}
		assert.ErrorContains(t, cfg.Validate(), "kafka topic")
	})

	t.Run("mail without receivers", func(t *testing.T) {
		cfg := valid()
		cfg.Mail = &MailConfig{Host: "smtp.example.com"}
		assert.ErrorContains(t, cfg.Validate(), "mail receivers")
	})
}
