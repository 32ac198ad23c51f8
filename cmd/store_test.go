//go:build !integration

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/workbench/internal/config"
)

func TestInitStore_SQLite(t *testing.T) {
	tmpDir := t.TempDir()
	dsn := filepath.Join(tmpDir, "test.db")

	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: dsn,
		},
	}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck
}

func TestInitStore_SQLiteDefaultDSN(t *testing.T) {
	// When DatabaseURL is empty, initStore should default to "workbench.db".
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: "",
		},
	}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	_, statErr := os.Stat(filepath.Join(tmpDir, "workbench.db"))
	assert.NoError(t, statErr)
}

func TestInitStore_UnknownDriver(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver: "mysql",
		},
	}

	st, err := initStore(context.Background())
	assert.Nil(t, st)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitSalesforce_NotConfigured(t *testing.T) {
	cfg = &config.Config{}

	client, err := initSalesforce()
	assert.Nil(t, client)
	assert.NoError(t, err)
}

func TestInitSalesforce_BadKeyPath(t *testing.T) {
	cfg = &config.Config{
		Salesforce: config.SalesforceConfig{
			ClientID: "test-client-id",
			Username: "user@test.com",
			KeyPath:  "/nonexistent/path/to/key.pem",
		},
	}

	client, err := initSalesforce()
	assert.Nil(t, client)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read salesforce JWT private key")
}

func TestInitSalesforce_InvalidPEM(t *testing.T) {
	tmpDir := t.TempDir()
	badPEM := filepath.Join(tmpDir, "bad.pem")
	require.NoError(t, os.WriteFile(badPEM, []byte("not a valid pem"), 0o600))

	cfg = &config.Config{
		Salesforce: config.SalesforceConfig{
			ClientID: "test-client-id",
			KeyPath:  badPEM,
			Username: "user@test.com",
			LoginURL: "https://login.salesforce.com",
		},
	}

	client, err := initSalesforce()
	assert.Nil(t, client)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "init salesforce")
}

func TestInitNotion_RequiresToken(t *testing.T) {
	cfg = &config.Config{
		Workspace: config.WorkspaceConfig{AccountsRoot: "data/accounts"},
		Agents:    config.AgentsConfig{Command: "npx"},
		Store:     config.StoreConfig{Driver: "sqlite"},
	}

	client, err := initNotion()
	assert.Nil(t, client)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "notion.token is required")

	cfg.Notion = config.NotionConfig{Token: "ntn_token", DatabaseID: "db-id", RateLimit: 3}
	client, err = initNotion()
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestInitWorkbench_SQLite(t *testing.T) {
	tmpDir := t.TempDir()
	cfg = &config.Config{
		Workspace: config.WorkspaceConfig{AccountsRoot: filepath.Join(tmpDir, "accounts")},
		Agents:    config.AgentsConfig{Command: "npx", Args: []string{"tsx"}},
		Store:     config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(tmpDir, "wb.db")},
	}

	env, err := initWorkbench(context.Background())
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Service)
	assert.Contains(t, env.Service.Catalog().Agents(), "apply")
}
