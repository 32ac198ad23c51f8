package main

import (
	"context"
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/workbench/internal/artifact"
	"github.com/sells-group/workbench/internal/gateway"
	"github.com/sells-group/workbench/internal/store"
	"github.com/sells-group/workbench/internal/workbench"
	"github.com/sells-group/workbench/pkg/notion"
	sfpkg "github.com/sells-group/workbench/pkg/salesforce"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "workbench.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initSalesforce returns nil when no credentials are configured, so patch
// review falls back to basic validation.
func initSalesforce() (sfpkg.Client, error) {
	if !cfg.Salesforce.Enabled() {
		return nil, nil
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf, sfpkg.WithRateLimit(cfg.Salesforce.RateLimit)), nil
}

func initGateway(ledger gateway.Ledger) gateway.Gateway {
	return gateway.NewRecorder(gateway.NewExecGateway(cfg.Agents.Dir), ledger)
}

func initNotion() (notion.Client, error) {
	if err := cfg.Validate("notion"); err != nil {
		return nil, err
	}
	return notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(cfg.Notion.RateLimit)), nil
}

// workbenchEnv holds the store and the service built on it.
type workbenchEnv struct {
	Store   store.Store
	Service *workbench.Service
}

// Close releases resources held by the environment.
func (e *workbenchEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initWorkbench sets up the run ledger, the optional Salesforce client, and
// the workbench service. Callers should defer env.Close().
func initWorkbench(ctx context.Context) (*workbenchEnv, error) {
	if err := cfg.Validate("workbench"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	sfClient, err := initSalesforce()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if sfClient == nil {
		zap.L().Debug("salesforce not configured, field validation disabled")
	}

	svc := workbench.New(
		cfg,
		artifact.NewStore(cfg.Workspace.AccountsRoot),
		initGateway(st),
		gateway.NewCatalog(cfg.Agents),
		sfClient,
	)
	return &workbenchEnv{Store: st, Service: svc}, nil
}

// newArtifactStore opens the accounts root for read-only commands that need
// neither the ledger nor an agent.
func newArtifactStore() *artifact.Store {
	return artifact.NewStore(cfg.Workspace.AccountsRoot)
}
