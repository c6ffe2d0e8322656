package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vsayer/materialize/internal/builtin"
	"github.com/vsayer/materialize/internal/config"
	"github.com/vsayer/materialize/internal/durable"
	"github.com/vsayer/materialize/internal/durable/badgerstore"
	"github.com/vsayer/materialize/internal/durable/pgstore"
	"github.com/vsayer/materialize/pkg/catalog"
)

// Environment variables consulted when neither flags nor catalogd.yaml name
// the store.
const (
	envConnString  = "CATALOGD_CONN"
	envDataDir     = "CATALOGD_DATA_DIR"
	envDatabaseURL = "DATABASE_URL"

	envAWSRegion         = "AWS_REGION"
	envAzureTenantID     = "AZURE_TENANT_ID"
	envAzureClientID     = "AZURE_CLIENT_ID"
	envAzureClientSecret = "AZURE_CLIENT_SECRET"
)

const defaultDataDir = "./catalog"

type storeFlagValues struct {
	configDir string
	backend   string
	dataDir   string
	conn      string
	table     string
	readOnly  bool

	auth           string
	awsRegion      string
	azureTenantID  string
	azureClientID  string
	googleInstance string
}

var storeFlags storeFlagValues

func addStoreFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&storeFlags.configDir, "config-dir", ".",
		"Directory containing catalogd.yaml")
	f.StringVar(&storeFlags.backend, "store", "",
		"Catalog store backend: badger|postgres\n"+
			"(default: store.backend in catalogd.yaml, else postgres when a connection string is set, else badger)")
	f.StringVar(&storeFlags.dataDir, "data-dir", "",
		"Badger data directory\n"+
			"Precedence: --data-dir > $CATALOGD_DATA_DIR > store.path > ./catalog")
	f.StringVar(&storeFlags.conn, "conn", "",
		"PostgreSQL connection string for the postgres backend\n"+
			"Precedence: --conn > $CATALOGD_CONN > $DATABASE_URL > store.conn_string")
	f.StringVar(&storeFlags.table, "table", "",
		"PostgreSQL table holding the catalog (default: "+pgstore.DefaultTable+")")
	f.BoolVar(&storeFlags.readOnly, "read-only", false,
		"Open the catalog without writing anything")

	// Managed PostgreSQL authentication
	f.StringVar(&storeFlags.auth, "auth", "",
		"Postgres authentication: password|aws|azure|google\n"+
			"aws: RDS IAM token from the default AWS credential chain\n"+
			"azure: Entra ID token (service principal with $AZURE_CLIENT_SECRET, else DefaultAzureCredential)\n"+
			"google: Cloud SQL connector with IAM database authentication")
	f.StringVar(&storeFlags.awsRegion, "aws-region", "",
		"AWS region of the RDS instance (overrides $AWS_REGION)")
	f.StringVar(&storeFlags.azureTenantID, "azure-tenant-id", "",
		"Azure AD tenant/directory ID (overrides $AZURE_TENANT_ID)")
	f.StringVar(&storeFlags.azureClientID, "azure-client-id", "",
		"Azure AD application/client ID (overrides $AZURE_CLIENT_ID)")
	f.StringVar(&storeFlags.googleInstance, "google-instance", "",
		"Cloud SQL instance connection name: project:region:instance")
}

// storeSettings is the resolved location of the catalog.
type storeSettings struct {
	backend    string
	path       string
	connString string
	table      string
	readOnly   bool
	auth       pgstore.Auth
}

// loadProjectConfig loads godotenv and project configuration.
// Returns an empty config if catalogd.yaml does not exist.
func loadProjectConfig(dir string) (*config.ProjectConfig, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(dir)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return &config.ProjectConfig{}, nil
		}
		return nil, fmt.Errorf("failed to load %s: %w: %w", config.ConfigFileName, catalog.ErrInvalidConfig, err)
	}
	return cfg, nil
}

// resolveStore applies flag > environment > file precedence.
func resolveStore(cmd *cobra.Command, cfg *config.ProjectConfig) (storeSettings, error) {
	s := storeSettings{
		backend:    cfg.Store.Backend,
		path:       cfg.Store.Path,
		connString: cfg.Store.ConnString,
		table:      cfg.Store.Table,
		readOnly:   cfg.Store.ReadOnly,
		auth: pgstore.Auth{
			Method:         cfg.Store.Auth.Method,
			AWSRegion:      cfg.Store.Auth.AWSRegion,
			AzureTenantID:  cfg.Store.Auth.AzureTenantID,
			AzureClientID:  cfg.Store.Auth.AzureClientID,
			GoogleInstance: cfg.Store.Auth.GoogleInstance,
		},
	}

	if v := os.Getenv(envDatabaseURL); v != "" {
		s.connString = v
	}
	if v := os.Getenv(envConnString); v != "" {
		s.connString = v
	}
	if v := os.Getenv(envDataDir); v != "" {
		s.path = v
	}
	overrideFromEnv(&s.auth.AWSRegion, envAWSRegion)
	overrideFromEnv(&s.auth.AzureTenantID, envAzureTenantID)
	overrideFromEnv(&s.auth.AzureClientID, envAzureClientID)
	s.auth.AzureClientSecret = os.Getenv(envAzureClientSecret)

	if storeFlags.backend != "" {
		s.backend = storeFlags.backend
	}
	if storeFlags.conn != "" {
		s.connString = storeFlags.conn
	}
	if storeFlags.dataDir != "" {
		s.path = storeFlags.dataDir
	}
	if storeFlags.table != "" {
		s.table = storeFlags.table
	}
	if cmd.Flags().Changed("read-only") {
		s.readOnly = storeFlags.readOnly
	}
	overrideFromFlag(&s.auth.Method, storeFlags.auth)
	overrideFromFlag(&s.auth.AWSRegion, storeFlags.awsRegion)
	overrideFromFlag(&s.auth.AzureTenantID, storeFlags.azureTenantID)
	overrideFromFlag(&s.auth.AzureClientID, storeFlags.azureClientID)
	overrideFromFlag(&s.auth.GoogleInstance, storeFlags.googleInstance)

	if s.backend == "" {
		s.backend = config.BackendBadger
		if s.connString != "" {
			s.backend = config.BackendPostgres
		}
	}
	switch s.backend {
	case config.BackendBadger:
		if s.path == "" {
			s.path = defaultDataDir
		}
		if m := s.auth.Method; m != "" && m != pgstore.AuthPassword {
			return s, fmt.Errorf("--auth %s requires the postgres backend: %w", m, catalog.ErrInvalidConfig)
		}
	case config.BackendPostgres:
		if s.connString == "" {
			return s, fmt.Errorf("postgres backend requires --conn or $%s: %w", envConnString, catalog.ErrInvalidConfig)
		}
	default:
		return s, fmt.Errorf("unknown store backend %q: %w", s.backend, catalog.ErrInvalidConfig)
	}
	switch s.auth.Method {
	case "", pgstore.AuthPassword, pgstore.AuthAWSIAM, pgstore.AuthAzure, pgstore.AuthGoogle:
	default:
		return s, fmt.Errorf("unknown auth method %q: %w", s.auth.Method, catalog.ErrInvalidConfig)
	}
	return s, nil
}

func overrideFromEnv(dst *string, envVar string) {
	if v := os.Getenv(envVar); v != "" {
		*dst = v
	}
}

func overrideFromFlag(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// openStore opens the backend described by s and the catalog store on it.
// Closing the returned store closes the backend.
func openStore(ctx context.Context, s storeSettings, logger catalog.Logger, now func() time.Time) (*durable.Store, error) {
	var (
		backend durable.Backend
		err     error
	)
	switch s.backend {
	case config.BackendPostgres:
		backend, err = pgstore.Open(ctx, pgstore.Config{
			ConnString: s.connString,
			Table:      s.table,
			ReadOnly:   s.readOnly,
			Auth:       s.auth,
			Logger:     logger,
		})
	default:
		bc := badgerstore.DefaultConfig(s.path)
		bc.Logger = logger
		backend, err = badgerstore.Open(bc)
	}
	if err != nil {
		return nil, err
	}

	store, err := durable.Open(ctx, backend, durable.Options{
		ReadOnly: s.readOnly,
		Builtins: builtin.Default(),
		Now:      now,
		Logger:   logger,
	})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return store, nil
}

func logStoreVerbose(s storeSettings) {
	fmt.Fprintf(os.Stderr, "[VERBOSE] Catalog store resolved:\n")
	fmt.Fprintf(os.Stderr, "  Backend: %s\n", s.backend)
	switch s.backend {
	case config.BackendPostgres:
		table := s.table
		if table == "" {
			table = pgstore.DefaultTable
		}
		fmt.Fprintf(os.Stderr, "  Table: %s\n", table)
		if s.auth.Method != "" {
			fmt.Fprintf(os.Stderr, "  Auth Method: %s\n", s.auth.Method)
		}
	default:
		fmt.Fprintf(os.Stderr, "  Path: %s\n", s.path)
	}
	fmt.Fprintf(os.Stderr, "  Read-only: %t\n", s.readOnly)
}
