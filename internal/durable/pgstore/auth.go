package pgstore

import (
	"context"
	"fmt"
	"net"
	"time"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/rds/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vsayer/materialize/pkg/catalog"
)

// Authentication methods for managed PostgreSQL.
const (
	AuthPassword = "password"
	AuthAWSIAM   = "aws"
	AuthAzure    = "azure"
	AuthGoogle   = "google"
)

// AzurePostgreSQLScope is the Entra ID scope of Azure Database for PostgreSQL.
const AzurePostgreSQLScope = "https://ossrdbms-aad.database.windows.net/.default"

// tokenExpiryWarning is how close to expiry a fresh token draws a warning.
const tokenExpiryWarning = 5 * time.Minute

// TokenProvider issues short-lived tokens used as the connection password.
type TokenProvider interface {
	GetToken(ctx context.Context) (token string, expiresOn time.Time, err error)
	// String describes the provider without secrets.
	String() string
}

// Auth selects how catalog connections authenticate. The zero value uses the
// connection string as is.
type Auth struct {
	Method string

	AWSRegion string

	// AzureTenantID, AzureClientID and AzureClientSecret select a service
	// principal. Without all of them the default credential chain is used.
	AzureTenantID     string
	AzureClientID     string
	AzureClientSecret string

	// GoogleInstance is the Cloud SQL instance connection name,
	// project:region:instance.
	GoogleInstance string

	// Tokens replaces the provider Method would build.
	Tokens TokenProvider
}

// applyAuth installs the authentication of a on poolConfig. The returned
// function releases what it acquired and must run after the pool closes.
func applyAuth(ctx context.Context, poolConfig *pgxpool.Config, a Auth, logger catalog.Logger) (func(), error) {
	noop := func() {}
	conn := poolConfig.ConnConfig

	tokens := a.Tokens
	switch a.Method {
	case "", AuthPassword:
	case AuthAWSIAM:
		if tokens == nil {
			p, err := NewAWSIAMTokenProvider(fmt.Sprintf("%s:%d", conn.Host, conn.Port), a.AWSRegion, conn.User)
			if err != nil {
				return noop, fmt.Errorf("%w: %v", catalog.ErrInvalidConfig, err)
			}
			tokens = p
		}
	case AuthAzure:
		if tokens == nil {
			p, err := newAzureTokenProvider(a)
			if err != nil {
				return noop, fmt.Errorf("%w: %v", catalog.ErrInvalidConfig, err)
			}
			tokens = p
		}
	case AuthGoogle:
		if a.GoogleInstance == "" {
			return noop, fmt.Errorf("%w: Google Cloud SQL auth requires an instance connection name (project:region:instance)", catalog.ErrInvalidConfig)
		}
		dialer, err := cloudsqlconn.NewDialer(ctx, cloudsqlconn.WithIAMAuthN())
		if err != nil {
			return noop, fmt.Errorf("%w: failed to create Cloud SQL dialer: %v", catalog.ErrConnectionFailed, err)
		}
		instance := a.GoogleInstance
		conn.DialFunc = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.Dial(ctx, instance)
		}
		return func() { dialer.Close() }, nil
	default:
		return noop, fmt.Errorf("%w: unknown auth method %q", catalog.ErrInvalidConfig, a.Method)
	}

	if tokens != nil {
		poolConfig.BeforeConnect = tokenPassword(tokens, logger)
	}
	return noop, nil
}

// tokenPassword fetches a fresh token for every new connection, so pooled
// connections opened after the first token expires still authenticate.
func tokenPassword(tokens TokenProvider, logger catalog.Logger) func(context.Context, *pgx.ConnConfig) error {
	return func(ctx context.Context, cc *pgx.ConnConfig) error {
		token, expiresOn, err := tokens.GetToken(ctx)
		if err != nil {
			return fmt.Errorf("%w: failed to acquire %s token: %w", catalog.ErrConnectionFailed, tokens, err)
		}
		if left := time.Until(expiresOn); left < tokenExpiryWarning {
			logger.Warn("%s token expires in %v", tokens, left.Round(time.Second))
		}
		cc.Password = token
		return nil
	}
}

// AWSIAMTokenProvider builds RDS IAM authentication tokens with the default
// AWS credential chain.
type AWSIAMTokenProvider struct {
	endpoint string // host:port
	region   string
	username string
}

func NewAWSIAMTokenProvider(endpoint, region, username string) (*AWSIAMTokenProvider, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("AWS IAM auth requires endpoint (host:port)")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS IAM auth requires region (use --aws-region or $AWS_REGION)")
	}
	if username == "" {
		return nil, fmt.Errorf("AWS IAM auth requires a database user in the connection string")
	}
	return &AWSIAMTokenProvider{endpoint: endpoint, region: region, username: username}, nil
}

// GetToken signs a token locally; RDS accepts it for 15 minutes.
func (p *AWSIAMTokenProvider) GetToken(ctx context.Context) (string, time.Time, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	token, err := auth.BuildAuthToken(ctx, p.endpoint, p.region, p.username, cfg.Credentials)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to build RDS auth token: %w", err)
	}
	return token, time.Now().Add(15 * time.Minute), nil
}

func (p *AWSIAMTokenProvider) String() string {
	return fmt.Sprintf("AWSIAM(endpoint=%s, region=%s, user=%s)", p.endpoint, p.region, p.username)
}

// AzureTokenProvider issues Entra ID tokens for Azure Database for PostgreSQL.
type AzureTokenProvider struct {
	credential azcore.TokenCredential
	desc       string
}

func newAzureTokenProvider(a Auth) (*AzureTokenProvider, error) {
	if a.AzureTenantID != "" && a.AzureClientID != "" && a.AzureClientSecret != "" {
		cred, err := azidentity.NewClientSecretCredential(a.AzureTenantID, a.AzureClientID, a.AzureClientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure credential: %w", err)
		}
		return &AzureTokenProvider{
			credential: cred,
			desc:       fmt.Sprintf("AzureServicePrincipal(tenant=%s, client=%s)", a.AzureTenantID, a.AzureClientID),
		}, nil
	}
	var opts *azidentity.DefaultAzureCredentialOptions
	if a.AzureTenantID != "" {
		opts = &azidentity.DefaultAzureCredentialOptions{TenantID: a.AzureTenantID}
	}
	cred, err := azidentity.NewDefaultAzureCredential(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure default credential: %w", err)
	}
	return &AzureTokenProvider{credential: cred, desc: "AzureDefaultCredential"}, nil
}

func (p *AzureTokenProvider) GetToken(ctx context.Context) (string, time.Time, error) {
	token, err := p.credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{AzurePostgreSQLScope}})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("azure token acquisition failed: %w", err)
	}
	return token.Token, token.ExpiresOn, nil
}

func (p *AzureTokenProvider) String() string { return p.desc }
