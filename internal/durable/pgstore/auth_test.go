package pgstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsayer/materialize/internal/logging"
	"github.com/vsayer/materialize/pkg/catalog"
)

type fakeTokens struct {
	token     string
	expiresOn time.Time
	err       error
	calls     int
}

func (f *fakeTokens) GetToken(context.Context) (string, time.Time, error) {
	f.calls++
	return f.token, f.expiresOn, f.err
}

func (f *fakeTokens) String() string { return "FakeTokens" }

type warnings struct {
	logging.NullLogger
	lines []string
}

func (w *warnings) Warn(format string, args ...interface{}) {
	w.lines = append(w.lines, fmt.Sprintf(format, args...))
}

func parsePool(t *testing.T) *pgxpool.Config {
	t.Helper()
	cfg, err := pgxpool.ParseConfig("postgres://catalog@db.example.com:5432/catalog")
	require.NoError(t, err)
	return cfg
}

func TestApplyAuth_PasswordLeavesConfigAlone(t *testing.T) {
	for _, method := range []string{"", AuthPassword} {
		cfg := parsePool(t)
		release, err := applyAuth(context.Background(), cfg, Auth{Method: method}, logging.NewNullLogger())
		require.NoError(t, err)
		release()
		assert.Nil(t, cfg.BeforeConnect)
	}
}

func TestApplyAuth_TokenBecomesPassword(t *testing.T) {
	cfg := parsePool(t)
	tokens := &fakeTokens{token: "iam-token", expiresOn: time.Now().Add(time.Hour)}
	logger := &warnings{}

	_, err := applyAuth(context.Background(), cfg, Auth{Method: AuthAWSIAM, Tokens: tokens}, logger)
	require.NoError(t, err)
	require.NotNil(t, cfg.BeforeConnect)

	cc := &pgx.ConnConfig{}
	require.NoError(t, cfg.BeforeConnect(context.Background(), cc))
	assert.Equal(t, "iam-token", cc.Password)

	// Every new connection asks for a fresh token.
	require.NoError(t, cfg.BeforeConnect(context.Background(), cc))
	assert.Equal(t, 2, tokens.calls)
	assert.Empty(t, logger.lines)
}

func TestApplyAuth_WarnsOnExpiringToken(t *testing.T) {
	cfg := parsePool(t)
	logger := &warnings{}
	tokens := &fakeTokens{token: "t", expiresOn: time.Now().Add(time.Minute)}

	_, err := applyAuth(context.Background(), cfg, Auth{Method: AuthAzure, Tokens: tokens}, logger)
	require.NoError(t, err)
	require.NoError(t, cfg.BeforeConnect(context.Background(), &pgx.ConnConfig{}))
	require.Len(t, logger.lines, 1)
	assert.Contains(t, logger.lines[0], "FakeTokens token expires in")
}

func TestApplyAuth_TokenFailureIsConnectionFailure(t *testing.T) {
	cfg := parsePool(t)
	boom := errors.New("credential chain exhausted")

	_, err := applyAuth(context.Background(), cfg, Auth{Method: AuthAzure, Tokens: &fakeTokens{err: boom}}, logging.NewNullLogger())
	require.NoError(t, err)

	err = cfg.BeforeConnect(context.Background(), &pgx.ConnConfig{})
	assert.ErrorIs(t, err, catalog.ErrConnectionFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, catalog.ExitConnectionError, catalog.ExitCodeForError(err))
}

func TestApplyAuth_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		auth Auth
	}{
		{"unknown method", Auth{Method: "kerberos"}},
		{"aws without region", Auth{Method: AuthAWSIAM}},
		{"google without instance", Auth{Method: AuthGoogle}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := applyAuth(context.Background(), parsePool(t), tt.auth, logging.NewNullLogger())
			require.Error(t, err)
			assert.ErrorIs(t, err, catalog.ErrInvalidConfig)
		})
	}
}

func TestApplyAuth_AWSUsesConnectionEndpoint(t *testing.T) {
	cfg := parsePool(t)
	_, err := applyAuth(context.Background(), cfg, Auth{Method: AuthAWSIAM, AWSRegion: "us-west-2"}, logging.NewNullLogger())
	require.NoError(t, err)
	require.NotNil(t, cfg.BeforeConnect)
}

func TestNewAWSIAMTokenProvider(t *testing.T) {
	p, err := NewAWSIAMTokenProvider("db.example.com:5432", "us-west-2", "catalog")
	require.NoError(t, err)
	assert.Equal(t, "AWSIAM(endpoint=db.example.com:5432, region=us-west-2, user=catalog)", p.String())

	_, err = NewAWSIAMTokenProvider("db.example.com:5432", "us-west-2", "")
	assert.Error(t, err)
	_, err = NewAWSIAMTokenProvider("", "us-west-2", "catalog")
	assert.Error(t, err)
}

func TestAzureServicePrincipalDescription(t *testing.T) {
	p, err := newAzureTokenProvider(Auth{
		Method:            AuthAzure,
		AzureTenantID:     "00000000-0000-0000-0000-000000000001",
		AzureClientID:     "00000000-0000-0000-0000-000000000002",
		AzureClientSecret: "s3cret",
	})
	require.NoError(t, err)
	assert.Equal(t, "AzureServicePrincipal(tenant=00000000-0000-0000-0000-000000000001, client=00000000-0000-0000-0000-000000000002)", p.String())
	assert.NotContains(t, p.String(), "s3cret")
}
