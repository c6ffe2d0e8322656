package sysvars

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsayer/materialize/pkg/catalog"
)

func TestDefaults(t *testing.T) {
	v := New()
	assert.False(t, v.VariableLengthRowEncoding())
	assert.False(t, v.HasSyncedOnce())
	assert.Equal(t, catalog.DefaultStorageUsageRetention, v.StorageUsageRetention())
	assert.Equal(t, 5*time.Second, v.ConnectTimeout())
	assert.Equal(t, int64(200), v.TableLimit())
}

func TestSetNormalizesAndReportsChange(t *testing.T) {
	v := New()

	changed, err := v.Set("ENABLE_VARIABLE_LENGTH_ROW_ENCODING", "on")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, v.VariableLengthRowEncoding())

	changed, err = v.Set(EnableVariableLengthRowEncoding, "true")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = v.Set(StorageUsageRetentionPeriod, "90m")
	require.NoError(t, err)
	got, err := v.Get(StorageUsageRetentionPeriod)
	require.NoError(t, err)
	assert.Equal(t, "1h30m0s", got)

	require.NoError(t, v.Reset(StorageUsageRetentionPeriod))
	assert.Equal(t, catalog.DefaultStorageUsageRetention, v.StorageUsageRetention())
}

func TestUnknownParameter(t *testing.T) {
	v := New()
	_, err := v.Set("no_such_parameter", "1")
	assert.ErrorIs(t, err, catalog.ErrUnknownParameter)
	assert.ErrorIs(t, v.SetDefault("no_such_parameter", "1"), catalog.ErrUnknownParameter)
}

func TestInvalidValues(t *testing.T) {
	v := New()
	_, err := v.Set(MaxTables, "lots")
	assert.Error(t, err)
	_, err = v.Set(ConfigHasSyncedOnce, "maybe")
	assert.Error(t, err)
	assert.Error(t, v.SetDefault(StoreConnectTimeout, "soon"))
}

func TestSetDefaultIsOverriddenBySet(t *testing.T) {
	v := New()
	require.NoError(t, v.SetDefault(MaxTables, "10"))
	assert.Equal(t, int64(10), v.TableLimit())

	_, err := v.Set(MaxTables, "20")
	require.NoError(t, err)
	assert.Equal(t, int64(20), v.TableLimit())
}

func TestNamesSorted(t *testing.T) {
	names := New().Names()
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, ConfigHasSyncedOnce)
}
