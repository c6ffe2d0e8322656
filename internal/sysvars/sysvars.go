// Package sysvars holds the system configuration parameters of the catalog.
//
// Every parameter has a compiled-in definition with a type and a default.
// Bootstrap first applies the configured default overrides, then the values
// persisted in the store, and on first boot the values pulled from a
// Frontend.
package sysvars

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/vsayer/materialize/pkg/catalog"
)

// Kind is the value type of a parameter.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindDuration
	KindString
)

// Names of parameters the catalog itself reads.
const (
	EnableVariableLengthRowEncoding = "enable_variable_length_row_encoding"
	ConfigHasSyncedOnce             = "config_has_synced_once"
	StorageUsageRetentionPeriod     = "storage_usage_retention_period"
	StoreConnectTimeout             = "store_connect_timeout"
	MaxTables                       = "max_tables"
	MaxMaterializedViews            = "max_materialized_views"
	MaxClusters                     = "max_clusters"
	EnableRBACChecks                = "enable_rbac_checks"
)

// Definition describes one parameter.
type Definition struct {
	Name        string
	Kind        Kind
	Default     string
	Description string
}

var definitions = []Definition{
	{EnableVariableLengthRowEncoding, KindBool, "false", "Use the variable-length row encoding for new rows."},
	{ConfigHasSyncedOnce, KindBool, "false", "Whether parameters were synchronized from the frontend at least once."},
	{StorageUsageRetentionPeriod, KindDuration, catalog.DefaultStorageUsageRetention.String(), "How long storage usage events are retained."},
	{StoreConnectTimeout, KindDuration, "5s", "Timeout for establishing a connection to the durable store."},
	{MaxTables, KindInt, "200", "Maximum number of tables in the region."},
	{MaxMaterializedViews, KindInt, "100", "Maximum number of materialized views in the region."},
	{MaxClusters, KindInt, "10", "Maximum number of clusters in the region."},
	{EnableRBACChecks, KindBool, "true", "Enforce role-based access control."},
}

// Vars is the set of system parameters and their current values. It is not
// safe for concurrent mutation.
type Vars struct {
	defs     map[string]Definition
	defaults map[string]string
	values   map[string]string
}

// New returns every parameter at its compiled-in default.
func New() *Vars {
	v := &Vars{
		defs:     make(map[string]Definition, len(definitions)),
		defaults: make(map[string]string, len(definitions)),
		values:   make(map[string]string),
	}
	for _, d := range definitions {
		v.defs[d.Name] = d
		v.defaults[d.Name] = d.Default
	}
	return v
}

func (v *Vars) definition(name string) (Definition, error) {
	d, ok := v.defs[strings.ToLower(name)]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", catalog.ErrUnknownParameter, name)
	}
	return d, nil
}

func normalizeValue(d Definition, value string) (string, error) {
	switch d.Kind {
	case KindBool:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "on", "yes", "1":
			return "true", nil
		case "false", "off", "no", "0":
			return "false", nil
		}
		return "", fmt.Errorf("parameter %s requires a boolean value, got %q", d.Name, value)
	case KindInt:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return "", fmt.Errorf("parameter %s requires an integer value, got %q", d.Name, value)
		}
		return strconv.FormatInt(n, 10), nil
	case KindDuration:
		dur, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return "", fmt.Errorf("parameter %s requires a duration, got %q", d.Name, value)
		}
		return dur.String(), nil
	default:
		return value, nil
	}
}

// SetDefault replaces the default of a parameter.
func (v *Vars) SetDefault(name, value string) error {
	d, err := v.definition(name)
	if err != nil {
		return err
	}
	norm, err := normalizeValue(d, value)
	if err != nil {
		return err
	}
	v.defaults[d.Name] = norm
	return nil
}

// Set assigns a value. It returns whether the effective value changed.
func (v *Vars) Set(name, value string) (bool, error) {
	d, err := v.definition(name)
	if err != nil {
		return false, err
	}
	norm, err := normalizeValue(d, value)
	if err != nil {
		return false, err
	}
	before := v.value(d.Name)
	v.values[d.Name] = norm
	return before != norm, nil
}

// Reset drops an explicitly assigned value.
func (v *Vars) Reset(name string) error {
	d, err := v.definition(name)
	if err != nil {
		return err
	}
	delete(v.values, d.Name)
	return nil
}

func (v *Vars) value(name string) string {
	if val, ok := v.values[name]; ok {
		return val
	}
	return v.defaults[name]
}

// Get returns the effective value of a parameter.
func (v *Vars) Get(name string) (string, error) {
	d, err := v.definition(name)
	if err != nil {
		return "", err
	}
	return v.value(d.Name), nil
}

// Names returns every parameter name in ascending order.
func (v *Vars) Names() []string {
	names := make([]string, 0, len(v.defs))
	for n := range v.defs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (v *Vars) boolValue(name string) bool { return v.value(name) == "true" }

func (v *Vars) durationValue(name string) time.Duration {
	d, _ := time.ParseDuration(v.value(name))
	return d
}

func (v *Vars) intValue(name string) int64 {
	n, _ := strconv.ParseInt(v.value(name), 10, 64)
	return n
}

func (v *Vars) VariableLengthRowEncoding() bool { return v.boolValue(EnableVariableLengthRowEncoding) }
func (v *Vars) HasSyncedOnce() bool             { return v.boolValue(ConfigHasSyncedOnce) }
func (v *Vars) StorageUsageRetention() time.Duration {
	return v.durationValue(StorageUsageRetentionPeriod)
}
func (v *Vars) ConnectTimeout() time.Duration { return v.durationValue(StoreConnectTimeout) }
func (v *Vars) TableLimit() int64              { return v.intValue(MaxTables) }

// Frontend supplies parameter values from an external source of truth.
// Pull may block until the source answers.
type Frontend interface {
	Pull(ctx context.Context) (map[string]string, error)
}
