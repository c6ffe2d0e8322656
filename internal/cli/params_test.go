package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsayer/materialize/pkg/catalog"
)

func TestParseParameterFlags(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "single pair",
			input: []string{"max_tables=100"},
			want:  map[string]string{"max_tables": "100"},
		},
		{
			name:  "names are lower-cased",
			input: []string{"MAX_TABLES=100", " Enable_Variable_Length_Row_Encoding =on"},
			want:  map[string]string{"max_tables": "100", "enable_variable_length_row_encoding": "on"},
		},
		{
			name:  "value keeps equals signs",
			input: []string{"url=a=b"},
			want:  map[string]string{"url": "a=b"},
		},
		{
			name:  "empty value",
			input: []string{"max_tables="},
			want:  map[string]string{"max_tables": ""},
		},
		{
			name:  "nil input",
			input: nil,
			want:  map[string]string{},
		},
		{
			name:    "missing equals",
			input:   []string{"max_tables"},
			wantErr: true,
		},
		{
			name:    "empty name",
			input:   []string{"=100"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParameterFlags(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, catalog.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeParameters(t *testing.T) {
	base := map[string]string{"a": "1", "b": "2"}
	got := mergeParameters(base, map[string]string{"b": "3", "c": "4"})

	assert.Equal(t, map[string]string{"a": "1", "b": "3", "c": "4"}, got)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, base)
	assert.Equal(t, base, mergeParameters(base, nil))
}
