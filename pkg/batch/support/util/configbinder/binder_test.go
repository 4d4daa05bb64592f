package configbinder_test

import (
	"testing"
	"time"

	"github.com/tigerroll/ddbimport/pkg/batch/support/util/configbinder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleTarget struct {
	Type     string        `yaml:"type"`
	Workers  int           `yaml:"workers"`
	Enabled  bool          `yaml:"enabled"`
	Timeout  time.Duration `yaml:"timeout"`
	Columns  []string      `yaml:"columns"`
	Untagged string
}

func TestBindProperties_WeakTyping(t *testing.T) {
	var target sampleTarget
	err := configbinder.BindProperties(map[string]interface{}{
		"type":    "sqlite",
		"workers": "12",
		"enabled": "true",
		"timeout": "1500ms",
		"columns": "a,b,c",
	}, &target)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", target.Type)
	assert.Equal(t, 12, target.Workers)
	assert.True(t, target.Enabled)
	assert.Equal(t, 1500*time.Millisecond, target.Timeout)
	assert.Equal(t, []string{"a", "b", "c"}, target.Columns)
}

func TestBindProperties_NilIsNoop(t *testing.T) {
	target := sampleTarget{Type: "keep"}
	require.NoError(t, configbinder.BindProperties(nil, &target))
	assert.Equal(t, "keep", target.Type)
}

func TestBindProperties_Error(t *testing.T) {
	var target sampleTarget
	err := configbinder.BindProperties(map[string]interface{}{"workers": "many"}, &target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sampleTarget")
}
