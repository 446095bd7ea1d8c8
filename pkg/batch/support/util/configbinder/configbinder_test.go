package configbinder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleProps struct {
	Type     string        `yaml:"type"`
	Port     int           `yaml:"port"`
	Header   bool          `yaml:"header"`
	Timeout  time.Duration `yaml:"timeout"`
	Unmapped string
}

func TestBindProperties_WeaklyTyped(t *testing.T) {
	var p sampleProps
	err := BindProperties(map[string]interface{}{
		"type":    "sqlite",
		"port":    "5432",
		"header":  "true",
		"timeout": "3s",
	}, &p)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", p.Type)
	assert.Equal(t, 5432, p.Port)
	assert.True(t, p.Header)
	assert.Equal(t, 3*time.Second, p.Timeout)
}

func TestBindProperties_EmptyLeavesTargetUntouched(t *testing.T) {
	p := sampleProps{Type: "keep"}
	require.NoError(t, BindProperties(nil, &p))
	assert.Equal(t, "keep", p.Type)
}

func TestBindProperties_ReportsTargetName(t *testing.T) {
	var p sampleProps
	err := BindProperties(map[string]interface{}{"port": "not-a-number"}, &p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sampleProps")
}
