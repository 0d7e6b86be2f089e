package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.Engine.Command = []string{"matlab", "-batch"}
	assert.NoError(t, cfg.Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
location: Memphis TN
hazard:
  base_dir: /data/usgs
  models: ["*"]
spline:
  degree: 1
engine:
  transport: nats
  timeout: 90s
  inches: true
`))
	require.NoError(t, err)
	assert.Equal(t, "Memphis TN", cfg.Location)
	assert.Equal(t, "/data/usgs", cfg.Hazard.BaseDir)
	assert.Equal(t, []string{"*"}, cfg.Hazard.Models)
	assert.Equal(t, 2, cfg.Hazard.AuxColumns)
	assert.Equal(t, 1, cfg.Spline.Degree)
	assert.Equal(t, 500, cfg.Spline.Granularity)
	assert.Equal(t, 90*time.Second, cfg.Engine.Timeout)
	assert.True(t, cfg.Engine.Inches)
	assert.Equal(t, 386.0, cfg.Engine.Gravity)
}

func TestValidateReportsEveryFailure(t *testing.T) {
	_, err := Parse([]byte(`
location: ""
spline:
  degree: 6
query:
  lo: 3
  hi: 1
figures:
  sink: s3
engine:
  transport: exec
`))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "Location is required")
	assert.Contains(t, msg, "Spline.Degree must be one of [1 2 3 4 5], got 6")
	assert.Contains(t, msg, "Query.Hi must be greater than Lo")
	assert.Contains(t, msg, "Figures.Bucket is required")
	assert.Contains(t, msg, "Engine.Command is required")
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("location: [unterminated"))
	assert.ErrorContains(t, err, "config: parse")
}

func TestLoadAppliesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  transport: nats\n"), 0o644))
	t.Setenv("NEO4J_URL", "neo4j://graph:7687")
	t.Setenv("QDRANT_URL", "qdrant:6334")
	t.Setenv("RESILIENCE_LOCATION", "Seattle WA")
	t.Setenv("METRICS_PORT", "9102")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "neo4j://graph:7687", cfg.Graph.Neo4jURL)
	assert.Equal(t, "qdrant:6334", cfg.Qdrant.Addr)
	assert.Equal(t, "Seattle WA", cfg.Location)
	assert.Equal(t, 9102, cfg.Metrics.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := Load("../../configs/pipeline.yaml")
	require.NoError(t, err)
	assert.Equal(t, "exec", cfg.Engine.Transport)
	assert.NotEmpty(t, cfg.Engine.Command)
}

func TestSplineDegreesOneToFive(t *testing.T) {
	for d := 1; d <= 5; d++ {
		cfg := Default()
		cfg.Engine.Command = []string{"matlab", "-batch"}
		cfg.Spline.Degree = d
		assert.NoError(t, cfg.Validate(), "degree %d", d)
	}
}
