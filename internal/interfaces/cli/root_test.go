package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	root.SetContext(context.Background())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	cfg := fmt.Sprintf(`portal:
  base_url_ja: https://example.jp/hum
  base_url_en: https://example.com/hum
results:
  dir: %s
  config_dir: %s
fetch:
  cache_dir: %s
search:
  addresses:
    - http://127.0.0.1:9200
relation:
  endpoint: http://127.0.0.1:8081
  cache_file: %s
`, filepath.Join(root, "results"), filepath.Join(root, "config"), filepath.Join(root, "cache"),
		filepath.Join(root, "relation-cache.json"))

	path := filepath.Join(root, "humandbs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"config error", errors.New(errors.ErrCodeConfig, "bad table"), 1},
		{"validation error", errors.New(errors.ErrCodeValidation, "bad id"), 1},
		{"icd10 violations", errors.New(errors.ErrCodeICD10Violation, "2 violations"), 1},
		{"usage error", fmt.Errorf("unknown flag"), 1},
		{"record failures", errors.New(errors.ErrCodeInternal, "3 of 5 records failed"), 2},
		{"index io", errors.New(errors.ErrCodeIndexIO, "engine down"), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestHumVersionIDArgs(t *testing.T) {
	assert.NoError(t, humVersionIDArgs(nil, []string{"hum0001-v1", "hum0256-v12"}))

	err := humVersionIDArgs(nil, []string{"hum0001"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestVersionCommandRunsWithoutConfig(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "humandbs")
}

func TestParseRejectsMalformedArgument(t *testing.T) {
	_, err := execute(t, "parse", "not-an-id")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
}

func TestFetchRequiresArguments(t *testing.T) {
	_, err := execute(t, "fetch")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
}

func TestNormalizeRunsEmptyWorklist(t *testing.T) {
	path := writeTestConfig(t)
	_, err := execute(t, "--config", path, "normalize")
	require.NoError(t, err)
}

func TestStructureRejectsMalformedHumID(t *testing.T) {
	path := writeTestConfig(t)
	_, err := execute(t, "--config", path, "structure", "hum1-v1")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
}

func TestMissingConfigFileFails(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "normalize")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
}
