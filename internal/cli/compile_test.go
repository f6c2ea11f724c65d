package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxfn/internal/ir"
)

func TestCompile_Text(t *testing.T) {
	out, _, err := execute(t, "compile", stocksApp)
	require.NoError(t, err)

	assert.Contains(t, out, "Compiled stocks: 1 stream(s), 4 query(s)")
	assert.Regexp(t, `app hash: [0-9a-f]{64}`, out)
	assert.Contains(t, out, "aboutWSO2 from inputStream: 3 column(s)")
}

func TestCompile_OutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.json")

	_, _, err := execute(t, "compile", stocksApp, "-o", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var result struct {
		App       ir.App `json:"app"`
		AppHash   string `json:"app_hash"`
		IRVersion string `json:"ir_version"`
	}
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "stocks", result.App.Name)
	assert.Equal(t, ir.IRVersion, result.IRVersion)
	assert.NotEmpty(t, result.AppHash)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		dir  func(t *testing.T) string
		code string
	}{
		{"missing", func(t *testing.T) string { return "/nonexistent/app" }, ErrCodeNotFound},
		{"empty", func(t *testing.T) string { return t.TempDir() }, ErrCodeNoFiles},
		{"syntax", func(t *testing.T) string {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "app.cue"), []byte("name: \"x\"\nstream: {\n"), 0o644))
			return dir
		}, ErrCodeLoadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, "--format", "json", "compile", tt.dir(t))
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}
