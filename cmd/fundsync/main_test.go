package main

import (
	"archive/zip"
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/canectors/fundsync/internal/config"
)

// testFixturePath returns the path to test fixtures
func testFixturePath(filename string) string {
	return filepath.Join("..", "..", "internal", "config", "testdata", filename)
}

// runCLI runs the CLI in-process and returns stdout, stderr, and exit code
func runCLI(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	exitCode = execute(args, &outBuf, &errBuf)
	return outBuf.String(), errBuf.String(), exitCode
}

// isolateSettings clears every setting and disables the default env file.
func isolateSettings(t *testing.T) []string {
	t.Helper()
	for _, key := range []string{
		config.KeyPipefyToken, config.KeyPATToken, config.KeyBaseURL, config.KeyAPIPath,
		config.KeyMaxAttempts, config.KeyTimeout, config.KeyRetryDelay, config.KeyRetryHint,
		config.KeyVerifySSL, config.KeyPipeID, config.KeyArchiveURL, config.KeyArchiveTimeout,
		config.KeyFunctionName, config.KeyFunctionVersion, config.KeyListenAddr,
	} {
		t.Setenv(key, "")
	}
	return []string{"--env-file", filepath.Join(t.TempDir(), "absent.env")}
}

const registryCSV = "Tipo_Fundo;CNPJ_Fundo;Denominacao_Social;Patrimonio_Liquido\n" +
	"FII;11.111.111/0001-11;ALPHA FII;1.500.000,00\n" +
	"FIA;22.222.222/0001-22;BETA FIA;900,00\n" +
	"FII;33.333.333/0001-33;GAMMA FII;2.000,00\n"

func archiveServer(t *testing.T) *httptest.Server {
	t.Helper()
	var zipped bytes.Buffer
	zw := zip.NewWriter(&zipped)
	entry, err := zw.Create("registro_fundo.csv")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := entry.Write([]byte(registryCSV)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(zipped.Bytes())
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCLI_Help(t *testing.T) {
	stdout, _, exitCode := runCLI(t, "--help")

	if exitCode != ExitSuccess {
		t.Errorf("expected exit code 0, got %d", exitCode)
	}
	for _, want := range []string{"fundsync", "validate", "run", "serve", "version"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected help to contain %q", want)
		}
	}
}

func TestCLI_Version(t *testing.T) {
	stdout, _, exitCode := runCLI(t, "version")

	if exitCode != ExitSuccess {
		t.Errorf("expected exit code 0, got %d", exitCode)
	}
	if !strings.Contains(stdout, "Version: dev") || !strings.Contains(stdout, "Build Date:") {
		t.Errorf("unexpected version output: %s", stdout)
	}
}

func TestCLI_Validate(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantCode   int
		wantStdout string
		wantStderr string
	}{
		{"valid json", []string{"validate", testFixturePath("valid-request.json")}, ExitSuccess, "Request is valid (format: json)", ""},
		{"valid yaml", []string{"validate", testFixturePath("valid-request.yaml")}, ExitSuccess, "Request is valid (format: yaml)", ""},
		{"verbose summary", []string{"validate", "-v", testFixturePath("valid-request.json")}, ExitSuccess, "Filter: Tipo_Fundo equals", ""},
		{"invalid json", []string{"validate", testFixturePath("invalid-json.json")}, ExitParseError, "", "Parse errors"},
		{"missing file", []string{"validate", testFixturePath("does-not-exist.json")}, ExitParseError, "", "failed to read file"},
		{"missing file name", []string{"validate", testFixturePath("missing-file-name.json")}, ExitValidationError, "", "Validation errors"},
		{"bad pipe id", []string{"validate", testFixturePath("invalid-pipe-id.yaml")}, ExitValidationError, "", "Validation errors"},
		{"no argument", []string{"validate"}, ExitRuntimeError, "", "accepts 1 arg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr, exitCode := runCLI(t, tt.args...)

			if exitCode != tt.wantCode {
				t.Errorf("exit code = %d, want %d (stderr: %s)", exitCode, tt.wantCode, stderr)
			}
			if tt.wantStdout != "" && !strings.Contains(stdout, tt.wantStdout) {
				t.Errorf("stdout missing %q:\n%s", tt.wantStdout, stdout)
			}
			if tt.wantStderr != "" && !strings.Contains(stderr, tt.wantStderr) {
				t.Errorf("stderr missing %q:\n%s", tt.wantStderr, stderr)
			}
		})
	}
}

func TestCLI_ValidateRejectsBadOperator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "request.json")
	content := `{"file_name":"registro_fundo.csv","filter":{"Tipo_Fundo":"FII","operator":"like"}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	_, stderr, exitCode := runCLI(t, "validate", path)
	if exitCode != ExitValidationError {
		t.Errorf("exit code = %d, want %d", exitCode, ExitValidationError)
	}
	if !strings.Contains(stderr, "/filter") {
		t.Errorf("stderr should point at the filter: %s", stderr)
	}
}

func TestCLI_InvalidLogFormat(t *testing.T) {
	_, stderr, exitCode := runCLI(t, "--log-format", "xml", "version")
	if exitCode != ExitRuntimeError || !strings.Contains(stderr, "unknown log format") {
		t.Errorf("got %d: %s", exitCode, stderr)
	}
}

func TestCLI_RunDryRun(t *testing.T) {
	envArgs := isolateSettings(t)
	t.Setenv(config.KeyArchiveURL, archiveServer(t).URL)

	args := append(envArgs, "run", "--dry-run", testFixturePath("valid-request.json"))
	stdout, stderr, exitCode := runCLI(t, args...)

	if exitCode != ExitSuccess {
		t.Fatalf("exit code = %d (stderr: %s)", exitCode, stderr)
	}
	for _, want := range []string{"dry-run mode", "Records loaded: 3", "Records matched: 2", "ALPHA FII", "GAMMA FII", "No card was created"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
	if strings.Contains(stdout, "BETA FIA") {
		t.Error("non-matching record printed")
	}
}

func TestCLI_RunCreatesCards(t *testing.T) {
	envArgs := isolateSettings(t)

	var calls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer pat-token" {
			t.Errorf("unexpected Authorization header %q", r.Header.Get("Authorization"))
		}
		n := calls.Add(1)
		_, _ = fmt.Fprintf(w, `{"data":{"createCard":{"card":{"id":"%d","title":"t"}}}}`, 100+n)
	}))
	defer api.Close()

	t.Setenv(config.KeyArchiveURL, archiveServer(t).URL)
	t.Setenv(config.KeyBaseURL, api.URL)
	t.Setenv(config.KeyPATToken, "pat-token")
	t.Setenv(config.KeyMaxAttempts, "1")
	t.Setenv(config.KeyTimeout, "5")

	args := append(envArgs, "run", "-v", "--log-format", "human", testFixturePath("valid-request.yaml"))
	stdout, stderr, exitCode := runCLI(t, args...)

	if exitCode != ExitSuccess {
		t.Fatalf("exit code = %d (stderr: %s)", exitCode, stderr)
	}
	// Only ALPHA FII lies between 1M and 5M.
	if calls.Load() != 1 {
		t.Errorf("createCard calls = %d, want 1", calls.Load())
	}
	if !strings.Contains(stdout, "Cards created: 1") || !strings.Contains(stdout, "101 (") {
		t.Errorf("unexpected stdout:\n%s", stdout)
	}
}

func TestCLI_RunFailures(t *testing.T) {
	t.Run("no credential", func(t *testing.T) {
		envArgs := isolateSettings(t)
		t.Setenv(config.KeyArchiveURL, archiveServer(t).URL)

		args := append(envArgs, "run", testFixturePath("valid-request.json"))
		_, stderr, exitCode := runCLI(t, args...)

		if exitCode != ExitRuntimeError {
			t.Errorf("exit code = %d, want %d", exitCode, ExitRuntimeError)
		}
		if !strings.Contains(stderr, "Stage: submit") || !strings.Contains(stderr, "Category: authentication") {
			t.Errorf("unexpected stderr:\n%s", stderr)
		}
	})

	t.Run("entry not in archive", func(t *testing.T) {
		envArgs := isolateSettings(t)
		t.Setenv(config.KeyArchiveURL, archiveServer(t).URL)

		path := filepath.Join(t.TempDir(), "request.yaml")
		if err := os.WriteFile(path, []byte("file_name: other.csv\n"), 0o600); err != nil {
			t.Fatal(err)
		}

		args := append(envArgs, "run", "--dry-run", path)
		_, stderr, exitCode := runCLI(t, args...)

		if exitCode != ExitRuntimeError || !strings.Contains(stderr, "Stage: load") {
			t.Errorf("got %d:\n%s", exitCode, stderr)
		}
	})

	t.Run("missing pipe", func(t *testing.T) {
		envArgs := isolateSettings(t)

		path := filepath.Join(t.TempDir(), "request.json")
		if err := os.WriteFile(path, []byte(`{"file_name":"registro_fundo.csv"}`), 0o600); err != nil {
			t.Fatal(err)
		}

		args := append(envArgs, "run", path)
		_, stderr, exitCode := runCLI(t, args...)

		if exitCode != ExitValidationError || !strings.Contains(stderr, "pipe_id") {
			t.Errorf("got %d:\n%s", exitCode, stderr)
		}
	})

	t.Run("invalid settings", func(t *testing.T) {
		envArgs := isolateSettings(t)
		t.Setenv(config.KeyPipefyToken, "{not json")

		args := append(envArgs, "run", testFixturePath("valid-request.json"))
		_, stderr, exitCode := runCLI(t, args...)

		if exitCode != ExitRuntimeError || !strings.Contains(stderr, "Failed to load settings") {
			t.Errorf("got %d:\n%s", exitCode, stderr)
		}
	})
}
