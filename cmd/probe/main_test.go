package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"geoingest/internal/config"
)

// TestHelperProcess is a subprocess entrypoint so tests can observe the exit
// code of main() without terminating the parent test process.
//
// Any arguments after a literal "--" are treated as CLI args for the command.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	i := 0
	for ; i < len(args); i++ {
		if args[i] == "--" {
			break
		}
	}
	if i < len(args) {
		os.Args = append([]string{args[0]}, args[i+1:]...)
	} else {
		os.Args = []string{args[0]}
	}
	main()
	os.Exit(0)
}

// runCmd executes main() in a subprocess and returns stdout, stderr and the
// exit code.
func runCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	cmdArgs := append([]string{"-test.run=TestHelperProcess", "--"}, args...)
	cmd := exec.Command(os.Args[0], cmdArgs...)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	if err == nil {
		return outBuf.String(), errBuf.String(), 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return outBuf.String(), errBuf.String(), ee.ExitCode()
	}
	t.Fatalf("unexpected run error: %T: %v", err, err)
	return "", "", 1
}

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.csv")
	csv := strings.Join([]string{
		"id;label;geo",
		"1;a;48.86, 2.37",
		"2;b;48.84, 2.39",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(csv), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestMain_MissingPath_ExitsWith2(t *testing.T) {
	t.Parallel()

	stdout, stderr, code := runCmd(t)
	if code != 2 {
		t.Fatalf("exit code=%d\nstderr:\n%s\nstdout:\n%s", code, stderr, stdout)
	}
	if !strings.Contains(stderr, "missing -path") {
		t.Fatalf("stderr=%q", stderr)
	}
}

func TestRunMain_DefaultMode_EmitsPipelineJSON(t *testing.T) {
	t.Parallel()

	path := writeSample(t)
	var stdout, stderr bytes.Buffer
	code := runMain([]string{"-addr", "http://es1:9200, http://es2:9200", path}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code=%d stderr=%q", code, stderr.String())
	}

	var p config.Pipeline
	if err := json.Unmarshal(stdout.Bytes(), &p); err != nil {
		t.Fatalf("stdout is not a pipeline: %v\n%s", err, stdout.String())
	}
	if p.Parser.Options.Rune("comma", ',') != ';' || p.Index.Name != "sample" {
		t.Fatalf("pipeline=%+v", p)
	}
	if len(p.Storage.Addresses) != 2 || p.Storage.Addresses[1] != "http://es2:9200" {
		t.Fatalf("addresses=%v", p.Storage.Addresses)
	}
	if issues := config.ValidatePipeline(p); config.HasErrors(issues) {
		t.Fatalf("emitted config does not validate: %v", issues)
	}
}

func TestRunMain_ReportMode(t *testing.T) {
	t.Parallel()

	path := writeSample(t)
	var stdout, stderr bytes.Buffer
	if code := runMain([]string{"-path", path, "-report"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code=%d stderr=%q", code, stderr.String())
	}
	out := stdout.String()
	if strings.Contains(out, "{") {
		t.Fatalf("report mode printed JSON:\n%s", out)
	}
	for _, want := range []string{`delimiter=';'`, "sample_rows=2", "geo_point", "int"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report lacks %q:\n%s", want, out)
		}
	}
}

func TestRunMain_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		code int
	}{
		{name: "bad_delimiter", args: []string{"-path", "x.csv", "-delimiter", ";;"}, code: 2},
		{name: "unknown_flag", args: []string{"-nope"}, code: 2},
		{name: "missing_file", args: []string{"-path", filepath.Join(t.TempDir(), "none.csv")}, code: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var stdout, stderr bytes.Buffer
			if code := runMain(tt.args, &stdout, &stderr); code != tt.code {
				t.Fatalf("exit code=%d want %d stderr=%q", code, tt.code, stderr.String())
			}
		})
	}
}

func TestApplyStorageOverride(t *testing.T) {
	t.Setenv("DSN", "file:env.db")
	t.Setenv("ELASTICSEARCH_URL", "")

	st := config.Storage{Kind: "sqlite", DSN: "file:x.db"}
	applyStorageOverride(&st, "", "")
	if st.DSN != "file:env.db" {
		t.Fatalf("env DSN not applied: %+v", st)
	}
	applyStorageOverride(&st, "file:flag.db", "")
	if st.DSN != "file:flag.db" {
		t.Fatalf("flag DSN must win: %+v", st)
	}

	es := config.Storage{Kind: "elasticsearch", Addresses: []string{"http://localhost:9200"}}
	applyStorageOverride(&es, "file:ignored.db", "")
	if len(es.Addresses) != 1 || es.DSN != "" {
		t.Fatalf("elasticsearch storage changed without -addr: %+v", es)
	}
}
