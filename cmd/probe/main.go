// Command probe drafts an ingest pipeline config by sampling a CSV file.
//
// It reads a bounded prefix of the file (default 20KB), detects the delimiter,
// infers a field kind per column and prints a config.Pipeline as JSON for
// cmd/ingest. The draft is meant to be reviewed: rename targets, add a lookup,
// adjust mappings.
//
// Output modes
//
//   - Default mode: prints JSON config to stdout.
//   - Report mode (-report): prints one line per column instead.
//
// # Storage overrides
//
// The draft carries placeholder connection settings. They can be replaced
// without editing JSON:
//
//   - SQL sinks: -dsn, then $DSN.
//   - Elasticsearch: -addr, then $ELASTICSEARCH_URL (comma separated).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"geoingest/internal/config"
	"geoingest/internal/probe"
)

func main() {
	os.Exit(runMain(os.Args[1:], os.Stdout, os.Stderr))
}

func runMain(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		flagPath     = fs.String("path", "", "CSV file to sample (or pass it as the first argument)")
		flagBytes    = fs.Int("bytes", 20000, "number of bytes to sample from the start of the file")
		flagName     = fs.String("name", "", "dataset name used for job and index; defaults to the file name")
		flagStorage  = fs.String("storage", "elasticsearch", "sink kind: elasticsearch|sqlite|postgres|mssql")
		flagEncoding = fs.String("encoding", "", "input encoding, e.g. windows-1252 (default UTF-8)")
		flagDelim    = fs.String("delimiter", "", "force the delimiter: , ; | or tab (default: detect)")
		flagDSN      = fs.String("dsn", "", "override storage.dsn for SQL sinks")
		flagAddr     = fs.String("addr", "", "override storage.addresses for elasticsearch (comma separated)")
		flagPretty   = fs.Bool("pretty", true, "pretty-print JSON output")
		flagReport   = fs.Bool("report", false, "print inferred columns instead of JSON")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path := strings.TrimSpace(*flagPath)
	if path == "" && fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if path == "" {
		fmt.Fprintln(stderr, "missing -path")
		fs.Usage()
		return 2
	}

	delim, err := parseDelimiter(*flagDelim)
	if err != nil {
		fmt.Fprintf(stderr, "delimiter: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := probe.Probe(ctx, probe.Options{
		Path:      path,
		MaxBytes:  *flagBytes,
		Delimiter: delim,
		Encoding:  *flagEncoding,
		Name:      *flagName,
		Storage:   *flagStorage,
	})
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	if *flagReport {
		writeReport(stdout, res)
		return 0
	}

	applyStorageOverride(&res.Pipeline.Storage, strings.TrimSpace(*flagDSN), strings.TrimSpace(*flagAddr))

	enc := json.NewEncoder(stdout)
	if *flagPretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(res.Pipeline); err != nil {
		fmt.Fprintf(stderr, "encode config: %v\n", err)
		return 1
	}
	return 0
}

func parseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case "tab", `\t`, "\t":
		return '\t', nil
	}
	r := []rune(s)
	if len(r) != 1 {
		return 0, fmt.Errorf("want a single character, got %q", s)
	}
	return r[0], nil
}

// applyStorageOverride replaces placeholder connection settings. Flags win
// over environment variables; nothing is changed when neither is set.
func applyStorageOverride(st *config.Storage, flagDSN, flagAddr string) {
	if st.Kind == "elasticsearch" {
		addr := flagAddr
		if addr == "" {
			addr = strings.TrimSpace(os.Getenv("ELASTICSEARCH_URL"))
		}
		if addr == "" {
			return
		}
		st.Addresses = st.Addresses[:0]
		for _, a := range strings.Split(addr, ",") {
			if a = strings.TrimSpace(a); a != "" {
				st.Addresses = append(st.Addresses, a)
			}
		}
		return
	}

	dsn := flagDSN
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DSN"))
	}
	if dsn != "" {
		st.DSN = dsn
	}
}

func writeReport(w io.Writer, res probe.Result) {
	fmt.Fprintf(w, "delimiter=%q sample_rows=%d\n", res.Delimiter, res.Rows)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HEADER\tTARGET\tKIND")
	for _, c := range res.Columns {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Header, c.Target, c.Kind)
	}
	tw.Flush()
}
