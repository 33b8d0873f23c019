// Command txtfix repairs a corrupted delimited text file into a clean CSV
// and a reject file without starting the web server.
//
//	txtfix -in broken.txt -cols 30 -delim '|'
//
// Flags default to the REPAIR_* environment settings. SIGINT stops the run
// and leaves outputs that are a valid prefix of a full run.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/klauspost/pgzip"

	"github.com/JonMunkholm/txtfix/internal/config"
	"github.com/JonMunkholm/txtfix/internal/core"
	"github.com/JonMunkholm/txtfix/internal/logging"
	"github.com/JonMunkholm/txtfix/internal/repair"
	"github.com/JonMunkholm/txtfix/internal/textenc"
)

const stdio = "-"

type options struct {
	in, out, rejects string
	params           repair.Params
	inEnc, outEnc    string
	gzip             bool
	maxLineBytes     int
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// Flags and the process environment win over .env
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "txtfix: %v\n", err)
		return 1
	}
	log := logging.New(stderr, cfg.Logging.Level, cfg.Logging.Format)

	opts, err := parseFlags(args, cfg.Repair, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "txtfix: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary := stdout
	if opts.out == stdio || opts.rejects == stdio {
		summary = stderr
	}

	stats, err := repairFile(ctx, opts, log)
	printSummary(summary, opts, stats)
	if err != nil {
		msg := core.MapError(err)
		log.Error("repair failed", "error", err, "code", msg.Code)
		fmt.Fprintf(stderr, "txtfix: %s %s (%s)\n", msg.Message, msg.Action, msg.Code)
		return 1
	}
	return 0
}

func parseFlags(args []string, defaults config.RepairConfig, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("txtfix", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.in, "in", "", "input file, - for stdin (required)")
	fs.StringVar(&o.out, "out", "", "clean CSV output (default <input>.csv, or <input>.fixed.csv for a .csv input), - for stdout")
	fs.StringVar(&o.rejects, "rejects", "", "reject output (default <input>.reject.txt), - for stdout")
	fs.IntVar(&o.params.Columns, "cols", defaults.Columns, "expected column count")
	fs.StringVar(&o.params.Delimiter, "delim", defaults.Delimiter, "input field delimiter")
	fs.IntVar(&o.params.ChunkSize, "chunk", defaults.ChunkSize, "records buffered per write")
	fs.IntVar(&o.params.OverflowMultiplier, "overflow", defaults.OverflowMultiplier, "reject a pending record beyond cols*overflow fields")
	fs.StringVar(&o.inEnc, "in-enc", defaults.InputEncoding, "input charset")
	fs.StringVar(&o.outEnc, "out-enc", defaults.OutputEncoding, "output charset")
	fs.BoolVar(&o.gzip, "gzip", false, "gzip both outputs")
	fs.IntVar(&o.maxLineBytes, "max-line", defaults.MaxLineBytes, "longest physical line in bytes")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.in == "" {
		fs.Usage()
		return o, errors.New("-in is required")
	}
	if o.params.Delimiter == `\t` {
		o.params.Delimiter = "\t"
	}
	if err := o.params.Validate(); err != nil {
		return o, err
	}
	for _, charset := range []string{o.inEnc, o.outEnc} {
		if err := textenc.Validate(charset); err != nil {
			return o, err
		}
	}

	clean, rejects := defaultOutputs(o.in, o.gzip)
	if o.out == "" {
		o.out = clean
	}
	if o.rejects == "" {
		o.rejects = rejects
	}
	switch {
	case o.out == stdio && o.rejects == stdio:
		return o, errors.New("-out and -rejects cannot both be stdout")
	case sameFile(o.in, o.out):
		return o, fmt.Errorf("-out %s would overwrite the input", o.out)
	case sameFile(o.in, o.rejects):
		return o, fmt.Errorf("-rejects %s would overwrite the input", o.rejects)
	case sameFile(o.out, o.rejects):
		return o, fmt.Errorf("-out and -rejects both name %s", o.out)
	}
	return o, nil
}

// defaultOutputs places the outputs next to the input, or in the working
// directory when reading stdin.
func defaultOutputs(in string, gz bool) (clean, rejects string) {
	dir, name := filepath.Dir(in), in
	if in == stdio {
		dir, name = ".", "stdin"
	}
	cleanName, rejectsName := core.DownloadNames(name)
	ext := ""
	if gz {
		ext = ".gz"
	}

	clean = filepath.Join(dir, cleanName+ext)
	// export.csv would otherwise be repaired onto itself.
	if sameFile(in, clean) {
		clean = filepath.Join(dir, strings.TrimSuffix(cleanName, ".csv")+".fixed.csv"+ext)
	}
	return clean, filepath.Join(dir, rejectsName+ext)
}

// sameFile reports whether a and b name the same file. Paths that do not
// exist yet are compared after cleaning; stdio never matches.
func sameFile(a, b string) bool {
	if a == stdio || b == stdio {
		return false
	}
	ai, aerr := os.Stat(a)
	bi, berr := os.Stat(b)
	if aerr == nil && berr == nil {
		return os.SameFile(ai, bi)
	}
	absA, aerr := filepath.Abs(a)
	absB, berr := filepath.Abs(b)
	return aerr == nil && berr == nil && absA == absB
}

func repairFile(ctx context.Context, o options, log *slog.Logger) (repair.RunStats, error) {
	src, size, err := openSource(o.in)
	if err != nil {
		return repair.RunStats{}, err
	}
	defer src.Close()

	input, err := textenc.OpenInput(src, size, o.inEnc)
	if err != nil {
		return repair.RunStats{}, err
	}
	defer input.Close()

	clean, err := createOutput(o.out, o.outEnc, o.gzip)
	if err != nil {
		return repair.RunStats{}, err
	}
	rejects, err := createOutput(o.rejects, o.outEnc, o.gzip)
	if err != nil {
		clean.Close()
		return repair.RunStats{}, err
	}

	log.Info("repair started",
		"in", o.in,
		"out", o.out,
		"rejects", o.rejects,
		"columns", o.params.Columns,
		"delimiter", o.params.Delimiter,
		"compressed", input.Compressed(),
	)

	stats, runErr := repair.Run(ctx, repair.NewLineScanner(input, o.maxLineBytes), clean, rejects, o.params, repair.Options{
		Logger:    log,
		BytesRead: input.BytesRead,
		OnProgress: func(s repair.RunStats) {
			log.Debug("progress", "lines", s.Lines, "accepted", s.Accepted, "rejected", s.Rejected, "pct", input.Progress())
		},
	})

	// Outputs are closed even on cancel so the written prefix is complete.
	err = errors.Join(runErr, clean.Close(), rejects.Close())
	return stats, err
}

func openSource(path string) (io.ReadCloser, int64, error) {
	if path == stdio {
		return io.NopCloser(os.Stdin), 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// output is an encoded, optionally gzipped, buffered file. Close flushes
// every layer in order.
type output struct {
	io.Writer
	closers []func() error
}

func (o *output) Close() error {
	var errs []error
	for _, c := range o.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func createOutput(path, charset string, gz bool) (*output, error) {
	var f io.WriteCloser = nopWriteCloser{os.Stdout}
	if path != stdio {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, err
		}
		f = file
	}

	buf := bufio.NewWriterSize(f, 64*1024)
	var w io.Writer = buf
	var zw *pgzip.Writer
	if gz {
		zw = pgzip.NewWriter(buf)
		w = zw
	}

	enc, err := textenc.NewWriter(w, charset)
	if err != nil {
		f.Close()
		return nil, err
	}

	out := &output{Writer: enc}
	out.closers = append(out.closers, enc.Close)
	if zw != nil {
		out.closers = append(out.closers, zw.Close)
	}
	out.closers = append(out.closers, buf.Flush, f.Close)
	return out, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func printSummary(w io.Writer, o options, s repair.RunStats) {
	fmt.Fprintf(w, "valid rows:   %d\n", s.Accepted)
	fmt.Fprintf(w, "reject rows:  %d\n", s.Rejected)
	fmt.Fprintf(w, "lines read:   %d\n", s.Lines)
	fmt.Fprintf(w, "duration:     %s\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "throughput:   %.2f MB/s\n", s.Throughput())
	if o.out != stdio {
		fmt.Fprintf(w, "clean:        %s\n", o.out)
	}
	if o.rejects != stdio {
		fmt.Fprintf(w, "rejects:      %s\n", o.rejects)
	}
}
