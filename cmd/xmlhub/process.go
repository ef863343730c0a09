package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/errgroup"

	"github.com/jacoelho/xmlhub"
	"github.com/jacoelho/xmlhub/internal/bindings"
	"github.com/jacoelho/xmlhub/internal/config"
)

type processFlags struct {
	binds          []string
	jobs           int
	keepWhitespace bool
	maxDepth       int
	profiles       profiles
}

// fileResult is what one document produced; results are flushed in
// argument order once every document is done.
type fileResult struct {
	path   string
	output bytes.Buffer
	counts map[string]int
	report xmlhub.Report
	err    error
}

func newProcessCmd(global *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	var flags processFlags
	cmd := &cobra.Command{
		Use:   "process [flags] <document.xml>...",
		Short: "Dispatch XML documents to the bound handlers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("jobs") && flags.jobs < 1 {
				return fmt.Errorf("--jobs must be >= 1")
			}
			return runProcess(cmd, global, &flags, args, stdout, stderr)
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&flags.binds, "bind", "b", nil, "bind a handler: element=null|json|count|text|lua:<script> (repeatable)")
	f.IntVarP(&flags.jobs, "jobs", "j", 1, "documents processed in parallel")
	f.BoolVar(&flags.keepWhitespace, "keep-whitespace", false, "deliver whitespace-only text to handlers")
	f.IntVar(&flags.maxDepth, "max-depth", 0, "maximum element nesting (0 uses the default)")
	f.StringVar(&flags.profiles.cpu, "cpuprofile", "", "write CPU profile to file")
	f.StringVar(&flags.profiles.mem, "memprofile", "", "write memory profile to file")
	return cmd
}

func runProcess(cmd *cobra.Command, global *globalFlags, flags *processFlags, paths []string, stdout, stderr io.Writer) error {
	cfg, baseDir, err := loadConfig(global)
	if err != nil {
		return failed(err)
	}
	for _, raw := range flags.binds {
		b, err := config.ParseBinding(raw)
		if err != nil {
			return err
		}
		cfg.Bindings = append(cfg.Bindings, b)
	}
	if cmd.Flags().Changed("keep-whitespace") {
		cfg.Parse.KeepWhitespace = flags.keepWhitespace
	}
	if cmd.Flags().Changed("max-depth") {
		cfg.Parse.MaxDepth = flags.maxDepth
	}
	if err := cfg.Validate(); err != nil {
		return failed(err)
	}
	if len(cfg.Bindings) == 0 {
		if err := writeln(stderr, "warning: no handlers bound; documents are only checked"); err != nil {
			return failed(err)
		}
	}

	stopProfiles, err := flags.profiles.start()
	if err != nil {
		return failed(err)
	}
	defer func() {
		if stopErr := stopProfiles(); stopErr != nil {
			_ = writef(stderr, "error writing profiles: %v\n", stopErr)
		}
	}()

	logger := cfg.Log.NewLogger(stderr)
	loader := bindings.NewLoader(baseDir)
	if err := loader.Preload(cfg.Bindings); err != nil {
		return failed(err)
	}

	results := make([]*fileResult, len(paths))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(flags.jobs, 1))
	for i, path := range paths {
		res := &fileResult{path: path}
		results[i] = res
		g.Go(func() error {
			processFile(ctx, loader, cfg, logger, res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return failed(err)
	}

	failures := 0
	for _, res := range results {
		if err := flushResult(res, stdout, stderr); err != nil {
			return failed(err)
		}
		if res.err != nil {
			failures++
		}
	}
	if failures > 0 {
		return &exitError{code: 1, err: fmt.Errorf("%d of %d document(s) failed", failures, len(paths))}
	}
	return nil
}

func processFile(ctx context.Context, loader *bindings.Loader, cfg *config.Config, logger *slog.Logger, res *fileResult) {
	output := bindings.NewOutput(&res.output)
	reg, err := loader.Build(cfg.Bindings, output)
	if err != nil {
		res.err = err
		return
	}
	opts := bindings.HubOptions(cfg.Parse)
	opts = append(opts,
		xmlhub.WithLogger(logger.With(slog.String("file", res.path))),
		xmlhub.WithObserver(xmlhub.ObserverFunc(func(r xmlhub.Report) { res.report = r })),
	)
	hub, err := xmlhub.New(reg, opts...)
	if err != nil {
		res.err = err
		return
	}
	res.err = hub.ProcessFile(ctx, res.path)
	res.counts = output.Tally.Counts()
}

func flushResult(res *fileResult, stdout, stderr io.Writer) error {
	if _, err := res.output.WriteTo(stdout); err != nil {
		return err
	}
	if res.err != nil {
		return writef(stderr, "%s: %v\n", res.path, res.err)
	}
	if len(res.counts) > 0 {
		line, err := sjson.Set("", "source", res.path)
		if err == nil {
			line, err = sjson.Set(line, "counts", res.counts)
		}
		if err != nil {
			return err
		}
		if err := writeln(stdout, line); err != nil {
			return err
		}
	}
	s := res.report.Stats
	return writef(stderr, "%s: ok (%d elements, %d handlers, depth %d, %s)\n",
		res.path, s.Elements, s.FramesPushed, s.MaxDepth, res.report.Duration.Round(time.Microsecond))
}
