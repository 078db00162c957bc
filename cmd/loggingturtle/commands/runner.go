package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"loggingturtle/internal/artifact"
	"loggingturtle/internal/components/telemetry"
	"loggingturtle/internal/entity"
	"loggingturtle/internal/normalize"
	"loggingturtle/internal/notify"
	"loggingturtle/internal/pipeline"
	"loggingturtle/internal/scrapers/dispatch"
	"loggingturtle/lib/restyutil"
	libtelemetry "loggingturtle/lib/telemetry"
	"loggingturtle/services/logstore"
	"os"
	"path/filepath"
	"time"
)

// per-run log files, ex. `30-15-06-02-03-2024.log` (minute, second, hour, day, month, year)
const logFileLayout = "04-05-15-02-01-2006"

// runner runs entities one after the other and keeps their bookkeeping.
type runner struct {
	registry entity.Registry
	debug    bool
	notifier notify.Notifier
	out      io.Writer

	// when breakers is set, every entity keeps one fetcher behind a circuit
	// breaker for the lifetime of the runner
	breakers map[string]dispatch.Fetcher
}

func newRunner(registry entity.Registry, debug bool, out io.Writer) *runner {
	return &runner{
		registry: registry,
		debug:    debug,
		notifier: notify.New(registry.Config.Notify),
		out:      out,
	}
}

func (r *runner) withBreakers() *runner {
	r.breakers = map[string]dispatch.Fetcher{}
	return r
}

// runAll runs every entity in keys even when some of them fail, the
// failures are joined.
func (r *runner) runAll(ctx context.Context, keys []string) error {
	var errlist []error
	for _, key := range keys {
		if ctx.Err() != nil {
			errlist = append(errlist, ctx.Err())
			break
		}
		err := r.runEntity(ctx, key)
		if err != nil {
			errlist = append(errlist, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errlist...)
}

func (r *runner) runEntity(ctx context.Context, key string) error {
	ent, err := r.registry.Resolve(key, r.debug)
	if err != nil {
		return err
	}
	err = ent.Paths.Ensure()
	if err != nil {
		return fmt.Errorf("verify file system: %w", err)
	}

	started := ent.Clock.Now()
	logFile, err := os.Create(filepath.Join(ent.Paths.DebugLogs, started.Format(logFileLayout)+".log"))
	if err != nil {
		return err
	}
	logger := libtelemetry.InitSlog(r.debug, logFile)
	defer func() {
		libtelemetry.InitSlog(r.debug)
		logFile.Close()
	}()
	logger.Debug("logging initiated", "file", logFile.Name())

	tel := telemetry.NewSlogAPI(logger)
	fetcher, err := r.fetcher(ent, tel, started)
	if err != nil {
		return err
	}

	env := pipeline.Env{
		Tel:   tel,
		Clock: ent.Clock,
		Source: pipeline.Source{
			Entity:        ent.Name,
			URL:           ent.URL,
			TablePosition: ent.TablePosition,
		},
		Retry: pipeline.Retry{
			Attempts: r.registry.Config.Fetch.Attempts,
			Delay:    r.registry.Config.Fetch.RetryDelay(),
		},
	}
	opener := func(ctx context.Context) (pipeline.Store, error) {
		store, err := logstore.Open(ctx, ent.Database, tel)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	p := pipeline.New(
		env,
		fetcher,
		normalize.New(tel, ent.Normalize),
		opener,
		artifact.New(tel, ent.Paths.CSV, ent.Paths.HTML),
	)

	result, runErr := p.Run(ctx)
	r.record(ent, result, runErr)

	if runErr != nil {
		err := r.notifier.Send(ctx, notify.Failure{
			Entity: ent.Name,
			RunID:  result.RunID,
			At:     result.RunTimestamp,
			Err:    runErr,
		})
		if err != nil {
			slog.Warn("failed to send failure notification", "entity", key, "err", err)
		}
		return runErr
	}

	fmt.Fprintf(
		r.out,
		"%s logging for %s finished with %d changes made to database.\n",
		key, result.RunTimestamp.Format("2006-01-02T15:04:05"), result.RowsAppended,
	)
	if result.EmitErr != nil {
		fmt.Fprintf(r.out, "%s artifacts were not written: %v\n", key, result.EmitErr)
	}
	return nil
}

func (r *runner) fetcher(ent entity.Entity, tel telemetry.API, started time.Time) (dispatch.Fetcher, error) {
	if r.breakers != nil {
		if fetcher, ok := r.breakers[ent.Key]; ok {
			return fetcher, nil
		}
	}

	opts := dispatch.Options{
		Timeout:           r.registry.Config.Fetch.Timeout(),
		UserAgent:         r.registry.Config.Fetch.UserAgent,
		RequestsPerSecond: r.registry.Config.Fetch.RequestsPerSecond,
		CloudflareBypass:  r.registry.Config.Fetch.CloudflareBypass,
	}
	if r.debug {
		output, err := restyutil.NewFilesystemOutput(ent.Paths.DebugLogs, started.Format(logFileLayout)+"_http_")
		if err != nil {
			return nil, err
		}
		opts.Output = output
	}

	if r.breakers == nil {
		return dispatch.NewClient(tel, opts), nil
	}

	// shared across runs, so it logs through whatever the default logger is at the time
	shared := telemetry.NewSlogAPI(nil)
	fetcher := dispatch.WithBreaker(
		dispatch.NewClient(shared, opts),
		ent.Key,
		shared,
		dispatch.BreakerOptions{},
	)
	r.breakers[ent.Key] = fetcher
	return fetcher, nil
}

func (r *runner) record(ent entity.Entity, result pipeline.RunResult, runErr error) {
	path := entity.StatePath(r.registry.Path)
	state, err := entity.ReadState(path)
	if err != nil {
		slog.Warn("failed to read bookkeeping", "path", path, "err", err)
		return
	}
	state.Record(ent.Key, result.RunID, result.RunTimestamp, result.RowsAppended, runErr)
	err = entity.WriteState(path, state)
	if err != nil {
		slog.Warn("failed to write bookkeeping", "path", path, "err", err)
	}
}
