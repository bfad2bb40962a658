// Package pipeline converts raw delimited observation files into cache
// artifacts. Each job runs the staged conversion: fetch the input, sniff
// its dialect, detect the column layout, parse and validate the rows,
// resolve the optional state filter, build the keyed record set and write
// the cache artifact. Jobs run concurrently on a bounded worker pool;
// every stage is traced, logged and counted.
//
// Row-level problems never fail a job: unparseable and filtered rows are
// counted in metrics and logged at debug, matching the cleaning rules of
// the parsers underneath. File-level problems fail the job with a typed
// error and leave the remaining jobs running.
package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/ajitpratap0/caar/pkg/cache"
	"github.com/ajitpratap0/caar/pkg/compression"
	"github.com/ajitpratap0/caar/pkg/config"
	"github.com/ajitpratap0/caar/pkg/delimited"
	"github.com/ajitpratap0/caar/pkg/errors"
	"github.com/ajitpratap0/caar/pkg/fetch"
	"github.com/ajitpratap0/caar/pkg/logger"
	"github.com/ajitpratap0/caar/pkg/metadata"
	"github.com/ajitpratap0/caar/pkg/metrics"
	"github.com/ajitpratap0/caar/pkg/observability"
	"github.com/ajitpratap0/caar/pkg/pool"
	"github.com/ajitpratap0/caar/pkg/records"
	"github.com/ajitpratap0/caar/pkg/schema"
	stringpool "github.com/ajitpratap0/caar/pkg/strings"
)

// Job describes one raw-file conversion.
type Job struct {
	// Input is the raw file path or URL.
	Input string
	// DataType identifies the kind of observations in the file.
	DataType records.DataType
	// CycleMode keeps only cycle rows in this operating mode; empty falls
	// back to the parse configuration.
	CycleMode string
	// States optionally filters records to devices in these US states.
	States []string
	// DevicesPath and PostalPath locate the metadata files backing the
	// state filter; empty falls back to the metadata configuration.
	DevicesPath string
	PostalPath  string
	// Output is the cache artifact path; empty derives one from the
	// states and data type under the cache directory.
	Output string
	// Codec and Compression override the cache configuration.
	Codec       cache.Codec
	Compression compression.Algorithm
}

// withDefaults fills empty job fields from the configuration.
func (j Job) withDefaults(cfg *config.Config) Job {
	if j.CycleMode == "" {
		j.CycleMode = cfg.Parse.CycleMode
	}
	if j.DevicesPath == "" {
		j.DevicesPath = cfg.Metadata.ThermostatsFile
	}
	if j.PostalPath == "" {
		j.PostalPath = cfg.Metadata.PostalFile
	}
	if j.Codec == "" {
		j.Codec = cache.Codec(cfg.Cache.Codec)
	}
	if j.Compression == "" {
		j.Compression = compression.Algorithm(cfg.Cache.Compression)
	}
	if j.Output == "" {
		j.Output = filepath.Join(cfg.Cache.Dir, cache.Filename(j.States, j.DataType))
	}
	return j
}

func (j Job) validate() error {
	if j.Input == "" {
		return errors.New(errors.ErrorTypeConfig, "conversion job needs an input")
	}
	if !j.DataType.Valid() {
		return errors.New(errors.ErrorTypeConfig,
			stringpool.Sprintf("unknown data type %q (expected cycles, sensors or geospatial)", string(j.DataType)))
	}
	if len(j.States) > 0 && (j.DevicesPath == "" || j.PostalPath == "") {
		return errors.New(errors.ErrorTypeConfig,
			"state filtering requires thermostat and postal metadata files")
	}
	return nil
}

// JobResult reports what one conversion did.
type JobResult struct {
	Input    string
	DataType records.DataType
	Output   string
	// Rows counts valid data rows parsed from the input; SkippedLines
	// counts raw lines the reader dropped for carrying no digits or
	// failing field validation.
	Rows         int64
	SkippedLines int64
	// Records is the number of keyed records written to the cache.
	// Skipped counts rows dropped for unparseable ID, timestamp or
	// reading fields; Filtered counts rows dropped by the cycle-mode or
	// state filter.
	Records  int
	Skipped  int
	Filtered int
	// Bytes is the size of the written cache artifact.
	Bytes    int64
	Duration time.Duration
	Err      error
}

// Report summarizes one Run.
type Report struct {
	Results   []JobResult
	Succeeded int
	Failed    int
	Duration  time.Duration
	Resources ResourceUsage
}

// ResourceUsage is a sample of the converting process taken at the end of
// the run.
type ResourceUsage struct {
	CPUPercent float64
	MemoryRSS  uint64
	Goroutines int
}

// Run converts every job and writes its cache artifact. Jobs run on a
// worker pool bounded by the performance configuration; the report
// carries one result per job in input order. A non-nil error means at
// least one job failed and is the first job's error; the rest stay in
// their results.
func Run(ctx context.Context, cfg *config.Config, jobs []Job) (*Report, error) {
	if len(jobs) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "no conversion jobs given")
	}
	if cfg == nil {
		cfg = config.New()
	}

	log := logger.Get().With(zap.String("component", "pipeline"))
	fetcher := fetch.New(cfg.Fetch, fetch.Options{}, log)
	defer fetcher.Close()

	r := &runner{cfg: cfg, fetcher: fetcher, logger: log}

	workers := cfg.Performance.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	start := time.Now()
	monitor := newResourceMonitor()
	log.Info("starting conversion run",
		zap.Int("jobs", len(jobs)),
		zap.Int("workers", workers))

	results := make([]JobResult, len(jobs))
	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = r.runJob(ctx, jobs[i])
			}
		}()
	}
	for i := range jobs {
		if ctx.Err() != nil {
			results[i] = JobResult{
				Input:    jobs[i].Input,
				DataType: jobs[i].DataType,
				Err:      errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "conversion canceled"),
			}
			continue
		}
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	report := &Report{
		Results:   results,
		Duration:  time.Since(start),
		Resources: monitor.sample(),
	}
	var firstErr error
	for i := range results {
		if results[i].Err != nil {
			report.Failed++
			if firstErr == nil {
				firstErr = results[i].Err
			}
		} else {
			report.Succeeded++
		}
	}

	log.Info("conversion run finished",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
		zap.Float64("cpu_percent", report.Resources.CPUPercent),
		zap.Uint64("rss_bytes", report.Resources.MemoryRSS))

	return report, firstErr
}

type runner struct {
	cfg     *config.Config
	fetcher *fetch.Fetcher
	logger  *zap.Logger
}

func (r *runner) runJob(ctx context.Context, job Job) JobResult {
	job = job.withDefaults(r.cfg)
	res := JobResult{Input: job.Input, DataType: job.DataType, Output: job.Output}
	start := time.Now()

	metrics.JobsActive.Inc()
	defer metrics.JobsActive.Dec()

	ctx = context.WithValue(ctx, logger.JobIDKey, pool.GenerateID("job"))
	ctx = context.WithValue(ctx, logger.InputKey, job.Input)
	ctx = context.WithValue(ctx, logger.DataTypeKey, string(job.DataType))
	log := logger.WithContext(ctx).With(zap.String("component", "pipeline"))

	err := r.convert(ctx, job, &res, log)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		metrics.JobsTotal.WithLabelValues("error").Inc()
		log.Error("conversion failed",
			zap.Error(err),
			zap.Duration("duration", res.Duration))
		return res
	}

	metrics.JobsTotal.WithLabelValues("success").Inc()
	log.Info("conversion finished",
		zap.String("output", res.Output),
		zap.Int64("rows", res.Rows),
		zap.Int("records", res.Records),
		zap.Int("skipped", res.Skipped),
		zap.Int("filtered", res.Filtered),
		zap.Int64("bytes", res.Bytes),
		zap.Duration("duration", res.Duration))
	return res
}

// convert runs the staged conversion for one job, filling res as stages
// complete.
func (r *runner) convert(ctx context.Context, job Job, res *JobResult, log *zap.Logger) error {
	if err := job.validate(); err != nil {
		return err
	}

	tracer := observability.NewStageTracer(job.Input, string(job.DataType))
	opener := r.fetcher.Opener(job.Input)

	// The first open feeds the sniffer; the parse pass reopens the input.
	var head io.ReadCloser
	err := tracer.TraceStage(ctx, "fetch", func(ctx context.Context) error {
		var err error
		head, err = opener(ctx)
		return err
	})
	if err != nil {
		return err
	}

	var dialect *delimited.Dialect
	err = tracer.TraceStage(ctx, "sniff", func(ctx context.Context) error {
		defer head.Close()
		var err error
		dialect, err = delimited.NewSniffer(r.snifferConfig(), log).Sniff(head)
		return err
	})
	if err != nil {
		return err
	}

	var (
		body   io.ReadCloser
		reader *delimited.Reader
		rows   [][]string
		cols   []records.ColumnMeta
	)
	err = tracer.TraceStage(ctx, "detect", func(ctx context.Context) error {
		var err error
		body, err = opener(ctx)
		if err != nil {
			return err
		}
		reader = delimited.NewReader(body, dialect, delimited.ReaderConfig{})

		sampleSize := r.cfg.Parse.SampleSize
		if sampleSize <= 0 {
			sampleSize = delimited.DefaultSampleSize
		}
		for len(rows) < sampleSize {
			fields, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			rows = append(rows, fields)
		}
		if len(rows) == 0 {
			// Header-only input; an empty set is cached downstream.
			return nil
		}

		if !r.cfg.Parse.Auto {
			cols, err = r.cfg.Layouts.MetaFor(job.DataType)
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeConfig, "fixed column layout is invalid")
			}
			return nil
		}
		det, err := schema.NewDetector(schema.DetectOptions{
			SampleSize:  sampleSize,
			CycleMode:   job.CycleMode,
			TimeFormats: r.cfg.Parse.TimeFormats,
		}, log).Detect(rows, dialect.Header, job.DataType)
		if err != nil {
			return err
		}
		cols = det.Columns
		return nil
	})
	if err != nil {
		if reader != nil {
			reader.Close()
		}
		if body != nil {
			body.Close()
		}
		return err
	}

	err = tracer.TraceStage(ctx, "parse", func(ctx context.Context) error {
		defer body.Close()
		defer reader.Close()

		progress := observability.NewProgress(log, r.cfg.Observability.MetricsInterval)
		tracker := metrics.NewThroughputTracker(string(job.DataType))
		for _, fields := range rows {
			progress.RecordRows(1, rowBytes(fields))
			tracker.Increment(1)
		}
		for {
			fields, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			rows = append(rows, fields)
			progress.RecordRows(1, rowBytes(fields))
			tracker.Increment(1)
		}

		stats := reader.Stats()
		res.Rows = stats.Rows
		res.SkippedLines = stats.NoDigits + stats.Malformed
		metrics.RowsRead.WithLabelValues(string(job.DataType)).Add(float64(stats.Rows))
		if res.SkippedLines > 0 {
			metrics.RowsSkipped.WithLabelValues(string(job.DataType), metrics.ReasonInvalid).
				Add(float64(res.SkippedLines))
			log.Debug("reader dropped lines",
				zap.Int64("no_digits", stats.NoDigits),
				zap.Int64("malformed", stats.Malformed))
		}
		progress.LogFinal()
		tracker.GetAndReset()
		return nil
	})
	if err != nil {
		return err
	}

	opts := records.ParseOptions{
		TimeFormats: r.cfg.Parse.TimeFormats,
		CycleMode:   job.CycleMode,
	}
	if len(job.States) > 0 {
		err = tracer.TraceStage(ctx, "filter", func(ctx context.Context) error {
			devices, err := metadata.LoadDevices(job.DevicesPath, r.metadataConfig(), log)
			if err != nil {
				return err
			}
			postal, err := metadata.LoadPostal(job.PostalPath, r.metadataConfig(), log)
			if err != nil {
				return err
			}
			if job.DataType == records.Geospatial {
				opts.AllowedIDs, err = devices.LocationsInStates(postal, job.States)
				return err
			}
			opts.AllowedIDs = devices.InStates(postal, job.States)
			return nil
		})
		if err != nil {
			return err
		}
	}

	var set *records.Set
	err = tracer.TraceStage(ctx, "records", func(ctx context.Context) error {
		if len(rows) == 0 {
			set = records.NewSet(job.DataType)
			return nil
		}
		built, stats, err := records.FromRows(rows, cols, job.DataType, &opts)
		if err != nil {
			return err
		}
		set = built
		res.Records = set.Len()
		res.Skipped = stats.Skipped
		res.Filtered = stats.Filtered
		if stats.Skipped > 0 {
			metrics.RowsSkipped.WithLabelValues(string(job.DataType), metrics.ReasonInvalid).
				Add(float64(stats.Skipped))
		}
		if stats.Filtered > 0 {
			metrics.RowsSkipped.WithLabelValues(string(job.DataType), metrics.ReasonFiltered).
				Add(float64(stats.Filtered))
		}
		if stats.Skipped > 0 || stats.Filtered > 0 {
			log.Debug("rows dropped during record build",
				zap.Int("skipped", stats.Skipped),
				zap.Int("filtered", stats.Filtered))
		}
		return nil
	})
	if err != nil {
		return err
	}

	return tracer.TraceStage(ctx, "cache", func(ctx context.Context) error {
		codec, err := cache.ParseCodec(string(job.Codec))
		if err != nil {
			return err
		}
		comp := job.Compression
		if comp != "" {
			comp, err = compression.ParseAlgorithm(string(comp))
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeConfig, "invalid cache compression")
			}
		}

		if dir := filepath.Dir(job.Output); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.Wrap(err, errors.ErrorTypeFile,
					stringpool.Sprintf("failed to create cache directory %s", dir))
			}
		}
		err = cache.WriteFile(job.Output, set, cache.Options{
			Codec:       codec,
			Compression: comp,
			Level:       compression.ParseLevel(r.cfg.Cache.CompressionLevel),
			Workers:     r.cfg.Performance.Workers,
		})
		if err != nil {
			return err
		}

		if info, err := os.Stat(job.Output); err == nil {
			res.Bytes = info.Size()
			metrics.BytesWritten.WithLabelValues(string(job.DataType)).Add(float64(info.Size()))
		}
		metrics.RecordsWritten.WithLabelValues(string(job.DataType), string(codec)).
			Add(float64(set.Len()))
		return nil
	})
}

func (r *runner) snifferConfig() delimited.SnifferConfig {
	var sc delimited.SnifferConfig
	if d := r.cfg.Parse.Delimiter; d != "" {
		sc.Delimiter = d[0]
	}
	if q := r.cfg.Parse.Quote; q != "" {
		sc.Quote = q[0]
	}
	return sc
}

func (r *runner) metadataConfig() metadata.Config {
	m := r.cfg.Metadata
	return metadata.Config{
		DeviceID:  m.DeviceIDHeader,
		Location:  m.LocationIDHeader,
		Zip:       m.ZipCodeHeader,
		PostalZip: m.PostalZipHeader,
		State:     m.PostalStateHeader,
	}
}

func rowBytes(fields []string) int64 {
	var n int64
	for _, f := range fields {
		n += int64(len(f))
	}
	return n
}

// resourceMonitor samples process CPU and memory through gopsutil and
// publishes the readings to the process gauges.
type resourceMonitor struct {
	proc         *process.Process
	startCPUTime float64
	startTime    time.Time
}

func newResourceMonitor() *resourceMonitor {
	rm := &resourceMonitor{startTime: time.Now()}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return rm
	}
	rm.proc = proc
	if t, err := proc.Times(); err == nil {
		rm.startCPUTime = t.Total()
	}
	return rm
}

func (rm *resourceMonitor) sample() ResourceUsage {
	usage := ResourceUsage{Goroutines: runtime.NumGoroutine()}
	if rm.proc == nil {
		return usage
	}

	if t, err := rm.proc.Times(); err == nil {
		elapsed := time.Since(rm.startTime).Seconds()
		if elapsed > 0 {
			usage.CPUPercent = (t.Total() - rm.startCPUTime) / elapsed * 100
		}
	}
	if mi, err := rm.proc.MemoryInfo(); err == nil {
		usage.MemoryRSS = mi.RSS
	}

	metrics.ProcessCPU.Set(usage.CPUPercent)
	metrics.ProcessRSS.Set(float64(usage.MemoryRSS))
	return usage
}
