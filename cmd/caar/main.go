// Command caar converts delimited files of thermostat cycles, indoor
// temperature readings and weather-station observations into compressed,
// indexed cache artifacts, and inspects or exports the results.
package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/caar/internal/pipeline"
	"github.com/ajitpratap0/caar/pkg/cache"
	"github.com/ajitpratap0/caar/pkg/compression"
	"github.com/ajitpratap0/caar/pkg/config"
	"github.com/ajitpratap0/caar/pkg/delimited"
	"github.com/ajitpratap0/caar/pkg/errors"
	"github.com/ajitpratap0/caar/pkg/fetch"
	"github.com/ajitpratap0/caar/pkg/frame"
	jsonpool "github.com/ajitpratap0/caar/pkg/json"
	"github.com/ajitpratap0/caar/pkg/logger"
	"github.com/ajitpratap0/caar/pkg/observability"
	"github.com/ajitpratap0/caar/pkg/records"
	"github.com/ajitpratap0/caar/pkg/schema"
)

// Build information, stamped through -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	observability.Version = version

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps configuration and usage mistakes to 2 and data problems
// to 1, so scripts can tell a bad invocation from a bad input.
func exitCode(err error) int {
	if errors.IsType(err, errors.ErrorTypeConfig) || errors.IsType(err, errors.ErrorTypeValidation) {
		return 2
	}
	var typed *errors.Error
	if stderrors.As(err, &typed) {
		return 1
	}
	// Untyped errors come from command and flag parsing.
	return 2
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "caar",
		Short: "caar - thermostat cycle and air-temperature file converter",
		Long: `caar converts delimited files of thermostat cycles, indoor temperature
readings and weather-station observations into compressed, indexed cache
artifacts, and inspects or exports the results.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid usage")
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "caar %s\n", version)
			fmt.Fprintf(out, "  commit:     %s\n", commit)
			fmt.Fprintf(out, "  built:      %s\n", date)
			fmt.Fprintf(out, "  go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  os/arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(newConvertCmd())
	root.AddCommand(newDetectCmd())
	root.AddCommand(newExportCmd())
	return root
}

func newConvertCmd() *cobra.Command {
	var (
		datatype    string
		output      string
		states      string
		devices     string
		postal      string
		cycleMode   string
		codec       string
		compress    string
		confirm     bool
		metricsAddr string
		configFile  string
	)

	cmd := &cobra.Command{
		Use:   "convert RAWFILE...",
		Short: "Convert raw delimited files into cache artifacts",
		Long: `Convert raw delimited files into compressed, indexed cache artifacts.
Each input is sniffed, its columns detected, its rows cleaned and keyed,
and the result written under the cache directory (or --output for a
single input). The resolved artifact paths are printed to stdout.

Example:
  caar convert cycles_2012.csv --datatype cycles --states "TX,IA" \
    --devices thermostats.csv --postal postal.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, args, convertOptions{
				datatype:    datatype,
				output:      output,
				states:      states,
				devices:     devices,
				postal:      postal,
				cycleMode:   cycleMode,
				codec:       codec,
				compress:    compress,
				confirm:     confirm,
				metricsAddr: metricsAddr,
				configFile:  configFile,
			})
		},
	}

	cmd.Flags().StringVarP(&datatype, "datatype", "d", "", "Data type of the inputs: cycles, sensors or geospatial (required)")
	_ = cmd.MarkFlagRequired("datatype")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Cache artifact path; only valid with a single input")
	cmd.Flags().StringVar(&states, "states", "", "Comma-separated US states to keep, e.g. \"TX,IA\"; requires --devices and --postal")
	cmd.Flags().StringVar(&devices, "devices", "", "Thermostat metadata file mapping devices to locations and zips")
	cmd.Flags().StringVar(&postal, "postal", "", "Postal metadata file mapping zips to states")
	cmd.Flags().StringVar(&cycleMode, "cycle", "", "Cycle mode to keep for cycle data (default from configuration, Cool)")
	cmd.Flags().StringVar(&codec, "codec", "", "Cache codec: json or avro (default from configuration)")
	cmd.Flags().StringVar(&compress, "compression", "", "Cache compression: snappy, zstd, lz4, gzip, s2 or none (default from configuration)")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Show detected columns and ask before converting")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().StringVar(&configFile, "config", "", "Configuration file (YAML)")
	return cmd
}

type convertOptions struct {
	datatype    string
	output      string
	states      string
	devices     string
	postal      string
	cycleMode   string
	codec       string
	compress    string
	confirm     bool
	metricsAddr string
	configFile  string
}

func runConvert(cmd *cobra.Command, args []string, opts convertOptions) error {
	cfg, err := config.LoadFile(opts.configFile)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to load configuration")
	}
	if err := observability.Initialize(cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize observability")
	}
	defer shutdownObservability()

	dt := records.DataType(opts.datatype)
	if !dt.Valid() {
		return errors.New(errors.ErrorTypeConfig,
			fmt.Sprintf("unknown data type %q (expected cycles, sensors or geospatial)", opts.datatype))
	}
	if opts.output != "" && len(args) > 1 {
		return errors.New(errors.ErrorTypeConfig,
			"--output applies to a single input; batches derive names from states and data type")
	}

	if opts.metricsAddr != "" {
		serveMetrics(opts.metricsAddr)
	}

	ctx := cmd.Context()
	if opts.confirm {
		for _, input := range args {
			det, err := detectInput(ctx, cfg, input, dt, opts.cycleMode)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s", input, det.Summary())
			ok, err := confirmColumns(cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if !ok {
				return errors.New(errors.ErrorTypeValidation,
					fmt.Sprintf("detected columns for %s rejected", input))
			}
		}
	}

	jobs := make([]pipeline.Job, 0, len(args))
	for _, input := range args {
		jobs = append(jobs, pipeline.Job{
			Input:       input,
			DataType:    dt,
			CycleMode:   opts.cycleMode,
			States:      splitStates(opts.states),
			DevicesPath: opts.devices,
			PostalPath:  opts.postal,
			Output:      opts.output,
			Codec:       cache.Codec(opts.codec),
			Compression: compression.Algorithm(opts.compress),
		})
	}

	report, runErr := pipeline.Run(ctx, cfg, jobs)
	if report != nil {
		for _, res := range report.Results {
			if res.Err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), res.Output)
			}
		}
	}
	return runErr
}

func newDetectCmd() *cobra.Command {
	var (
		datatype   string
		cycleMode  string
		output     string
		configFile string
	)

	cmd := &cobra.Command{
		Use:   "detect RAWFILE",
		Short: "Detect the column layout of a raw file without converting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(configFile)
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeConfig, "failed to load configuration")
			}
			dt := records.DataType(datatype)
			if !dt.Valid() {
				return errors.New(errors.ErrorTypeConfig,
					fmt.Sprintf("unknown data type %q (expected cycles, sensors or geospatial)", datatype))
			}

			det, err := detectInput(cmd.Context(), cfg, args[0], dt, cycleMode)
			if err != nil {
				return err
			}
			return renderDetection(cmd.OutOrStdout(), det, output)
		},
	}

	cmd.Flags().StringVarP(&datatype, "datatype", "d", "", "Data type of the input: cycles, sensors or geospatial (required)")
	_ = cmd.MarkFlagRequired("datatype")
	cmd.Flags().StringVar(&cycleMode, "cycle", "", "Cycle mode used to locate the mode column (default from configuration, Cool)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Report format: yaml, json or text")
	cmd.Flags().StringVar(&configFile, "config", "", "Configuration file (YAML)")
	return cmd
}

func renderDetection(w io.Writer, det *schema.Detection, format string) error {
	switch format {
	case "", "text":
		fmt.Fprint(w, det.Summary())
	case "json":
		data, err := jsonpool.MarshalIndent(det, "", "  ")
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "failed to render detection")
		}
		fmt.Fprintf(w, "%s\n", data)
	case "yaml":
		data, err := yaml.Marshal(det)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "failed to render detection")
		}
		fmt.Fprintf(w, "%s", data)
	default:
		return errors.New(errors.ErrorTypeConfig,
			fmt.Sprintf("unknown report format %q (expected yaml, json or text)", format))
	}
	return nil
}

func newExportCmd() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export CACHE",
		Short: "Export a cache artifact to an analysis format",
		Long: `Materialize a cache artifact into a tabular frame and write it as
Arrow IPC, Parquet, Avro OCF or CSV.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := frame.ParseFormat(format)
			if err != nil {
				return err
			}
			set, err := cache.ReadFile(args[0])
			if err != nil {
				return err
			}
			fr, err := frame.FromSet(set)
			if err != nil {
				return err
			}

			out, err := os.Create(output)
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeFile,
					fmt.Sprintf("failed to create %s", output))
			}
			if err := fr.Export(out, f); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return errors.Wrap(err, errors.ErrorTypeFile,
					fmt.Sprintf("failed to write %s", output))
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Export format: arrow, parquet, avro or csv (required)")
	_ = cmd.MarkFlagRequired("format")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination path (required)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

// detectInput sniffs the dialect of one raw input and detects its column
// layout from a sample, the same way the conversion pipeline does before
// parsing.
func detectInput(ctx context.Context, cfg *config.Config, input string, dt records.DataType, cycleMode string) (*schema.Detection, error) {
	log := logger.Get().With(zap.String("component", "cli"))

	fetcher := fetch.New(cfg.Fetch, fetch.Options{}, log)
	defer fetcher.Close()
	opener := fetcher.Opener(input)

	head, err := opener(ctx)
	if err != nil {
		return nil, err
	}
	var sniffCfg delimited.SnifferConfig
	if d := cfg.Parse.Delimiter; d != "" {
		sniffCfg.Delimiter = d[0]
	}
	if q := cfg.Parse.Quote; q != "" {
		sniffCfg.Quote = q[0]
	}
	dialect, err := delimited.NewSniffer(sniffCfg, log).Sniff(head)
	head.Close()
	if err != nil {
		return nil, err
	}

	body, err := opener(ctx)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	reader := delimited.NewReader(body, dialect, delimited.ReaderConfig{})
	defer reader.Close()

	sampleSize := cfg.Parse.SampleSize
	if sampleSize <= 0 {
		sampleSize = delimited.DefaultSampleSize
	}
	var rows [][]string
	for len(rows) < sampleSize {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, fields)
	}
	if len(rows) == 0 {
		return nil, errors.New(errors.ErrorTypeDetect, "input has no data rows to detect columns from")
	}

	if cycleMode == "" {
		cycleMode = cfg.Parse.CycleMode
	}
	return schema.NewDetector(schema.DetectOptions{
		SampleSize:  sampleSize,
		CycleMode:   cycleMode,
		TimeFormats: cfg.Parse.TimeFormats,
	}, log).Detect(rows, dialect.Header, dt)
}

// confirmColumns asks for a y/n answer on the command's input stream.
// Anything but yes declines.
func confirmColumns(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprint(out, "Proceed with these columns? [y/N]: ")
	sc := bufio.NewScanner(in)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return false, errors.Wrap(err, errors.ErrorTypeFile, "failed to read confirmation")
		}
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(sc.Text())) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// splitStates parses the comma-separated state list, upper-casing entries
// the way the postal table spells them.
func splitStates(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	states := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			states = append(states, strings.ToUpper(p))
		}
	}
	return states
}

// serveMetrics exposes the Prometheus registry over HTTP for the life of
// the process.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Get().Warn("metrics listener failed",
				zap.String("addr", addr), zap.Error(err))
		}
	}()
}

func shutdownObservability() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := observability.Shutdown(ctx); err != nil {
		logger.Get().Warn("observability shutdown failed", zap.Error(err))
	}
}
