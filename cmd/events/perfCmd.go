package events

import (
	"context"
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/dAudit/cmd/util"
	"github.com/ValentinKolb/dAudit/lib/events"
	"github.com/rcrowley/go-metrics"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the events client",
		Long:    "Runs save and query benchmarks against the configured store and prints latency percentiles and throughput. Throttled requests are retried by the client, their backoff is part of the measured latency.",
		Args:    cobra.NoArgs,
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfSubjectPrefix = "__perf"
	perfNumThreads    = 10
	perfOps           = 1000
	perfProfileSpread = 100
	perfSkip          = make([]string, 0)
)

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. save,query)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of concurrent callers"))
	key = "ops"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("Number of operations per benchmark"))
	key = "profiles"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different profiles (partitions) to spread the events over"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(_ *cobra.Command, _ []string) error {
	perfNumThreads = max(1, viper.GetInt("threads"))
	perfOps = max(1, viper.GetInt("ops"))
	perfProfileSpread = max(1, viper.GetInt("profiles"))
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	return nil
}

// benchmark is one named workload, op is called with the running operation number
type benchmark struct {
	name string
	op   func(ctx context.Context, n int) error
}

// perfResult are the measurements of one benchmark
type perfResult struct {
	name    string
	skipped bool
	elapsed time.Duration
	timer   metrics.Timer
	errors  metrics.Counter
}

func runPerf(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	fmt.Println("Performance testing tool for the events client")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Print(client.Settings().String())
	fmt.Printf("Threads: %d, Operations: %d, Profiles: %d\n", perfNumThreads, perfOps, perfProfileSpread)
	fmt.Println()

	fmt.Println("starting tests...")

	since := time.Now().UTC()
	profileOf := func(n int) int { return 1_000_000 + n%perfProfileSpread }

	benchmarks := []benchmark{
		{"save", func(ctx context.Context, n int) error {
			return client.Save(ctx, perfEvent(profileOf(n), "logged in"))
		}},
		{"save-many", func(ctx context.Context, n int) error {
			evs := make([]*events.Event, 10)
			for i := range evs {
				evs[i] = perfEvent(profileOf(n+i), "updated")
			}
			_, err := client.SaveMany(ctx, evs)
			return err
		}},
		{"query", func(ctx context.Context, n int) error {
			_, err := client.QueryEvents(ctx, events.EventQuery{From: &since, Subject: perfSubjectPrefix, PageSize: 50})
			return err
		}},
		{"audit", func(ctx context.Context, n int) error {
			_, err := client.QueryProfileAudit(ctx, &since, nil, profileOf(n), "")
			return err
		}},
		{"logins", func(ctx context.Context, n int) error {
			employee := profileOf(n)
			_, err := client.QueryLoginEvents(ctx, events.LoginQuery{From: &since, EmployeeID: &employee})
			return err
		}},
		{"mixed", func(ctx context.Context, n int) error {
			switch n % 4 {
			case 0, 1:
				return client.Save(ctx, perfEvent(profileOf(n), "logged out"))
			case 2:
				_, err := client.QueryProfileAudit(ctx, &since, nil, profileOf(n), "")
				return err
			default:
				employee := profileOf(n)
				_, err := client.QueryLoginEvents(ctx, events.LoginQuery{From: &since, EmployeeID: &employee})
				return err
			}
		}},
	}

	registry := metrics.NewRegistry()
	results := make([]perfResult, 0, len(benchmarks))
	for _, b := range benchmarks {
		r := runBenchmark(ctx, b)
		if !r.skipped {
			_ = registry.Register(b.name+".latency", r.timer)
			_ = registry.Register(b.name+".errors", r.errors)
		}
		results = append(results, r)
		printResult(r)
	}

	if viper.GetString("log-level") == "debug" {
		fmt.Println()
		metrics.WriteOnce(registry, os.Stdout)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// runBenchmark runs perfOps operations of b on perfNumThreads goroutines
func runBenchmark(ctx context.Context, b benchmark) perfResult {
	r := perfResult{
		name:    b.name,
		skipped: slices.Contains(perfSkip, b.name),
		timer:   metrics.NewTimer(),
		errors:  metrics.NewCounter(),
	}
	if r.skipped {
		return r
	}

	p := pool.New().WithMaxGoroutines(perfNumThreads)
	start := time.Now()
	for n := 0; n < perfOps; n++ {
		p.Go(func() {
			opStart := time.Now()
			err := b.op(ctx, n)
			r.timer.UpdateSince(opStart)
			if err != nil {
				r.errors.Inc(1)
				if r.errors.Count() <= 3 {
					fmt.Fprintf(os.Stderr, "(%s) - error: %v\n", b.name, err)
				}
			}
		})
	}
	p.Wait()
	r.elapsed = time.Since(start)

	return r
}

func perfEvent(profileID int, subject string) *events.Event {
	input := events.InputMobileApp
	platform := events.OSAndroid
	return &events.Event{
		ProfileID:  profileID,
		ItemID:     profileID,
		ItemType:   events.ItemTypeProfile,
		Subject:    subject + " " + perfSubjectPrefix,
		InputType:  &input,
		OS:         &platform,
		OSVersion:  "14",
		AppVersion: "1.0.0",
	}
}

// --------------------------------------------------------------------------
// Output
// --------------------------------------------------------------------------

var percentiles = []float64{0.5, 0.95, 0.99}

func opsPerSec(r perfResult) float64 {
	if r.elapsed <= 0 {
		return 0
	}
	return float64(r.timer.Count()) / r.elapsed.Seconds()
}

// printResult prints the result of a benchmark in a formatted way
func printResult(r perfResult) {
	if r.skipped {
		fmt.Printf("%-12sskipped\n", r.name)
		return
	}

	ps := r.timer.Percentiles(percentiles)
	fmt.Printf("%-12smean %-12s p50 %-12s p95 %-12s p99 %-12s %8.0f ops/sec  %d errors\n",
		r.name,
		time.Duration(r.timer.Mean()),
		time.Duration(ps[0]),
		time.Duration(ps[1]),
		time.Duration(ps[2]),
		opsPerSec(r),
		r.errors.Count(),
	)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []perfResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "Skipped", "Operations", "Errors", "OpsPerSec",
		"MeanNs", "P50Ns", "P95Ns", "P99Ns",
		"Threads", "Profiles", "MaximumExponentialRetries",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	s := client.Settings()
	for _, r := range results {
		ps := r.timer.Percentiles(percentiles)
		row := []string{
			r.name,
			strconv.FormatBool(r.skipped),
			strconv.FormatInt(r.timer.Count(), 10),
			strconv.FormatInt(r.errors.Count(), 10),
			fmt.Sprintf("%.0f", opsPerSec(r)),
			fmt.Sprintf("%.0f", r.timer.Mean()),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			fmt.Sprintf("%.0f", ps[2]),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfProfileSpread),
			strconv.Itoa(int(s.MaximumExponentialRetries())),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", r.name, err)
		}
	}

	return nil
}
