package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mysqlbulk/internal/config"
	"mysqlbulk/internal/metrics"
	"mysqlbulk/internal/metrics/datadog"
	"mysqlbulk/internal/metrics/prompush"

	// register all source kinds with the source factory.
	_ "mysqlbulk/internal/source/all"
)

// main loads the job file, optionally initializes a metrics backend and runs
// one bulk copy.
func main() {
	var (
		cfgPath           string
		envPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		datadogAddrFlg    string
		validate          bool
		progress          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/jobs/sample.json", "job config JSON path")
	flag.StringVar(&envPath, "env", ".env", "dotenv file loaded before ${VAR} expansion (missing file is ignored)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (pushgateway, datadog, none); env METRICS_BACKEND")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&datadogAddrFlg, "datadog-addr", "", "DogStatsD address (overrides env DD_AGENT_ADDR)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.BoolVar(&progress, "progress", false, "show a progress bar on stderr")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	if err := godotenv.Load(envPath); err != nil && *verbose {
		log.Printf("env: %s not loaded, using process environment: %v", envPath, err)
	}

	job, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}
	expandEnv(&job)

	issues := config.ValidateJob(job)
	for _, iss := range issues {
		fmt.Fprintln(os.Stderr, iss.Error())
	}
	if config.HasErrors(issues) {
		log.Printf("Configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("Configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	jobName := job.Job
	if jobName == "" {
		jobName = "mysqlbulk"
	}

	// Decide metrics backend: flag → env → none.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "pushgateway":
		gwURL := firstNonEmpty(pushGatewayURLFlg, os.Getenv("PUSHGATEWAY_URL"), "http://localhost:9091")
		b, err := prompush.NewBackend(jobName, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			break
		}
		log.Printf("metrics: url=%v, backend=%v, job_name=%v", gwURL, backendName, jobName)
		metrics.SetBackend(b)
		defer flushMetrics()

	case "datadog":
		addr := firstNonEmpty(datadogAddrFlg, os.Getenv("DD_AGENT_ADDR"), "127.0.0.1:8125")
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "mysqlbulk.",
			GlobalTags: []string{"job:" + jobName},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			break
		}
		log.Printf("metrics: addr=%v, backend=%v, job_name=%v", addr, backendName, jobName)
		metrics.SetBackend(b)
		defer b.Close()
		defer flushMetrics()

	case "", "none":
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *verbose {
		log.Printf("job %s: source=%s table=%s conflict=%q", jobName, job.Source.Kind, job.Destination.Table, job.Destination.Conflict)
	}

	start := time.Now()
	res, err := run(ctx, job, runOptions{progress: progress, verbose: *verbose})
	if err != nil {
		log.Printf("job %s failed: %v", jobName, err)
		flushMetrics()
		os.Exit(1)
	}
	log.Printf("job %s: copied=%d inserted=%d frames=%d bytes=%d aborted=%v hash=%016x elapsed=%s",
		jobName, res.RowsCopied, res.RowsInserted, res.Frames, res.Bytes, res.Aborted, res.StreamHash,
		time.Since(start).Truncate(time.Millisecond))
}

// expandEnv resolves ${VAR} references in connection strings and paths.
func expandEnv(j *config.Job) {
	j.Source.DSN = os.ExpandEnv(j.Source.DSN)
	j.Source.Path = os.ExpandEnv(j.Source.Path)
	j.Destination.DSN = os.ExpandEnv(j.Destination.DSN)
}

func flushMetrics() {
	if err := metrics.Flush(); err != nil {
		log.Printf("metrics: flush error: %v", err)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
