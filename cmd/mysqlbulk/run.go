package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"mysqlbulk/internal/config"
	"mysqlbulk/internal/loaddata"
	"mysqlbulk/internal/source"
	"mysqlbulk/internal/storage/mysql"
)

// destination is the part of *mysql.Session run needs.
type destination interface {
	loaddata.Conn
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Function variables used as test seams.
var (
	openSourceFn = source.New

	openDestinationFn = func(ctx context.Context, cfg mysql.Config) (destination, func(), error) {
		return mysql.NewSession(ctx, cfg)
	}
)

type runOptions struct {
	progress bool
	verbose  bool
}

// run copies every row of the job's source into its destination table.
func run(ctx context.Context, job config.Job, opts runOptions) (loaddata.Result, error) {
	var res loaddata.Result

	guid, err := loaddata.ParseGUIDFormat(job.Destination.GUIDFormat)
	if err != nil {
		return res, err
	}
	dtk, err := loaddata.ParseDateTimeKind(job.Destination.DateTimeKind)
	if err != nil {
		return res, err
	}
	conflict, err := loaddata.ParseConflictOption(job.Destination.Conflict)
	if err != nil {
		return res, err
	}

	src, err := openSourceFn(ctx, source.Config{
		Kind:    job.Source.Kind,
		DSN:     job.Source.DSN,
		Query:   job.Source.Query,
		Path:    job.Source.Path,
		Options: job.Source.Options,
	})
	if err != nil {
		return res, fmt.Errorf("open source: %w", err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			log.Printf("source: close: %v", cerr)
		}
	}()
	if opts.verbose {
		log.Printf("source: kind=%s columns=%v", job.Source.Kind, src.Columns())
	}

	dest, closeDest, err := openDestinationFn(ctx, mysql.Config{
		DSN:          job.Destination.DSN,
		GUIDFormat:   guid,
		DateTimeKind: dtk,
	})
	if err != nil {
		return res, fmt.Errorf("open destination: %w", err)
	}
	defer closeDest()

	if job.Destination.Transaction {
		if err := dest.Open(ctx); err != nil {
			return res, err
		}
		if err := dest.Begin(ctx); err != nil {
			return res, err
		}
	}

	notifyAfter := job.Runtime.NotifyAfter
	var bar *progressbar.ProgressBar
	if opts.progress {
		bar = newProgressBar()
		if notifyAfter == 0 {
			notifyAfter = 1000
		}
	}

	bc := loaddata.New(dest, loaddata.Options{
		DestinationTable: job.Destination.Table,
		ColumnMappings:   job.Destination.ColumnMappings,
		NotifyAfter:      notifyAfter,
		OnRowsCopied: func(ev *loaddata.RowsCopiedEvent) {
			if bar != nil {
				_ = bar.Set64(ev.RowsCopied)
			} else if opts.verbose {
				log.Printf("progress: copied=%d", ev.RowsCopied)
			}
		},
		Timeout:        time.Duration(job.Runtime.TimeoutSeconds) * time.Second,
		ConflictOption: conflict,
		BufferSize:     job.Runtime.BufferSize,
		Job:            job.Job,
	})

	res, err = bc.WriteToServer(ctx, src)
	if bar != nil {
		_ = bar.Finish()
	}
	if job.Destination.Transaction {
		if err != nil {
			if rbErr := dest.Rollback(context.Background()); rbErr != nil {
				log.Printf("rollback: %v", rbErr)
			}
			return res, err
		}
		if err := dest.Commit(ctx); err != nil {
			return res, err
		}
	}
	return res, err
}

func newProgressBar() *progressbar.ProgressBar {
	return progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("copying"),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionShowIts(),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
