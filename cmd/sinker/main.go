// Command sinker runs the batched database writer: it reads records from
// a CSV source, spools them for retry safety, and flushes batched INSERTs
// to a Postgres or SQLite database while a keep-alive task holds the
// connection open across upstream stalls.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
	"go.sinker.dev/core/insert"
	"go.sinker.dev/core/keepalive"
	mbp "go.sinker.dev/core/mainboilerplate"
	"go.sinker.dev/core/pipeline"
	"go.sinker.dev/core/record"
	"go.sinker.dev/core/spool"
	"go.sinker.dev/core/task"
)

const iniFilename = "sinker.ini"

// Config is the top-level configuration object of the sinker.
var Config = new(struct {
	Source struct {
		CSV    string `long:"csv" env:"CSV" required:"true" description:"Path of the CSV input file"`
		Schema string `long:"schema" env:"SCHEMA" required:"true" description:"Path of the YAML column schema"`
	} `group:"Source" namespace:"source" env-namespace:"SOURCE"`

	Sink struct {
		Driver            string        `long:"driver" env:"DRIVER" default:"postgres" choice:"postgres" choice:"sqlite3" description:"database/sql driver"`
		Database          string        `long:"database" env:"DATABASE" required:"true" description:"Connection string (postgres://..., or a SQLite file path)"`
		Table             string        `long:"table" env:"TABLE" required:"true" description:"Destination table"`
		BatchSize         int           `long:"batch-size" env:"BATCH_SIZE" default:"1000" description:"Records per batch INSERT"`
		MaxRetries        int           `long:"max-retries" env:"MAX_RETRIES" default:"3" description:"Flush attempts before giving up"`
		RetryBackoff      time.Duration `long:"retry-backoff" env:"RETRY_BACKOFF" default:"5s" description:"Delay between flush attempts"`
		KeepAliveInterval time.Duration `long:"keepalive-interval" env:"KEEPALIVE_INTERVAL" default:"30s" description:"Interval between connection liveness queries"`
		SpoolDir          string        `long:"spool-dir" env:"SPOOL_DIR" description:"Directory of spool files (default: system temp directory)"`
	} `group:"Sink" namespace:"sink" env-namespace:"SINK"`

	Metrics struct {
		Addr string `long:"addr" env:"ADDR" description:"Address of the prometheus /metrics endpoint (disabled if empty)"`
	} `group:"Metrics" namespace:"metrics" env-namespace:"METRICS"`

	Log mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
})

type cmdRun struct{}

func (cmdRun) Execute(args []string) error {
	mbp.InitLog(Config.Log)
	mbp.InitMetrics(Config.Metrics.Addr)

	log.WithFields(log.Fields{
		"source": Config.Source.CSV,
		"table":  Config.Sink.Table,
	}).Info("starting sinker")

	var schema, err = record.LoadSchema(Config.Source.Schema)
	mbp.Must(err, "loading schema")

	src, err := os.Open(Config.Source.CSV)
	mbp.Must(err, "opening source")
	defer src.Close()

	db, err := sql.Open(Config.Sink.Driver, Config.Sink.Database)
	mbp.Must(err, "opening database")
	defer db.Close()
	mbp.Must(db.Ping(), "connecting to database")

	dialect, err := insert.DialectFromDriver(Config.Sink.Driver)
	mbp.Must(err, "resolving dialect")

	sp, err := spool.New(Config.Sink.SpoolDir, schema)
	mbp.Must(err, "creating spool")
	defer sp.Close()

	var ka = keepalive.Start(keepalive.QueryPinger(db), Config.Sink.KeepAliveInterval)
	defer ka.Stop()

	var driver = pipeline.NewDriver(
		record.NewCSVReader(src, schema),
		sp,
		insert.NewBatch(db, dialect, Config.Sink.Table, schema),
		ka,
		pipeline.Config{
			BatchSize: Config.Sink.BatchSize,
			ShouldRetry: func(err error, attempt int) bool {
				if attempt >= Config.Sink.MaxRetries {
					return false
				}
				time.Sleep(Config.Sink.RetryBackoff)
				return true
			},
		},
	)

	var tasks = task.NewGroup(context.Background())
	tasks.Go("pipeline.Run", driver.Run)

	var signalCh = make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)
	tasks.Go("sigwatch", func(ctx context.Context) error {
		select {
		case sig := <-signalCh:
			log.WithField("signal", sig).Info("caught signal")
			tasks.Cancel()
		case <-ctx.Done():
		}
		return nil
	})

	err = tasks.Wait()
	if err == nil {
		log.Info("run complete")
	}
	return err
}

func main() {
	var parser = flags.NewParser(Config, flags.Default)
	_, _ = parser.AddCommand("run", "Run the batched writer", `
run reads records from the CSV source, spools each one for retry safety,
and writes them to the destination table in batched INSERTs. A failed
batch is rebuilt from the spool and retried without re-reading the source.
`, &cmdRun{})
	mbp.AddPrintConfigCmd(parser, iniFilename)
	mbp.MustParseConfig(parser, iniFilename)
}
