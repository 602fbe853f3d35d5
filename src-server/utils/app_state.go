package utils

import (
	"database/sql"
	"log/slog"
	"os"
	"sync"

	"remcal/src-server/model"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

type AppState struct {
	Config *Config
	RawDB  *sql.DB
	BunDB  *bun.DB
	When   *when.Parser

	// latency and count feeds for the prometheus gauges
	MetricChans *Metric

	// anything can push a signal here to bring the app down
	AppCloseSignalChan chan os.Signal

	shutdownMu    sync.Mutex
	shutdownChans []*chan struct{}
}

func NewAppState() *AppState {
	as := &AppState{
		AppCloseSignalChan: make(chan os.Signal, 1),
	}

	// natural language date parser
	as.When = when.New(nil)
	as.When.Add(en.All...)
	as.When.Add(common.All...)

	// env
	as.Config = NewConfig()

	as.MetricChans = NewMetric()

	// database
	var err error
	as.RawDB, err = sql.Open(sqliteshim.ShimName, "./sqlite.db?mode=rwc")
	if err != nil {
		slog.Error("cannot open sqlite database", "error", err)
		os.Exit(1)
	}
	as.RawDB.SetMaxIdleConns(8)

	as.BunDB = bun.NewDB(as.RawDB, sqlitedialect.New())
	as.BunDB.AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithVerbose(true),
		bundebug.FromEnv("BUNDEBUG"),
	))

	// every table is created IF NOT EXISTS, so this is safe on restart
	if err := model.CreateSchema(as.BunDB); err != nil {
		slog.Error("cannot create database schema", "error", err)
		os.Exit(1)
	}

	return as
}

// CreateGracefulShutdownChan hands out a channel that GracefulShutdown will
// close. Long-lived goroutines select on it to unwind.
func (as *AppState) CreateGracefulShutdownChan() *chan struct{} {
	as.shutdownMu.Lock()
	defer as.shutdownMu.Unlock()
	ch := make(chan struct{})
	as.shutdownChans = append(as.shutdownChans, &ch)
	return &ch
}

// GracefulShutdown closes every channel handed out so far.
func (as *AppState) GracefulShutdown() {
	as.shutdownMu.Lock()
	defer as.shutdownMu.Unlock()
	for _, ch := range as.shutdownChans {
		close(*ch)
	}
	as.shutdownChans = nil
}
