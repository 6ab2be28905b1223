package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thiht/transactor"
	txStdLib "github.com/Thiht/transactor/stdlib"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/benjamonnguyen/breathe-go"
	"github.com/benjamonnguyen/breathe-go/client"
	"github.com/benjamonnguyen/breathe-go/sqlite"
)

const Version = "0.1.0"

var isProd bool

func main() {
	rootCmd := &cobra.Command{
		Use:           "breathe",
		Short:         "Guided breathing sessions in the terminal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")
	rootCmd.PersistentFlags().BoolVar(&isProd, "prod", false, "load .env instead of .env.dev")

	rootCmd.AddCommand(
		newPlayCmd(),
		newTechniquesCmd(),
		newFavoriteCmd(),
		newHistoryCmd(),
		newStatsCmd(),
		newRecommendCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, Bad.Render(IconError+" "+err.Error()))
		os.Exit(1)
	}
}

// app holds everything a command needs: config, the API client and the local
// session journal.
type app struct {
	cfg  breathe.Config
	l    *log.Logger
	api  *client.Client
	db   *sql.DB
	repo breathe.SessionRepo
	tx   transactor.Transactor
}

func openApp(ctx context.Context) (*app, func(), error) {
	cfg, err := breathe.LoadConfig(isProd)
	if err != nil {
		return nil, nil, err
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "breathe"})
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	logger.Debug("opening journal", "path", cfg.DBPath)
	db, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session journal: %w", err)
	}
	tx, dbGetter := txStdLib.NewTransactor(db, txStdLib.NestedTransactionsSavepoints)

	a := &app{
		cfg: cfg,
		l:   logger,
		api: client.New(cfg.APIURL, cfg.APIToken,
			client.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
			client.WithLogger(logger),
		),
		db:   db,
		repo: sqlite.NewSessionRepo(dbGetter, logger),
		tx:   tx,
	}
	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close session journal", "err", err)
		}
	}
	return a, cleanup, nil
}

// logToFile redirects the logger while a full screen program owns the terminal.
func (a *app) logToFile() (func(), error) {
	f, err := os.OpenFile(a.cfg.DBPath+".log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	a.l.SetOutput(f)
	return func() {
		a.l.SetOutput(os.Stderr)
		_ = f.Close()
	}, nil
}
