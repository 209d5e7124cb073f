package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sadopc/lightbeam/internal/config"
	"github.com/sadopc/lightbeam/internal/logger"
	"github.com/sadopc/lightbeam/internal/store"
	"github.com/sadopc/lightbeam/internal/tracker"
	"github.com/sadopc/lightbeam/internal/tui"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file")
		headless   = flag.Bool("headless", false, "run the capture engine without the terminal UI")
	)
	flag.Parse()

	path := *configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	s, err := store.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	userID, err := s.UserID()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	notifier := tui.NewProgramNotifier()
	opts := tracker.Options{Policy: tracker.ConflictStopCurrent}
	if *headless {
		opts.Notifier = nil // engine falls back to the log notifier
	} else {
		opts.Notifier = notifier
	}

	engine := tracker.NewEngine(cfg, s, log, tracker.SessionContext{UserID: userID}, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.StartTracking(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error starting tracker: %v\n", err)
		os.Exit(1)
	}
	defer engine.StopTracking()

	if *headless {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		return
	}

	app := tui.NewApp(engine)
	p := tea.NewProgram(app, tea.WithAltScreen())
	notifier.Attach(p)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
