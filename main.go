package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/mwheeler/chartsync/service"
	"github.com/mwheeler/chartsync/shared"
	"github.com/mwheeler/chartsync/symbols"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Printf("loading config: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	timeframe := shared.OneHour
	if cfg.Timeframe != "" {
		timeframe, err = shared.ParseTimeframe(cfg.Timeframe)
		if err != nil {
			log.Printf("parsing timeframe: %v", err)
			return
		}
	}

	defaults := cfg.Symbols
	if len(defaults) == 0 {
		defaults = symbols.DefaultSymbols
	}

	dashboardCfg := service.DashboardConfig{
		BaseURL:          cfg.BaseURL,
		APIKey:           cfg.APIKey,
		StreamURL:        cfg.StreamURL,
		Symbols:          defaults,
		Timeframe:        timeframe,
		DatabaseEndpoint: cfg.DatabaseEndpoint,
		DatabaseUser:     cfg.DatabaseUser,
		DatabasePass:     cfg.DatabasePass,
		Notify: func(message string) {
			log.Printf("notice: %s", message)
		},
		Cancel: cancel,
	}
	dashboard, err := service.NewDashboard(&dashboardCfg)
	if err != nil {
		log.Printf("creating dashboard service: %v", err)
		return
	}

	go handleTermination(ctx, cancel)
	dashboard.Run(ctx)
}
