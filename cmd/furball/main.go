package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/itohio/furball/pkg/config"
	"github.com/itohio/furball/pkg/monitor"
	"github.com/itohio/furball/pkg/report"
	"github.com/itohio/furball/pkg/status"
	"github.com/itohio/furball/pkg/telemetry"
	"github.com/itohio/furball/pkg/timesource"
	"github.com/itohio/furball/pkg/wheel"
)

func main() {
	var (
		configFlag      = flag.String("config", "config.yaml", "Configuration file path")
		portFlag        = flag.String("p", "", "Serial port override (e.g., /dev/ttyACM0)")
		mockFlag        = flag.Bool("mock", false, "Use a simulated wheel instead of the serial port")
		boardFlag       = flag.Bool("board", false, "Read the ADC and button directly on this host")
		listenFlag      = flag.String("listen", "", "Status page listen address override")
		portsFlag       = flag.Bool("ports", false, "List serial ports and exit")
		writeConfigFlag = flag.Bool("write-config", false, "Write the effective configuration and exit")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if *portsFlag {
		if err := listPorts(); err != nil {
			log.Fatal().Err(err).Msg("failed to list ports")
		}
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if *portFlag != "" {
		cfg.Device.Source = config.SourceSerial
		cfg.Device.Serial.Port = *portFlag
	}
	if *boardFlag {
		cfg.Device.Source = config.SourceBoard
	}
	if *mockFlag {
		cfg.Device.Source = config.SourceMock
	}
	if *listenFlag != "" {
		cfg.Status.Listen = *listenFlag
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil {
		log.Fatal().Err(err).Str("level", cfg.Log.Level).Msg("invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	if *writeConfigFlag {
		if err := cfg.Save(*configFlag); err != nil {
			log.Fatal().Err(err).Msg("failed to write configuration")
		}
		log.Info().Str("file", *configFlag).Msg("configuration written")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("furball stopped")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	sink, err := telemetry.New(&cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to create telemetry sink: %w", err)
	}
	defer sink.Close()

	times, err := timesource.New(&cfg.TimeSource)
	if err != nil {
		return fmt.Errorf("failed to create time source: %w", err)
	}

	device, err := wheel.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	if err := device.Connect(); err != nil {
		return fmt.Errorf("failed to connect to %s device: %w", cfg.Device.Source, err)
	}
	defer device.Close()

	mon, err := monitor.New(cfg, device, sink, times)
	if err != nil {
		return err
	}
	mon.OnFlush(func(res report.Result) {
		stats := mon.Stats()
		log.Debug().
			Uint64("flushes", stats.Flushes).
			Uint64("failures", stats.Failures).
			Uint64("misses", stats.Misses).
			Uint64("anomalies", stats.Anomalies).
			Bool("published", res.Published).
			Msg("flush")
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := status.NewServer(cfg.Status.Listen, status.NewHandler(cfg.Status.WebRoot, mon))
	srvDone := make(chan struct{})
	go func() {
		defer close(srvDone)
		if err := srv.Run(ctx); err != nil {
			log.Error().Err(err).Msg("status page stopped")
		}
	}()

	log.Info().
		Str("source", cfg.Device.Source).
		Str("sink", cfg.Telemetry.Sink).
		Str("time_source", cfg.TimeSource.Kind).
		Msg("furball running")

	err = mon.Run(ctx)
	switch {
	case ctx.Err() != nil:
		err = nil
	case err == nil:
		err = errors.New("sample source closed")
	}

	cancel()
	<-srvDone

	return err
}

func listPorts() error {
	ports, err := wheel.Ports()
	if err != nil {
		return err
	}
	for _, p := range ports {
		fmt.Println(p.Name)
	}
	return nil
}
