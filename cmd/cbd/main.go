// The cbd daemon receives cell broadcast messages from a modem, filters and geo-fences them, and
// prints every message that is meant for the user.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/logging"
	"github.com/robfig/cron/v3"

	"github.com/ftl/cellbroadcast/api"
	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/cell"
	"github.com/ftl/cellbroadcast/com"
	"github.com/ftl/cellbroadcast/config"
	"github.com/ftl/cellbroadcast/ctrl"
	"github.com/ftl/cellbroadcast/engine"
	"github.com/ftl/cellbroadcast/geo"
	"github.com/ftl/cellbroadcast/position"
	"github.com/ftl/cellbroadcast/serial"
	"github.com/ftl/cellbroadcast/store"
)

// noModem disables the modem, the daemon then only processes PDUs submitted through the API.
const noModem = "none"

const (
	modemReadyTimeout    = 30 * time.Second
	serviceStateSchedule = "@every 30s"
)

func main() {
	configPath := flag.String("config", "", "path of the YAML configuration file")
	tracePath := flag.String("trace", "", "write a transcript of the modem communication to this file")
	flag.Parse()

	if err := run(*configPath, *tracePath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, tracePath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	loggerFactory := logging.NewDefaultLoggerFactory()
	loggerFactory.DefaultLogLevel = level
	log := loggerFactory.NewLogger("cbd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	history, err := store.Open(store.Config{Path: cfg.Store.Path, LoggerFactory: loggerFactory})
	if err != nil {
		return err
	}
	defer history.Close()

	retention, err := store.NewRetention(history, store.RetentionConfig{
		Schedule:      cfg.Store.PurgeSchedule,
		Retention:     cfg.Store.Retention.Std(),
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		return err
	}
	retention.Start()
	defer retention.Stop()

	var modemCOM *com.COM
	var modem *ctrl.Modem
	if cfg.Modem.Device != noModem {
		var closer io.Closer
		modemCOM, closer, err = openModem(cfg.Modem.Device, tracePath, loggerFactory)
		if err != nil {
			return err
		}
		defer closer.Close()
		modem = ctrl.NewModem(withTimeout(modemCOM, cfg.Modem.RequestTimeout.Std()), ctrl.ModemConfig{
			Slot:              cfg.Modem.Slot,
			Channels:          cfg.Modem.Channels,
			GPSAccuracyMeters: cfg.Position.AccuracyMeters,
			LoggerFactory:     loggerFactory,
		})
	}

	var positions engine.PositionProvider
	if source := positionSource(cfg.Position, modem); source != nil {
		provider := position.NewProvider(position.Config{
			Source:        source,
			Interval:      cfg.Position.Interval.Std(),
			LoggerFactory: loggerFactory,
		})
		defer provider.Close()
		positions = provider
	} else {
		log.Warn("no position source, geo-fenced messages are handled by the unavailable policy")
	}

	var registration engine.RegistrationSource
	if modem != nil {
		registration = modem
	}

	var cbEngine *engine.Engine
	areaInfoLogger := engine.AreaInfoNotifierFunc(func(slot int, enabled bool) {
		if !enabled {
			log.Infof("area info of slot %d disabled", slot)
			return
		}
		log.Infof("area info of slot %d: %q", slot, cbEngine.AreaInfo(slot))
	})
	cbEngine, err = engine.New(engine.Config{
		Engine:        cfg.Engine,
		Store:         history,
		Sink:          engine.SinkFunc(printMessage(os.Stdout)),
		Positions:     positions,
		Registration:  registration,
		Notifiers:     []engine.AreaInfoNotifier{areaInfoLogger},
		Slots:         cfg.Modem.Slot + 1,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		return err
	}
	defer cbEngine.Close()

	var modemClosed <-chan struct{}
	if modem != nil {
		if err := setupModem(ctx, modemCOM, modem, cfg.Modem.Slot, cbEngine); err != nil {
			return err
		}
		scheduler, err := pollServiceState(ctx, modem, cfg.Modem.Slot, cbEngine, log)
		if err != nil {
			return err
		}
		defer scheduler.Stop()
		modemClosed = waitUntilClosed(modemCOM)
	}

	apiErrs := make(chan error, 1)
	if cfg.API.ListenAddress != "" {
		server, err := api.New(api.Config{
			Engine:        cbEngine,
			History:       history,
			Slots:         cfg.Modem.Slot + 1,
			LoggerFactory: loggerFactory,
		})
		if err != nil {
			return err
		}
		go func() {
			apiErrs <- server.ListenAndServe(ctx, cfg.API.ListenAddress)
		}()
	}

	log.Info("running")
	select {
	case <-ctx.Done():
		log.Info("shutting down")
		return nil
	case <-modemClosed:
		return fmt.Errorf("modem connection lost")
	case err := <-apiErrs:
		return fmt.Errorf("api: %w", err)
	}
}

func openModem(device, tracePath string, loggerFactory logging.LoggerFactory) (*com.COM, io.Closer, error) {
	if device == "" {
		var err error
		device, err = serial.FindModemPortName()
		if err != nil {
			return nil, nil, err
		}
	}

	comConfig := com.Config{LoggerFactory: loggerFactory}
	var traceFile *os.File
	if tracePath != "" {
		var err error
		traceFile, err = os.Create(tracePath)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot create trace file: %w", err)
		}
		comConfig.Tracer = traceFile
	}

	modemCOM, port, err := serial.Open(device, comConfig)
	if err != nil {
		if traceFile != nil {
			traceFile.Close()
		}
		return nil, nil, fmt.Errorf("cannot open modem at %s: %w", device, err)
	}
	return modemCOM, closerFunc(func() error {
		err := port.Close()
		if traceFile != nil {
			traceFile.Close()
		}
		return err
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

// withTimeout limits every request to the given timeout.
func withTimeout(requester cell.Requester, timeout time.Duration) cell.Requester {
	return cell.RequesterFunc(func(ctx context.Context, request string) ([]string, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return requester.Request(ctx, request)
	})
}

func positionSource(cfg config.Position, modem *ctrl.Modem) position.Source {
	switch cfg.Source {
	case config.PositionFromModem:
		if modem == nil {
			return nil
		}
		return modem
	case config.PositionFixed:
		return position.Fixed{
			Position:       geo.LatLng{Lat: cfg.Latitude, Lng: cfg.Longitude},
			AccuracyMeters: cfg.AccuracyMeters,
		}
	default:
		return nil
	}
}

func setupModem(ctx context.Context, modemCOM *com.COM, modem *ctrl.Modem, slot int, cbEngine *engine.Engine) error {
	readyCtx, cancel := context.WithTimeout(ctx, modemReadyTimeout)
	defer cancel()
	if err := modemCOM.WaitReady(readyCtx); err != nil {
		return fmt.Errorf("modem not ready: %w", err)
	}
	if err := modem.Setup(ctx); err != nil {
		return fmt.Errorf("cannot setup modem: %w", err)
	}
	if err := modemCOM.BroadcastFeed(slot, cbEngine.SubmitRawMessage); err != nil {
		return err
	}
	// the radio was (re)started with the setup
	return cbEngine.SubmitAirplaneModeChange(false, time.Now())
}

func pollServiceState(ctx context.Context, modem *ctrl.Modem, slot int, cbEngine *engine.Engine, log logging.LeveledLogger) (*cron.Cron, error) {
	scheduler := cron.New()
	_, err := scheduler.AddFunc(serviceStateSchedule, func() {
		registered, err := modem.Registered(ctx)
		if err != nil {
			log.Warnf("cannot read registration state: %v", err)
			return
		}
		state := engine.OutOfService
		if registered {
			state = engine.InService
		}
		if err := cbEngine.SubmitServiceState(slot, state); err != nil {
			log.Debugf("cannot submit service state: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("cannot schedule service state polling: %w", err)
	}
	scheduler.Start()
	return scheduler, nil
}

func waitUntilClosed(modemCOM *com.COM) <-chan struct{} {
	result := make(chan struct{})
	go func() {
		modemCOM.WaitUntilClosed()
		close(result)
	}()
	return result
}

func printMessage(w io.Writer) func(context.Context, cb.Message) error {
	return func(_ context.Context, msg cb.Message) error {
		_, err := fmt.Fprintf(w, "%s\n\n", msg)
		return err
	}
}
