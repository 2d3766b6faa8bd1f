package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"beepsat/internal/audit"
	"beepsat/internal/cdh"
	"beepsat/internal/config"
	"beepsat/internal/domain"
	"beepsat/internal/fault"
	"beepsat/internal/nvm"
	"beepsat/internal/sched"
	"beepsat/internal/tasks"
	"beepsat/internal/telemetry"
	"beepsat/internal/uplink"
)

type bootOutcome int

const (
	bootShutdown bootOutcome = iota
	bootReset
)

func main() {
	var (
		cfgPath = flag.String("config", "", "path to YAML config (defaults used if empty)")
		addr    = flag.String("addr", "", "HTTP bind address override")
		dbPath  = flag.String("db", "", "NVM SQLite path override")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if *dbPath != "" {
		cfg.NVM.Path = *dbPath
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	// Supervision loop: a requested reset tears the whole stack down and
	// boots again in-process, exactly as a hard reset would re-enter main.
	for {
		outcome := boot(cfg)
		if outcome == bootShutdown {
			log.Info().Msg("shutdown complete")
			return
		}
		log.Info().Msg("rebooting after reset")
	}
}

// boot runs one session from power-on to reset or shutdown.
func boot(cfg *config.Config) bootOutcome {
	store, err := nvm.Open(cfg.NVM.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open nvm")
	}
	defer store.Close()

	if err := store.Mutate(func(c *domain.Counters) { c.BootCount++ }); err != nil {
		log.Fatal().Err(err).Msg("record boot")
	}
	boot := store.Counters()
	log.Info().
		Uint32("boot_count", boot.BootCount).
		Uint32("reset_count", boot.ResetCount).
		Str("last_fault", boot.LastFaultCode.String()).
		Msg("booting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := sched.RealClock{}
	resetCh := make(chan domain.FaultCode, 1)
	var shutdownOnce sync.Once

	sys := &domain.SystemState{
		Clock:    clock,
		Store:    store,
		BootTime: clock.Now(),
	}
	sys.RequestReset = func(code domain.FaultCode) {
		select {
		case resetCh <- code:
		default:
		}
		cancel()
	}
	sys.RequestShutdown = func() {
		shutdownOnce.Do(func() {
			log.Info().Msg("shutdown requested")
			cancel()
		})
	}

	monitor := fault.NewMonitor(store, cfg.Threshold, sys.RequestReset)

	// The watchdog goroutine writes NVM directly on expiry. That breaks the
	// single-thread rule on purpose: expiry means the scheduler thread is
	// wedged and will never write again.
	wd := sched.NewWatchdog(cfg.TickPeriod()*time.Duration(cfg.Watchdog.TimeoutTicks), func() {
		if err := store.Mutate(func(c *domain.Counters) {
			c.ResetCount++
			c.LastFaultCode = domain.FaultWatchdog
		}); err != nil {
			log.Error().Err(err).Msg("recording watchdog reset failed")
		}
		sys.RequestReset(domain.FaultWatchdog)
	})

	scheduler := sched.New(clock, monitor, cfg.TickPeriod(), wd)
	sys.Control = scheduler
	scheduler.Bind(sys)

	hub := telemetry.NewHub()
	inbox := cdh.NewInbox(cfg.Uplink.InboxDepth)
	interlock, err := cdh.NewInterlock(store, cfg.ArmWindow())
	if err != nil {
		log.Fatal().Err(err).Msg("init arm interlock")
	}
	auditLog := audit.NewLogger(cfg.Log.AuditDir, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups, cfg.Log.MaxAgeDays)

	status := func() ([]byte, error) {
		frame, ok := hub.Latest()
		if !ok {
			return nil, errors.New("no telemetry frame yet")
		}
		return json.Marshal(frame)
	}

	var respond cdh.Responder
	var link *uplink.NATS
	var nc *nats.Conn
	if cfg.Uplink.NATSURL != "" {
		nc, err = nats.Connect(cfg.Uplink.NATSURL,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second))
		if err != nil {
			// The radio link being down is not fatal; commands can still
			// arrive over the HTTP bridge.
			log.Error().Err(err).Str("url", cfg.Uplink.NATSURL).Msg("nats connect failed, uplink degraded")
		} else {
			defer nc.Close()
			link = uplink.NewNATS(nc, inbox, cfg.Uplink.Subject, cfg.Uplink.AckSubject)
			if err := link.Start(ctx); err != nil {
				log.Error().Err(err).Msg("uplink subscribe failed")
			} else {
				defer link.Stop()
				respond = link.Respond
			}
		}
	}

	command := cdh.New(cdh.Options{
		Inbox:       inbox,
		Verifier:    cdh.NewVerifier(cfg.CDH.AuthSecret),
		Interlock:   interlock,
		Audit:       auditLog,
		Faults:      monitor,
		Status:      status,
		Respond:     respond,
		DrainBudget: cfg.CDH.DrainBudget,
	})

	gauge := tasks.NewSimGauge()
	radio := tasks.SimRadio{}
	err = tasks.Register(scheduler, cfg, tasks.Deps{
		Hub:   hub,
		Gauge: gauge,
		Radio: radio,
		LED:   tasks.SimHeartbeat{},
		CDH:   command,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("register tasks")
	}

	scheduler.AfterTick(func(now time.Time) {
		taskRows := scheduler.Snapshot()
		rssi, _ := radio.LastRSSI()
		frame := telemetry.Assemble(now, taskRows, sys.Snapshot(), telemetry.Readings{
			BatteryVolts: gauge.Voltage(),
			LastRSSI:     rssi,
			FrequencyMHz: radio.Frequency(),
			CmdDropped:   inbox.Dropped(),
		})
		hub.Publish(frame, taskRows)
	})

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: telemetry.NewServer(hub, inbox)}
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("ground-debug server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("ground-debug server")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		select {
		case <-sig:
			sys.RequestShutdown()
		case <-ctx.Done():
		}
	}()

	scheduler.Run(ctx)

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)

	select {
	case code := <-resetCh:
		log.Warn().Str("fault_code", code.String()).Msg("reset in progress")
		return bootReset
	default:
		return bootShutdown
	}
}
