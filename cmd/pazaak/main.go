package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"go.uber.org/zap"

	"pazaak/internal/bot"
	"pazaak/internal/config"
	"pazaak/internal/game/pazaak"
	"pazaak/internal/logging"
	"pazaak/internal/server"
	"pazaak/internal/session"
	"pazaak/internal/storage"
	"pazaak/internal/strategy"
	"pazaak/internal/transport"
)

const usage = `usage: pazaak [flags] host|join

  host   run the authority, serve /ws and the JSON views on -addr
  join   connect to the authority at -host-url as a follower
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

// app bundles what both modes share.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	rng      *rand.Rand
	registry *strategy.Registry
	view     *view
	players  int
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("pazaak", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address when hosting")
	fs.StringVar(&cfg.Name, "name", cfg.Name, "player name")
	fs.StringVar(&cfg.HostURL, "host-url", cfg.HostURL, "websocket url of the host, e.g. ws://localhost:8080/ws")
	fs.DurationVar(&cfg.Heartbeat, "heartbeat", cfg.Heartbeat, "heartbeat interval")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "match journal path, empty to disable")
	fs.StringVar(&cfg.Bot, "bot", cfg.Bot, "strategy for the local seat (easy, medium, hard); empty reads commands from stdin")
	fs.DurationVar(&cfg.Think, "think", cfg.Think, "bot think delay")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed, 0 uses the clock")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.BoolVar(&cfg.Dev, "dev", cfg.Dev, "development logging and strict message handling")
	opponents := fs.String("opponents", strings.Join(cfg.Opponents, ","), "comma separated strategies for extra bot seats on the host")
	players := fs.Int("players", 0, "start automatically once this many players are seated (host only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.Opponents = config.SplitList(*opponents)

	logger, err := logging.New(cfg.LogLevel, cfg.Dev)
	if err != nil {
		return err
	}
	defer logger.Sync()

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	a := &app{
		cfg:      cfg,
		logger:   logger,
		rng:      rng,
		registry: strategy.NewDefaultRegistry(rand.New(rand.NewSource(rng.Int63()))),
		view:     newView(cfg.Name),
		players:  *players,
	}
	if err := a.checkStrategies(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode := fs.Arg(0); mode {
	case "", "host":
		return a.host(ctx)
	case "join":
		return a.join(ctx)
	default:
		fs.Usage()
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func (a *app) checkStrategies() error {
	names := append([]string{}, a.cfg.Opponents...)
	if a.cfg.Bot != "" {
		names = append(names, a.cfg.Bot)
	}
	for _, n := range names {
		if _, ok := a.registry.Get(n); !ok {
			return fmt.Errorf("unknown strategy %q (have %s)", n, strings.Join(a.registry.List(), ", "))
		}
	}
	return nil
}

func (a *app) options(journal session.Journal) session.Options {
	return session.Options{
		Logger:    a.logger,
		Strict:    a.cfg.Dev,
		Heartbeat: a.cfg.Heartbeat,
		Rand:      rand.New(rand.NewSource(a.rng.Int63())),
		Journal:   journal,
	}
}

func (a *app) driver(name, strat string, sub bot.Submitter, opts ...bot.Option) *bot.Driver {
	s, _ := a.registry.Get(strat)
	opts = append(opts, bot.WithThink(a.cfg.Think), bot.WithLogger(a.logger.Named("bot")))
	return bot.New(name, s, sub, opts...)
}

func (a *app) host(ctx context.Context) error {
	var (
		journal session.Journal
		matches server.MatchLog
	)
	if a.cfg.DBPath != "" {
		store, err := storage.New(a.cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		journal, matches = store, store
	}

	ws := transport.NewWebSocket(a.logger.Named("transport"))
	host, err := session.NewAuthority(a.cfg.Name, ws, a.options(journal))
	if err != nil {
		return err
	}
	defer host.Close()
	go a.drainErrors(ctx, host.Errors(), nil)

	var drivers []*bot.Driver
	if a.cfg.Bot != "" {
		drivers = append(drivers, a.driver(a.cfg.Name, a.cfg.Bot, host, bot.WithRoundAdvance()))
	}
	for i, strat := range a.cfg.Opponents {
		name := fmt.Sprintf("%s-%d", strat, i+1)
		if err := host.AddLocalPlayer(ctx, name); err != nil {
			return err
		}
		drivers = append(drivers, a.driver(name, strat, host.Seat(name)))
	}

	var started atomic.Bool
	host.OnRosterChange(func(names []string) {
		a.view.roster(names)
		if a.players > 0 && len(names) >= a.players && started.CompareAndSwap(false, true) {
			if err := host.StartGame(ctx); err != nil {
				a.logger.Warn("auto start", zap.Error(err))
			}
		}
	})
	host.OnStateChange(func(s *pazaak.MatchState, v uint64) {
		for _, d := range drivers {
			d.Observe(s)
		}
		a.view.render(s, v)
	})
	for _, d := range drivers {
		go d.Run(ctx)
	}

	srv := &http.Server{
		Addr:    a.cfg.Addr,
		Handler: server.New(host, ws, matches, a.logger.Named("http")),
	}
	serveErr := make(chan error, 2)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	host.StartHeartbeat()
	pterm.Info.Printfln("hosting as %s on %s", a.cfg.Name, a.cfg.Addr)

	// local seats added before the hook was registered
	a.view.roster(host.Roster())
	if a.players > 0 && len(host.Roster()) >= a.players && started.CompareAndSwap(false, true) {
		if err := host.StartGame(ctx); err != nil {
			return err
		}
	}

	if a.cfg.Bot == "" {
		c := &console{
			name:     a.cfg.Name,
			seat:     host,
			control:  host,
			snapshot: host.Snapshot,
			picker:   a.picker(),
		}
		go func() {
			if err := c.run(ctx, os.Stdin); err != nil {
				serveErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-serveErr:
		if errors.Is(err, errQuit) {
			return nil
		}
		return err
	}
}

func (a *app) join(ctx context.Context) error {
	if a.cfg.HostURL == "" {
		return errors.New("join needs -host-url")
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	ws := transport.NewWebSocket(a.logger.Named("transport"))
	f, err := session.NewFollower(a.cfg.Name, "host", ws, a.options(nil))
	if err != nil {
		return err
	}
	defer f.Close()
	go a.drainErrors(ctx, f.Errors(), cancel)

	var d *bot.Driver
	if a.cfg.Bot != "" {
		d = a.driver(a.cfg.Name, a.cfg.Bot, f)
		go d.Run(ctx)
	}
	f.OnRosterChange(a.view.roster)
	f.OnStateChange(func(s *pazaak.MatchState, v uint64) {
		if d != nil {
			d.Observe(s)
		}
		a.view.render(s, v)
	})

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	err = ws.Dial(dialCtx, "host", a.cfg.HostURL)
	dialCancel()
	if err != nil {
		return err
	}
	pterm.Info.Printfln("joined %s as %s", a.cfg.HostURL, a.cfg.Name)

	if d == nil {
		c := &console{
			name:     a.cfg.Name,
			seat:     f,
			snapshot: f.Snapshot,
			picker:   a.picker(),
		}
		go func() {
			if err := c.run(ctx, os.Stdin); err != nil {
				cancel(err)
			}
		}()
	}

	<-ctx.Done()
	if err := context.Cause(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errQuit) {
		return err
	}
	return nil
}

// picker chooses side decks for the console's "deck auto" command.
func (a *app) picker() strategy.Strategy {
	s, _ := a.registry.Get("hard")
	return s
}

// drainErrors logs session errors. A follower stops on rejection or a lost
// host link.
func (a *app) drainErrors(ctx context.Context, errs <-chan error, stop context.CancelCauseFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			switch {
			case stop != nil && errors.Is(err, session.ErrRejected):
				stop(err)
			case stop != nil && errors.Is(err, transport.ErrTransport):
				stop(fmt.Errorf("lost the host: %w", err))
			default:
				a.logger.Warn("session", zap.Error(err))
			}
		}
	}
}
