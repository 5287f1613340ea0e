package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/leonardotrapani/livescribe/internal/api"
	"github.com/leonardotrapani/livescribe/internal/bus"
	"github.com/leonardotrapani/livescribe/internal/config"
	"github.com/leonardotrapani/livescribe/internal/dispatch"
	"github.com/leonardotrapani/livescribe/internal/logging"
	"github.com/leonardotrapani/livescribe/internal/network"
	"github.com/leonardotrapani/livescribe/internal/notify"
	"github.com/leonardotrapani/livescribe/internal/recording"
	"github.com/leonardotrapani/livescribe/internal/segmenter"
	"github.com/leonardotrapani/livescribe/internal/store"
	"github.com/leonardotrapani/livescribe/internal/transcriber"
)

// Capturer feeds captured PCM into a sink until stopped.
type Capturer interface {
	Start(ctx context.Context, sink *recording.Sink) (<-chan error, error)
	Stop() error
	Wait()
	IsRecording() bool
}

// Deps are the collaborators the daemon drives. Notifier and Probe are optional.
type Deps struct {
	Store    store.Store
	Remote   transcriber.Transcriber
	Fallback transcriber.Transcriber
	Capturer Capturer
	Notifier notify.Notifier
	Probe    network.Probe
}

type Daemon struct {
	mu  sync.Mutex
	cfg *config.Config

	store      store.Store
	capturer   Capturer
	notifier   notify.Notifier
	probe      network.Probe
	observer   *network.Observer
	dispatcher *dispatch.Dispatcher
	segmenter  *segmenter.Segmenter
	sink       *recording.Sink

	session       string
	captureCancel context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log zerolog.Logger
}

func New(cfg *config.Config, deps Deps) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon: nil config")
	}
	if deps.Store == nil || deps.Remote == nil || deps.Fallback == nil || deps.Capturer == nil {
		return nil, errors.New("daemon: store, transcribers and capturer are required")
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}

	observer := network.New(cfg.Network.StartOnline)

	dispatcher, err := dispatch.New(cfg.ToDispatchConfig(), dispatch.Deps{
		Store:    deps.Store,
		Remote:   deps.Remote,
		Fallback: deps.Fallback,
		Network:  observer,
		Notifier: deps.Notifier,
	})
	if err != nil {
		return nil, err
	}

	sink := recording.NewSink(cfg.ToRecordingConfig().FrameBytes())
	seg, err := segmenter.New(cfg.ToSegmenterConfig(), sink, deps.Store, dispatcher)
	if err != nil {
		dispatcher.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		cfg:        cfg,
		store:      deps.Store,
		capturer:   deps.Capturer,
		notifier:   deps.Notifier,
		probe:      deps.Probe,
		observer:   observer,
		dispatcher: dispatcher,
		segmenter:  seg,
		sink:       sink,
		ctx:        ctx,
		cancel:     cancel,
		log:        logging.Component("daemon"),
	}, nil
}

// Build constructs every collaborator from cfg: SQLite store, remote and
// fallback transcribers, pw-record capture, notifier and TCP probe.
func Build(cfg *config.Config) (*Daemon, error) {
	st, err := store.NewSQLiteStore(cfg.StorePath())
	if err != nil {
		return nil, err
	}

	remote, err := transcriber.NewRemote(cfg.ToTranscriberConfig())
	if err != nil {
		st.Close()
		return nil, err
	}
	fallback, err := transcriber.NewFallback(cfg.ToFallbackConfig())
	if err != nil {
		st.Close()
		return nil, err
	}

	notifier := notify.Notifier(notify.Nop{})
	if cfg.Notifications.Enabled {
		if notifier, err = notify.New(cfg.Notifications.Type); err != nil {
			st.Close()
			return nil, err
		}
	}

	var probe network.Probe
	if addr, err := cfg.ProbeAddress(); err == nil {
		probe = network.TCPProbe(addr, cfg.Network.ProbeTimeout)
	} else {
		log := logging.Component("daemon")
		log.Warn().Err(err).Msg("connectivity probe disabled")
	}

	return New(cfg, Deps{
		Store:    st,
		Remote:   remote,
		Fallback: fallback,
		Capturer: recording.NewRecorder(cfg.ToRecordingConfig()),
		Notifier: notifier,
		Probe:    probe,
	})
}

// SetConfig swaps the configuration. Interval changes apply at the next arm.
func (d *Daemon) SetConfig(cfg *config.Config) {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
	d.log.Info().Msg("configuration updated; takes effect at next arm")
}

func (d *Daemon) Observer() *network.Observer       { return d.observer }
func (d *Daemon) Dispatcher() *dispatch.Dispatcher { return d.dispatcher }

func (d *Daemon) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session != ""
}

func (d *Daemon) Session() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

func (d *Daemon) Health() api.Health {
	session := d.Session()
	return api.Health{
		Connected: d.observer.Connected(),
		Armed:     session != "",
		Paused:    d.segmenter.Paused(),
		Session:   session,
		Stats:     d.dispatcher.Stats(),
	}
}

// Stop requests shutdown of a running daemon.
func (d *Daemon) Stop() { d.cancel() }

// Close releases the store. Call it after Run returns.
func (d *Daemon) Close() error { return d.store.Close() }

func (d *Daemon) Run() error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			d.log.Info().Stringer("signal", sig).Msg("received signal, shutting down gracefully")
			d.cancel()
		case <-d.ctx.Done():
		}
	}()

	// Close the listener when context is done
	go func() {
		<-d.ctx.Done()
		ln.Close()
	}()

	d.startBackground()
	defer d.shutdown()

	if err := d.recoverPending(d.ctx); err != nil {
		d.log.Error().Err(err).Msg("failed to recover pending segments")
	}

	d.log.Info().Msg("daemon started, listening on socket")

	for {
		c, err := ln.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				d.log.Info().Msg("shutdown requested")
				return nil
			}
			d.log.Error().Err(err).Msg("accept error")
			return fmt.Errorf("accept failed: %w", err)
		}
		go d.handle(c)
	}
}

func (d *Daemon) startBackground() {
	queueEdges := d.observer.Subscribe(d.ctx)
	notifyEdges := d.observer.Subscribe(d.ctx)

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.dispatcher.Queue().Watch(d.ctx, queueEdges)
	}()
	go func() {
		defer d.wg.Done()
		for connected := range notifyEdges {
			d.notifier.ConnectivityChanged(connected)
		}
	}()

	if d.probe != nil && d.cfg.Network.ProbeInterval > 0 {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.observer.Run(d.ctx, d.probe, d.cfg.Network.ProbeInterval)
		}()
	}

	if d.cfg.API.Enabled {
		server, err := api.New(api.DefaultConfig(d.cfg.API.Address), api.Deps{
			Store:  d.store,
			Health: d.Health,
		})
		if err != nil {
			d.log.Error().Err(err).Msg("api disabled")
			return
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := server.Start(d.ctx); err != nil {
				d.log.Error().Err(err).Msg("api stopped")
				d.notifier.Error("Observer API failed: " + err.Error())
			}
		}()
	}
}

// recoverPending resubmits segments left pending by a previous run, carrying
// their persisted retry counts.
func (d *Daemon) recoverPending(ctx context.Context) error {
	pending, err := d.store.PendingSegments(ctx)
	if err != nil {
		return err
	}
	for _, seg := range pending {
		d.dispatcher.Resume(seg)
	}
	if len(pending) > 0 {
		d.log.Info().Int("segments", len(pending)).Msg("recovered pending segments")
	}
	return nil
}

func (d *Daemon) shutdown() {
	d.cancel()
	if err := d.disarm(""); err != nil && !errors.Is(err, errNotArmed) {
		d.log.Warn().Err(err).Msg("disarm during shutdown")
	}
	d.dispatcher.Close()
	d.wg.Wait()
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		d.log.Warn().Err(err).Msg("client read error")
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}
	if len(line) == 0 {
		fmt.Fprint(c, "ERR empty\n")
		return
	}
	fmt.Fprint(c, d.Command(line[0]))
}

// Command executes one control command and returns the reply line.
func (d *Daemon) Command(cmd byte) string {
	switch cmd {
	case bus.CmdToggle:
		return d.toggle()
	case bus.CmdStatus:
		return d.status()
	case bus.CmdVersion:
		return fmt.Sprintf("STATUS proto=%s\n", bus.ProtoVer)
	case bus.CmdInterruptBegin:
		d.segmenter.HandleEvent(segmenter.Event{Kind: segmenter.InterruptionBegan, Reason: "control"})
		return "OK paused\n"
	case bus.CmdInterruptEnd:
		d.segmenter.HandleEvent(segmenter.Event{Kind: segmenter.InterruptionEnded, Reason: "control"})
		return "OK resumed\n"
	case bus.CmdQuit:
		d.cancel()
		return "OK quitting\n"
	default:
		d.log.Warn().Str("command", string(cmd)).Msg("unknown command")
		return fmt.Sprintf("ERR unknown=%q\n", cmd)
	}
}

func (d *Daemon) status() string {
	h := d.Health()
	session := h.Session
	if session == "" {
		session = "-"
	}
	return bus.FormatFields("STATUS",
		[]string{"armed", "session", "paused", "online", "in_flight", "retrying", "queued"},
		map[string]string{
			"armed":     strconv.FormatBool(h.Armed),
			"session":   session,
			"paused":    strconv.FormatBool(h.Paused),
			"online":    strconv.FormatBool(h.Connected),
			"in_flight": strconv.Itoa(h.InFlight),
			"retrying":  strconv.Itoa(h.Retrying),
			"queued":    strconv.Itoa(h.Queued),
		})
}

func (d *Daemon) toggle() string {
	if session := d.Session(); session != "" {
		if err := d.disarm(session); err != nil {
			return fmt.Sprintf("ERR disarm: %v\n", err)
		}
		return fmt.Sprintf("OK disarmed session=%s\n", session)
	}

	session, err := d.arm()
	if err != nil {
		d.notifier.Error("Failed to start capture: " + err.Error())
		return fmt.Sprintf("ERR arm: %v\n", err)
	}
	return fmt.Sprintf("OK armed session=%s\n", session)
}

var errNotArmed = errors.New("not armed")

func (d *Daemon) arm() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session != "" {
		return "", fmt.Errorf("already armed for session %s", d.session)
	}
	if d.ctx.Err() != nil {
		return "", errors.New("daemon shutting down")
	}

	interval := time.Duration(d.cfg.Segmenter.SegmentIntervalSeconds) * time.Second
	if err := d.segmenter.SetInterval(interval); err != nil {
		return "", err
	}
	d.segmenter.SetFlushOnDisarm(d.cfg.Segmenter.FlushOnDisarm)

	d.sink.Reset()
	captureCtx, cancel := context.WithCancel(d.ctx)
	errCh, err := d.capturer.Start(captureCtx, d.sink)
	if err != nil {
		cancel()
		return "", fmt.Errorf("start capture: %w", err)
	}

	session := &store.Session{ID: uuid.NewString(), CreatedAt: time.Now()}
	if err := d.store.CreateSession(d.ctx, session); err != nil {
		cancel()
		d.capturer.Stop()
		d.capturer.Wait()
		return "", fmt.Errorf("create session: %w", err)
	}

	if err := d.segmenter.Arm(d.ctx, session.ID); err != nil {
		cancel()
		d.capturer.Stop()
		d.capturer.Wait()
		return "", err
	}

	d.session = session.ID
	d.captureCancel = cancel

	d.wg.Add(1)
	go d.watchCapture(session.ID, errCh)

	d.log.Info().Str("session", session.ID).Dur("interval", interval).Msg("capture armed")
	d.notifier.RecordingChanged(true)
	return session.ID, nil
}

// watchCapture disarms the session if the capture process fails.
func (d *Daemon) watchCapture(session string, errCh <-chan error) {
	defer d.wg.Done()
	for err := range errCh {
		if err == nil {
			continue
		}
		d.log.Error().Err(err).Str("session", session).Msg("capture failed")
		d.notifier.Error("Capture failed: " + err.Error())
		go func() {
			if err := d.disarm(session); err != nil && !errors.Is(err, errNotArmed) {
				d.log.Warn().Err(err).Msg("disarm after capture failure")
			}
		}()
	}
}

// disarm stops capture for session, or for whatever is armed when session
// is empty. Segments already handed to the dispatcher keep running.
func (d *Daemon) disarm(session string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == "" || (session != "" && d.session != session) {
		return errNotArmed
	}

	d.segmenter.Disarm()

	err := d.capturer.Stop()
	d.capturer.Wait()
	if d.captureCancel != nil {
		d.captureCancel()
		d.captureCancel = nil
	}

	d.log.Info().Str("session", d.session).Msg("capture disarmed")
	d.session = ""
	d.notifier.RecordingChanged(false)
	return err
}
