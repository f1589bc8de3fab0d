// Package engine ties the connection table, rate-limit accountant,
// listener/dialer engines, handshake driver, and protocol registry
// into the single cooperative loop spec.md §2/§5 describes (cross-
// cutting component C11 per SPEC_FULL.md §2). It owns the
// cron-scheduled one-second tick and retry jobs, the structured
// logger, and the optional Prometheus registry.
package engine

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/robfig/cron/v3"

	"relaylink/internal/config"
	"relaylink/internal/connrec"
	"relaylink/internal/conntable"
	"relaylink/internal/dispatcher"
	"relaylink/internal/handshake"
	"relaylink/internal/listener"
	"relaylink/internal/metrics"
	"relaylink/internal/netio"
	"relaylink/internal/protocol"
	"relaylink/internal/ratelimit"
	"relaylink/internal/router"
)

// Engine is the connection subsystem's top-level object: one per
// process, owning every piece of process-wide state spec.md §5 calls
// out as single-threaded (the connection table, the global read
// bucket, the directory-dirty flag).
type Engine struct {
	cfg config.Config
	log *zap.Logger

	Table      *conntable.Table
	Poller     *netio.Poller
	Accountant *ratelimit.Accountant
	Directory  router.Directory
	Protocols  *protocol.Registry
	Handshake  *handshake.Driver
	Dispatcher *dispatcher.Dispatcher
	Listener   *listener.Engine
	Metrics    *metrics.Metrics

	listeners map[uint64]net.Listener      // conn.ID -> OS listener, for HandleListenerRead
	byToken   map[netio.Token]*connrec.Conn // poll token -> conn, for the loop's readiness dispatch
	pending   []pendingDial

	cron *cron.Cron
}

// ConnForToken looks up the connection a poller event's token
// identifies (the loop uses this to turn an Event into a HandleRead/
// HandleWrite call).
func (e *Engine) ConnForToken(tok netio.Token) (*connrec.Conn, bool) {
	c, ok := e.byToken[tok]
	return c, ok
}

// New wires up every component per SPEC_FULL.md's domain-stack
// bindings: a real epoll poller, a rate.Limiter-paced tick, and the
// reference protocol handlers registered per kind.
func New(cfg config.Config, log *zap.Logger, dir router.Directory, reg prometheus.Registerer) (*Engine, error) {
	poller, err := netio.New()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	table := conntable.New(cfg.TableCapacity)
	tickLimiter := rate.NewLimiter(rate.Every(time.Second), 1)
	accountant := ratelimit.New(cfg.GlobalBucketCap, tickLimiter)

	protocols := protocol.NewRegistry()
	protocols.Register(connrec.KindOr, protocol.OrHandler{})
	protocols.Register(connrec.KindAp, protocol.ApHandler{})
	protocols.Register(connrec.KindExit, protocol.ExitHandler{})
	protocols.Register(connrec.KindDir, protocol.DirHandler{})
	protocols.Register(connrec.KindDnsWorker, protocol.WorkerHandler{})
	protocols.Register(connrec.KindCpuWorker, protocol.WorkerHandler{})

	hsDriver := &handshake.Driver{
		Poller:          poller,
		Directory:       dir,
		IsRelay:         cfg.OnionRouter,
		DefaultClientBW: cfg.DefaultBandwidthOp,
		IsDuplicateOrLink: func(addr uint32, port uint16) bool {
			return table.ExactGetByAddrPort(addr, port) != nil
		},
	}

	e := &Engine{
		cfg:        cfg,
		log:        log,
		Table:      table,
		Poller:     poller,
		Accountant: accountant,
		Directory:  dir,
		Protocols:  protocols,
		Handshake:  hsDriver,
		listeners:  make(map[uint64]net.Listener),
		byToken:    make(map[netio.Token]*connrec.Conn),
		cron:       cron.New(cron.WithSeconds()),
	}

	if reg != nil {
		e.Metrics = metrics.New(reg)
	}

	lsnr := &listener.Engine{
		Poller:       poller,
		Table:        table,
		InitAccepted: e.initAccepted,
	}
	e.Listener = lsnr

	disp := &dispatcher.Dispatcher{
		Poller:              poller,
		Accountant:          accountant,
		Protocols:           protocols,
		Handshake:           hsDriver,
		Directory:           dir,
		LinkPaddingEnabled:  cfg.LinkPadding,
		FairShare:           cfg.FairShare,
		ReadQuantumOverride: cfg.ReadQuantumOverride,
		ListenerRead: func(c *connrec.Conn) error {
			ln := e.listeners[c.ID]
			if ln == nil {
				return fmt.Errorf("engine: no OS listener for conn %d", c.ID)
			}
			return lsnr.HandleListenerRead(c, ln)
		},
	}
	e.Dispatcher = disp

	return e, nil
}

// initAccepted implements §4.3 step 3: per-kind post-accept setup.
func (e *Engine) initAccepted(child *connrec.Conn, raw net.Conn) error {
	e.byToken[child.PollToken] = child
	switch child.Kind {
	case connrec.KindOr:
		return e.Handshake.StartHandshake(child, raw, serverTLSConfig(e.cfg), false)
	case connrec.KindAp:
		return nil // already entered SocksWait by the listener engine
	case connrec.KindDir:
		return nil // already entered AwaitingCommand
	default:
		return fmt.Errorf("engine: init_accepted: unhandled kind %s", child.Kind)
	}
}

// CreateListener implements §4.3's create_listener plus registering
// the OS listener so HandleListenerRead can find it later.
func (e *Engine) CreateListener(bindAddr string, kind connrec.Kind) (*connrec.Conn, error) {
	conn, ln, err := e.Listener.CreateListener(bindAddr, kind)
	if err != nil {
		return nil, err
	}
	e.listeners[conn.ID] = ln
	e.byToken[conn.PollToken] = conn
	if e.Metrics != nil {
		e.Metrics.SetConnections(kind, len(e.Table.AllByKind(kind)))
	}
	return conn, nil
}

// HandleRead and HandleWrite are the event-loop-facing entry points
// spec.md §6 names (handle_read(conn), handle_write(conn)). Afterwards
// each reports the connection's state to the table's (addr, port)
// index, unless the connection was marked for close.
func (e *Engine) HandleRead(c *connrec.Conn) error {
	err := e.Dispatcher.HandleRead(c)
	if !c.MarkedForClose {
		e.Table.NotifyStateChanged(c)
	}
	return err
}

func (e *Engine) HandleWrite(c *connrec.Conn) error {
	err := e.Dispatcher.HandleWrite(c)
	if !c.MarkedForClose {
		e.Table.NotifyStateChanged(c)
	}
	return err
}

// TickSecond implements §4.7/§4.8's one-second control tick: refill
// the global bucket, credit eligible receiver buckets, and resume any
// connection the bucket had paused.
func (e *Engine) TickSecond() {
	if !e.Accountant.Tick() {
		return
	}
	if e.Metrics != nil {
		e.Metrics.SetGlobalBucket(e.Accountant.GlobalBucket())
	}
	for _, c := range e.Table.All() {
		if ratelimit.ReceiverBucketShouldIncrease(c) {
			ratelimit.CreditReceiverBucket(c, int64(c.Bandwidth))
		}
		if !c.WantsToRead {
			continue
		}
		if c.Kind == connrec.KindOr && c.State == connrec.StateOpen {
			if c.ReceiverBucket == 0 {
				continue // still capped; stay paused
			}
		}
		c.WantsToRead = false
		if c.HasPoll {
			_ = e.Poller.SetInterest(c.PollToken, true, c.WantsToWrite)
		}
	}
}

// ReapMarked implements §6's reap_marked: remove every connection
// marked for close, releasing its resources.
func (e *Engine) ReapMarked() []*connrec.Conn {
	reaped := e.Table.ReapMarked()
	for _, c := range reaped {
		e.closeConn(c)
	}
	return reaped
}

// closeConn releases a connection's resources on every exit path
// (§3.3, §5 FD lifetime): socket, TLS session, poll registration, and
// the OS listener map entry if it was a listener.
func (e *Engine) closeConn(c *connrec.Conn) {
	if c.HasPoll {
		_ = e.Poller.Deregister(c.PollToken)
		delete(e.byToken, c.PollToken)
	}
	if c.TLS != nil {
		_ = c.TLS.Close()
	} else if c.Socket >= 0 {
		_ = closeFD(c.Socket)
	}
	if ln, ok := e.listeners[c.ID]; ok {
		_ = ln.Close()
		delete(e.listeners, c.ID)
	}
}

// RetryAllConnections implements §4.8's retry_all_connections.
func (e *Engine) RetryAllConnections() {
	if e.cfg.OrPort != 0 {
		e.Directory.RetryConnections()
	}
	if e.cfg.OrPort != 0 && e.Table.GetByKind(connrec.KindOrListener) == nil {
		if _, err := e.CreateListener(fmt.Sprintf("0.0.0.0:%d", e.cfg.OrPort), connrec.KindOrListener); err != nil {
			e.log.Warn("create or listener", zap.Error(err))
		}
	}
	if e.cfg.DirPort != 0 && e.Table.GetByKind(connrec.KindDirListener) == nil {
		if _, err := e.CreateListener(fmt.Sprintf("0.0.0.0:%d", e.cfg.DirPort), connrec.KindDirListener); err != nil {
			e.log.Warn("create dir listener", zap.Error(err))
		}
	}
	if e.cfg.ApPort != 0 && e.Table.GetByKind(connrec.KindApListener) == nil {
		// The AP listener binds loopback-only — never expose the SOCKS
		// port to the network (§4.8).
		if _, err := e.CreateListener(fmt.Sprintf("127.0.0.1:%d", e.cfg.ApPort), connrec.KindApListener); err != nil {
			e.log.Warn("create ap listener", zap.Error(err))
		}
	}
}

// StartScheduledJobs wires TickSecond and RetryAllConnections onto a
// robfig/cron scheduler (SPEC_FULL.md F.2), grounded on n-backup's use
// of cron for periodic jobs. The caller still owns calling HandleRead/
// HandleWrite from its own poll loop; only the two periodic jobs run
// on cron's goroutine, posting through apply so the loop thread applies
// their effects without a data race on Table/Accountant state.
func (e *Engine) StartScheduledJobs(apply func(func())) error {
	if _, err := e.cron.AddFunc("@every 1s", func() { apply(e.TickSecond) }); err != nil {
		return fmt.Errorf("engine: schedule tick: %w", err)
	}
	if _, err := e.cron.AddFunc("@every 10s", func() { apply(e.RetryAllConnections) }); err != nil {
		return fmt.Errorf("engine: schedule retry: %w", err)
	}
	e.cron.Start()
	return nil
}

// StopScheduledJobs stops the cron scheduler and waits for any
// in-flight job to finish.
func (e *Engine) StopScheduledJobs(ctx context.Context) {
	stopCtx := e.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}
