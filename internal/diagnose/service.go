// Package diagnose explains why Rich Presence may not be showing up. Three
// independent probes inspect the environment once per process lifetime:
// the Discord client's state, competing Rich Presence integrations, and
// whether cordsync itself runs inside a sandbox.
//
// Probes are advisory. A probe that fails or panics settles on its
// no-issue default and never affects presence syncing.
package diagnose

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// DefaultProbeTimeout bounds each probe.
const DefaultProbeTimeout = 10 * time.Second

// flatpakInfoPath exists inside every Flatpak sandbox.
const flatpakInfoPath = "/.flatpak-info"

// DefaultConflictingIDs are extension IDs known to publish their own Rich
// Presence. Matching is case-insensitive.
var DefaultConflictingIDs = []string{
	"icrawl.discord-vscode",
	"leonardssh.vscord",
	"zarifprogrammer.discord-presence",
	"com.almightyalpaca.intellij.plugins.discord",
	"com.tsunderebug.discordintellij",
}

// ExtensionLister returns the IDs of installed editor extensions.
type ExtensionLister interface {
	IDs() ([]string, error)
}

// Env holds the collaborators the probes inspect. Zero-valued fields fall
// back to the real system, except Platform (PlatformOther disables process
// heuristics) and Endpoints (nil skips the endpoint check).
type Env struct {
	Platform       Platform
	Processes      ProcessLister
	Fs             afero.Fs
	Endpoints      []string
	Extensions     ExtensionLister
	Getenv         func(string) string
	ConflictingIDs []string
}

// ///////////////////////////////////////////////
// Service
// ///////////////////////////////////////////////

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for probe failures and results.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithProbeTimeout overrides DefaultProbeTimeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// memo is a value published exactly once.
type memo[T any] struct {
	done chan struct{}
	val  T
}

func newMemo[T any]() *memo[T] {
	return &memo[T]{done: make(chan struct{})}
}

// get waits for the value. On ctx cancellation it returns fallback.
func (m *memo[T]) get(ctx context.Context, fallback T) (T, error) {
	select {
	case <-m.done:
		return m.val, nil
	default:
	}
	select {
	case <-m.done:
		return m.val, nil
	case <-ctx.Done():
		return fallback, ctx.Err()
	}
}

// Service runs the probes concurrently and memoizes their results.
type Service struct {
	env      Env
	strategy clientStrategy
	log      *slog.Logger
	timeout  time.Duration

	startOnce sync.Once
	group     errgroup.Group

	client       *memo[ClientState]
	integrations *memo[IntegrationCount]
	host         *memo[HostState]
}

// NewService returns a Service over env with all probes already running.
func NewService(env Env, opts ...Option) *Service {
	if env.Fs == nil {
		env.Fs = afero.NewOsFs()
	}
	if env.Getenv == nil {
		env.Getenv = os.Getenv
	}
	if env.Processes == nil {
		env.Processes = SystemProcesses{}
	}
	if env.ConflictingIDs == nil {
		env.ConflictingIDs = DefaultConflictingIDs
	}

	s := &Service{
		env:          env,
		strategy:     strategyFor(env.Platform),
		log:          slog.Default().With("component", "diagnose"),
		timeout:      DefaultProbeTimeout,
		client:       newMemo[ClientState](),
		integrations: newMemo[IntegrationCount](),
		host:         newMemo[HostState](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Start()
	return s
}

// Start launches all probes. NewService already calls it; later calls are
// no-ops.
func (s *Service) Start() {
	s.startOnce.Do(func() {
		runProbe(s, "client", s.client, ClientOther, s.probeClient)
		runProbe(s, "integrations", s.integrations, IntegrationsNone, s.probeIntegrations)
		runProbe(s, "host", s.host, HostOther, s.probeHost)
	})
}

// Wait blocks until every probe has settled.
func (s *Service) Wait() {
	_ = s.group.Wait()
}

// ClientState returns the memoized client diagnosis.
func (s *Service) ClientState(ctx context.Context) (ClientState, error) {
	return s.client.get(ctx, ClientOther)
}

// Integrations returns the memoized competing-integration count.
func (s *Service) Integrations(ctx context.Context) (IntegrationCount, error) {
	return s.integrations.get(ctx, IntegrationsNone)
}

// Host returns the memoized host-packaging diagnosis.
func (s *Service) Host(ctx context.Context) (HostState, error) {
	return s.host.get(ctx, HostOther)
}

// Report collects all three results. Results not ready before ctx ends
// are reported as their no-issue default and the ctx error is returned.
func (s *Service) Report(ctx context.Context) (Report, error) {
	client, err1 := s.ClientState(ctx)
	integrations, err2 := s.Integrations(ctx)
	host, err3 := s.Host(ctx)
	return Report{Client: client, Integrations: integrations, Host: host}, errors.Join(err1, err2, err3)
}

// runProbe publishes probe's result into m, settling on fallback when the
// probe errors or panics. Errors never reach the group so siblings keep
// running.
func runProbe[T any](s *Service, name string, m *memo[T], fallback T, probe func(context.Context) (T, error)) {
	s.group.Go(func() error {
		result := fallback
		defer func() {
			if r := recover(); r != nil {
				s.log.Warn("diagnosis probe panicked", "probe", name, "panic", r)
				result = fallback
			}
			m.val = result
			close(m.done)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		v, err := probe(ctx)
		if err != nil {
			s.log.Warn("diagnosis probe failed", "probe", name, "error", err)
			return nil
		}
		result = v
		s.log.Debug("diagnosis probe finished", "probe", name, "result", v)
		return nil
	})
}

// ///////////////////////////////////////////////
// Probes
// ///////////////////////////////////////////////

// probeClient checks endpoint existence first since it is cheap, then
// falls back to process enumeration.
func (s *Service) probeClient(ctx context.Context) (ClientState, error) {
	if s.strategy == nil {
		return ClientOther, nil
	}
	for _, ep := range s.env.Endpoints {
		ok, err := afero.Exists(s.env.Fs, ep)
		if err != nil {
			return ClientOther, err
		}
		if ok {
			return ClientOther, nil
		}
	}

	procs, err := s.env.Processes.Processes(ctx)
	if err != nil {
		return ClientOther, err
	}
	return s.strategy.classify(procs), nil
}

func (s *Service) probeIntegrations(context.Context) (IntegrationCount, error) {
	if s.env.Extensions == nil {
		return IntegrationsNone, nil
	}
	ids, err := s.env.Extensions.IDs()
	if err != nil {
		return IntegrationsNone, err
	}

	conflicting := make(map[string]bool, len(s.env.ConflictingIDs))
	for _, id := range s.env.ConflictingIDs {
		conflicting[strings.ToLower(id)] = true
	}
	n := 0
	for _, id := range ids {
		key := strings.ToLower(id)
		if conflicting[key] {
			n++
			// Count each installed ID once even if it appears in several dirs.
			delete(conflicting, key)
		}
	}
	return countToIntegrations(n), nil
}

func (s *Service) probeHost(context.Context) (HostState, error) {
	if s.env.Getenv("SNAP") != "" || s.env.Getenv("FLATPAK_ID") != "" {
		return HostSandboxed, nil
	}
	ok, err := afero.Exists(s.env.Fs, flatpakInfoPath)
	if err != nil {
		return HostOther, err
	}
	if ok {
		return HostSandboxed, nil
	}
	return HostOther, nil
}
