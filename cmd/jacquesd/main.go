package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jacquesd/jacquesd/internal/adapter"
	"github.com/jacquesd/jacquesd/internal/config"
	"github.com/jacquesd/jacquesd/internal/focus"
	"github.com/jacquesd/jacquesd/internal/handoff"
	"github.com/jacquesd/jacquesd/internal/hub"
	"github.com/jacquesd/jacquesd/internal/ingress"
	"github.com/jacquesd/jacquesd/internal/router"
	"github.com/jacquesd/jacquesd/internal/session"
	"github.com/jacquesd/jacquesd/internal/tile"
)

// shutdownGrace bounds how long in-flight adapter calls get to finish
// before the process exits (spec §5: "drain in-flight adapter calls with
// a short grace period").
const shutdownGrace = 2 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to ~/.config/jacquesd/config.yaml)")
	port := flag.Int("port", 0, "override the subscription WebSocket port")
	flag.Parse()

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("jacquesd: failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	h := hub.NewHub()

	hoff := handoff.New(cfg.Handoff.RelPath, cfg.Handoff.Debounce, func(sessionID, path string) {
		h.BroadcastHandoffReady(sessionID, path)
	})
	defer hoff.StopAll()

	var tiles = tile.NewManager()
	var watchedRoots sync.Map // sessionID -> last watched project root

	reg := session.NewRegistry(func(s *session.Session) {
		tiles.RemoveSession(s.SessionID)
		hoff.Stop(s.SessionID)
		watchedRoots.Delete(s.SessionID)
		h.BroadcastSessionRemoved(s.SessionID)
	})

	reaper := session.NewReaper(reg, cfg.Reaper.StaleInterval, cfg.Reaper.StaleThreshold, cfg.Reaper.ProcessInterval)
	reaper.Start()
	defer reaper.Stop()

	ingressServer := ingress.NewServer(cfg.Ingress.SocketPath, reg, func(s *session.Session) {
		root := s.GitRepoRoot
		if root == "" {
			root = s.Cwd
		}
		if root != "" {
			if prev, ok := watchedRoots.Load(s.SessionID); !ok || prev.(string) != root {
				if err := hoff.Watch(s.SessionID, root); err != nil {
					log.Printf("jacquesd: handoff watch failed for %s: %v", s.SessionID, err)
				} else {
					watchedRoots.Store(s.SessionID, root)
				}
			}
		}
		h.BroadcastSessionUpdate(s)
	})
	if err := ingressServer.Listen(); err != nil {
		log.Fatalf("jacquesd: failed to bind ingress socket %s: %v", cfg.Ingress.SocketPath, err)
	}
	go ingressServer.Serve()
	defer ingressServer.Stop()

	platformAdapter := adapter.NewPlatformAdapter()

	focusWatcher := focus.New(newFocusProbe(), reg, cfg.Focus.PollInterval, func(sessionID string, s *session.Session) {
		h.BroadcastFocusChanged(sessionID, s)
	})

	autocompactPath := config.DefaultAutocompactSettingsPath()
	notificationPath := config.DefaultNotificationSettingsPath()

	rt := router.New(reg, tiles, platformAdapter, h, nil, nil, autocompactPath, notificationPath)

	wsServer := hub.NewServer(h, rt, cfg.Server.AllowedOrigins, func() ([]*session.Session, string) {
		return reg.All(), reg.FocusedID()
	})

	mux := http.NewServeMux()
	wsServer.SetupRoutes(mux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		focusWatcher.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				reloadConfig(cfgPath, cfg)
				continue
			}
			log.Println("jacquesd: shutting down...")
			cancel()
			ingressServer.Stop()
			reaper.Stop()
			hoff.StopAll()
			wg.Wait()
			time.Sleep(shutdownGrace)
			os.Exit(0)
		}
	}()

	log.Printf("jacquesd: listening on %s:%d (ingress: %s)", cfg.Server.Host, cfg.Server.Port, cfg.Ingress.SocketPath)
	if err := hub.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("jacquesd: server error: %v", err)
	}
}

// reloadConfig re-reads cfgPath and logs what changed. Only the fields
// config.Diff recognises as safe to apply live are meaningful here; the
// daemon's listeners are not rebound on SIGHUP.
func reloadConfig(cfgPath string, current *config.Config) {
	updated, err := config.Load(cfgPath)
	if err != nil {
		log.Printf("jacquesd: SIGHUP: failed to reload config: %v", err)
		return
	}
	changes := config.Diff(current, updated)
	if len(changes) == 0 {
		log.Println("jacquesd: SIGHUP: no reloadable changes")
		return
	}
	for _, c := range changes {
		log.Printf("jacquesd: SIGHUP: %s", c)
	}
	*current = *updated
}
