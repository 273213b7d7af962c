package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"k8s.io/klog/v2"

	"github.com/openkbd/kbscand/internal/ime"
	"github.com/openkbd/kbscand/internal/input"
	"github.com/openkbd/kbscand/internal/layout"
	"github.com/openkbd/kbscand/internal/layout/memory"
	"github.com/openkbd/kbscand/internal/layout/sqlite"
	"github.com/openkbd/kbscand/internal/mux"
	"github.com/openkbd/kbscand/internal/scan"
	"github.com/openkbd/kbscand/internal/server"
	"github.com/openkbd/kbscand/internal/settings"
)

func main() {
	appWaitGroup := &sync.WaitGroup{}
	defer appWaitGroup.Wait()

	flags := initFlags()
	config := flags.config

	layoutStore, err := newLayoutStore(&config.LayoutStore)
	if err != nil {
		klog.Fatalf("failed to open layout store: %v", err)
	}
	defer layoutStore.Close()

	settingsPath, err := config.settingsPath()
	if err != nil {
		klog.Fatalf("failed to resolve settings path: %v", err)
	}
	settingsStore, err := settings.NewFileStore(settingsPath, appWaitGroup)
	if err != nil {
		klog.Fatalf("failed to open settings store: %v", err)
	}
	defer settingsStore.Close()

	registry := ime.NewStaticRegistry(config.enabledMethods())
	resolver := scan.NewResolver(registry, layoutStore)

	provider := input.NewUdevProvider()
	coordinator := scan.NewCoordinator(provider, resolver, appWaitGroup)
	defer coordinator.Close()

	hotplug, err := input.NewUdevHotplug(appWaitGroup)
	if err != nil {
		klog.Fatalf("failed to start udev hotplug monitor: %v", err)
	}
	defer hotplug.Close()

	detach := coordinator.Attach(hotplug)

	srv := server.New(coordinator, settingsStore, &settings.CommandLauncher{Command: config.ShortcutsHelper}, appWaitGroup)
	teardown := mux.ChainCancelFunc(detach, srv.Close)
	defer teardown()

	// Initial scan; hotplug events take over from here.
	coordinator.Refresh()

	klog.Infof("Starting API server on %s", config.Listen)
	go func() {
		if err := http.ListenAndServe(config.Listen, srv.Handler()); err != nil {
			klog.Fatalf("failed to start API server: %v", err)
		}
	}()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		klog.V(2).Infof("sd-notify not delivered: %v", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	for sig := range sigs {
		switch sig {
		case syscall.SIGINT, syscall.SIGTERM:
			klog.Infof("Received signal %q, shutting down", sig.String())
			return
		}
	}
}

func newLayoutStore(config *LayoutStoreConfig) (layout.Store, error) {
	switch config.Backend {
	case backendMemory:
		return memory.NewStore(), nil
	case backendSqlite:
		path, err := config.dbPath()
		if err != nil {
			return nil, err
		}
		return sqlite.NewStore(path)
	default:
		return nil, fmt.Errorf("unknown layout store backend %q", config.Backend)
	}
}
