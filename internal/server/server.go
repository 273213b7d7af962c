// Package server exposes the resolved keyboard state and the simple
// settings values over HTTP. It is a thin presentation binder: it only
// consumes applied scan results and never reaches into coordinator state.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/kennygrant/sanitize"

	"k8s.io/klog/v2"

	"github.com/openkbd/kbscand/internal/mux"
	"github.com/openkbd/kbscand/internal/scan"
	"github.com/openkbd/kbscand/internal/settings"
)

// ResultSource is the slice of the coordinator the server consumes: applied
// scan results plus an explicit rescan trigger.
type ResultSource interface {
	mux.Source[scan.Result]
	Refresh()
}

type Server struct {
	coordinator ResultSource
	settings    settings.Store
	helper      settings.HelperLauncher

	mu          sync.RWMutex
	latest      *scan.Result
	showVirtual bool

	cancel mux.CancelFunc
}

// New wires the server to the coordinator's output port and the settings
// change port. The latest applied result and the toggle value are cached
// here; consistency is guaranteed by the coordinator only ever forwarding
// results whose token was still live, and by the settings store notifying
// every change, external file edits included.
func New(coordinator ResultSource, store settings.Store, helper settings.HelperLauncher, wg *sync.WaitGroup) *Server {
	s := &Server{
		coordinator: coordinator,
		settings:    store,
		helper:      helper,
		showVirtual: store.ShowVirtualKeyboard(),
	}

	results := make(chan scan.Result)
	cancelResults := coordinator.Subscribe(mux.SinkFromChan(results))

	wg.Add(1)
	go func() {
		defer wg.Done()
		for res := range results {
			klog.V(2).Infof("presenting scan %d (%d keyboards)", res.Token, len(res.Devices))
			s.mu.Lock()
			r := res
			s.latest = &r
			s.mu.Unlock()
		}
	}()

	changes := make(chan bool)
	cancelChanges := store.Subscribe(mux.SinkFromChan(changes))

	wg.Add(1)
	go func() {
		defer wg.Done()
		for value := range changes {
			klog.V(2).Infof("show-virtual-keyboard is now %v", value)
			s.mu.Lock()
			s.showVirtual = value
			s.mu.Unlock()
		}
	}()

	s.cancel = mux.ChainCancelFunc(cancelResults, cancelChanges)

	return s
}

func (s *Server) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Server) Handler() http.Handler {
	handler := http.NewServeMux()
	handler.HandleFunc("GET /healthz", s.healthz)
	handler.HandleFunc("GET /v1/keyboards", s.keyboards)
	handler.HandleFunc("POST /v1/refresh", s.refresh)
	handler.HandleFunc("GET /v1/settings/show-virtual-keyboard", s.getShowVirtualKeyboard)
	handler.HandleFunc("PUT /v1/settings/show-virtual-keyboard", s.putShowVirtualKeyboard)
	handler.HandleFunc("POST /v1/shortcuts-helper", s.shortcutsHelper)
	return handler
}

type layoutView struct {
	Descriptor string `json:"descriptor"`
	Label      string `json:"label"`
}

type candidateView struct {
	Method       string      `json:"method"`
	Subtype      string      `json:"subtype"`
	DisplayLabel string      `json:"displayLabel"`
	Layout       *layoutView `json:"layout,omitempty"`
}

type keyboardView struct {
	Key        string          `json:"key"`
	Name       string          `json:"name"`
	Vendor     string          `json:"vendor"`
	Product    string          `json:"product"`
	Descriptor string          `json:"descriptor"`
	Candidates []candidateView `json:"candidates"`
}

type keyboardsView struct {
	Scan      uint64         `json:"scan"`
	Keyboards []keyboardView `json:"keyboards"`
}

// DeviceKey is the stable URL-safe handle the presentation layer uses to
// address one attached keyboard.
func DeviceKey(name, descriptor string) string {
	base := strings.Trim(strings.ToLower(sanitize.Name(name)), "-.")
	if base == "" {
		base = "keyboard"
	}
	short := descriptor
	if len(short) > 12 {
		short = short[:12]
	}
	return base + "-" + short
}

func (s *Server) healthz(resp http.ResponseWriter, req *http.Request) {
	resp.WriteHeader(http.StatusOK)
}

func (s *Server) keyboards(resp http.ResponseWriter, req *http.Request) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()

	view := keyboardsView{Keyboards: []keyboardView{}}
	if latest != nil {
		view.Scan = uint64(latest.Token)
		for _, dev := range latest.Devices {
			kb := keyboardView{
				Key:        DeviceKey(dev.Device.Name, dev.Device.Descriptor),
				Name:       dev.Device.Name,
				Vendor:     fmt.Sprintf("%04x", dev.Device.Vendor),
				Product:    fmt.Sprintf("%04x", dev.Device.Product),
				Descriptor: dev.Device.Descriptor,
				Candidates: []candidateView{},
			}
			for _, c := range dev.Candidates {
				cv := candidateView{
					Method:       string(c.Method),
					Subtype:      string(c.Subtype),
					DisplayLabel: c.DisplayLabel(),
				}
				if c.Layout != nil {
					cv.Layout = &layoutView{
						Descriptor: c.Layout.Descriptor,
						Label:      c.Layout.Label,
					}
				}
				kb.Candidates = append(kb.Candidates, cv)
			}
			view.Keyboards = append(view.Keyboards, kb)
		}
	}

	writeJSON(resp, view)
}

func (s *Server) refresh(resp http.ResponseWriter, req *http.Request) {
	s.coordinator.Refresh()
	resp.WriteHeader(http.StatusNoContent)
}

type showVirtualKeyboardView struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) getShowVirtualKeyboard(resp http.ResponseWriter, req *http.Request) {
	s.mu.RLock()
	enabled := s.showVirtual
	s.mu.RUnlock()
	writeJSON(resp, showVirtualKeyboardView{Enabled: enabled})
}

func (s *Server) putShowVirtualKeyboard(resp http.ResponseWriter, req *http.Request) {
	var view showVirtualKeyboardView
	if err := json.NewDecoder(req.Body).Decode(&view); err != nil {
		http.Error(resp, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.settings.SetShowVirtualKeyboard(view.Enabled); err != nil {
		klog.Errorf("failed to persist show-virtual-keyboard: %v", err)
		http.Error(resp, "failed to persist setting", http.StatusInternalServerError)
		return
	}
	s.mu.Lock()
	s.showVirtual = view.Enabled
	s.mu.Unlock()
	resp.WriteHeader(http.StatusNoContent)
}

func (s *Server) shortcutsHelper(resp http.ResponseWriter, req *http.Request) {
	if err := s.helper.Launch(); err != nil {
		klog.Errorf("failed to launch shortcuts helper: %v", err)
		http.Error(resp, "failed to launch shortcuts helper", http.StatusBadGateway)
		return
	}
	resp.WriteHeader(http.StatusNoContent)
}

func writeJSON(resp http.ResponseWriter, v any) {
	resp.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(resp).Encode(v); err != nil {
		klog.Errorf("failed to encode response: %v", err)
	}
}
