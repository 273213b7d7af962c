// Package settings holds the show-virtual-keyboard-with-hardware-keyboard
// toggle. The value is persisted in a small yaml file; external edits are
// picked up through fsnotify and fanned out to subscribers.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"k8s.io/klog/v2"

	"github.com/openkbd/kbscand/internal/mux"
)

// Store is the settings-storage collaborator seen by the rest of the
// daemon. Subscribers receive the new value whenever it changes, whether
// through Set or an external file edit.
type Store interface {
	mux.Source[bool]
	ShowVirtualKeyboard() bool
	SetShowVirtualKeyboard(bool) error
	Close()
}

type fileContent struct {
	ShowVirtualKeyboard bool `yaml:"show_virtual_keyboard"`
}

type FileStore struct {
	path string

	mu    sync.Mutex
	value bool

	mux     *mux.Mux[bool]
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileStore opens (or initializes) the settings file at path and starts
// watching its directory for external changes. A missing file reads as
// false.
func NewFileStore(path string, wg *sync.WaitGroup) (*FileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create settings watcher: %w", err)
	}
	// Watch the directory, not the file: atomic rename writes would detach
	// a watch on the file itself.
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch settings dir: %w", err)
	}

	s := &FileStore{
		path:    path,
		mux:     mux.Make[bool](),
		watcher: watcher,
		done:    make(chan struct{}),
	}
	s.value = s.read()

	wg.Add(1)
	go s.watch(wg)

	return s, nil
}

func (s *FileStore) read() bool {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			klog.Errorf("failed to read settings file %q: %v", s.path, err)
		}
		return false
	}
	var content fileContent
	if err := yaml.Unmarshal(data, &content); err != nil {
		klog.Errorf("failed to parse settings file %q: %v", s.path, err)
		return false
	}
	return content.ShowVirtualKeyboard
}

func (s *FileStore) watch(wg *sync.WaitGroup) {
	defer wg.Done()
	defer s.mux.Close()
	defer s.watcher.Close()

	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Name != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.reload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			klog.Errorf("settings watcher error: %v", err)
		}
	}
}

func (s *FileStore) reload() {
	value := s.read()

	s.mu.Lock()
	changed := value != s.value
	s.value = value
	s.mu.Unlock()

	if changed {
		klog.V(2).Infof("show-virtual-keyboard changed externally to %v", value)
		s.mux.Submit(value)
	}
}

func (s *FileStore) ShowVirtualKeyboard() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func (s *FileStore) SetShowVirtualKeyboard(value bool) error {
	data, err := yaml.Marshal(fileContent{ShowVirtualKeyboard: value})
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}

	s.mu.Lock()
	changed := value != s.value
	s.value = value
	s.mu.Unlock()

	if changed {
		s.mux.Submit(value)
	}
	return nil
}

func (s *FileStore) Subscribe(sink mux.Sink[bool]) mux.CancelFunc {
	return s.mux.Subscribe(sink)
}

func (s *FileStore) Close() {
	close(s.done)
}
