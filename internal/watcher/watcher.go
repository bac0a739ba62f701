// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gen2brain/beeep"
	"golang.org/x/sync/semaphore"

	"github.com/northbound/rag-core/internal/events"
	"github.com/northbound/rag-core/internal/ingest"
	"github.com/northbound/rag-core/internal/logger"
	"github.com/northbound/rag-core/internal/parser"
)

// Config controls the Monitor's concurrency and scan cadence.
type Config struct {
	MaxConcurrent  int           // bounded concurrent pipelines, default 3
	RescanInterval time.Duration // periodic full re-scan, independent of fsnotify
	DebounceDelay  time.Duration
	Notify         bool // enable desktop notifications on completion/failure
}

// DefaultConfig returns the stock monitor settings.
func DefaultConfig() Config {
	return Config{MaxConcurrent: 3, RescanInterval: 5 * time.Minute, DebounceDelay: 500 * time.Millisecond}
}

// Monitor watches configured folders: it detects file
// additions, modifications, and deletions in configured folders, bounds
// concurrent pipeline runs with a semaphore, and feeds the IngestionEngine.
type Monitor struct {
	cfg       Config
	roots     []string
	ledger    *Ledger
	debouncer *Debouncer
	sem       *semaphore.Weighted
	engine    *ingest.Engine
	bus       *events.Bus
	log       *logger.Logger

	fsWatchers map[string]*fsnotify.Watcher

	mu       sync.Mutex
	inFlight map[string]bool // idempotent collapsing of duplicate concurrent runs

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor constructs a Monitor watching roots. ledger persists path
// state across restarts; engine performs the actual ingestion.
func NewMonitor(cfg Config, roots []string, ledger *Ledger, engine *ingest.Engine, bus *events.Bus) *Monitor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 500 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Monitor{
		cfg:        cfg,
		roots:      roots,
		ledger:     ledger,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		engine:     engine,
		bus:        bus,
		log:        logger.GetDefault(),
		fsWatchers: make(map[string]*fsnotify.Watcher),
		inFlight:   make(map[string]bool),
		ctx:        ctx,
		cancel:     cancel,
	}
	m.debouncer = NewDebouncer(cfg.DebounceDelay, m.onDebouncedPath)
	return m
}

// Start begins watching every configured root, processes any existing
// files, and launches the periodic re-scan loop.
func (m *Monitor) Start() error {
	for _, root := range m.roots {
		if err := m.watchRoot(root); err != nil {
			m.log.Errorf("watcher: failed to watch %s: %v", root, err)
			continue
		}
	}
	if m.cfg.RescanInterval > 0 {
		m.wg.Add(1)
		go m.rescanLoop()
	}
	return nil
}

// Stop halts all fsnotify watchers, the debouncer, and the re-scan loop,
// waiting for the event and re-scan loops to exit. Pipeline runs started
// from debounced events are cancelled through the watcher's context but
// not waited for.
func (m *Monitor) Stop() {
	m.cancel()
	m.debouncer.Stop()
	for _, w := range m.fsWatchers {
		w.Close()
	}
	m.wg.Wait()
}

func (m *Monitor) watchRoot(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	if _, err := os.Stat(absRoot); os.IsNotExist(err) {
		if err := os.MkdirAll(absRoot, 0755); err != nil {
			return err
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	err = filepath.Walk(absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if werr := w.Add(path); werr != nil {
				m.log.Warnf("watcher: failed to watch %s: %v", path, werr)
			}
		}
		return nil
	})
	if err != nil {
		w.Close()
		return err
	}

	m.fsWatchers[absRoot] = w
	m.wg.Add(1)
	go m.processEvents(w)

	go m.scanExisting(absRoot)
	return nil
}

func (m *Monitor) processEvents(w *fsnotify.Watcher) {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			m.handleFSEvent(w, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			m.log.Errorf("watcher: fsnotify error: %v", err)
		}
	}
}

func (m *Monitor) handleFSEvent(w *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.Add(ev.Name); err != nil {
				m.log.Warnf("watcher: failed to watch new directory %s: %v", ev.Name, err)
			}
			return
		}
	}

	if ev.Op&fsnotify.Remove == fsnotify.Remove || ev.Op&fsnotify.Rename == fsnotify.Rename {
		m.handleDeleted(ev.Name)
		return
	}

	if ev.Op&fsnotify.Write == fsnotify.Write || ev.Op&fsnotify.Create == fsnotify.Create {
		if parser.IsTemporaryFile(ev.Name) {
			return
		}
		if !parser.IsSupportedFile(ev.Name) {
			return
		}
		m.bus.Publish(events.TypeFileQueued, map[string]any{"path": ev.Name})
		m.debouncer.Trigger(ev.Name)
	}
}

func (m *Monitor) scanExisting(root string) {
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || parser.IsTemporaryFile(path) || !parser.IsSupportedFile(path) {
			return nil
		}
		if m.unchanged(path, info) {
			return nil
		}
		m.bus.Publish(events.TypeFileQueued, map[string]any{"path": path})
		m.debouncer.Trigger(path)
		return nil
	})
	if err != nil {
		m.log.Warnf("watcher: scan of %s failed: %v", root, err)
	}
}

// unchanged reports whether path's tracked state already matches disk,
// letting startup/re-scan skip files nothing has touched.
func (m *Monitor) unchanged(path string, info os.FileInfo) bool {
	st, ok := m.ledger.Get(path)
	if !ok {
		return false
	}
	return st.ModTime.Equal(info.ModTime()) && st.Size == info.Size()
}

func (m *Monitor) rescanLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.RescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.rescanAll()
		}
	}
}

// rescanAll compares the ledger's tracked paths against disk to classify
// deletions a pure fsnotify stream can miss (e.g. if events were dropped),
// then re-walks every root for new/modified files.
func (m *Monitor) rescanAll() {
	tracked, err := m.ledger.All()
	if err != nil {
		m.log.Warnf("watcher: failed to read ledger for rescan: %v", err)
		return
	}
	for _, st := range tracked {
		if _, err := os.Stat(st.Path); os.IsNotExist(err) {
			m.handleDeleted(st.Path)
		}
	}
	for _, root := range m.roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		m.scanExisting(absRoot)
	}
}

func (m *Monitor) handleDeleted(path string) {
	if _, ok := m.ledger.Get(path); !ok {
		return
	}
	if err := m.ledger.Remove(path); err != nil {
		m.log.Warnf("watcher: failed to remove ledger entry for %s: %v", path, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.engine.DeleteFile(ctx, path, ""); err != nil {
		m.log.Warnf("watcher: delete_file failed for %s: %v", path, err)
	}
}

// onDebouncedPath is the debouncer's callback: it acquires a concurrency
// slot and runs the file through the ingestion pipeline, collapsing any
// duplicate trigger that arrives while a run for the same path is
// already in flight.
func (m *Monitor) onDebouncedPath(path string) {
	m.mu.Lock()
	if m.inFlight[path] {
		m.mu.Unlock()
		return
	}
	m.inFlight[path] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.inFlight, path)
		m.mu.Unlock()
	}()

	if err := m.sem.Acquire(m.ctx, 1); err != nil {
		return // context cancelled while queued
	}
	defer m.sem.Release(1)

	m.bus.Publish(events.TypeFileProcessingStarted, map[string]any{"path": path})

	info, err := os.Stat(path)
	if err != nil {
		m.bus.Publish(events.TypeFileProcessingError, map[string]any{"path": path, "error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, 5*time.Minute)
	defer cancel()

	result, err := m.engine.IngestFile(ctx, path, nil)
	if err != nil {
		m.notify(false, path, err.Error())
		return
	}

	hash, _ := fileHash(path)
	if err := m.ledger.Upsert(PathState{
		Path: path, ModTime: info.ModTime(), Size: info.Size(), ContentHash: hash, Status: result.Status,
	}); err != nil {
		m.log.Warnf("watcher: failed to update ledger for %s: %v", path, err)
	}

	m.notify(true, path, result.Status)
}

// notify publishes the file-level lifecycle event and, if desktop
// notifications are enabled, surfaces completion/failure to the OS.
func (m *Monitor) notify(ok bool, path, detail string) {
	if ok {
		m.bus.Publish(events.TypeFileProcessingCompleted, map[string]any{"path": path, "status": detail})
	} else {
		m.bus.Publish(events.TypeFileProcessingFailed, map[string]any{"path": path, "error": detail})
	}

	if !m.cfg.Notify {
		return
	}
	name := filepath.Base(path)
	if ok {
		if err := beeep.Notify("Ingestion complete", name, ""); err != nil {
			m.log.Warnf("watcher: failed to send OS notification: %v", err)
		}
		return
	}
	if err := beeep.Alert("Ingestion failed", name+": "+detail, ""); err != nil {
		m.log.Warnf("watcher: failed to send OS notification: %v", err)
	}
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
