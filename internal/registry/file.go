package registry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rgehrsitz/taxcalc/internal/calculation"
	"github.com/rgehrsitz/taxcalc/internal/config"
	"github.com/rgehrsitz/taxcalc/internal/domain"
)

// File serves policies and brackets from a rules YAML file. The loaded rule
// set is an immutable snapshot swapped on Reload, so lookups never block.
// Watch is opt-in; without it the file is read only on NewFile and Reload.
type File struct {
	path     string
	parser   *config.InputParser
	logger   calculation.Logger
	debounce time.Duration
	onReload func(generation uint64, rs *domain.RuleSet, err error)

	current     atomic.Pointer[domain.RuleSet]
	generation  atomic.Uint64
	reloadError atomic.Pointer[error]

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// FileOption configures a File registry
type FileOption func(*File)

// WithLogger sets the logger used for reload reports
func WithLogger(logger calculation.Logger) FileOption {
	return func(f *File) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithDebounce sets how long Watch waits for writes to settle before reloading
func WithDebounce(d time.Duration) FileOption {
	return func(f *File) { f.debounce = d }
}

// WithReloadHook registers fn to run after every reload attempt. On failure
// rs is nil and generation is that of the snapshot still in use.
func WithReloadHook(fn func(generation uint64, rs *domain.RuleSet, err error)) FileOption {
	return func(f *File) { f.onReload = fn }
}

// NewFile loads the rules file at path
func NewFile(path string, opts ...FileOption) (*File, error) {
	f := &File{
		path:     path,
		parser:   config.NewInputParser(),
		logger:   calculation.NopLogger{},
		debounce: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(f)
	}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Reload rereads the rules file. On failure the previous snapshot stays in use.
func (f *File) Reload() error {
	rs, err := f.parser.LoadFromFile(f.path)
	if err != nil {
		f.reloadError.Store(&err)
		if f.onReload != nil {
			f.onReload(f.generation.Load(), nil, err)
		}
		return err
	}
	f.current.Store(rs)
	f.reloadError.Store(nil)
	gen := f.generation.Add(1)
	f.logger.Infof("loaded %d jurisdictions from %s (generation %d)", len(rs.Jurisdictions), f.path, gen)
	if f.onReload != nil {
		f.onReload(gen, rs, nil)
	}
	return nil
}

// RuleSet returns the current snapshot
func (f *File) RuleSet() *domain.RuleSet {
	return f.current.Load()
}

// Generation counts successful loads
func (f *File) Generation() uint64 {
	return f.generation.Load()
}

// LastError returns the error of the most recent failed reload, or nil
func (f *File) LastError() error {
	if p := f.reloadError.Load(); p != nil {
		return *p
	}
	return nil
}

// GetPolicy implements calculation.JurisdictionRegistry
func (f *File) GetPolicy(_ context.Context, j domain.Jurisdiction) (domain.Policy, error) {
	return f.current.Load().PolicyOf(j)
}

// GetBrackets implements calculation.BracketSource
func (f *File) GetBrackets(_ context.Context, j domain.Jurisdiction, status domain.FilingStatus) ([]domain.Bracket, error) {
	return f.current.Load().BracketsOf(j, status)
}

// Watch reloads the rules file whenever it changes until ctx is done or
// Close is called. Either way the watcher is released and Watch may be
// called again. The directory is watched so that editors which replace
// the file are seen too.
func (f *File) Watch(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watcher != nil {
		return errors.New("registry file is already being watched")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", f.path, err)
	}

	f.watcher = watcher
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	go f.run(ctx, watcher, f.stopCh, f.doneCh)
	f.logger.Debugf("watching %s", f.path)
	return nil
}

// Close stops watching and waits for the watch loop to exit
func (f *File) Close() error {
	f.mu.Lock()
	watcher, stopCh, doneCh := f.watcher, f.stopCh, f.doneCh
	f.watcher, f.stopCh, f.doneCh = nil, nil, nil
	f.mu.Unlock()

	if watcher == nil {
		return nil
	}
	close(stopCh)
	<-doneCh
	return watcher.Close()
}

func (f *File) run(ctx context.Context, watcher *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	defer f.release(watcher)

	target := filepath.Clean(f.path)
	timer := time.NewTimer(f.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(f.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			f.logger.Errorf("watch %s: %v", f.path, err)

		case <-timer.C:
			if err := f.Reload(); err != nil {
				f.logger.Warnf("reload of %s failed, keeping previous rules: %v", f.path, err)
			}
		}
	}
}

// release closes watcher when the loop ends on its own. After Close has
// taken the watcher, Close owns it and release does nothing.
func (f *File) release(watcher *fsnotify.Watcher) {
	f.mu.Lock()
	owned := f.watcher == watcher
	if owned {
		f.watcher, f.stopCh, f.doneCh = nil, nil, nil
	}
	f.mu.Unlock()

	if !owned {
		return
	}
	if err := watcher.Close(); err != nil {
		f.logger.Warnf("close watcher for %s: %v", f.path, err)
	}
	f.logger.Debugf("stopped watching %s", f.path)
}
