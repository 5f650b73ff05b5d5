package cfg

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Watcher 监听配置文件，文件写入后重新解码并回调
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu       sync.RWMutex
	onChange []func(m *Map) error
	onError  func(err error)

	done chan struct{}
	once sync.Once
}

// Watch 监听所在目录，编辑器先写临时文件再重命名的方式也能收到事件
func Watch(path string, fn func(m *Map) error) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "filepath.Abs failed")
	}
	if _, err := FormatOf(abs); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "fsnotify.NewWatcher failed")
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, errors.Wrap(err, "watcher.Add failed")
	}

	w := &Watcher{path: abs, watcher: fw, done: make(chan struct{})}
	if fn != nil {
		w.onChange = append(w.onChange, fn)
	}
	go w.loop()
	return w, nil
}

// OnChange 追加回调
func (w *Watcher) OnChange(fn func(m *Map) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// OnError 解码或回调失败时调用
func (w *Watcher) OnError(fn func(err error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = fn
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.fail(errors.Wrap(err, "fsnotify"))
		}
	}
}

func (w *Watcher) reload() {
	m, err := Load(w.path)
	if err != nil {
		w.fail(err)
		return
	}

	w.mu.RLock()
	handlers := make([]func(m *Map) error, len(w.onChange))
	copy(handlers, w.onChange)
	w.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(m); err != nil {
			w.fail(err)
		}
	}
}

func (w *Watcher) fail(err error) {
	w.mu.RLock()
	fn := w.onError
	w.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
