package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"k8s.io/klog/v2"
)

// ErrClosed watcher 已关闭
var ErrClosed = errors.New("watcher is closed")

// DefaultDebounce 同一文件事件的合并间隔
const DefaultDebounce = 200 * time.Millisecond

// FileEvent 文件变化事件
type FileEvent struct {
	Type string // create, modify, delete
	Path string
}

// FileWatcher 基于 fsnotify 的文件监听器
// target 可以是目录（监听其中的配置文件）或单个文件
type FileWatcher struct {
	target   string
	dir      string
	file     string
	debounce time.Duration
	callback func(FileEvent)
	exts     map[string]bool

	mu      sync.Mutex
	fs      *fsnotify.Watcher
	timers  map[string]*time.Timer
	pending map[string]FileEvent
	stop    chan struct{}
	closed  bool
}

// NewFileWatcher 创建文件监听器，exts 为空时接受 .yaml/.yml/.json/.toml
func NewFileWatcher(target string, debounce time.Duration, callback func(FileEvent), exts ...string) *FileWatcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if len(exts) == 0 {
		exts = []string{".yaml", ".yml", ".json", ".toml"}
	}
	allowed := make(map[string]bool, len(exts))
	for _, ext := range exts {
		allowed[strings.ToLower(ext)] = true
	}
	return &FileWatcher{
		target:   target,
		debounce: debounce,
		callback: callback,
		exts:     allowed,
		timers:   make(map[string]*time.Timer),
		pending:  make(map[string]FileEvent),
		stop:     make(chan struct{}),
	}
}

// Start 启动监听
func (w *FileWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	abs, err := filepath.Abs(w.target)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	switch {
	case err == nil && info.IsDir():
		w.dir = abs
	case err == nil || os.IsNotExist(err):
		// 单个文件：监听所在目录，便于捕获编辑器的 rename 写入
		w.dir = filepath.Dir(abs)
		w.file = abs
	default:
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return err
	}
	w.fs = fsw

	go w.run(fsw)
	klog.V(6).Infof("[watcher] 开始监听: %s", abs)
	return nil
}

// Stop 停止监听
func (w *FileWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.stop)
	for _, t := range w.timers {
		t.Stop()
	}
	if w.fs != nil {
		w.fs.Close()
	}
}

func (w *FileWatcher) run(fsw *fsnotify.Watcher) {
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			klog.Warningf("[watcher] 监听错误: %v", err)
		}
	}
}

func (w *FileWatcher) accept(path string) bool {
	if w.file != "" {
		return path == w.file
	}
	return w.exts[strings.ToLower(filepath.Ext(path))]
}

func eventType(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return "delete"
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "modify"
	default:
		return ""
	}
}

func (w *FileWatcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !w.accept(path) {
		return
	}
	typ := eventType(ev.Op)
	if typ == "" {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	// 合并：create 后紧跟 modify 仍报告 create
	if prev, ok := w.pending[path]; ok && prev.Type == "create" && typ == "modify" {
		typ = "create"
	}
	w.pending[path] = FileEvent{Type: typ, Path: path}

	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() { w.fire(path) })
}

func (w *FileWatcher) fire(path string) {
	w.mu.Lock()
	ev, ok := w.pending[path]
	delete(w.pending, path)
	delete(w.timers, path)
	closed := w.closed
	w.mu.Unlock()

	if !ok || closed {
		return
	}
	w.callback(ev)
}
