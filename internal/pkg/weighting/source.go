package weighting

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"k8s.io/klog/v2"

	"github.com/weibaohui/decision-council/internal/pkg/watcher"
)

// Source 启发式规则来源，每次咨询读取一次
type Source interface {
	Rules(ctx context.Context, locale string) ([]Rule, error)
}

// StaticSource 固定规则集
type StaticSource []Rule

// Rules 返回适用于该语言的规则
func (s StaticSource) Rules(ctx context.Context, locale string) ([]Rule, error) {
	return FilterLocale(s, locale), nil
}

// Builtin 内置规则来源
func Builtin() Source {
	return StaticSource(BuiltinRules())
}

// FileSource 从 YAML 文件加载规则，可热更新
type FileSource struct {
	path    string
	mu      sync.RWMutex
	rules   []Rule
	watcher *watcher.FileWatcher
}

// NewFileSource 创建文件规则来源；文件不存在时规则为空
func NewFileSource(path string) (*FileSource, error) {
	s := &FileSource{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload 重新读取规则文件，解析失败时保留旧规则
func (s *FileSource) Reload() error {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			klog.V(6).Infof("[weighting] 规则文件不存在，跳过: %s", s.path)
			s.set(nil)
			return nil
		}
		return fmt.Errorf("read rule file %s: %w", s.path, err)
	}
	rules, err := ParseRules(content)
	if err != nil {
		return fmt.Errorf("parse rule file %s: %w", s.path, err)
	}
	s.set(rules)
	klog.V(6).Infof("[weighting] 加载规则 %d 条: %s", len(rules), s.path)
	return nil
}

func (s *FileSource) set(rules []Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = rules
}

// Rules 返回适用于该语言的规则
func (s *FileSource) Rules(ctx context.Context, locale string) ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FilterLocale(s.rules, locale), nil
}

// Watch 监听规则文件变化并自动重新加载
func (s *FileSource) Watch() error {
	w := watcher.NewFileWatcher(s.path, watcher.DefaultDebounce, func(ev watcher.FileEvent) {
		if err := s.Reload(); err != nil {
			klog.Warningf("[weighting] 规则文件重新加载失败，保留旧规则: %v", err)
		}
	})
	if err := w.Start(); err != nil {
		return err
	}
	s.watcher = w
	return nil
}

// Close 停止监听
func (s *FileSource) Close() {
	if s.watcher != nil {
		s.watcher.Stop()
	}
}

// MultiSource 合并多个规则来源
// 单个来源出错时记录日志并跳过
type MultiSource []Source

// Rules 合并所有来源的规则
func (m MultiSource) Rules(ctx context.Context, locale string) ([]Rule, error) {
	var out []Rule
	var errs []error
	for _, src := range m {
		if src == nil {
			continue
		}
		rules, err := src.Rules(ctx, locale)
		if err != nil {
			klog.Warningf("[weighting] 规则来源读取失败: %v", err)
			errs = append(errs, err)
			continue
		}
		out = append(out, rules...)
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
