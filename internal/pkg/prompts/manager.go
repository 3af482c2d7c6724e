package prompts

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"

	"github.com/weibaohui/decision-council/internal/domain"
	"github.com/weibaohui/decision-council/internal/pkg/watcher"
)

// Config Manager 配置
type Config struct {
	Dir        string
	AutoReload bool
}

// Manager 模板管理器：内置模板 + 目录中的覆盖模板
type Manager struct {
	Config   *Config
	Registry Registry
	Parser   *Parser
	Loader   *Loader
	watcher  *watcher.FileWatcher
}

// NewManager 创建 Manager；目录为空或不存在时只使用内置模板
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		config = &Config{}
	}

	registry := NewRegistry()
	parser := NewParser()
	m := &Manager{
		Config:   config,
		Registry: registry,
		Parser:   parser,
		Loader:   NewLoader(parser, registry),
	}
	m.registerBuiltins()

	if config.Dir == "" {
		return m, nil
	}

	dir, err := filepath.Abs(config.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve prompts dir: %w", err)
	}
	config.Dir = dir

	results, err := m.Loader.LoadFromDir(dir)
	if err != nil {
		klog.Warningf("[prompts] 加载模板目录失败: %v", err)
	} else {
		logResults(results)
	}

	if config.AutoReload {
		if _, statErr := os.Stat(dir); statErr == nil {
			m.startWatcher()
		} else {
			klog.V(6).Infof("[prompts] 模板目录不存在，不启动热加载: %s", dir)
		}
	}

	return m, nil
}

func logResults(results []*LoadResult) {
	created, updated, failed := 0, 0, 0
	for _, r := range results {
		switch r.Action {
		case "created":
			created++
		case "updated":
			updated++
		case "failed":
			failed++
			klog.Warningf("[prompts] 模板加载失败: path=%s, error=%v", r.Path, r.Error)
		}
	}
	if created > 0 || updated > 0 {
		klog.V(6).Infof("[prompts] 加载模板 %d 个，覆盖 %d 个", created, updated)
	}
	if failed > 0 {
		klog.Warningf("[prompts] %d 个模板加载失败", failed)
	}
}

// registerBuiltins 注册内置模板，已被文件覆盖的不重复注册
func (m *Manager) registerBuiltins() {
	for _, tmpl := range BuiltinTemplates() {
		if m.Registry.Exists(tmpl.Name) {
			continue
		}
		if err := m.Registry.Register(tmpl); err != nil {
			klog.Errorf("[prompts] 注册内置模板失败: %s, error=%v", tmpl.Name, err)
		}
	}
}

// startWatcher 启动文件监听
func (m *Manager) startWatcher() {
	m.watcher = watcher.NewFileWatcher(m.Config.Dir, watcher.DefaultDebounce, m.handleEvent, ".yaml", ".yml", ".json")
	if err := m.watcher.Start(); err != nil {
		klog.Warningf("[prompts] 启动文件监听失败: %v", err)
		m.watcher = nil
	}
}

func (m *Manager) handleEvent(event watcher.FileEvent) {
	switch event.Type {
	case "create", "modify":
		// 文件内的 name 可能改过，先卸载该文件的旧模板
		m.Loader.UnloadPath(event.Path)
		if tmpl, err := m.Loader.LoadFromPath(event.Path); err != nil {
			klog.Warningf("[prompts] 模板加载失败: %s, error=%v", event.Path, err)
		} else {
			klog.V(6).Infof("[prompts] 模板已加载: %s (%s)", tmpl.Name, event.Path)
		}
	case "delete":
		if removed := m.Loader.UnloadPath(event.Path); len(removed) > 0 {
			klog.V(6).Infof("[prompts] 模板已卸载: %v", removed)
		}
	}
	m.registerBuiltins()
}

// Stop 停止 Manager
func (m *Manager) Stop() {
	if m.watcher != nil {
		m.watcher.Stop()
	}
}

// ReloadAll 卸载所有文件模板并重新加载目录
func (m *Manager) ReloadAll() error {
	for _, tmpl := range m.Registry.List() {
		if !tmpl.Builtin() {
			_ = m.Registry.Unregister(tmpl.Name)
		}
	}
	m.registerBuiltins()
	if m.Config.Dir == "" {
		return nil
	}
	results, err := m.Loader.LoadFromDir(m.Config.Dir)
	if err != nil {
		return err
	}
	logResults(results)
	return nil
}

// GetRoleInstructions 返回角色的系统指令与用户模板
func (m *Manager) GetRoleInstructions(role domain.RoleKey, packVersion, locale string) (string, string, error) {
	tmpl, err := m.Registry.Resolve(role, packVersion, locale)
	if err != nil {
		return "", "", err
	}
	return tmpl.SystemPrompt, tmpl.UserTemplate, nil
}

// Resolve 返回完整模板，用于记录实际使用的版本
func (m *Manager) Resolve(role domain.RoleKey, packVersion, locale string) (*Template, error) {
	return m.Registry.Resolve(role, packVersion, locale)
}
