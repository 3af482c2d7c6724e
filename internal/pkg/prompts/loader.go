package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"
)

// Loader 模板加载器
type Loader struct {
	parser   *Parser
	registry Registry
}

// NewLoader 创建加载器
func NewLoader(parser *Parser, registry Registry) *Loader {
	return &Loader{
		parser:   parser,
		registry: registry,
	}
}

// LoadFromDir 从目录加载所有模板
func (l *Loader) LoadFromDir(dir string) ([]*LoadResult, error) {
	dir = filepath.Clean(dir)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		klog.V(6).Infof("[prompts] 模板目录不存在: %s", dir)
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts directory: %w", err)
	}

	results := make([]*LoadResult, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		// 只处理 .yaml, .yml 和 .json 文件
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}

		results = append(results, l.load(filepath.Join(dir, entry.Name())))
	}

	return results, nil
}

// LoadFromPath 加载单个模板
func (l *Loader) LoadFromPath(path string) (*Template, error) {
	result := l.load(path)
	if result.Error != nil {
		return nil, result.Error
	}
	return result.Template, nil
}

func (l *Loader) load(path string) *LoadResult {
	tmpl, err := l.parser.Parse(path)
	if err != nil {
		return &LoadResult{Path: path, Error: err, Action: "failed"}
	}

	action := "created"
	if l.registry.Exists(tmpl.Name) {
		action = "updated"
	}

	if err := l.registry.Register(tmpl); err != nil {
		return &LoadResult{Template: tmpl, Path: path, Error: err, Action: "failed"}
	}

	return &LoadResult{Template: tmpl, Path: path, Action: action}
}

// UnloadPath 卸载来自该文件的模板
func (l *Loader) UnloadPath(path string) []string {
	path = filepath.Clean(path)
	var removed []string
	for _, tmpl := range l.registry.List() {
		if tmpl.Path == path {
			if err := l.registry.Unregister(tmpl.Name); err == nil {
				removed = append(removed, tmpl.Name)
			}
		}
	}
	return removed
}
