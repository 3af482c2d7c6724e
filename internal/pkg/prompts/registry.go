package prompts

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/weibaohui/decision-council/internal/domain"
)

// DefaultLocale 找不到请求语言时回退的语言
const DefaultLocale = "en"

// Registry 模板注册中心接口
type Registry interface {
	// Register 注册模板，同名覆盖
	Register(tmpl *Template) error

	// Unregister 注销模板
	Unregister(name string) error

	// Get 获取指定名称的模板
	Get(name string) (*Template, error)

	// List 按名称排序列出所有模板
	List() []*Template

	// Exists 检查模板是否存在
	Exists(name string) bool

	// Resolve 按 角色/版本/语言 查找模板，带回退
	Resolve(role domain.RoleKey, packVersion, locale string) (*Template, error)
}

// registry Registry 的实现
type registry struct {
	mu        sync.RWMutex
	templates map[string]*Template // name -> Template
}

// NewRegistry 创建新的 Registry 实例
func NewRegistry() Registry {
	return &registry{
		templates: make(map[string]*Template),
	}
}

// Register 注册模板
func (r *registry) Register(tmpl *Template) error {
	if tmpl == nil {
		return fmt.Errorf("template cannot be nil")
	}
	if tmpl.Name == "" {
		return fmt.Errorf("template name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.templates[tmpl.Name] = tmpl
	return nil
}

// Unregister 注销模板
func (r *registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[name]; !exists {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}

	delete(r.templates, name)
	return nil
}

// Get 获取指定名称的模板
func (r *registry) Get(name string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tmpl, exists := r.templates[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return tmpl, nil
}

// List 列出所有模板
func (r *registry) List() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Template, 0, len(r.templates))
	for _, tmpl := range r.templates {
		result = append(result, tmpl)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Exists 检查模板是否存在
func (r *registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.templates[name]
	return exists
}

// Resolve 查找顺序：
// 1. 指定版本 + 指定语言
// 2. 指定版本 + 默认语言
// 3. 最新版本 + 指定语言
// 4. 最新版本 + 默认语言
// 同一条件下文件模板优先于内置模板
func (r *registry) Resolve(role domain.RoleKey, packVersion, locale string) (*Template, error) {
	locale = strings.ToLower(locale)
	if locale == "" {
		locale = DefaultLocale
	}

	r.mu.RLock()
	candidates := make([]*Template, 0)
	for _, tmpl := range r.templates {
		if tmpl.RoleKey() == role {
			candidates = append(candidates, tmpl)
		}
	}
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: role %s", ErrTemplateNotFound, role)
	}

	// 版本降序，文件模板在前，再按名称
	sort.Slice(candidates, func(i, j int) bool {
		if c := compareVersion(candidates[i].Version, candidates[j].Version); c != 0 {
			return c > 0
		}
		if candidates[i].Builtin() != candidates[j].Builtin() {
			return !candidates[i].Builtin()
		}
		return candidates[i].Name < candidates[j].Name
	})

	find := func(version, loc string) *Template {
		for _, tmpl := range candidates {
			if version != "" && tmpl.Version != version {
				continue
			}
			if localeMatches(tmpl.Locale, loc) {
				return tmpl
			}
		}
		return nil
	}

	if packVersion != "" {
		if t := find(packVersion, locale); t != nil {
			return t, nil
		}
		if t := find(packVersion, DefaultLocale); t != nil {
			return t, nil
		}
	}
	if t := find("", locale); t != nil {
		return t, nil
	}
	if t := find("", DefaultLocale); t != nil {
		return t, nil
	}
	return nil, fmt.Errorf("%w: role %s version %s locale %s", ErrTemplateNotFound, role, packVersion, locale)
}

// localeMatches en-us 可以使用 en 的模板
func localeMatches(tmplLocale, want string) bool {
	if tmplLocale == want {
		return true
	}
	base, _, found := strings.Cut(want, "-")
	return found && tmplLocale == base
}

// compareVersion 比较 v1 / v1.2 / v1.2.3 形式的版本
func compareVersion(a, b string) int {
	pa := versionParts(a)
	pb := versionParts(b)
	for i := 0; i < 3; i++ {
		if pa[i] != pb[i] {
			if pa[i] > pb[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

func versionParts(v string) [3]int {
	var out [3]int
	parts := strings.Split(strings.TrimPrefix(v, "v"), ".")
	for i := 0; i < len(parts) && i < 3; i++ {
		n, _ := strconv.Atoi(parts[i])
		out[i] = n
	}
	return out
}
