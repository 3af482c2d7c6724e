package prompts

import (
	"strings"
	"time"

	"github.com/weibaohui/decision-council/internal/domain"
)

// Template 角色指令模板
type Template struct {
	// 元数据
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version" json:"version"`
	Locale      string `yaml:"locale" json:"locale"`
	Role        string `yaml:"role" json:"role"`
	Description string `yaml:"description" json:"description"`

	SystemPrompt string `yaml:"systemPrompt" json:"system_prompt"`
	UserTemplate string `yaml:"userTemplate" json:"user_template"`

	// 路径信息，内置模板为空
	Path     string    `json:"path"`
	LoadedAt time.Time `json:"loaded_at"`
}

// RoleKey 模板对应的角色
func (t *Template) RoleKey() domain.RoleKey {
	return domain.RoleKey(t.Role)
}

// Builtin 是否为内置模板
func (t *Template) Builtin() bool {
	return t.Path == ""
}

// DefaultUserTemplate 模板未提供 userTemplate 时使用
const DefaultUserTemplate = "Decision question:\n{{question}}\n\nContext:\n{{context}}"

// Vars 模板变量
type Vars struct {
	Question  string
	Context   string
	RoleTitle string
	// Extra 额外变量，键为不带花括号的名字
	Extra map[string]string
}

// Render 用变量替换 {{name}} 占位符，未知占位符原样保留
func Render(tmpl string, vars Vars) string {
	pairs := []string{
		"{{question}}", vars.Question,
		"{{context}}", vars.Context,
		"{{role_title}}", vars.RoleTitle,
	}
	for k, v := range vars.Extra {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
