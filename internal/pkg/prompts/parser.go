package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/weibaohui/decision-council/internal/domain"
)

var (
	namePattern    = regexp.MustCompile(`^[a-z0-9-]+$`)
	versionPattern = regexp.MustCompile(`^v\d+(\.\d+)?(\.\d+)?$`)
	localePattern  = regexp.MustCompile(`^[a-z]{2}(-[a-z]{2})?$`)
)

// Parser 模板文件解析器
type Parser struct {
	maxDescriptionLen int
	maxNameLen        int
}

// NewParser 创建解析器
func NewParser() *Parser {
	return &Parser{
		maxDescriptionLen: 1024,
		maxNameLen:        64,
	}
}

// Parse 解析模板文件
func (p *Parser) Parse(configPath string) (*Template, error) {
	configPath = filepath.Clean(configPath)

	content, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("failed to read prompt template: %w", err)
	}

	tmpl := &Template{}
	if err := yaml.Unmarshal(content, tmpl); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	tmpl.Path = configPath
	tmpl.LoadedAt = Now()

	if err := p.Validate(tmpl); err != nil {
		return nil, err
	}

	return tmpl, nil
}

// Validate 校验并规范化模板
func (p *Parser) Validate(tmpl *Template) error {
	if tmpl.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(tmpl.Name) > p.maxNameLen {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, p.maxNameLen)
	}
	if !isValidName(tmpl.Name) {
		return fmt.Errorf("%w: name must contain only lowercase letters, numbers, and hyphens, and cannot start or end with hyphen", ErrInvalidName)
	}

	if tmpl.Version == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidConfig)
	}
	if !versionPattern.MatchString(tmpl.Version) {
		return fmt.Errorf("%w: version must be valid semantic version (e.g., v1, v1.0, v1.0.0)", ErrInvalidConfig)
	}

	role, err := domain.ParseRoleKey(tmpl.Role)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	tmpl.Role = string(role)

	tmpl.Locale = strings.ToLower(strings.TrimSpace(tmpl.Locale))
	if tmpl.Locale == "" {
		tmpl.Locale = DefaultLocale
	}
	if !localePattern.MatchString(tmpl.Locale) {
		return fmt.Errorf("%w: locale must look like en or en-us", ErrInvalidConfig)
	}

	if len(tmpl.Description) > p.maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidConfig, p.maxDescriptionLen)
	}

	if strings.TrimSpace(tmpl.SystemPrompt) == "" {
		return fmt.Errorf("%w: systemPrompt is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(tmpl.UserTemplate) == "" {
		tmpl.UserTemplate = DefaultUserTemplate
	}

	return nil
}

// isValidName 校验 name 格式
// 规则：
// - 只能包含小写字母、数字、连字符
// - 不能以连字符开头或结尾
// - 不能包含连续连字符
func isValidName(name string) bool {
	if name == "" {
		return false
	}
	if name[0] == '-' || name[len(name)-1] == '-' {
		return false
	}
	if strings.Contains(name, "--") {
		return false
	}
	return namePattern.MatchString(name)
}
