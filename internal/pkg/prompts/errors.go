package prompts

import "errors"

// 预定义错误
var (
	// ErrTemplateNotFound 模板不存在
	ErrTemplateNotFound = errors.New("prompt template not found")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("invalid prompt template")

	// ErrInvalidName name 格式错误
	ErrInvalidName = errors.New("invalid template name")

	// ErrConfigNotFound 模板文件不存在
	ErrConfigNotFound = errors.New("prompt template file not found")
)
