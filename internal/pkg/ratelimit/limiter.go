package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"k8s.io/klog/v2"
)

// Store 计数器存储，条目在 ttl 后自动过期
type Store interface {
	Get(ctx context.Context, key string) (int64, bool, error)
	Put(ctx context.Context, key string, value int64, ttl time.Duration) error
}

// Window 一个固定时间窗口及其上限
type Window struct {
	Name   string
	Length time.Duration
	Limit  int64
}

// DefaultWindows 短窗口 1s/2 次，长窗口 600s/5 次
func DefaultWindows() []Window {
	return []Window{
		{Name: "short", Length: time.Second, Limit: 2},
		{Name: "long", Length: 600 * time.Second, Limit: 5},
	}
}

// Decision 准入结果
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	// Window 触发拒绝的窗口（剩余时间最短的那个）
	Window string
}

// RetryAfterSeconds 向上取整的等待秒数，拒绝时至少为 1
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Option 限流器选项
type Option func(*Limiter)

// WithClock 替换时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// Limiter 多窗口限流器
// 计数为尽力而为：并发下丢失一次自增是可接受的
type Limiter struct {
	store   Store
	windows []Window
	now     func() time.Time
}

// NewLimiter 创建限流器；store 为 nil 时所有请求放行
func NewLimiter(store Store, windows []Window, opts ...Option) *Limiter {
	if len(windows) == 0 {
		windows = DefaultWindows()
	}
	l := &Limiter{
		store:   store,
		windows: windows,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func bucketKey(callerKey string, w Window, start time.Time) string {
	return fmt.Sprintf("rl:%s:%s:%d", callerKey, w.Name, start.Unix())
}

// Admit 检查并记录一次调用
// 任一窗口饱和即拒绝，RetryAfter 为饱和窗口中最早的重置时间
// 计数存储不可用时放行
func (l *Limiter) Admit(ctx context.Context, callerKey string) Decision {
	if l == nil || l.store == nil {
		return Decision{Allowed: true}
	}

	now := l.now()
	keys := make([]string, len(l.windows))
	counts := make([]int64, len(l.windows))

	var denied *Decision
	for i, w := range l.windows {
		start := now.Truncate(w.Length)
		keys[i] = bucketKey(callerKey, w, start)

		count, ok, err := l.store.Get(ctx, keys[i])
		if err != nil {
			klog.Warningf("[ratelimit] 计数存储读取失败，放行: key=%s, error=%v", keys[i], err)
			return Decision{Allowed: true}
		}
		if !ok {
			count = 0
		}
		counts[i] = count

		if count >= w.Limit {
			remaining := start.Add(w.Length).Sub(now)
			if denied == nil || remaining < denied.RetryAfter {
				denied = &Decision{Allowed: false, RetryAfter: remaining, Window: w.Name}
			}
		}
	}

	if denied != nil {
		klog.V(6).Infof("[ratelimit] 拒绝: caller=%s, window=%s, retryAfter=%s", callerKey, denied.Window, denied.RetryAfter)
		return *denied
	}

	for i, w := range l.windows {
		if err := l.store.Put(ctx, keys[i], counts[i]+1, w.Length); err != nil {
			klog.Warningf("[ratelimit] 计数存储写入失败: key=%s, error=%v", keys[i], err)
		}
	}
	return Decision{Allowed: true}
}

// CallerKey 由网络来源和软会话令牌组成调用方标识
func CallerKey(origin, sessionToken string) string {
	if sessionToken == "" {
		return origin
	}
	return origin + "|" + sessionToken
}
