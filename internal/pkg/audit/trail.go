package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// Kind 审计条目类型，每个有意义的状态转换一条
type Kind string

const (
	KindRoleCompleted      Kind = "role.completed"
	KindRoleFailed         Kind = "role.failed"
	KindDigestCompleted    Kind = "digest.completed"
	KindConsensusAssembled Kind = "consensus.assembled"
	KindConsultationFailed Kind = "consultation.failed"
	KindAdmissionDenied    Kind = "admission.denied"
)

// PartitionLayout 审计条目按天分区
const PartitionLayout = "2006-01-02"

const (
	defaultQueueSize         = 256
	defaultStoreWriteTimeout = 5 * time.Second
)

// Entry 一条只追加的审计记录
type Entry struct {
	ID             string         `json:"id"`
	ConsultationID string         `json:"consultation_id"`
	Kind           Kind           `json:"kind"`
	Payload        map[string]any `json:"payload"`
	// Diff 相对同一咨询上一状态的补丁
	Diff      string    `json:"diff"`
	Partition string    `json:"partition"`
	Signature string    `json:"signature"`
	CreatedAt time.Time `json:"created_at"`
	// Final 为 true 时释放该咨询的状态缓存
	Final bool `json:"-"`
}

// Signable 参与签名的字段
func (e *Entry) Signable() map[string]any {
	return map[string]any{
		"id":              e.ID,
		"consultation_id": e.ConsultationID,
		"kind":            string(e.Kind),
		"payload":         e.Payload,
		"diff":            e.Diff,
		"partition":       e.Partition,
		"created_at":      e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Store 审计存储，按日期分区追加
type Store interface {
	AppendEntry(ctx context.Context, entry *Entry) error
}

// Trail 异步签名并写入审计存储，写入失败只记录日志
type Trail struct {
	store  Store
	signer *Signer
	now    func() time.Time

	queue chan *Entry
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	// 仅由写入协程访问
	states map[string]string
}

// NewTrail 创建审计轨迹并启动写入协程；store 为空时条目仅签名后丢弃
func NewTrail(store Store, signer *Signer, queueSize int) *Trail {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	t := &Trail{
		store:  store,
		signer: signer,
		now:    time.Now,
		queue:  make(chan *Entry, queueSize),
		states: make(map[string]string),
	}
	t.wg.Add(1)
	go t.loop()
	return t
}

// Append 非阻塞追加，队列满或已关闭时丢弃
func (t *Trail) Append(entry Entry) {
	if t == nil {
		return
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		klog.Warningf("[audit] 审计轨迹已关闭，丢弃条目: kind=%s, consultation=%s", entry.Kind, entry.ConsultationID)
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = t.now().UTC()
	}
	// 存储层通常只保留到毫秒
	entry.CreatedAt = entry.CreatedAt.UTC().Truncate(time.Millisecond)
	select {
	case t.queue <- &entry:
	default:
		klog.Warningf("[audit] 审计队列已满，丢弃条目: kind=%s, consultation=%s", entry.Kind, entry.ConsultationID)
	}
}

// Close 停止接收并等待队列写完
func (t *Trail) Close() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.queue)
	t.mu.Unlock()
	t.wg.Wait()
}

// Seal 计算差异与签名，Append 之外也可用于同步场景
func (t *Trail) Seal(entry *Entry, prevState string) string {
	state := Canonicalize(entry.Payload)
	entry.Diff = DiffCanonical(prevState, state)
	entry.Partition = entry.CreatedAt.UTC().Format(PartitionLayout)
	if t.signer != nil {
		entry.Signature = t.signer.Sign(entry.Signable())
	}
	return state
}

func (t *Trail) loop() {
	defer t.wg.Done()
	for entry := range t.queue {
		t.write(entry)
	}
}

func (t *Trail) write(entry *Entry) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("[audit] 写入审计条目 panic: kind=%s, err=%v", entry.Kind, r)
		}
	}()

	key := entry.ConsultationID
	state := t.Seal(entry, t.states[key])
	if entry.Final {
		delete(t.states, key)
	} else if key != "" {
		t.states[key] = state
	}

	if t.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultStoreWriteTimeout)
	defer cancel()
	if err := t.store.AppendEntry(ctx, entry); err != nil {
		klog.Warningf("[audit] 审计写入失败，已忽略: kind=%s, consultation=%s, err=%v", entry.Kind, entry.ConsultationID, err)
	}
}

// VerifyEntry 校验存储中读出的条目签名
func VerifyEntry(signer *Signer, entry *Entry) bool {
	if signer == nil || entry == nil || entry.Signature == "" {
		return false
	}
	return signer.Verify(entry.Signable(), entry.Signature)
}
