package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeSortsKeys(t *testing.T) {
	a := map[string]any{"b": 1, "a": map[string]any{"z": true, "y": []any{3, 1, 2}}}
	b := map[string]any{"a": map[string]any{"y": []any{3, 1, 2}, "z": true}, "b": 1}

	assert.Equal(t, `{"a":{"y":[3,1,2],"z":true},"b":1}`, Canonicalize(a))
	assert.Equal(t, Canonicalize(a), Canonicalize(b))
}

func TestCanonicalizeStructsAndScalars(t *testing.T) {
	type inner struct {
		Name    string `json:"name"`
		Skipped string `json:"-"`
		Empty   string `json:"empty,omitempty"`
		hidden  int
	}
	got := Canonicalize(struct {
		Z     *inner    `json:"z"`
		A     []string  `json:"a"`
		When  time.Time `json:"when"`
		Bytes []byte
		Fn    func()
	}{
		Z:    &inner{Name: "x", Skipped: "s", hidden: 1},
		A:    []string{"q"},
		When: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	assert.Equal(t, `{"Bytes":null,"Fn":null,"a":["q"],"when":"2026-01-02T03:04:05Z","z":{"name":"x"}}`, got)
}

func TestCanonicalizeMarksCycles(t *testing.T) {
	m := map[string]any{"name": "root"}
	m["self"] = m
	list := []any{"x", nil}
	list[1] = list

	assert.Equal(t, `{"name":"root","self":"[Circular]"}`, Canonicalize(m))
	assert.Equal(t, `["x","[Circular]"]`, Canonicalize(list))

	type node struct {
		Next *node `json:"next"`
	}
	n := &node{}
	n.Next = n
	assert.NotPanics(t, func() { Canonicalize(n) })
	assert.Contains(t, Canonicalize(n), CircularMarker)
}

func TestCanonicalizeSharedReferenceIsNotCycle(t *testing.T) {
	shared := map[string]any{"k": "v"}
	got := Canonicalize(map[string]any{"a": shared, "b": shared})
	assert.Equal(t, `{"a":{"k":"v"},"b":{"k":"v"}}`, got)
}

func TestSignatureStability(t *testing.T) {
	signer, err := NewSigner("secret")
	require.NoError(t, err)

	a := map[string]any{"role": "RISK_OFFICER", "tokens": 12, "meta": map[string]any{"x": 1, "y": 2}}
	b := map[string]any{"meta": map[string]any{"y": 2, "x": 1}, "tokens": 12, "role": "RISK_OFFICER"}
	assert.Equal(t, signer.Sign(a), signer.Sign(b))
	assert.True(t, signer.Verify(b, signer.Sign(a)))

	flipped := map[string]any{"role": "RISK_OFFICER", "tokens": 13, "meta": map[string]any{"x": 1, "y": 2}}
	assert.NotEqual(t, signer.Sign(a), signer.Sign(flipped))
	assert.False(t, signer.Verify(flipped, signer.Sign(a)))
	assert.False(t, signer.Verify(a, "not-hex"))

	other, err := NewSigner("other")
	require.NoError(t, err)
	assert.NotEqual(t, signer.Sign(a), other.Sign(a))

	_, err = NewSigner("")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestDiffRoundTrip(t *testing.T) {
	prev := map[string]any{"status": "running", "roles": []any{"STRATEGIST"}}
	next := map[string]any{"status": "done", "roles": []any{"STRATEGIST", "RISK_OFFICER"}}

	patch := Diff(prev, next)
	require.NotEmpty(t, patch)
	out, ok := ApplyDiff(Canonicalize(prev), patch)
	assert.True(t, ok)
	assert.Equal(t, Canonicalize(next), out)

	assert.Empty(t, Diff(prev, prev))
}

type memoryStore struct {
	mu      sync.Mutex
	entries []*Entry
	err     error
	calls   int
}

func (s *memoryStore) AppendEntry(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func TestTrailSignsAndDiffsEntries(t *testing.T) {
	signer, _ := NewSigner("secret")
	store := &memoryStore{}
	trail := NewTrail(store, signer, 8)

	trail.Append(Entry{ConsultationID: "c1", Kind: KindRoleCompleted, Payload: map[string]any{"role": "STRATEGIST"}})
	trail.Append(Entry{ConsultationID: "c1", Kind: KindConsensusAssembled, Payload: map[string]any{"role": "STRATEGIST", "done": true}, Final: true})
	trail.Close()

	require.Len(t, store.entries, 2)
	for _, e := range store.entries {
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, e.CreatedAt.Format(PartitionLayout), e.Partition)
		assert.True(t, VerifyEntry(signer, e))
	}
	assert.NotEmpty(t, store.entries[1].Diff)
	assert.Empty(t, trail.states)

	tampered := *store.entries[0]
	tampered.Payload = map[string]any{"role": "LEGAL_ADVISOR"}
	assert.False(t, VerifyEntry(signer, &tampered))
}

func TestTrailSwallowsStoreFailures(t *testing.T) {
	signer, _ := NewSigner("secret")
	store := &memoryStore{err: errors.New("disk full")}
	trail := NewTrail(store, signer, 4)

	assert.NotPanics(t, func() {
		trail.Append(Entry{ConsultationID: "c1", Kind: KindRoleFailed, Payload: map[string]any{}})
		trail.Close()
	})
	assert.Equal(t, 1, store.calls)

	// 关闭后追加直接丢弃
	trail.Append(Entry{ConsultationID: "c1", Kind: KindRoleFailed})
	trail.Close()
	assert.Equal(t, 1, store.calls)
}

func TestNilTrailIsSafe(t *testing.T) {
	var trail *Trail
	assert.NotPanics(t, func() {
		trail.Append(Entry{Kind: KindAdmissionDenied})
		trail.Close()
	})
}
