package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextIDUnique(t *testing.T) {
	Init(1)

	seen := make(map[int64]struct{})
	for i := 0; i < 10000; i++ {
		id := NextID()
		_, dup := seen[id]
		require.False(t, dup, "ID重复: %d", id)
		seen[id] = struct{}{}
	}
}

func TestNextIDConcurrent(t *testing.T) {
	Init(1)

	const goroutines = 10
	const perGoroutine = 1000

	var mu sync.Mutex
	seen := make(map[int64]struct{})
	var wg sync.WaitGroup

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]int64, 0, perGoroutine)
			for i := 0; i < perGoroutine; i++ {
				ids = append(ids, NextID())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				seen[id] = struct{}{}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine, "并发生成不应出现重复")
}

func TestNextIDMonotonicTrend(t *testing.T) {
	Init(1)

	prev := NextID()
	for i := 0; i < 1000; i++ {
		id := NextID()
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestBusinessNoFormats(t *testing.T) {
	Init(1)

	txnNo := GenerateTransactionNo()
	assert.True(t, strings.HasPrefix(txnNo, "TXN"))
	assert.Len(t, txnNo, 3+14+8)

	entryNo := GenerateEntryNo()
	assert.True(t, strings.HasPrefix(entryNo, "ENT"))
	assert.Len(t, entryNo, 3+14+8)

	wdrNo := GenerateWithdrawalNo()
	assert.True(t, strings.HasPrefix(wdrNo, "WDR"))
	assert.Len(t, wdrNo, 3+14+8)
}

func TestGenerateContestCode(t *testing.T) {
	Init(1)

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		code := GenerateContestCode()
		require.True(t, strings.HasPrefix(code, "CKT-"), "code=%s", code)

		body := strings.TrimPrefix(code, "CKT-")
		require.NotEmpty(t, body)
		require.LessOrEqual(t, len(body), 8)
		for _, ch := range body {
			assert.Contains(t, codeAlphabet, string(ch), "非法字符: %s", code)
		}
		seen[code] = struct{}{}
	}
	assert.Len(t, seen, 1000, "加入码不应重复")
}
