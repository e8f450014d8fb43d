package checkout

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetRandomString(t *testing.T) {
	s := GetRandomString(13)
	assert.Len(t, s, 13)
	assert.Regexp(t, `^[0-9A-Z]{13}$`, s)
	assert.Empty(t, GetRandomString(0))
}

// 同一时刻的并发调用也不能生成相同的字符串
func TestGetRandomString_Unique(t *testing.T) {
	const n = 1000
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, n)
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := GetRandomString(13)
			mu.Lock()
			seen[s] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}
