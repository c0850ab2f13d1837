package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	const n = 2000
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, n)
		wg   sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < n/4; j++ {
				no := GenerateEntryNo()
				mu.Lock()
				seen[no] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestPrefixes(t *testing.T) {
	assert.True(t, strings.HasPrefix(GenerateEntryNo(), "LED"))
	assert.True(t, strings.HasPrefix(GenerateGiftNo(), "GFT"))
	assert.True(t, strings.HasPrefix(GenerateEventKey(), "EVT"))
	assert.LessOrEqual(t, len(GenerateEntryNo()), 64)
}

func TestInitRejectsMissingNode(t *testing.T) {
	assert.ErrorIs(t, Init(0), ErrInvalidNodeID)
	assert.ErrorIs(t, Init(-1), ErrInvalidNodeID)
	assert.ErrorIs(t, Init(maxNode+1), ErrInvalidNodeID)

	require.NoError(t, Init(7))
	assert.Equal(t, int64(7), current().Generate().Node())

	// 第一次成功的配置生效
	require.NoError(t, Init(8))
	assert.Equal(t, int64(7), current().Generate().Node())
}
