package tryon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGuardSingleSlot(t *testing.T) {
	g := NewMemoryGuard()
	ctx := context.Background()

	release, err := g.Acquire(ctx, "s1")
	require.NoError(t, err)

	_, err = g.Acquire(ctx, "s1")
	assert.ErrorIs(t, err, ErrBusy)

	// 다른 세션은 독립적
	releaseOther, err := g.Acquire(ctx, "s2")
	require.NoError(t, err)
	releaseOther()

	release()
	release() // 두 번 호출해도 안전

	again, err := g.Acquire(ctx, "s1")
	require.NoError(t, err)
	again()
}
