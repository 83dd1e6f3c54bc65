package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalOracleIsMonotonic(t *testing.T) {
	o := NewLocal()
	ctx := context.Background()

	start, err := o.GetStartTS(ctx)
	assert.NoError(t, err)

	commit, err := o.GetCommitTS(ctx)
	assert.NoError(t, err)
	assert.Greater(t, commit, start)

	next, err := o.GetStartTS(ctx)
	assert.NoError(t, err)
	assert.Greater(t, next, commit)
}

func TestLocalOracleRejectsCancelledContext(t *testing.T) {
	o := NewLocal()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.GetStartTS(ctx)
	assert.Error(t, err)
}
