package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"popup-engine/internal/kv"
)

func TestPostgres_NilPool(t *testing.T) {
	ctx := context.Background()
	st := &Postgres{}

	_, err := st.Acquire(ctx)
	assert.ErrorIs(t, err, ErrNoPool)

	_, _, err = st.Frequency("viewer").Get(ctx, "popup:session:x")
	assert.ErrorIs(t, err, kv.ErrUnavailable)
	assert.NotPanics(t, st.Close)
}
