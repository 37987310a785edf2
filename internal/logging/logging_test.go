package logging

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"info", zerolog.InfoLevel},
		{"DEBUG", zerolog.DebugLevel},
		{" warn ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, parseLevel(tc.in), "level %q", tc.in)
	}
}

func TestWithRunID(t *testing.T) {
	ctx, id := WithRunID(context.Background(), "")
	assert.NotEmpty(t, id)
	assert.Equal(t, id, RunID(ctx))

	ctx, id = WithRunID(context.Background(), " run-7 ")
	assert.Equal(t, "run-7", id)
	assert.Equal(t, "run-7", RunID(ctx))

	assert.Empty(t, RunID(context.Background()))

	ctx, id = WithRunID(nil, "x")
	assert.Equal(t, "x", id)
	assert.Equal(t, "x", RunID(ctx))
}
