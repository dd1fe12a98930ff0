package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sketch-repair/internal/logger"
	"sketch-repair/internal/types"
)

func TestEinoSuggester_NoCredential(t *testing.T) {
	s := NewEinoSuggester(types.SuggestConfig{Enabled: true}, logger.Nop())
	_, err := s.Suggest(context.Background(), Prompt{User: "hi"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrNoCredential, appErr.Code)
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.True(t, IsSoftFailure(err))
}

func TestDisabled(t *testing.T) {
	_, err := Disabled.Suggest(context.Background(), Prompt{})
	assert.ErrorIs(t, err, ErrDisabled)
	assert.True(t, IsSoftFailure(err))
}

func TestIsSoftFailure(t *testing.T) {
	assert.False(t, IsSoftFailure(nil))
	assert.True(t, IsSoftFailure(context.DeadlineExceeded))
	assert.True(t, IsSoftFailure(types.NewAppError(types.ErrOracle, "request failed", errors.New("502"))))
	assert.False(t, IsSoftFailure(errors.New("index out of range")))
	assert.False(t, IsSoftFailure(types.NewAppError(types.ErrInternal, "bug", nil)))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "openai:gpt-4o", Describe(NewEinoSuggester(types.SuggestConfig{}, nil)))
	assert.Equal(t, "openai:local", Describe(NewEinoSuggester(types.SuggestConfig{Model: "local"}, nil)))
	assert.Equal(t, "disabled", Describe(Disabled))
	assert.Equal(t, "none", Describe(nil))
	assert.Equal(t, "oracle.SuggesterFunc", Describe(SuggesterFunc(func(context.Context, Prompt) (string, error) {
		return "", nil
	})))
}
