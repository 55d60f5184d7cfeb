package tutor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fadedpez/stemverse/internal/logging"
	"github.com/fadedpez/stemverse/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockModel is a mock implementation of the Model interface
type MockModel struct {
	mock.Mock
}

func (m *MockModel) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func TestAskPrefersModel(t *testing.T) {
	model := new(MockModel)
	model.On("Generate", mock.Anything, "Explain torque with a bike example").
		Return("  Pushing the pedal far from the axle makes more torque.  ", nil)

	service := NewService(model, logging.NewDiscard())
	answer, err := service.Ask(context.Background(), "Explain torque with a bike example")
	require.NoError(t, err)

	assert.Equal(t, SourceModel, answer.Source)
	assert.Equal(t, "Pushing the pedal far from the axle makes more torque.", answer.Text)
	assert.Empty(t, answer.VideoURL)
	model.AssertExpectations(t)
}

func TestAskFallsBackToKeywords(t *testing.T) {
	testCases := []struct {
		name      string
		modelText string
		modelErr  error
	}{
		{name: "unavailable", modelErr: ErrModelUnavailable},
		{name: "wrapped unavailable", modelErr: fmt.Errorf("quota: %w", ErrModelUnavailable)},
		{name: "empty answer", modelText: "   "},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			model := new(MockModel)
			model.On("Generate", mock.Anything, mock.Anything).Return(tc.modelText, tc.modelErr)

			answer, err := NewService(model, logging.NewDiscard()).Ask(context.Background(), "What is a Gear Ratio?")
			require.NoError(t, err)
			assert.Equal(t, SourceKeyword, answer.Source)
			assert.Contains(t, answer.Text, "Gear ratio compares")
			assert.Equal(t, "https://www.youtube.com/watch?v=p5g6zJYy1n8", answer.VideoURL)
		})
	}
}

func TestAskOtherModelErrorsPropagate(t *testing.T) {
	model := new(MockModel)
	model.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("bad request"))

	_, err := NewService(model, logging.NewDiscard()).Ask(context.Background(), "torque?")
	assert.True(t, types.IsAppError(err, types.ErrInternalError))
}

func TestAskWithoutModel(t *testing.T) {
	service := NewService(nil, logging.NewDiscard())

	answer, err := service.Ask(context.Background(), "Tell me about Newton 3")
	require.NoError(t, err)
	assert.Equal(t, SourceKeyword, answer.Source)
	assert.Contains(t, answer.Text, "Newton's Third Law")

	answer, err = service.Ask(context.Background(), "How do volcanoes work?")
	require.NoError(t, err)
	assert.Equal(t, SourceDefault, answer.Source)
	assert.Equal(t, DefaultHint, answer.Text)
	assert.Empty(t, answer.VideoURL)
}

func TestAskEmptyQuestion(t *testing.T) {
	_, err := NewService(nil, logging.NewDiscard()).Ask(context.Background(), "  ")
	assert.True(t, types.IsAppError(err, types.ErrInvalidArgument))
}

func TestLookupOrder(t *testing.T) {
	// Both keywords match; the table is checked in order
	answer := Lookup("gear ratio and torque")
	assert.Contains(t, answer.Text, "Torque is a twisting force")
}
