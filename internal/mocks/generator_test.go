package mocks_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/phrazzld/relay-api/internal/generation"
	"github.com/phrazzld/relay-api/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGenerator(t *testing.T) {
	t.Parallel()

	t.Run("canned responses", func(t *testing.T) {
		t.Parallel()
		gen := mocks.NewMockGenerator()
		ctx := context.Background()

		analysis, err := gen.AnalyzeContent(ctx, generation.AnalysisRequest{Text: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "positive", analysis.Sentiment)

		text, err := gen.GenerateText(ctx, generation.TextRequest{Topic: "go"})
		require.NoError(t, err)
		assert.NotEmpty(t, text.Text)

		images, err := gen.GenerateImages(ctx, generation.ImageRequest{Prompt: "a cat"})
		require.NoError(t, err)
		assert.Len(t, images, 1)

		a, tx, im := gen.Calls()
		assert.Equal(t, 1, a)
		assert.Equal(t, 1, tx)
		assert.Equal(t, 1, im)
		assert.Equal(t, "hi", gen.AnalysisRequests[0].Text)
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()
		gen := mocks.NewMockGeneratorWithError(generation.ErrContentBlocked)

		_, err := gen.GenerateText(context.Background(), generation.TextRequest{})
		assert.ErrorIs(t, err, generation.ErrContentBlocked)
	})

	t.Run("custom function", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		gen := &mocks.MockGenerator{
			GenerateImagesFn: func(ctx context.Context, req generation.ImageRequest) ([]generation.Image, error) {
				if req.Count > 2 {
					return nil, boom
				}
				return make([]generation.Image, req.Count), nil
			},
		}

		images, err := gen.GenerateImages(context.Background(), generation.ImageRequest{Count: 2})
		require.NoError(t, err)
		assert.Len(t, images, 2)

		_, err = gen.GenerateImages(context.Background(), generation.ImageRequest{Count: 3})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("concurrent calls are tracked", func(t *testing.T) {
		t.Parallel()
		gen := mocks.NewMockGenerator()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = gen.AnalyzeContent(context.Background(), generation.AnalysisRequest{Text: "x"})
			}()
		}
		wg.Wait()

		a, _, _ := gen.Calls()
		assert.Equal(t, 20, a)
	})
}
