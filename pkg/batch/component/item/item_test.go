package item

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
)

func TestPassThroughItemProcessor(t *testing.T) {
	p := NewPassThroughItemProcessor[string]()
	out, err := p.Process(context.Background(), "a,b")
	require.NoError(t, err)
	assert.Equal(t, "a,b", out)
}

func TestItemProcessorFunc(t *testing.T) {
	var p port.ItemProcessor[int, int] = ItemProcessorFunc[int, int](func(ctx context.Context, n int) (int, error) {
		if n%2 == 0 {
			return 0, port.ErrItemFiltered
		}
		return n * 10, nil
	})
	out, err := p.Process(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 30, out)
	_, err = p.Process(context.Background(), 2)
	assert.True(t, errors.Is(err, port.ErrItemFiltered))
}

func TestListItemReader_RestoresPosition(t *testing.T) {
	r := NewListItemReader("numbers", []int{1, 2, 3})
	ec := model.NewExecutionContext()
	ec.Put("numbers.readCount", 2)
	require.NoError(t, r.Open(context.Background(), ec))

	n, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	_, err = r.Read(context.Background())
	assert.ErrorIs(t, err, port.ErrNoMoreItems)

	out, _ := r.GetExecutionContext(context.Background())
	pos, _ := out.GetInt("numbers.readCount")
	assert.Equal(t, 3, pos)
}

func TestListItemWriter_CopiesChunks(t *testing.T) {
	w := NewListItemWriter[int]()
	chunk := []int{1, 2}
	require.NoError(t, w.Write(context.Background(), nil, chunk))
	chunk[0] = 99
	require.NoError(t, w.Write(context.Background(), nil, []int{3}))

	assert.Equal(t, [][]int{{1, 2}, {3}}, w.Chunks())
	assert.Equal(t, []int{1, 2, 3}, w.Items())
}
