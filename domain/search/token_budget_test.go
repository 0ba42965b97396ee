package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTokenBudget_Valid(t *testing.T) {
	b, err := NewTokenBudget(100)
	require.NoError(t, err)
	require.Equal(t, "hello", b.Truncate("hello"))
}

func TestNewTokenBudget_Invalid(t *testing.T) {
	_, err := NewTokenBudget(0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "maxChars")

	_, err = NewTokenBudget(-1)
	require.Error(t, err)
}

func TestDefaultTokenBudget(t *testing.T) {
	b := DefaultTokenBudget()
	require.Equal(t, "hello", b.Truncate("hello"))
}

func TestTokenBudget_Truncate_Short(t *testing.T) {
	b, _ := NewTokenBudget(10)
	require.Equal(t, "hello", b.Truncate("hello"))
}

func TestTokenBudget_Truncate_Exact(t *testing.T) {
	b, _ := NewTokenBudget(5)
	require.Equal(t, "hello", b.Truncate("hello"))
}

func TestTokenBudget_Truncate_Long(t *testing.T) {
	b, _ := NewTokenBudget(5)
	require.Equal(t, "hello", b.Truncate("hello world"))
}

func TestBatch_Empty(t *testing.T) {
	b := DefaultTokenBudget()
	require.Nil(t, Batch(b, []string(nil), identity))
	require.Nil(t, Batch(b, []string{}, identity))
}

func TestBatch_ByChars(t *testing.T) {
	// 25 chars budget. Each item is 10 chars, so 2 fit per batch.
	b, _ := NewTokenBudget(25)
	b = b.WithMaxBatchSize(100)

	items := make([]string, 5)
	for i := range items {
		items[i] = strings.Repeat("a", 10)
	}

	batches := Batch(b, items, identity)
	require.Len(t, batches, 3)
	require.Len(t, batches[0], 2)
	require.Len(t, batches[1], 2)
	require.Len(t, batches[2], 1)
}

func TestBatch_LargeItemOwnBatch(t *testing.T) {
	// 20 char budget. A 50-char item exceeds budget but gets its own batch.
	b, _ := NewTokenBudget(20)

	items := []string{
		strings.Repeat("x", 5),
		strings.Repeat("y", 50),
		strings.Repeat("z", 5),
	}

	batches := Batch(b, items, identity)
	require.Len(t, batches, 3)
	require.Len(t, batches[0], 1)
	require.Len(t, batches[1], 1)
	require.Len(t, batches[2], 1)
}

func TestBatch_RespectsMaxBatchSize(t *testing.T) {
	b, _ := NewTokenBudget(10000)
	b = b.WithMaxBatchSize(3)

	items := make([]string, 7)
	for i := range items {
		items[i] = "x"
	}

	batches := Batch(b, items, identity)
	require.Len(t, batches, 3)
	require.Len(t, batches[0], 3)
	require.Len(t, batches[1], 3)
	require.Len(t, batches[2], 1)
}

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, EstimateTokens(""))
	require.Equal(t, 1, EstimateTokens("abcd"))
	require.Equal(t, 2, EstimateTokens("abcde"))
}

func identity(s string) string { return s }
