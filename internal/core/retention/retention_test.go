package retention

import (
	"strconv"
	"testing"

	"github.com/artpar/cutover/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqTags(from, to int) []string {
	var tags []string
	for i := from; i <= to; i++ {
		tags = append(tags, strconv.Itoa(i))
	}
	return tags
}

func TestCompute_KeepFiveOfTen(t *testing.T) {
	tags := append(seqTags(1, 10), domain.LatestAlias)

	plan, err := Compute(tags, 5)
	require.NoError(t, err)

	assert.Equal(t, []string{"10", "9", "8", "7", "6"}, plan.Keep)
	assert.ElementsMatch(t, []string{"1", "2", "3", "4", "5"}, plan.Remove)
	assert.Equal(t, []string{"latest"}, plan.Ignored)
}

func TestCompute_NumericNotLexicographic(t *testing.T) {
	plan, err := Compute([]string{"9", "10", "100", "11"}, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"100", "11"}, plan.Keep)
	assert.Equal(t, []string{"10", "9"}, plan.Remove)
}

func TestCompute_FewerThanKeep(t *testing.T) {
	plan, err := Compute([]string{"3", "1"}, 5)
	require.NoError(t, err)

	assert.Equal(t, []string{"3", "1"}, plan.Keep)
	assert.Empty(t, plan.Remove)
}

func TestCompute_NonNumericNeverRemoved(t *testing.T) {
	plan, err := Compute([]string{"latest", "v2", "stable", "1"}, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"1"}, plan.Keep)
	assert.Empty(t, plan.Remove)
	assert.Equal(t, []string{"latest", "v2", "stable"}, plan.Ignored)
}

func TestCompute_Duplicates(t *testing.T) {
	plan, err := Compute([]string{"2", "2", "1"}, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"2"}, plan.Keep)
	assert.Equal(t, []string{"1"}, plan.Remove)
}

func TestCompute_InvalidKeep(t *testing.T) {
	_, err := Compute([]string{"1"}, 0)
	assert.ErrorIs(t, err, ErrInvalidKeep)
}

func TestCompute_Empty(t *testing.T) {
	plan, err := Compute(nil, 3)
	require.NoError(t, err)
	assert.Empty(t, plan.Keep)
	assert.Empty(t, plan.Remove)
}

func TestTags(t *testing.T) {
	images := []domain.ImageRecord{{Tag: "1"}, {Tag: "latest"}}
	assert.Equal(t, []string{"1", "latest"}, Tags(images))
}
