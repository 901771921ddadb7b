package telegram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitByBytes(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitByBytes("short", 10))

	parts := splitByBytes(strings.Repeat("写", 5), 6)
	assert.Equal(t, []string{"写写", "写写", "写"}, parts)
}

func TestTruncateByBytes(t *testing.T) {
	assert.Equal(t, "写", truncateByBytes("写真", 4))
	assert.Equal(t, "abc", truncateByBytes("abc", 0))
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Token: "t"})
	assert.Error(t, err)
}
