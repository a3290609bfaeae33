package chunker

import (
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxevidence/rxevidence/pkg/models"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		size     int
		overlap  int
		expected []string
	}{
		{
			name:     "empty text",
			text:     "",
			size:     10,
			overlap:  2,
			expected: []string{},
		},
		{
			name:     "shorter than window",
			text:     "abc",
			size:     10,
			overlap:  2,
			expected: []string{"abc"},
		},
		{
			name:     "exactly one window",
			text:     "abcdefghij",
			size:     10,
			overlap:  2,
			expected: []string{"abcdefghij"},
		},
		{
			name:     "overlapping windows",
			text:     "abcdefghijklmnop",
			size:     6,
			overlap:  2,
			expected: []string{"abcdef", "efghij", "ijklmn", "mnop"},
		},
		{
			name:     "last window reaches the end",
			text:     "abcdefghij",
			size:     6,
			overlap:  2,
			expected: []string{"abcdef", "efghij"},
		},
		{
			name:     "no overlap",
			text:     "abcdefg",
			size:     3,
			overlap:  0,
			expected: []string{"abc", "def", "g"},
		},
		{
			name:     "multibyte characters count once",
			text:     "αβγδεζηθ",
			size:     5,
			overlap:  1,
			expected: []string{"αβγδε", "εζηθ"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := Split(tt.text, tt.size, tt.overlap)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, chunks)
		})
	}
}

func TestSplitDefaultWindow(t *testing.T) {
	text := strings.Repeat("a", 950)

	chunks, err := Split(text, 900, 120)
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 900)
	assert.Len(t, chunks[1], 170)
	assert.Equal(t, text[780:], chunks[1])
}

func TestSplitInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 120},
		{"negative overlap", 100, -1},
		{"zero size", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split("some text", tt.size, tt.overlap)
			assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
		})
	}
}

func TestSplitProperties(t *testing.T) {
	faker := gofakeit.New(42)
	windows := []struct{ size, overlap int }{
		{900, 120},
		{50, 10},
		{7, 3},
		{10, 0},
	}

	for i := 0; i < 50; i++ {
		text := faker.Paragraph(1, faker.Number(1, 8), faker.Number(5, 60), " ")
		for _, w := range windows {
			chunks, err := Split(text, w.size, w.overlap)
			require.NoError(t, err)

			length := len([]rune(text))
			if length > w.overlap {
				expected := (length - w.overlap + (w.size - w.overlap) - 1) / (w.size - w.overlap)
				assert.Len(t, chunks, expected)
			}
			assert.Len(t, chunks, Count(length, w.size, w.overlap))

			for _, c := range chunks {
				assert.LessOrEqual(t, len([]rune(c)), w.size)
			}
			for j := 1; j < len(chunks); j++ {
				prev := []rune(chunks[j-1])
				cur := []rune(chunks[j])
				assert.Equal(t, string(prev[len(prev)-w.overlap:]), string(cur[:w.overlap]))
			}

			assert.Equal(t, text, Reassemble(chunks, w.overlap))
		}
	}
}

func TestSplitSections(t *testing.T) {
	sections := map[string]string{
		"warnings":          strings.Repeat("w", 950),
		"boxed_warning":     "short",
		"adverse_reactions": "",
	}
	order := []string{"adverse_reactions", "boxed_warning", "contraindications", "warnings"}

	chunks, err := SplitSections(sections, order, 900, 120)
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, "boxed_warning", chunks[0].Section)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, "warnings", chunks[1].Section)
	assert.Equal(t, 0, chunks[1].ChunkIndex)
	assert.Equal(t, "warnings", chunks[2].Section)
	assert.Equal(t, 1, chunks[2].ChunkIndex)
	assert.Equal(t, ContentHash(chunks[2].Content), chunks[2].ContentHash)
	assert.Len(t, chunks[0].ContentHash, 64)
}
