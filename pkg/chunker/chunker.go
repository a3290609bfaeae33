// Package chunker splits label section text into fixed-size overlapping windows.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/rxevidence/rxevidence/pkg/models"
)

// Split slides a window of size characters over text, advancing by size-overlap,
// and stops at the first window that reaches the end of the text. Sizes are in
// Unicode code points. The final chunk may be shorter than size.
func Split(text string, size, overlap int) ([]string, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}

	runes := []rune(text)
	step := size - overlap

	chunks := make([]string, 0, Count(len(runes), size, overlap))
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		// a further window would lie wholly inside this one's overlap
		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}

// Count returns the number of chunks Split produces for a text of length runes.
func Count(length, size, overlap int) int {
	if length <= 0 || size <= 0 || overlap < 0 || overlap >= size {
		return 0
	}
	if length <= size {
		return 1
	}
	step := size - overlap
	return (length - overlap + step - 1) / step
}

// Reassemble is the inverse of Split: it concatenates chunks with the leading
// overlap stripped from every chunk after the first.
func Reassemble(chunks []string, overlap int) string {
	var out []rune
	for i, c := range chunks {
		r := []rune(c)
		if i > 0 {
			r = r[min(overlap, len(r)):]
		}
		out = append(out, r...)
	}
	return string(out)
}

// SplitSections chunks each section in the given order. Sections absent from
// the map are skipped.
func SplitSections(
	sections map[string]string,
	order []string,
	size, overlap int,
) ([]models.Chunk, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	for _, section := range order {
		text, ok := sections[section]
		if !ok {
			continue
		}
		parts, err := Split(text, size, overlap)
		if err != nil {
			return nil, err
		}
		for i, p := range parts {
			chunks = append(chunks, models.Chunk{
				Section:     section,
				ChunkIndex:  i,
				Content:     p,
				ContentHash: ContentHash(p),
			})
		}
	}

	return chunks, nil
}

// ContentHash is the hex SHA-256 of the chunk content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func validate(size, overlap int) error {
	if size <= 0 {
		return models.NewConfigurationError("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return models.NewConfigurationError(
			"chunk overlap must be in [0, %d), got %d", size, overlap,
		)
	}
	return nil
}
