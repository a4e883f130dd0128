package outbound

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageLen is the Bot API limit on the text of one message, in characters.
const MaxMessageLen = 4096

// Split splits text into chunks of at most maxLen characters, breaking at
// clean boundaries in priority order: paragraph, newline, sentence, word,
// hard cut. Each chunk is trimmed of leading/trailing whitespace and empty
// chunks are dropped, so whitespace-only text yields no chunks.
//
// Characters are counted as runes of the raw text. That matches Telegram's
// count for plain text only: with a parse mode the limit applies after
// entity parsing, and a cut may land inside markup. Sender therefore never
// splits formatted text.
func Split(text string, maxLen int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	add := func(chunk string) {
		if chunk = strings.TrimSpace(chunk); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}

	for utf8.RuneCountInString(text) > maxLen {
		cut := runeOffset(text, maxLen)
		minSplit := runeOffset(text, maxLen/4)
		chunk := text[:cut]

		if i := strings.LastIndex(chunk, "\n\n"); i >= minSplit && i > 0 {
			add(text[:i])
			text = strings.TrimSpace(text[i:])
			continue
		}

		if i := strings.LastIndex(chunk, "\n"); i >= minSplit && i > 0 {
			add(text[:i])
			text = strings.TrimSpace(text[i:])
			continue
		}

		// Sentence ending: keep the punctuation, drop the space.
		splitPos := -1
		for _, sep := range []string{". ", "? ", "! "} {
			if i := strings.LastIndex(chunk, sep); i >= minSplit {
				if pos := i + 1; pos > splitPos {
					splitPos = pos
				}
			}
		}
		if splitPos > 0 {
			add(text[:splitPos])
			text = strings.TrimSpace(text[splitPos:])
			continue
		}

		if i := strings.LastIndex(chunk, " "); i >= minSplit && i > 0 {
			add(text[:i])
			text = strings.TrimSpace(text[i:])
			continue
		}

		add(text[:cut])
		text = strings.TrimSpace(text[cut:])
	}

	add(text)

	return chunks
}

// runeOffset returns the byte offset of the n-th rune of s, or len(s).
func runeOffset(s string, n int) int {
	count := 0
	for i := range s {
		if count == n {
			return i
		}
		count++
	}
	return len(s)
}
