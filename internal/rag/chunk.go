package rag

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

type chunk struct {
	ID      string
	Content string
	Order   int
}

func hashID(prefix, s string) string {
	sum := md5.Sum([]byte(s))
	return prefix + hex.EncodeToString(sum[:])
}

func chunkText(content string, maxLen int) []chunk {
	parts := splitIntoChunks(content, maxLen)
	out := make([]chunk, 0, len(parts))
	for i, p := range parts {
		out = append(out, chunk{ID: hashID("chunk-", p), Content: p, Order: i})
	}
	return out
}

// splitIntoChunks packs whole lines into chunks of at most maxLen bytes.
// Lines longer than maxLen are cut on rune boundaries.
func splitIntoChunks(content string, maxLen int) []string {
	content = strings.TrimSpace(strings.ToValidUTF8(content, ""))
	if content == "" {
		return nil
	}
	if len(content) <= maxLen {
		return []string{content}
	}

	var chunks []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		if c := strings.TrimSpace(buf.String()); c != "" {
			chunks = append(chunks, c)
		}
		buf.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		for len(line) > maxLen {
			cut := runeCut(line, maxLen)
			flush()
			buf.WriteString(line[:cut])
			flush()
			line = line[cut:]
		}

		if buf.Len()+len(line)+1 > maxLen {
			flush()
		}

		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	flush()
	return chunks
}

// runeCut returns the largest index <= n that does not split a UTF-8 sequence.
func runeCut(s string, n int) int {
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	if n == 0 {
		return len(s)
	}
	return n
}
