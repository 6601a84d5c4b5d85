// Package jsonchunk extracts complete JSON objects from a truncated byte
// prefix of a streaming array response.
//
// Incremental export pages run to megabytes, far too large for interactive
// sampling. The sampling path instead reads only the first tens of kilobytes
// of the stream and recovers whatever whole objects landed inside the buffer;
// the trailing cut-off object is discarded. This feeds preview and schema
// guessing only, never the authoritative full export.
package jsonchunk

import (
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultChunkSize is the byte threshold for sampling reads.
const DefaultChunkSize = 64 * 1024

// Extract returns every complete JSON object found in buf, in order. key
// names the response envelope, so a leading `{"<key>":[` wrapper is stripped
// before scanning. Invalid byte sequences are sanitized first; an empty
// buffer yields nil.
func Extract(buf []byte, key string) [][]byte {
	if len(buf) == 0 {
		return nil
	}

	text := strings.ToValidUTF8(string(buf), "�")
	text = stripEnvelope(text, key)

	var objects [][]byte
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}

		// Greedily extend the candidate through each closing brace until it
		// parses on its own. No parse before buffer end means the object was
		// cut off by the read limit, which is fine for sampling.
		end := -1
		for j := i + 1; j < len(text); j++ {
			if text[j] != '}' {
				continue
			}
			if candidate := text[i : j+1]; gjson.Valid(candidate) {
				objects = append(objects, []byte(candidate))
				end = j
				break
			}
		}
		if end == -1 {
			break
		}
		i = end
	}
	return objects
}

// stripEnvelope removes a `{"<key>":[` response wrapper prefix when present.
func stripEnvelope(text, key string) string {
	if key == "" {
		return text
	}
	prefix := `{"` + key + `":[`
	trimmed := strings.TrimLeft(text, " \t\r\n")
	if strings.HasPrefix(trimmed, prefix) {
		return trimmed[len(prefix):]
	}
	return text
}
