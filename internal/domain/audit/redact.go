package audit

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode"
)

// RedactedMarker replaces the value of every sensitive metadata key
const RedactedMarker = "[REDACTED]"

// sensitiveWords match any single word of a key ("user_password", "accessToken")
var sensitiveWords = map[string]struct{}{
	"password":      {},
	"passwd":        {},
	"pwd":           {},
	"passphrase":    {},
	"token":         {},
	"secret":        {},
	"auth":          {},
	"oauth":         {},
	"authorization": {},
	"credential":    {},
	"credentials":   {},
	"card":          {},
	"cvv":           {},
	"cvc":           {},
	"pan":           {},
	"ssn":           {},
	"passport":      {},
	"message":       {},
	"body":          {},
	"content":       {},
	"text":          {},
	"transcript":    {},
}

// sensitiveSuffixes match the key with separators removed ("X-Api-Key", "national_id")
var sensitiveSuffixes = []string{
	"apikey",
	"privatekey",
	"secretkey",
	"accesskey",
	"signingkey",
	"encryptionkey",
	"nationalid",
	"governmentid",
	"taxid",
	"fulltext",
}

// IsSensitiveKey reports whether a metadata key must have its value redacted
func IsSensitiveKey(key string) bool {
	words := splitWords(key)
	if len(words) == 0 {
		return false
	}
	compact := strings.Join(words, "")
	if compact == "key" {
		return true
	}
	for _, w := range words {
		if _, ok := sensitiveWords[w]; ok {
			return true
		}
	}
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(compact, suffix) {
			return true
		}
	}
	return false
}

// Redact returns a deep copy of metadata with sensitive values replaced by
// RedactedMarker. Nested objects and arrays keep their shape. Values are
// normalised through JSON first so structs and typed maps are traversed too.
func Redact(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	normalized, err := normalize(metadata)
	if err != nil {
		return map[string]any{"metadata_error": "unserializable metadata"}
	}
	return redactMap(normalized)
}

func normalize(metadata map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func redactMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if IsSensitiveKey(k) {
			out[k] = RedactedMarker
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return redactMap(typed)
	case []any:
		items := make([]any, len(typed))
		for i, item := range typed {
			items[i] = redactValue(item)
		}
		return items
	case json.Number:
		if n, err := typed.Int64(); err == nil {
			return n
		}
		if f, err := typed.Float64(); err == nil {
			return f
		}
		return typed.String()
	default:
		return v
	}
}

// splitWords lowercases a key and splits it on separators and camelCase boundaries
func splitWords(key string) []string {
	var words []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, strings.ToLower(string(current)))
			current = current[:0]
		}
	}
	runes := []rune(key)
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]) {
			flush()
		}
		current = append(current, r)
	}
	flush()
	return words
}
