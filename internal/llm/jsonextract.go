package llm

import (
	stderrors "errors"
	"fmt"

	"whatsbot/internal/common/errors"
)

// maxScanDepth bounds the brace-matching scan; completion responses never
// legitimately nest this deep.
const maxScanDepth = 64

// ExtractJSONObject returns the first balanced top-level JSON object found in
// text. Completion responses may wrap the object in prose, so a plain
// json.Unmarshal of the whole response is not enough, and a regular expression
// truncates on nested braces. The scan is brace-matching with string and
// escape awareness.
func ExtractJSONObject(text string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			if start >= 0 {
				inString = true
			}
		case '{':
			if start < 0 {
				start = i
			}
			depth++
			if depth > maxScanDepth {
				return "", errors.NewMalformedUpstreamResponseError(
					fmt.Sprintf("object nesting exceeds %d levels", maxScanDepth))
			}
		case '}':
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}

	if start >= 0 {
		return "", errors.NewMalformedUpstreamResponseError("unbalanced braces in response")
	}
	return "", errors.NewMalformedUpstreamResponseError("no JSON object in response")
}

// IsMalformed reports whether err is a malformed-upstream-response error.
func IsMalformed(err error) bool {
	var se *errors.StandardError
	if stderrors.As(err, &se) {
		return se.Code == errors.ErrCodeMalformedUpstreamResponse
	}
	return false
}
