package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeLenient parses provider output into v. Model output may be
// surrounded by extraneous prose; when a direct parse fails, the substring
// from the first opening brace to the last closing brace is tried before
// giving up with ErrProviderFormat.
//
// Unknown fields are tolerated and discarded here, at the parse boundary;
// they never reach the canonical schema.
func decodeLenient(text string, v any) error {
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("%w: no JSON object found", ErrProviderFormat)
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderFormat, err)
	}
	return nil
}
