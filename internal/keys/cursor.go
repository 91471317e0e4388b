package keys

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidCursor marks a continuation token that is not one of ours.
// Callers must treat it as a caller error, never as "no more pages".
var ErrInvalidCursor = errors.New("invalid pagination cursor")

// Cursor is the engine-native resume point behind an opaque page token.
// The document backend records the last (partition, sort) key it returned;
// the relational backend records the last primary key. Exactly one form is
// populated at a time.
type Cursor struct {
	PK   string `json:"pk,omitempty"`
	SK   string `json:"sk,omitempty"`
	Last string `json:"last,omitempty"`
}

// EncodeCursor serializes a resume point into an opaque string that callers
// can store and pass back without interpreting it. A nil cursor encodes to
// the empty string, meaning "start from the beginning".
func EncodeCursor(c *Cursor) string {
	if c == nil {
		return ""
	}
	raw, err := json.Marshal(c)
	if err != nil {
		// Cursor has only string fields; Marshal cannot fail.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor reverses EncodeCursor. The empty string decodes to nil
// ("start from the beginning"). Anything else that fails to decode returns
// ErrInvalidCursor.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCursor, err)
	}
	if c == (Cursor{}) {
		return nil, fmt.Errorf("%w: empty resume point", ErrInvalidCursor)
	}
	return &c, nil
}
