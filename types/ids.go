package types

import (
	"crypto/rand"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ID prefixes used across the engine.
const (
	PrefixRun     = "run"
	PrefixMessage = "msg"
	PrefixEvent   = "evt"
	PrefixMemory  = "mem"
	PrefixLoop    = "loop"
)

// NewID returns a prefixed ULID, e.g. "msg_01J8F3...". ULIDs sort
// lexicographically by creation time, which keeps id ordering consistent
// with the append-only timestamp ordering of messages and events.
func NewID(prefix string) string {
	return prefix + "_" + strings.ToLower(ulid.MustNew(ulid.Now(), rand.Reader).String())
}

// NewRunID returns a fresh run identifier. Run ids are random rather than
// time-ordered; runs are looked up by id, never scanned in order.
func NewRunID() string {
	return PrefixRun + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
