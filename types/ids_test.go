package types

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID(PrefixMessage)
	if !strings.HasPrefix(id, "msg_") {
		t.Errorf("id = %q, want msg_ prefix", id)
	}
	if id != strings.ToLower(id) {
		t.Errorf("id = %q, want lowercase", id)
	}
	if id == NewID(PrefixMessage) {
		t.Error("consecutive ids collided")
	}
}

func TestNewRunID(t *testing.T) {
	id := NewRunID()
	if !strings.HasPrefix(id, "run_") {
		t.Errorf("id = %q, want run_ prefix", id)
	}
	if len(id) != len("run_")+12 {
		t.Errorf("id length = %d, want %d", len(id), len("run_")+12)
	}
}
