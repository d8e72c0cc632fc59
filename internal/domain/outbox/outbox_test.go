package outbox

import "testing"

type plainEvent struct{}

func (plainEvent) EventName() string { return "plain" }

type keyedEvent struct{ id string }

func (keyedEvent) EventName() string  { return "keyed" }
func (e keyedEvent) EventKey() string { return e.id }

func TestKeyOf(t *testing.T) {
	if got := KeyOf(plainEvent{}); got != "" {
		t.Fatalf("KeyOf(plain) = %q, want empty", got)
	}
	if got := KeyOf(keyedEvent{id: "O1"}); got != "O1" {
		t.Fatalf("KeyOf(keyed) = %q, want O1", got)
	}
}
