package dedup

import (
	"testing"
	"time"

	"github.com/dropDatabas3/verigate/internal/cache"
)

func TestRecordAndMatch(t *testing.T) {
	tb := New(cache.NewMemory(0))

	tb.Record("42", "555")
	if !tb.Match("42", "555") {
		t.Fatal("entrada recién anotada no matchea")
	}
	if tb.Match("42", "666") {
		t.Fatal("matchea contra otro chat")
	}
	if tb.Match("43", "555") {
		t.Fatal("matchea otro usuario")
	}

	// un canje posterior pisa la anotación anterior
	tb.Record("42", "777")
	if tb.Match("42", "555") {
		t.Fatal("la anotación vieja sigue viva")
	}
	if !tb.Match("42", "777") {
		t.Fatal("la anotación nueva no matchea")
	}
}

func TestConsumeDelayedDelete(t *testing.T) {
	tb := New(cache.NewMemory(0))
	tb.grace = 20 * time.Millisecond

	tb.Record("42", "555")
	tb.Consume("42")

	// dentro del grace period la entrada sigue (joins duplicados)
	if !tb.Match("42", "555") {
		t.Fatal("entrada borrada antes del grace period")
	}

	deadline := time.Now().Add(2 * time.Second)
	for tb.Match("42", "555") {
		if time.Now().After(deadline) {
			t.Fatal("entrada nunca borrada tras el grace period")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
