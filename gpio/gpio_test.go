package gpio

import (
	"testing"
	"time"

	"github.com/daedaluz/stm32prog/transport"
)

func TestParseNumeric(t *testing.T) {
	seq, err := Parse("-5,6")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(seq.Steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(seq.Steps))
	}
	if seq.Steps[0].GPIO != 5 || seq.Steps[0].Level {
		t.Errorf("step 0 = %+v, want gpio 5 low", seq.Steps[0])
	}
	if seq.Steps[1].GPIO != 6 || !seq.Steps[1].Level {
		t.Errorf("step 1 = %+v, want gpio 6 high", seq.Steps[1])
	}
	if seq.DelayAfter[0] != 100*time.Millisecond {
		t.Errorf("delay after step 0 = %v, want 100ms", seq.DelayAfter[0])
	}
}

func TestParseSignals(t *testing.T) {
	seq, err := Parse("-rts&dtr,,,rts,-dtr")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(seq.Steps) != 4 {
		t.Fatalf("got %d steps, want 4", len(seq.Steps))
	}
	if seq.Steps[0].Line != transport.GPIORTS || seq.Steps[0].Level {
		t.Errorf("step 0 = %+v", seq.Steps[0])
	}
	if seq.Steps[1].Line != transport.GPIODTR || !seq.Steps[1].Level {
		t.Errorf("step 1 = %+v", seq.Steps[1])
	}
	if seq.DelayAfter[0] != 0 {
		t.Errorf("'&' must not delay, got %v", seq.DelayAfter[0])
	}
	if seq.DelayAfter[1] != 300*time.Millisecond {
		t.Errorf("triple ',' must delay 300ms, got %v", seq.DelayAfter[1])
	}
}

func TestParseEntryExit(t *testing.T) {
	entry, exit, err := ParseEntryExit("rts,dtr:brk")
	if err != nil {
		t.Fatalf("ParseEntryExit: %v", err)
	}
	if len(entry.Steps) != 2 {
		t.Errorf("entry has %d steps, want 2", len(entry.Steps))
	}
	if len(exit.Steps) != 1 {
		t.Errorf("exit has %d steps, want 1", len(exit.Steps))
	}
}

func TestParseEntryExitEmptyHalf(t *testing.T) {
	entry, exit, err := ParseEntryExit(":brk")
	if err != nil {
		t.Fatalf("ParseEntryExit: %v", err)
	}
	if len(entry.Steps) != 0 {
		t.Errorf("entry should be empty, got %+v", entry.Steps)
	}
	if len(exit.Steps) != 1 {
		t.Errorf("exit should have 1 step, got %+v", exit.Steps)
	}
}

func TestParseInvalid(t *testing.T) {
	cases := []string{"-", "rts%dtr", "5rts"}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Errorf("Parse(%q) should have failed", c)
		}
	}
}
