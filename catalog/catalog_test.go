package catalog

import "testing"

func TestLookupKnown(t *testing.T) {
	dev, err := Lookup(0x410)
	if err != nil {
		t.Fatalf("Lookup(0x410): %v", err)
	}
	if dev.Name != "Medium-density" {
		t.Errorf("Name = %q, want Medium-density", dev.Name)
	}
	if dev.FlashSize() != 0x20000 {
		t.Errorf("FlashSize = 0x%x, want 0x20000", dev.FlashSize())
	}
	if !dev.HasOptionBytes() {
		t.Error("expected option bytes present")
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup(0xFFFF)
	if err == nil {
		t.Fatal("expected error for unknown PID")
	}
	if _, ok := err.(*ErrUnsupportedDevice); !ok {
		t.Errorf("error type = %T, want *ErrUnsupportedDevice", err)
	}
}

func TestNeedsMassEraseDowngrade(t *testing.T) {
	if !NeedsMassEraseDowngrade(0x416) {
		t.Error("0x416 should need the mass-erase downgrade")
	}
	if NeedsMassEraseDowngrade(0x410) {
		t.Error("0x410 should not need the mass-erase downgrade")
	}
}
