package program

import (
	"testing"
	"time"

	"github.com/daedaluz/stm32prog/bootloader"
	"github.com/daedaluz/stm32prog/catalog"
	"github.com/daedaluz/stm32prog/transport"
)

// noopPort is a transport.Port that never does any I/O; it exists only
// so eraseSpan/resolveRange can be exercised against a *bootloader.Session
// without a live device.
type noopPort struct{}

func (noopPort) Read([]byte) error                             { return nil }
func (noopPort) ReadDeadline([]byte, time.Duration) error       { return nil }
func (noopPort) Write([]byte) error                             { return nil }
func (noopPort) Flush() error                                   { return nil }
func (noopPort) GPIO(transport.GPIOLine, bool) error            { return nil }
func (noopPort) Capabilities() transport.Capability             { return 0 }
func (noopPort) ConfigString() string                           { return "noop" }
func (noopPort) Close() error                                   { return nil }

func testSession() *bootloader.Session {
	s := bootloader.New(noopPort{}, nil)
	s.Device = catalog.Device{
		PID:        0x410,
		FlashStart: 0x08000000,
		FlashEnd:   0x08020000,
		PageSize:   1024,
	}
	return s
}

func TestEraseSpanWholeChip(t *testing.T) {
	sess := testSession()
	req := &Request{}
	spage, npages, err := eraseSpan(req, sess, sess.Device.FlashStart, 0)
	if err != nil {
		t.Fatalf("eraseSpan: %v", err)
	}
	if spage != 0 || npages != bootloader.MassErase {
		t.Errorf("got spage=%d npages=%d, want 0,MassErase", spage, npages)
	}
}

func TestEraseSpanExplicitRange(t *testing.T) {
	sess := testSession()
	req := &Request{HasRange: true, Start: 0x08000000 + 2048, End: 0x08000000 + 2048 + 10}
	spage, npages, err := eraseSpan(req, sess, sess.Device.FlashStart, 0)
	if err != nil {
		t.Fatalf("eraseSpan: %v", err)
	}
	if spage != 2 || npages != 1 {
		t.Errorf("got spage=%d npages=%d, want 2,1", spage, npages)
	}
}

func TestEraseSpanFromDataLength(t *testing.T) {
	sess := testSession()
	req := &Request{}
	spage, npages, err := eraseSpan(req, sess, sess.Device.FlashStart, 2500)
	if err != nil {
		t.Fatalf("eraseSpan: %v", err)
	}
	if spage != 0 || npages != 3 {
		t.Errorf("got spage=%d npages=%d, want 0,3", spage, npages)
	}
}

func TestEraseSpanExplicitPages(t *testing.T) {
	sess := testSession()
	req := &Request{HasPages: true, SPage: 5, NPages: 7}
	spage, npages, err := eraseSpan(req, sess, sess.Device.FlashStart, 999)
	if err != nil {
		t.Fatalf("eraseSpan: %v", err)
	}
	if spage != 5 || npages != 7 {
		t.Errorf("got spage=%d npages=%d, want 5,7", spage, npages)
	}
}

func TestResolveRangeDefaultsToFullFlash(t *testing.T) {
	sess := testSession()
	start, end, err := resolveRange(&Request{}, sess)
	if err != nil {
		t.Fatalf("resolveRange: %v", err)
	}
	if start != sess.Device.FlashStart || end != sess.Device.FlashEnd {
		t.Errorf("got [0x%x,0x%x), want [0x%x,0x%x)", start, end, sess.Device.FlashStart, sess.Device.FlashEnd)
	}
}

func TestRequestValidateMutualExclusion(t *testing.T) {
	req := &Request{HasRange: true, HasPages: true}
	if err := req.validate(); err == nil {
		t.Error("expected error for -S combined with -s/-e")
	}
}

func TestRequestValidateDefaultRetry(t *testing.T) {
	req := &Request{}
	if err := req.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if req.Retry != 10 {
		t.Errorf("Retry default = %d, want 10", req.Retry)
	}
}
