package virtual

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/archivist-descry/descry/pkg/sane"
)

func openBrother(t *testing.T) (*Backend, sane.Handle) {
	t.Helper()
	backend, err := NewFromFile("")
	if err != nil {
		t.Fatalf("load embedded profile: %v", err)
	}
	h, err := backend.Open(context.Background(), "brother4:net1;dev0")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return backend, h
}

func TestEmbeddedProfileDevices(t *testing.T) {
	backend, err := NewFromFile("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	version, err := backend.Init(context.Background())
	if err != nil || version == "" {
		t.Fatalf("init: version=%q err=%v", version, err)
	}
	devices, err := backend.Devices(context.Background())
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("expected 3 devices, got %d", len(devices))
	}
	if devices[0].Name != "brother4:net1;dev0" || devices[0].Vendor != "Brother" {
		t.Fatalf("unexpected first device: %#v", devices[0])
	}
}

func TestBrotherOptionTable(t *testing.T) {
	_, h := openBrother(t)
	opts, err := h.Options(context.Background())
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if len(opts) != 12 {
		t.Fatalf("expected 12 options, got %d", len(opts))
	}
	if opts[3].Name != "resolution" {
		t.Fatalf("option 3 should be resolution, got %q", opts[3].Name)
	}
	list, ok := opts[4].Constraint.([]any)
	if !ok || len(list) != 5 || list[0] != "FlatBed" {
		t.Fatalf("unexpected source constraint: %#v", opts[4].Constraint)
	}
	r, ok := opts[5].Constraint.(sane.Range)
	if !ok || r.Min() != -50 {
		t.Fatalf("unexpected brightness constraint: %#v", opts[5].Constraint)
	}
	if opts[5].Active() {
		t.Fatal("brightness should start inactive in colour mode")
	}
}

func TestActiveWhenReshapesTable(t *testing.T) {
	ctx := context.Background()
	_, h := openBrother(t)
	if err := h.SetValue(ctx, "brightness", 10.0); !errors.Is(err, ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
	if err := h.SetValue(ctx, "mode", "True Gray"); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	opts, err := h.Options(ctx)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if !opts[5].Active() {
		t.Fatal("brightness should be active in gray mode")
	}
	if err := h.SetValue(ctx, "brightness", 10.0); err != nil {
		t.Fatalf("set brightness: %v", err)
	}
	v, err := h.Value(ctx, "brightness")
	if err != nil || v != 10.0 {
		t.Fatalf("brightness value=%v err=%v", v, err)
	}
}

func TestSetValueRejectsReadOnlyAndUnknown(t *testing.T) {
	ctx := context.Background()
	_, h := openBrother(t)
	if err := h.SetValue(ctx, "nope", 1); !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("expected ErrUnknownOption, got %v", err)
	}
}

func TestMultiScanGeneratesPages(t *testing.T) {
	_, h := openBrother(t)
	count := 0
	for img, err := range h.MultiScan(context.Background()) {
		if err != nil {
			t.Fatalf("page %d: %v", count+1, err)
		}
		if img.Bounds().Dx() != 85 {
			t.Fatalf("unexpected width %d", img.Bounds().Dx())
		}
		count++
	}
	if count != 3 {
		t.Fatalf("expected 3 pages, got %d", count)
	}
}

func TestMultiScanFailsMidStream(t *testing.T) {
	profile, err := ParseProfile([]byte(`
[[device]]
name = "jam"
pages = 3
fail_at_page = 2
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	h, err := New(profile).Open(context.Background(), "jam")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close()
	pages := 0
	var scanErr error
	for _, err := range h.MultiScan(context.Background()) {
		if err != nil {
			scanErr = err
			break
		}
		pages++
	}
	if pages != 1 || !errors.Is(scanErr, ErrFeederJam) {
		t.Fatalf("pages=%d err=%v", pages, scanErr)
	}
}

func TestPageFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p1.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, 7, 9))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.Close()

	profile, err := ParseProfile([]byte(`
[[device]]
name = "files"
page_files = ["` + filepath.ToSlash(path) + `"]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	h, err := New(profile).Open(context.Background(), "files")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close()
	for img, err := range h.MultiScan(context.Background()) {
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		if img.Bounds().Dx() != 7 || img.Bounds().Dy() != 9 {
			t.Fatalf("unexpected bounds %v", img.Bounds())
		}
	}
}

func TestParseProfileRejectsBadInput(t *testing.T) {
	bad := []string{
		"[[device]]\nvendor = \"x\"\n",
		"[[device]]\nname = \"a\"\n[[device]]\nname = \"a\"\n",
		"[[device]]\nname = \"a\"\npage_delay = \"soon\"\n",
		"[[device]]\nname = \"a\"\n[[device.option]]\nname = \"x\"\nrange = [1.0, 2.0]\n",
	}
	for _, raw := range bad {
		if _, err := ParseProfile([]byte(raw)); err == nil {
			t.Fatalf("expected error for profile:\n%s", raw)
		}
	}
}

func TestOpenAccounting(t *testing.T) {
	backend, h := openBrother(t)
	if n := backend.OpenHandles("brother4:net1;dev0"); n != 1 {
		t.Fatalf("expected 1 open handle, got %d", n)
	}
	_ = h.Close()
	_ = h.Close()
	if n := backend.OpenHandles("brother4:net1;dev0"); n != 0 {
		t.Fatalf("expected 0 open handles, got %d", n)
	}
	if _, err := h.Options(context.Background()); !errors.Is(err, ErrHandleClosed) {
		t.Fatalf("expected ErrHandleClosed, got %v", err)
	}
	if _, err := backend.Open(context.Background(), "missing"); !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("expected ErrUnknownDevice, got %v", err)
	}
}

func TestActiveWhenMatchesNumericTrigger(t *testing.T) {
	ctx := context.Background()
	p, err := ParseProfile([]byte(`
[[device]]
name = "test:0"

[[device.option]]
name = "resolution"
type = 1
cap = 5
values = [150, 300]
value = 150

[[device.option]]
name = "hi-res-filter"
type = 0
cap = 5
value = false
[device.option.active_when]
resolution = [300]
`))
	if err != nil {
		t.Fatalf("parse profile: %v", err)
	}
	h, err := New(p).Open(ctx, "test:0")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close()

	opts, err := h.Options(ctx)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts[1].Active() {
		t.Fatal("filter should start inactive at 150 dpi")
	}
	// callers set plain ints while the profile decodes int64
	if err := h.SetValue(ctx, "resolution", 300); err != nil {
		t.Fatalf("set resolution: %v", err)
	}
	opts, err = h.Options(ctx)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if !opts[1].Active() {
		t.Fatal("filter should be active at 300 dpi")
	}
	if err := h.SetValue(ctx, "resolution", 150.0); err != nil {
		t.Fatalf("set resolution: %v", err)
	}
	if opts, _ = h.Options(ctx); opts[1].Active() {
		t.Fatal("filter should be inactive again at 150 dpi")
	}
}

func TestSameValue(t *testing.T) {
	cases := []struct {
		a, b any
		want bool
	}{
		{int64(300), 300, true},
		{int64(300), 300.0, true},
		{0.5, float32(0.5), true},
		{int64(300), 150, false},
		{"300", 300, false},
		{"True Gray", "True Gray", true},
		{true, true, true},
	}
	for _, tc := range cases {
		if got := sameValue(tc.a, tc.b); got != tc.want {
			t.Fatalf("sameValue(%#v, %#v)=%v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
