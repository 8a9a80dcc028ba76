package options

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/archivist-descry/descry/pkg/sane"
)

func TestTranslateConstraintRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		raw  any
		want Constraint
	}{
		{name: "none", raw: nil, want: Unconstrained{}},
		{name: "range", raw: sane.Range{-50, 50, 1}, want: Range{Min: -50, Max: 50, Step: 1}},
		{name: "list", raw: []any{"FlatBed", "ADF"}, want: Enumerated{Values: []any{"FlatBed", "ADF"}}},
		{name: "words", raw: []any{int64(100), int64(300)}, want: Enumerated{Values: []any{int64(100), int64(300)}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TranslateConstraint(tc.raw)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("translate: got %#v want %#v", got, tc.want)
			}
			if back := got.Raw(); !reflect.DeepEqual(back, tc.raw) {
				t.Fatalf("raw: got %#v want %#v", back, tc.raw)
			}
		})
	}
}

func TestTranslateConstraintKeepsTypedLists(t *testing.T) {
	for _, raw := range []any{
		[]string{"FlatBed", "ADF"},
		[]int{100, 300},
		[]int64{150, 600},
		[]float64{0.5, 1.5},
	} {
		got, ok := TranslateConstraint(raw).(Enumerated)
		if !ok || len(got.Values) != 2 {
			t.Fatalf("translate %#v: got %#v", raw, got)
		}
		if back := got.Raw(); !reflect.DeepEqual(back, raw) {
			t.Fatalf("raw: got %#v want %#v", back, raw)
		}
	}
}

func TestTranslateOnlyReadsActiveValues(t *testing.T) {
	reads := map[string]int{}
	read := func(name string) (any, error) {
		reads[name]++
		return 300, nil
	}
	active := sane.Option{Index: 3, Name: "resolution", Type: sane.TypeInt, Cap: sane.CapSoftSelect | sane.CapSoftDetect}
	inactive := sane.Option{Index: 5, Name: "brightness", Type: sane.TypeFixed, Cap: sane.CapSoftSelect | sane.CapSoftDetect | sane.CapInactive}
	group := sane.Option{Index: 1, Title: "Mode", Type: sane.TypeGroup, Cap: sane.CapAdvanced}

	opt, err := Translate(active, read)
	if err != nil {
		t.Fatalf("translate active: %v", err)
	}
	if opt.Value != 300 || !opt.Active || !opt.Settable {
		t.Fatalf("unexpected active option: %#v", opt)
	}
	opt, err = Translate(inactive, read)
	if err != nil {
		t.Fatalf("translate inactive: %v", err)
	}
	if opt.Value != nil || opt.Active {
		t.Fatalf("inactive option must not carry a value: %#v", opt)
	}
	if _, err := Translate(group, read); err != nil {
		t.Fatalf("translate group: %v", err)
	}
	if reads["resolution"] != 1 || len(reads) != 1 {
		t.Fatalf("unexpected reads: %v", reads)
	}
}

func TestTranslateNormalizesKey(t *testing.T) {
	opt, err := Translate(sane.Option{Name: "tl-x", Type: sane.TypeFixed, Cap: sane.CapSoftSelect}, func(string) (any, error) { return 0.0, nil })
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if opt.Key != "tl_x" || opt.BackendName != "tl-x" {
		t.Fatalf("unexpected names: key=%q backend=%q", opt.Key, opt.BackendName)
	}
	if _, ok := Find([]Option{opt}, "tl-x"); !ok {
		t.Fatal("find by backend name failed")
	}
	if _, ok := Find([]Option{opt}, "tl_x"); !ok {
		t.Fatal("find by key failed")
	}
}

func TestTranslateReadError(t *testing.T) {
	boom := errors.New("io error")
	_, err := Translate(sane.Option{Name: "mode", Type: sane.TypeString}, func(string) (any, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	resolution := Option{Key: "resolution", Type: "int", Constraint: Enumerated{Values: []any{int64(100), int64(300)}}}
	brightness := Option{Key: "brightness", Type: "fixed", Constraint: Range{Min: -50, Max: 50, Step: 1}}
	mode := Option{Key: "mode", Type: "string", Constraint: Enumerated{Values: []any{"True Gray", "24bit Color"}}}
	stepped := Option{Key: "threshold", Type: "int", Constraint: Range{Min: 0, Max: 100, Step: 10}}
	preview := Option{Key: "preview", Type: "bool", Constraint: Unconstrained{}}

	ok := []struct {
		opt   Option
		value any
		want  any
	}{
		{resolution, "300", 300},
		{resolution, 100, 100},
		{brightness, "-12.5", -12.5},
		{mode, "True Gray", "True Gray"},
		{stepped, 40, 40},
		{preview, "yes", true},
	}
	for _, tc := range ok {
		got, err := Validate(tc.opt, tc.value)
		if err != nil {
			t.Fatalf("%s=%v: unexpected error %v", tc.opt.Key, tc.value, err)
		}
		if got != tc.want {
			t.Fatalf("%s=%v: got %#v want %#v", tc.opt.Key, tc.value, got, tc.want)
		}
	}

	bad := []struct {
		opt   Option
		value any
	}{
		{resolution, "250"},
		{resolution, "abc"},
		{brightness, 51},
		{mode, "Sepia"},
		{stepped, 45},
		{preview, "maybe"},
		{Option{Key: "scan", Type: "button"}, 1},
	}
	for _, tc := range bad {
		if _, err := Validate(tc.opt, tc.value); !errors.Is(err, ErrInvalidValue) {
			t.Fatalf("%s=%v: expected ErrInvalidValue, got %v", tc.opt.Key, tc.value, err)
		}
	}
}

func TestConstraintJSONShape(t *testing.T) {
	opts := []Option{
		{Key: "a", Constraint: Unconstrained{}},
		{Key: "b", Constraint: Range{Min: -50, Max: 50, Step: 1}},
		{Key: "c", Constraint: Enumerated{Values: []any{"FlatBed"}}},
	}
	raw, err := json.Marshal(opts)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded[0]["constraints"] != nil {
		t.Fatalf("unconstrained should encode as null: %v", decoded[0]["constraints"])
	}
	if r, ok := decoded[1]["constraints"].(map[string]any); !ok || r["min"] != -50.0 {
		t.Fatalf("range should encode as object: %v", decoded[1]["constraints"])
	}
	if l, ok := decoded[2]["constraints"].([]any); !ok || l[0] != "FlatBed" {
		t.Fatalf("list should encode as array: %v", decoded[2]["constraints"])
	}
}
