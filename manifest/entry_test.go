package manifest

import (
	"testing"

	"github.com/chazu/classvm/vm"
)

func TestParseEntry(t *testing.T) {
	tests := []struct {
		input   string
		want    Entry
		wantErr bool
	}{
		{"tests/ackermann/Ackermann.ack(II)I", Entry{"tests/ackermann/Ackermann", "ack", "(II)I"}, false},
		{"Main.main()V", Entry{"Main", "main", "()V"}, false},
		{"a/b/C.<init>(J)V", Entry{"a/b/C", "<init>", "(J)V"}, false},
		{"Main.main", Entry{}, true},
		{".main()V", Entry{}, true},
		{"Main.()V", Entry{}, true},
		{"Main.main(Q)V", Entry{}, true},
		{"java/lang/Object.hashCode()I", Entry{}, true},
	}

	for _, tc := range tests {
		got, err := ParseEntry(tc.input)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseEntry(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseEntry(%q) = %+v, want %+v", tc.input, got, tc.want)
		}
		if !tc.wantErr && got.String() != tc.input {
			t.Errorf("String() = %q, want %q", got.String(), tc.input)
		}
	}
}

func TestParseArgs(t *testing.T) {
	e := Entry{Class: "T", Method: "m", Descriptor: "(IJFDZBCS)V"}
	args, err := e.ParseArgs([]string{"-3", "0x10", "1.5", "2.25", "true", "-1", "A", "7"})
	if err != nil {
		t.Fatalf("ParseArgs failed: %v", err)
	}
	want := []vm.Value{
		vm.Int(-3), vm.Long(16), vm.Float(1.5), vm.Double(2.25),
		vm.Bool(true), vm.Int(-1), vm.Int('A'), vm.Int(7),
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("arg %d = %s, want %s", i, args[i], want[i])
		}
	}

	if _, err := e.ParseArgs([]string{"1"}); err == nil {
		t.Error("expected arity error")
	}
	if _, err := (Entry{Descriptor: "(I)V"}).ParseArgs([]string{"x"}); err == nil {
		t.Error("expected parse error")
	}
	if _, err := (Entry{Descriptor: "([I)V"}).ParseArgs([]string{"1"}); err == nil {
		t.Error("expected error for array parameter")
	}
}
