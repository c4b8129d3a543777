package manifest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/classvm/vm"
)

// Entry is a method reference of the form "pkg/Class.name(desc)".
type Entry struct {
	Class      string
	Method     string
	Descriptor string
}

// String returns the reference in its textual form.
func (e Entry) String() string {
	return e.Class + "." + e.Method + e.Descriptor
}

// ParseEntry parses "pkg/Class.name(desc)". The descriptor must be valid.
func ParseEntry(s string) (Entry, error) {
	paren := strings.IndexByte(s, '(')
	if paren < 0 {
		return Entry{}, fmt.Errorf("%q: missing descriptor", s)
	}
	dot := strings.LastIndexByte(s[:paren], '.')
	if dot <= 0 || dot == paren-1 {
		return Entry{}, fmt.Errorf("%q: want pkg/Class.method(desc)", s)
	}
	e := Entry{Class: s[:dot], Method: s[dot+1 : paren], Descriptor: s[paren:]}
	if _, err := vm.ParseMethodDescriptor(e.Descriptor); err != nil {
		return Entry{}, fmt.Errorf("%q: %w", s, err)
	}
	if IsReservedPackage(e.Class) {
		return Entry{}, fmt.Errorf("%q: %s is a bootstrap class", s, e.Class)
	}
	return e, nil
}

// ParseArgs converts command line words into values for the entry's
// parameters. Only primitive parameters can be given on the command line.
func (e Entry) ParseArgs(words []string) ([]vm.Value, error) {
	typ, err := vm.ParseMethodDescriptor(e.Descriptor)
	if err != nil {
		return nil, err
	}
	if len(words) != len(typ.Params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", e, len(typ.Params), len(words))
	}
	args := make([]vm.Value, len(words))
	for i, w := range words {
		if args[i], err = parseValue(typ.Params[i], w); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
	}
	return args, nil
}

func parseValue(k vm.Kind, w string) (vm.Value, error) {
	switch k {
	case vm.KindBoolean:
		b, err := strconv.ParseBool(w)
		return vm.Bool(b), err
	case vm.KindByte, vm.KindShort, vm.KindInt:
		n, err := strconv.ParseInt(w, 0, 32)
		return vm.Int(int32(n)), err
	case vm.KindChar:
		if r := []rune(w); len(r) == 1 && r[0] <= 0xffff {
			return vm.Int(r[0]), nil
		}
		n, err := strconv.ParseUint(w, 0, 16)
		return vm.Int(int32(n)), err
	case vm.KindLong:
		n, err := strconv.ParseInt(w, 0, 64)
		return vm.Long(n), err
	case vm.KindFloat:
		f, err := strconv.ParseFloat(w, 32)
		return vm.Float(float32(f)), err
	case vm.KindDouble:
		f, err := strconv.ParseFloat(w, 64)
		return vm.Double(f), err
	}
	return vm.Value{}, fmt.Errorf("%s parameters cannot be given on the command line", k)
}

// reservedPackages are defined by the VM itself and cannot be entry points.
var reservedPackages = []string{"java/lang/"}

// IsReservedPackage reports whether class lives in a package owned by the
// VM's bootstrap classes.
func IsReservedPackage(class string) bool {
	for _, p := range reservedPackages {
		if strings.HasPrefix(class, p) {
			return true
		}
	}
	return false
}
