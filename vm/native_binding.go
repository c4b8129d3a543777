package vm

import (
	"errors"
	"fmt"
	"reflect"
)

// ---------------------------------------------------------------------------
// Typed native binding
// ---------------------------------------------------------------------------

var (
	envType   = reflect.TypeOf((*NativeEnv)(nil))
	refType   = reflect.TypeOf(Null)
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// Binding adapts a plain Go function to a NativeFunc.
//
// Accepted parameter and result types are int8 (B), uint16 (C), int16 (S),
// int32 (I), int64 (J), float32 (F), float64 (D), bool (Z) and Ref (objects
// and arrays). The function may take a leading *NativeEnv and may return a
// trailing error after at most one value.
type Binding struct {
	fn      reflect.Value
	withEnv bool
	params  []Kind
	result  Kind
	withErr bool
}

// Bind inspects fn and prepares a binding.
func Bind(fn any) (*Binding, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("%T is not a function", fn)
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, errors.New("variadic functions cannot be bound")
	}
	b := &Binding{fn: v, result: KindVoid}
	in := 0
	if t.NumIn() > 0 && t.In(0) == envType {
		b.withEnv = true
		in = 1
	}
	for ; in < t.NumIn(); in++ {
		k, ok := goKind(t.In(in))
		if !ok {
			return nil, fmt.Errorf("parameter %d has unsupported type %s", in, t.In(in))
		}
		b.params = append(b.params, k)
	}
	out := t.NumOut()
	if out > 0 && t.Out(out-1) == errorType {
		b.withErr = true
		out--
	}
	switch out {
	case 0:
	case 1:
		k, ok := goKind(t.Out(0))
		if !ok {
			return nil, fmt.Errorf("result has unsupported type %s", t.Out(0))
		}
		b.result = k
	default:
		return nil, fmt.Errorf("%d results; at most one value and an error", t.NumOut())
	}
	return b, nil
}

func goKind(t reflect.Type) (Kind, bool) {
	if t == refType {
		return KindRef, true
	}
	switch t.Kind() {
	case reflect.Bool:
		return KindBoolean, true
	case reflect.Int8:
		return KindByte, true
	case reflect.Uint16:
		return KindChar, true
	case reflect.Int16:
		return KindShort, true
	case reflect.Int32:
		return KindInt, true
	case reflect.Int64:
		return KindLong, true
	case reflect.Float32:
		return KindFloat, true
	case reflect.Float64:
		return KindDouble, true
	}
	return KindVoid, false
}

// compatible reports whether a Go parameter of kind g can carry a value
// declared as d. int32 accepts every int-like descriptor.
func compatible(g, d Kind) bool {
	return g == d || (g == KindInt && d.StackKind() == KindInt && d != KindBoolean)
}

// Check verifies the Go signature against a method type. Instance methods
// take the receiver as a leading Ref parameter.
func (b *Binding) Check(t *MethodType, static bool) error {
	want := t.Params
	if !static {
		want = append([]Kind{KindRef}, want...)
	}
	if len(want) != len(b.params) {
		return fmt.Errorf("function takes %d arguments, method %s needs %d", len(b.params), t, len(want))
	}
	for i, k := range want {
		if !compatible(b.params[i], k) {
			return fmt.Errorf("argument %d: function takes %s, method declares %s", i, b.params[i], k)
		}
	}
	if t.Return == KindVoid {
		if b.result != KindVoid {
			return fmt.Errorf("function returns %s, method returns void", b.result)
		}
		return nil
	}
	if !compatible(b.result, t.Return) {
		return fmt.Errorf("function returns %s, method returns %s", b.result, t.Return)
	}
	return nil
}

// Native returns the NativeFunc calling the bound function.
func (b *Binding) Native() NativeFunc {
	return func(env *NativeEnv, args []Value) (Value, error) {
		if len(args) != len(b.params) {
			return Value{}, fmt.Errorf("native called with %d arguments, expects %d", len(args), len(b.params))
		}
		in := make([]reflect.Value, 0, len(args)+1)
		if b.withEnv {
			in = append(in, reflect.ValueOf(env))
		}
		ft := b.fn.Type()
		for i, a := range args {
			in = append(in, toGo(b.params[i], a).Convert(ft.In(len(in))))
		}
		out := b.fn.Call(in)
		if b.withErr {
			if err, _ := out[len(out)-1].Interface().(error); err != nil {
				return Value{}, err
			}
		}
		if b.result == KindVoid {
			return Value{}, nil
		}
		return fromGo(b.result, out[0]), nil
	}
}

func toGo(k Kind, v Value) reflect.Value {
	switch k {
	case KindBoolean:
		return reflect.ValueOf(v.AsBool())
	case KindByte:
		return reflect.ValueOf(int8(v.AsInt()))
	case KindChar:
		return reflect.ValueOf(uint16(v.AsInt()))
	case KindShort:
		return reflect.ValueOf(int16(v.AsInt()))
	case KindLong:
		return reflect.ValueOf(v.AsLong())
	case KindFloat:
		return reflect.ValueOf(v.AsFloat())
	case KindDouble:
		return reflect.ValueOf(v.AsDouble())
	case KindRef:
		return reflect.ValueOf(v.AsRef())
	}
	return reflect.ValueOf(v.AsInt())
}

func fromGo(k Kind, rv reflect.Value) Value {
	switch k {
	case KindBoolean:
		return Bool(rv.Bool())
	case KindByte, KindShort, KindInt:
		return Int(int32(rv.Int()))
	case KindChar:
		return Int(int32(rv.Uint()))
	case KindLong:
		return Long(rv.Int())
	case KindFloat:
		return Float(float32(rv.Float()))
	case KindDouble:
		return Double(rv.Float())
	case KindRef:
		return Reference(rv.Interface().(Ref))
	}
	return Value{}
}
