package script

import (
	"fmt"

	"github.com/dop251/goja"
)

// GojaWorker evaluates hook scripts with an embedded ECMAScript engine,
// standing in for the sandboxed interpreter spec.md §1 treats as an
// external collaborator. The mapping of scope variables and return
// values mirrors the original implementation's Rhai scope/return
// handling one to one: `direction`, `trigger`, `target` and `data` are
// pushed into scope, and the script's return value is interpreted as
// replace(bytes)/replace(string)/keep(undefined or null)/error(anything
// else).
type GojaWorker struct{}

// NewGojaWorker constructs a GojaWorker. There is no per-instance state:
// every Eval call gets its own goja.Runtime so that one script's
// globals never leak into the next invocation, matching the original's
// fresh Scope per request.
func NewGojaWorker() *GojaWorker {
	return &GojaWorker{}
}

func (w *GojaWorker) Eval(src string, req Request) (Response, error) {
	rt := goja.New()

	data := make([]interface{}, len(req.Data))
	for i, b := range req.Data {
		data[i] = int64(b)
	}

	if err := rt.Set("direction", req.Direction.String()); err != nil {
		return Response{}, &Error{TargetName: req.TargetName, Cause: err}
	}
	if err := rt.Set("trigger", req.Direction.String()); err != nil {
		return Response{}, &Error{TargetName: req.TargetName, Cause: err}
	}
	if err := rt.Set("target", req.TargetName); err != nil {
		return Response{}, &Error{TargetName: req.TargetName, Cause: err}
	}
	if err := rt.Set("data", rt.NewArray(data...)); err != nil {
		return Response{}, &Error{TargetName: req.TargetName, Cause: err}
	}

	v, err := rt.RunString(src)
	if err != nil {
		return Response{}, &Error{TargetName: req.TargetName, Cause: err}
	}

	return w.decode(req.TargetName, v)
}

func (w *GojaWorker) decode(targetName string, v goja.Value) (Response, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return Response{}, nil
	}

	switch exported := v.Export().(type) {
	case string:
		return Response{Data: []byte(exported)}, nil
	case []byte:
		return Response{Data: exported}, nil
	case []interface{}:
		out := make([]byte, len(exported))
		for i, item := range exported {
			n, ok := toByte(item)
			if !ok {
				return Response{}, &Error{
					TargetName: targetName,
					Cause:      fmt.Errorf("script returned a non-byte array element: %v", item),
				}
			}
			out[i] = n
		}
		return Response{Data: out}, nil
	default:
		return Response{}, &Error{
			TargetName: targetName,
			Cause:      fmt.Errorf("script returned an invalid value: %#v", exported),
		}
	}
}

func toByte(v interface{}) (byte, bool) {
	switch n := v.(type) {
	case int64:
		return byte(n), n >= 0 && n <= 255
	case float64:
		return byte(n), n >= 0 && n <= 255
	default:
		return 0, false
	}
}
