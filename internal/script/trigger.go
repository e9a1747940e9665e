package script

import "github.com/fcoury/yprox/internal/hook"

// Trigger adapts a Worker plus one script body into a hook.Trigger, so
// the hook chain can hold scripted hooks without importing this package
// or knowing an interpreter is involved.
func Trigger(w Worker, src string) hook.TriggerFunc {
	return func(req hook.Request) ([]byte, error) {
		resp, err := w.Eval(src, Request{
			Direction:  req.Direction,
			TargetName: req.TargetName,
			Data:       req.Data,
		})
		if err != nil {
			return nil, err
		}
		return resp.Data, nil
	}
}
