package manager

import (
	"context"

	"modelapi/pkg/types"
)

// Do executes a model action and returns the value for the response's
// "result" field.
func (m *Manager) Do(ctx context.Context, req types.ModelRequest) (any, error) {
	switch req.Action {
	case types.ActionNone:
		return m.CurrentName(), nil
	case types.ActionLoad:
		return m.Load(ctx, req.ModelName, req.Args)
	case types.ActionUnload:
		return m.Unload()
	case types.ActionList:
		return m.List(ctx)
	case types.ActionInfo:
		return m.Info(), nil
	default:
		return nil, ErrBadRequest("unknown action %q", req.Action)
	}
}
