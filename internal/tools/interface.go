package tools

import "context"

// Tool is one domain action the model may call.
type Tool interface {
	Schema() Schema
	Execute(ctx context.Context, params Params) (any, error)
}
