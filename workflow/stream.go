package workflow

import "context"

// TokenEmitter 流式 token 回调。节点在生成过程中逐 token 调用。
type TokenEmitter func(token string)

type emitterKey struct{}

// WithTokenEmitter 将 token 回调注入 context。
// 节点通过 TokenEmitterFromContext 取出后即可边生成边推送。
func WithTokenEmitter(ctx context.Context, emit TokenEmitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, emit)
}

// TokenEmitterFromContext 取出 token 回调。
// 未注入时返回 false，节点应退回非流式路径。
func TokenEmitterFromContext(ctx context.Context) (TokenEmitter, bool) {
	emit, ok := ctx.Value(emitterKey{}).(TokenEmitter)
	return emit, ok
}
