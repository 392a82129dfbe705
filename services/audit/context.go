package audit

import "context"

type requestInfoKey struct{}

// WithRequestInfo attaches request metadata for audit rows written further down the call chain
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFromContext returns the metadata stored by WithRequestInfo, or the zero value
func RequestInfoFromContext(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}
