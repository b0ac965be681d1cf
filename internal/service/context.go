package service

import "context"

type contextKey string

const (
	operatorKey contextKey = "operator"
	tenantKey   contextKey = "tenant"
)

// OperatorInfo defines the structured identity of a console user
type OperatorInfo struct {
	UserID string
	Name   string
	Role   string
}

// WithOperator injects the operator info into the context
func WithOperator(ctx context.Context, op *OperatorInfo) context.Context {
	return context.WithValue(ctx, operatorKey, op)
}

// GetOperatorInfo retrieves the operator info from the context
func GetOperatorInfo(ctx context.Context) *OperatorInfo {
	val, ok := ctx.Value(operatorKey).(*OperatorInfo)
	if !ok {
		return nil
	}
	return val
}

// GetOperator returns the operator name, or "system" for background loops
func GetOperator(ctx context.Context) string {
	op := GetOperatorInfo(ctx)
	if op == nil {
		return "system"
	}
	return op.Name
}

// WithTenant injects the authenticated tenant id into the context
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// GetTenant retrieves the authenticated tenant id from the context
func GetTenant(ctx context.Context) string {
	val, ok := ctx.Value(tenantKey).(string)
	if !ok {
		return ""
	}
	return val
}
