// Package operator identifies the shop-floor operator performing scans.
// Operators authenticate upstream with their badge; this package only
// propagates the resulting identity so the verification engine can stamp
// scan history records with it.
package operator

import (
	"context"
	"fmt"
)

// Operator represents the person behind a scan terminal
type Operator struct {
	// ID is the operator's unique identifier
	ID string `json:"id"`

	// Name is the operator's display name
	Name string `json:"name"`

	// Badge is the physical badge number
	Badge string `json:"badge,omitempty"`

	// Line is the production line the operator is assigned to, if any
	Line string `json:"line,omitempty"`
}

// String returns a representation of the operator for logging
func (o *Operator) String() string {
	if o == nil {
		return "system"
	}
	return fmt.Sprintf("%s (%s)", o.Name, o.Badge)
}

type contextKey string

const operatorContextKey contextKey = "operator"

// FromContext retrieves the Operator from the context.
// Returns nil if no operator is present (system operations).
func FromContext(ctx context.Context) *Operator {
	if ctx == nil {
		return nil
	}
	op, ok := ctx.Value(operatorContextKey).(*Operator)
	if !ok {
		return nil
	}
	return op
}

// WithOperator returns a new context with the Operator attached.
func WithOperator(ctx context.Context, o *Operator) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, operatorContextKey, o)
}

// IDFromContext returns the operator ID or empty for system operations.
func IDFromContext(ctx context.Context) string {
	if op := FromContext(ctx); op != nil {
		return op.ID
	}
	return ""
}
