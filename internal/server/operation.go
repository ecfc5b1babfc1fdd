package server

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// isSubscription reports whether the operation selected by operationName is
// a subscription. Without a name the document's only operation is used.
// Documents that do not parse are not subscriptions; executing them reports
// the syntax error.
func isSubscription(doc, operationName string) bool {
	query, err := parser.ParseQuery(&ast.Source{Input: doc})
	if err != nil {
		return false
	}

	op := query.Operations.ForName(operationName)
	return op != nil && op.Operation == ast.Subscription
}
