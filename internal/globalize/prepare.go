package globalize

import (
	"fmt"

	"strata/internal/errors"
	"strata/internal/ir"
)

// Prepare canonicalizes method invocations whose receiver class is known from its type
// into direct calls of the class's method function. Running it twice is a no-op.
func Prepare(m *ir.Module) error {
	var errs errors.List
	targets := make(map[*ir.Operation]string)
	var order []*ir.Operation
	for _, fn := range m.Functions {
		for _, op := range fn.Body.Ops {
			if op.Name != ir.OpCallMethod {
				continue
			}
			if len(op.Operands) == 0 {
				errs.Add(errors.NewDiagnostic(errors.KindMalformedInput, "call.method requires a receiver").ForOp(op).Build())
				continue
			}
			ot, ok := op.Operands[0].Type.(*ir.ObjectType)
			if !ok {
				errs.Add(errors.NewDiagnostic(errors.KindMalformedInput,
					fmt.Sprintf("call.method receiver has type %s, not an instance type", op.Operands[0].Type)).
					ForOp(op).Build())
				continue
			}
			class := m.Class(ot.Class)
			if class == nil {
				errs.Add(errors.NewDiagnostic(errors.KindMalformedInput,
					fmt.Sprintf("call.method receiver has undeclared class @%s", ot.Class)).
					ForOp(op).Build())
				continue
			}
			method := op.StringAttr("method")
			target, ok := class.Method(method)
			if !ok {
				errs.Add(errors.UnknownMethod(class.Name, method, op, methodNames(class)))
				continue
			}
			targets[op] = target
			order = append(order, op)
		}
	}
	if len(errs) > 0 {
		return errs
	}

	for _, op := range order {
		op.Name = ir.OpCall
		delete(op.Attrs, "method")
		op.SetAttr("callee", ir.SymbolRef(targets[op]))
	}
	log.Debugf("canonicalized %d method calls", len(order))
	return nil
}
