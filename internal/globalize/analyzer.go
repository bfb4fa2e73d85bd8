package globalize

import (
	"fmt"
	"sort"

	"strata/internal/errors"
	"strata/internal/ir"
)

// Analysis is the result of validating the instance graph and resolving every
// instance-typed value to a unique instance path.
type Analysis struct {
	// Instances in DFS pre-order from the root, slots visited in declaration order
	Instances []InstancePath
	// Cells lists the storage cells flattening will create, in instance order
	Cells []Cell
	// Specializations in creation order: methods per instance, then free functions
	Specializations []*Specialization

	pathOf map[*ir.Object]string
	specs  map[specKey]*Specialization
}

// InstancePath pairs an instance with its unique slot path from the root
type InstancePath struct {
	Object *ir.Object
	Path   string
}

// Cell is a planned global storage cell for a data slot
type Cell struct {
	Name   string
	Object *ir.Object
	Slot   *ir.Slot
}

// Specialization is one monomorphic copy of a function. Methods are specialized per
// owning instance; free functions with instance-typed parameters once.
type Specialization struct {
	Function *ir.Function
	Name     string
	Self     *ir.Object // owning instance for methods, nil for free functions
	Public   bool

	// Params holds the instance bound to each parameter position, nil for data parameters
	Params []*ir.Object
	// Results holds the instance returned at each result position
	Results []*ir.Object

	values map[*ir.Value]*ir.Object
	calls  map[*ir.Operation]*Specialization
}

type specKey struct {
	fn   *ir.Function
	self *ir.Object
}

// Path returns the slot path of an instance
func (a *Analysis) Path(obj *ir.Object) (string, bool) {
	p, ok := a.pathOf[obj]
	return p, ok
}

// Key returns the monomorphization key of a specialization: the instance path bound to
// each instance-typed parameter position
func (a *Analysis) Key(s *Specialization) map[int]string {
	key := make(map[int]string)
	for i, obj := range s.Params {
		if obj != nil {
			key[i] = a.pathOf[obj]
		}
	}
	return key
}

// Instance returns the instance a value of the original function resolves to
func (s *Specialization) Instance(v *ir.Value) *ir.Object {
	return s.values[v]
}

// Callee returns the specialization a call operation of the original body targets
func (s *Specialization) Callee(op *ir.Operation) (*Specialization, bool) {
	c, ok := s.calls[op]
	return c, ok
}

const (
	unvisited = iota
	onStack
	finished
)

type analyzer struct {
	m       *ir.Module
	a       *Analysis
	errs    errors.List
	seen    map[string]bool
	methods map[*ir.Function]bool
	report  bool
	changed bool
}

// Analyze validates that the instance graph is a tree with a single root and that every
// instance-typed value has a single static binding. It never mutates the module and
// collects every violation it finds.
func Analyze(m *ir.Module) (*Analysis, error) {
	an := &analyzer{
		m: m,
		a: &Analysis{
			pathOf: make(map[*ir.Object]string),
			specs:  make(map[specKey]*Specialization),
		},
		seen:    make(map[string]bool),
		methods: make(map[*ir.Function]bool),
	}

	if len(m.Objects) == 0 && len(m.Classes) == 0 {
		// Already flat
		return an.a, nil
	}

	an.buildPaths()
	if len(an.errs) > 0 {
		return nil, an.errs
	}

	an.planCells()
	an.buildSpecializations()
	an.solve()
	an.checkNames()
	if len(an.errs) > 0 {
		return nil, an.errs
	}

	log.Debugf("analyzed %d instances, %d cells, %d specializations",
		len(an.a.Instances), len(an.a.Cells), len(an.a.Specializations))
	return an.a, nil
}

func (an *analyzer) add(e errors.CompilerError) {
	key := e.Error()
	if an.seen[key] {
		return
	}
	an.seen[key] = true
	an.errs.Add(e)
}

func (an *analyzer) fail(kind errors.Kind, op *ir.Operation, format string, args ...interface{}) {
	if !an.report {
		return
	}
	an.add(errors.NewDiagnostic(kind, fmt.Sprintf(format, args...)).ForOp(op).Build())
}

// Instance graph

func (an *analyzer) buildPaths() {
	incoming := make(map[*ir.Object]bool)
	for _, obj := range an.m.Objects {
		for _, s := range orderedSlots(an.m, obj) {
			if child := s.Child(); child != nil {
				incoming[child] = true
			}
		}
	}

	var roots []*ir.Object
	var names []string
	for _, obj := range an.m.Objects {
		if !incoming[obj] {
			roots = append(roots, obj)
			names = append(names, fmt.Sprintf("@%s#%d", obj.Class, obj.ID))
		}
	}
	if len(roots) != 1 {
		an.add(errors.RootCount(names))
		return
	}

	state := make(map[*ir.Object]int)
	var visit func(obj *ir.Object, path string)
	visit = func(obj *ir.Object, path string) {
		state[obj] = onStack
		an.a.pathOf[obj] = path
		an.a.Instances = append(an.a.Instances, InstancePath{Object: obj, Path: path})
		for _, s := range orderedSlots(an.m, obj) {
			child := s.Child()
			if child == nil {
				continue
			}
			childPath := join(path, s.Name)
			switch state[child] {
			case onStack:
				an.add(errors.InstanceCycle(child.Class, an.a.pathOf[child], childPath))
			case finished:
				an.add(errors.SharedInstance(child.Class, an.a.pathOf[child], childPath))
			default:
				visit(child, childPath)
			}
		}
		state[obj] = finished
	}
	visit(roots[0], "")

	for _, obj := range an.m.Objects {
		if state[obj] == unvisited {
			an.add(errors.UnreachableInstance(obj.Class, obj.ID, objectLoc(obj)))
		}
	}
}

func (an *analyzer) planCells() {
	for _, inst := range an.a.Instances {
		for _, s := range orderedSlots(an.m, inst.Object) {
			if s.Child() != nil {
				continue
			}
			an.a.Cells = append(an.a.Cells, Cell{Name: join(inst.Path, s.Name), Object: inst.Object, Slot: s})
		}
	}
}

// Specializations

func (an *analyzer) buildSpecializations() {
	for _, class := range an.m.Classes {
		for _, meth := range class.Methods {
			if fn := an.m.Function(meth.Function); fn != nil {
				an.methods[fn] = true
			}
		}
	}

	for _, inst := range an.a.Instances {
		class := an.m.Class(inst.Object.Class)
		if class == nil {
			an.add(errors.NewDiagnostic(errors.KindMalformedInput,
				fmt.Sprintf("instance at '%s' has undeclared class @%s", display(inst.Path), inst.Object.Class)).
				At(objectLoc(inst.Object)).Build())
			continue
		}
		for _, meth := range class.Methods {
			fn := an.m.Function(meth.Function)
			if fn == nil {
				an.add(errors.NewDiagnostic(errors.KindMalformedInput,
					fmt.Sprintf("method '%s' of class @%s refers to undefined function @%s", meth.Name, class.Name, meth.Function)).
					At(class.Loc).Build())
				continue
			}
			if !takesReceiver(fn, class.Name) {
				an.add(errors.NewDiagnostic(errors.KindMonomorphizationFailure,
					fmt.Sprintf("method @%s of class @%s must take !obj<%q> as its first parameter", fn.Name, class.Name, class.Name)).
					InFunction(fn.Name).At(fn.Loc).Build())
				continue
			}
			spec := an.newSpec(fn, inst.Object, join(inst.Path, meth.Name))
			spec.Public = inst.Path == ""
			spec.Params[0] = inst.Object
		}
	}

	// Public free functions are entry points even when nothing calls them
	for _, fn := range an.m.Functions {
		if !an.methods[fn] && fn.IsPublic() && hasInstanceTypes(fn) {
			spec := an.newSpec(fn, nil, fn.Name)
			spec.Public = true
		}
	}
}

func (an *analyzer) newSpec(fn *ir.Function, self *ir.Object, name string) *Specialization {
	spec := &Specialization{
		Function: fn,
		Name:     name,
		Self:     self,
		Params:   make([]*ir.Object, len(fn.Params)),
		Results:  make([]*ir.Object, len(fn.Results)),
		values:   make(map[*ir.Value]*ir.Object),
		calls:    make(map[*ir.Operation]*Specialization),
	}
	an.a.specs[specKey{fn: fn, self: self}] = spec
	an.a.Specializations = append(an.a.Specializations, spec)
	return spec
}

// solve propagates instance bindings through call sites until nothing changes, then
// re-evaluates every specialization once more to report what is still unresolved.
func (an *analyzer) solve() {
	for {
		an.changed = false
		for i := 0; i < len(an.a.Specializations); i++ {
			an.evaluate(an.a.Specializations[i])
		}
		if !an.changed {
			break
		}
	}

	an.report = true
	for i := 0; i < len(an.a.Specializations); i++ {
		spec := an.a.Specializations[i]
		an.evaluate(spec)
		an.checkSignature(spec)
	}
}

func (an *analyzer) evaluate(spec *Specialization) {
	spec.values = make(map[*ir.Value]*ir.Object)
	spec.calls = make(map[*ir.Operation]*Specialization)
	for i, p := range spec.Function.Params {
		if inst := spec.Params[i]; inst != nil {
			spec.values[p.Value] = inst
		}
	}

	for _, op := range spec.Function.Body.Ops {
		if an.report {
			an.checkOperands(spec, op)
		}
		switch op.Name {
		case ir.OpGetSlot:
			an.evalGetSlot(spec, op)
		case ir.OpSetSlot:
			an.evalSetSlot(spec, op)
		case ir.OpCallMethod:
			an.evalCallMethod(spec, op)
		case ir.OpCall:
			an.evalCall(spec, op)
		case ir.OpReturn:
			an.evalReturn(spec, op)
		case ir.OpObjectNew:
			an.fail(errors.KindMonomorphizationFailure, op, "instances can only be created in the module initializer")
		}
	}
}

func (an *analyzer) evalGetSlot(spec *Specialization, op *ir.Operation) {
	if len(op.Operands) != 1 {
		an.fail(errors.KindMalformedInput, op, "%s takes exactly one operand", op.Name)
		return
	}
	inst := spec.values[op.Operands[0]]
	if inst == nil {
		return
	}
	name := op.StringAttr("name")
	slot := inst.Slot(name)
	if slot == nil {
		an.fail(errors.KindMalformedInput, op, "instance at '%s' of class @%s has no slot %q",
			display(an.a.pathOf[inst]), inst.Class, name)
		return
	}
	res := op.Result()
	if res == nil {
		return
	}
	child := slot.Child()
	switch {
	case ir.IsObject(res.Type) && child == nil:
		an.fail(errors.KindMonomorphizationFailure, op, "slot '%s' does not hold an instance",
			join(an.a.pathOf[inst], name))
	case ir.IsObject(res.Type):
		if ot := res.Type.(*ir.ObjectType); ot.Class != child.Class {
			an.fail(errors.KindMonomorphizationFailure, op, "slot '%s' holds an instance of class @%s, not @%s",
				join(an.a.pathOf[inst], name), child.Class, ot.Class)
			return
		}
		spec.values[res] = child
	case child != nil:
		an.fail(errors.KindMalformedInput, op, "instance slot '%s' read as %s",
			join(an.a.pathOf[inst], name), res.Type)
	}
}

func (an *analyzer) evalSetSlot(spec *Specialization, op *ir.Operation) {
	if len(op.Operands) != 2 {
		an.fail(errors.KindMalformedInput, op, "%s takes a receiver and a value", op.Name)
		return
	}
	inst := spec.values[op.Operands[0]]
	if inst == nil {
		return
	}
	name := op.StringAttr("name")
	slot := inst.Slot(name)
	path := join(an.a.pathOf[inst], name)
	switch {
	case slot == nil:
		an.fail(errors.KindMalformedInput, op, "instance at '%s' of class @%s has no slot %q",
			display(an.a.pathOf[inst]), inst.Class, name)
	case slot.Child() != nil || ir.ContainsObject(op.Operands[1].Type):
		an.fail(errors.KindMonomorphizationFailure, op, "instance slot '%s' is reassigned", path)
	case !slot.Mutable:
		an.fail(errors.KindMalformedInput, op, "slot '%s' is not mutable", path)
	}
}

func (an *analyzer) evalCallMethod(spec *Specialization, op *ir.Operation) {
	if len(op.Operands) == 0 {
		an.fail(errors.KindMalformedInput, op, "%s requires a receiver", op.Name)
		return
	}
	recv := op.Operands[0]
	inst := spec.values[recv]
	if inst == nil {
		return
	}
	method := op.StringAttr("method")
	if ot, ok := recv.Type.(*ir.ObjectType); ok && ot.Class != inst.Class {
		an.fail(errors.KindMonomorphizationFailure, op,
			"method '%s' invoked on a receiver typed @%s, but the instance at '%s' has class @%s",
			method, ot.Class, display(an.a.pathOf[inst]), inst.Class)
		return
	}
	class := an.m.Class(inst.Class)
	if class == nil {
		return
	}
	fnName, ok := class.Method(method)
	if !ok {
		if an.report {
			an.add(errors.UnknownMethod(class.Name, method, op, methodNames(class)))
		}
		return
	}
	callee := an.a.specs[specKey{fn: an.m.Function(fnName), self: inst}]
	if callee == nil {
		return
	}
	spec.calls[op] = callee
	an.bindCall(spec, op, callee)
}

func (an *analyzer) evalCall(spec *Specialization, op *ir.Operation) {
	name := op.SymbolAttr("callee")
	fn := an.m.Function(name)
	if fn == nil {
		if an.report {
			an.add(errors.UndefinedFunction(name, op, functionNames(an.m)))
		}
		return
	}
	if !hasInstanceTypes(fn) {
		return
	}

	var callee *Specialization
	if an.methods[fn] {
		if len(op.Operands) == 0 {
			an.fail(errors.KindMalformedInput, op, "call to method @%s requires a receiver", fn.Name)
			return
		}
		inst := spec.values[op.Operands[0]]
		if inst == nil {
			return
		}
		callee = an.a.specs[specKey{fn: fn, self: inst}]
		if callee == nil {
			an.fail(errors.KindMonomorphizationFailure, op,
				"@%s is not a method of class @%s (receiver at '%s')", fn.Name, inst.Class, display(an.a.pathOf[inst]))
			return
		}
	} else {
		callee = an.a.specs[specKey{fn: fn}]
		if callee == nil {
			callee = an.newSpec(fn, nil, fn.Name)
			callee.Public = fn.IsPublic()
			an.changed = true
		}
	}
	spec.calls[op] = callee
	an.bindCall(spec, op, callee)
}

// bindCall records the instances a call site passes to the callee and maps the call's
// instance results to the instances the callee returns
func (an *analyzer) bindCall(spec *Specialization, op *ir.Operation, callee *Specialization) {
	params := callee.Function.Params
	if len(op.Operands) != len(params) {
		an.fail(errors.KindMalformedInput, op, "call passes %d arguments but @%s takes %d",
			len(op.Operands), callee.Function.Name, len(params))
		return
	}
	for i, arg := range op.Operands {
		if !ir.IsObject(params[i].Type) {
			continue
		}
		inst := spec.values[arg]
		if inst == nil {
			continue
		}
		prev := callee.Params[i]
		switch {
		case prev == nil:
			callee.Params[i] = inst
			an.changed = true
		case prev != inst && an.report:
			e := errors.ConflictingBinding(callee.Name, paramName(params[i], i), an.a.pathOf[prev], an.a.pathOf[inst])
			e.Location = op.Loc
			an.add(e)
		}
	}
	for j, r := range op.Results {
		if ir.IsObject(r.Type) && j < len(callee.Results) && callee.Results[j] != nil {
			spec.values[r] = callee.Results[j]
		}
	}
}

func (an *analyzer) evalReturn(spec *Specialization, op *ir.Operation) {
	for j, v := range op.Operands {
		if j >= len(spec.Results) || !ir.IsObject(v.Type) {
			continue
		}
		inst := spec.values[v]
		if inst == nil {
			continue
		}
		switch prev := spec.Results[j]; {
		case prev == nil:
			spec.Results[j] = inst
			an.changed = true
		case prev != inst:
			an.fail(errors.KindMonomorphizationFailure, op, "@%s returns instance '%s' and instance '%s' at result %d",
				spec.Name, display(an.a.pathOf[prev]), display(an.a.pathOf[inst]), j)
		}
	}
}

func (an *analyzer) checkOperands(spec *Specialization, op *ir.Operation) {
	for _, v := range op.Operands {
		switch {
		case ir.IsObject(v.Type) && spec.values[v] == nil:
			an.fail(errors.KindMonomorphizationFailure, op,
				"instance-typed value %%%s in @%s cannot be resolved statically", v.DisplayName(), spec.Name)
		case !ir.IsObject(v.Type) && ir.ContainsObject(v.Type):
			an.fail(errors.KindMonomorphizationFailure, op,
				"instance nested in %s cannot be resolved statically", v.Type)
		}
	}
	for _, r := range op.Results {
		if !ir.IsObject(r.Type) && ir.ContainsObject(r.Type) {
			an.fail(errors.KindMonomorphizationFailure, op,
				"instance nested in %s cannot be resolved statically", r.Type)
		}
	}
}

func (an *analyzer) checkSignature(spec *Specialization) {
	fn := spec.Function
	for i, p := range fn.Params {
		switch {
		case ir.IsObject(p.Type) && spec.Params[i] == nil:
			an.add(errors.NewDiagnostic(errors.KindMonomorphizationFailure,
				fmt.Sprintf("parameter %%%s of @%s is never bound by a call site", paramName(p, i), spec.Name)).
				InFunction(spec.Name).At(fn.Loc).Build())
		case !ir.IsObject(p.Type) && ir.ContainsObject(p.Type):
			an.add(errors.NewDiagnostic(errors.KindMonomorphizationFailure,
				fmt.Sprintf("parameter %%%s of @%s nests an instance in %s", paramName(p, i), spec.Name, p.Type)).
				InFunction(spec.Name).At(fn.Loc).Build())
		}
	}
	for j, r := range fn.Results {
		switch {
		case ir.IsObject(r) && spec.Results[j] == nil:
			an.add(errors.NewDiagnostic(errors.KindMonomorphizationFailure,
				fmt.Sprintf("result %d of @%s does not resolve to a single instance", j, spec.Name)).
				InFunction(spec.Name).At(fn.Loc).Build())
		case !ir.IsObject(r) && ir.ContainsObject(r):
			an.add(errors.NewDiagnostic(errors.KindMonomorphizationFailure,
				fmt.Sprintf("result %d of @%s nests an instance in %s", j, spec.Name, r)).
				InFunction(spec.Name).At(fn.Loc).Build())
		}
	}
}

// checkNames rejects flattened names that collide with each other or with symbols the
// module keeps
func (an *analyzer) checkNames() {
	globals := make(map[string]string)
	for _, g := range an.m.Globals {
		globals[g.Name] = "existing global"
	}
	for _, c := range an.a.Cells {
		if prev, ok := globals[c.Name]; ok {
			an.add(errors.NewDiagnostic(errors.KindMalformedInput,
				fmt.Sprintf("cell @%s for slot '%s' collides with %s", c.Name, c.Name, prev)).
				At(objectLoc(c.Object)).Build())
			continue
		}
		globals[c.Name] = "slot '" + c.Name + "'"
	}

	functions := make(map[string]string)
	for _, fn := range an.m.Functions {
		if !hasInstanceTypes(fn) {
			functions[fn.Name] = "existing function"
		}
	}
	for _, spec := range an.a.Specializations {
		if prev, ok := functions[spec.Name]; ok {
			an.add(errors.NewDiagnostic(errors.KindMalformedInput,
				fmt.Sprintf("specialization @%s of @%s collides with %s", spec.Name, spec.Function.Name, prev)).
				InFunction(spec.Function.Name).At(spec.Function.Loc).Build())
			continue
		}
		functions[spec.Name] = "specialization of @" + spec.Function.Name
	}
}

// Helpers

// orderedSlots returns the instance's slots in class declaration order
func orderedSlots(m *ir.Module, obj *ir.Object) []*ir.Slot {
	class := m.Class(obj.Class)
	if class == nil {
		return obj.Slots
	}
	index := make(map[string]int, len(class.Slots))
	for i, s := range class.Slots {
		index[s.Name] = i
	}
	slots := append([]*ir.Slot(nil), obj.Slots...)
	sort.SliceStable(slots, func(i, j int) bool {
		a, aok := index[slots[i].Name]
		b, bok := index[slots[j].Name]
		switch {
		case aok && bok:
			return a < b
		case aok != bok:
			return aok
		}
		return false
	})
	return slots
}

func hasInstanceTypes(fn *ir.Function) bool {
	for _, p := range fn.Params {
		if ir.ContainsObject(p.Type) {
			return true
		}
	}
	for _, r := range fn.Results {
		if ir.ContainsObject(r) {
			return true
		}
	}
	return false
}

func takesReceiver(fn *ir.Function, class string) bool {
	if len(fn.Params) == 0 {
		return false
	}
	ot, ok := fn.Params[0].Type.(*ir.ObjectType)
	return ok && ot.Class == class
}

func methodNames(class *ir.ClassType) []string {
	names := make([]string, len(class.Methods))
	for i, m := range class.Methods {
		names[i] = m.Name
	}
	return names
}

func functionNames(m *ir.Module) []string {
	names := make([]string, len(m.Functions))
	for i, fn := range m.Functions {
		names[i] = fn.Name
	}
	return names
}

func paramName(p *ir.Parameter, i int) string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("arg%d", i)
}

func objectLoc(obj *ir.Object) ir.Location {
	if obj.Op == nil {
		return ir.Location{}
	}
	return obj.Op.Loc
}

// join qualifies a slot or method name with the owning instance path. Root members
// stay unqualified.
func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func display(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}
