// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package callable

import (
	"strconv"
	"strings"

	"github.com/pingcap/stmtkit/lib/util/errors"
	"github.com/pingcap/stmtkit/pkg/stmt/bind"
	"github.com/pingcap/stmtkit/pkg/stmt/parse"
	"github.com/tidwall/btree"
)

var (
	ErrParameterCountMismatch = errors.New("parameter count mismatch")
	ErrUnknownParameter       = errors.New("unknown parameter")
	ErrNotAnOutputParameter   = errors.New("not an output parameter")
	ErrOutputsNotAvailable    = errors.New("output parameters are not available")
	ErrNoOutputParameters     = errors.New("no output parameters")
	ErrProcedureNotFound      = errors.New("procedure not found")
	ErrInvalidState           = errors.New("invalid callable state")
)

// OutParamPrefix namespaces the session variables that carry output values.
const OutParamPrefix = "@stmtkit_outparam_"

// State is the lifecycle of a callable statement.
type State uint8

const (
	Unresolved State = iota
	Resolved
	Bound
	Executed
	OutputsReady
)

func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Resolved:
		return "resolved"
	case Bound:
		return "bound"
	case Executed:
		return "executed"
	case OutputsReady:
		return "outputs_ready"
	}
	return "unknown"
}

// IndexMap maps a placeholder position (1-based, element pos-1) to the
// logical parameter index. nil is the identity.
type IndexMap []int

// Resolver tracks the parameters of one callable statement. It is not safe
// for concurrent use.
type Resolver struct {
	site   *CallSite
	params []Param
	// byName maps lower-cased names to logical indexes.
	byName   map[string]int
	indexMap IndexMap
	// placeholders maps logical indexes back to positions.
	placeholders map[int]int
	permissive   bool
	state        State

	registered map[int]byte
	// columns maps the logical index of each output parameter to its column
	// in the cached output row.
	columns   *btree.Map[int, int]
	outRow    []any
	returnVal any
	hasReturn bool
}

// Resolve builds the resolver from the routine's ordered parameters.
func Resolve(params []Param, site *CallSite) (*Resolver, error) {
	if site == nil {
		return nil, errors.Wrapf(ErrNotACall, "nil call site")
	}
	r := &Resolver{
		site:         site,
		params:       params,
		byName:       make(map[string]int, len(params)),
		placeholders: make(map[int]int, len(params)),
		registered:   make(map[int]byte),
		state:        Resolved,
	}
	offset := 0
	for i, p := range params {
		if p.Index != i {
			return nil, errors.Wrapf(ErrUnknownParameter, "parameter %s has index %d at %d", p.Name, p.Index, i)
		}
		if p.Direction == Return {
			if i != 0 {
				return nil, errors.Wrapf(ErrUnknownParameter, "return value at index %d", i)
			}
			offset = 1
			continue
		}
		key := strings.ToLower(p.Name)
		if _, ok := r.byName[key]; ok {
			return nil, errors.Wrapf(ErrUnknownParameter, "duplicate parameter %s", p.Name)
		}
		r.byName[key] = i
	}
	if len(site.Args) != len(params)-offset {
		return nil, errors.Wrapf(ErrParameterCountMismatch, "%s takes %d parameters but %d are passed", site.Name, len(params)-offset, len(site.Args))
	}

	indexMap := make(IndexMap, 0, len(site.Args))
	identity := true
	for i, arg := range site.Args {
		if !arg.Placeholder {
			continue
		}
		logical := i + offset
		pos := len(indexMap) + 1
		if logical != pos-1 {
			identity = false
		}
		indexMap = append(indexMap, logical)
		r.placeholders[logical] = pos
	}
	if !identity {
		r.indexMap = indexMap
	}
	return r, nil
}

// Permissive builds a resolver without metadata. Every placeholder is an
// INOUT parameter named argN, N being its position.
func Permissive(site *CallSite) *Resolver {
	n := site.Placeholders()
	params := make([]Param, 0, n)
	for i := 0; i < n; i++ {
		params = append(params, Param{
			Index:     i,
			Name:      "arg" + strconv.Itoa(i+1),
			Direction: InOut,
			Nullable:  true,
		})
	}
	r := &Resolver{
		site:         site,
		params:       params,
		byName:       make(map[string]int, n),
		placeholders: make(map[int]int, n),
		registered:   make(map[int]byte),
		permissive:   true,
		state:        Resolved,
	}
	for i, p := range params {
		r.byName[p.Name] = i
		r.placeholders[i] = i + 1
	}
	return r
}

func (r *Resolver) State() State {
	return r.state
}

func (r *Resolver) CallSite() *CallSite {
	return r.site
}

// IndexMap returns the placeholder to parameter mapping, nil for the identity.
func (r *Resolver) IndexMap() IndexMap {
	return r.indexMap
}

func (r *Resolver) Permissive() bool {
	return r.permissive
}

// Params returns the routine parameters in logical order.
func (r *Resolver) Params() []Param {
	return r.params
}

func (r *Resolver) logical(pos int) (int, error) {
	if pos < 1 || pos > r.site.Placeholders() {
		return 0, errors.Wrapf(ErrUnknownParameter, "position %d out of [1, %d]", pos, r.site.Placeholders())
	}
	if r.indexMap == nil {
		return pos - 1, nil
	}
	return r.indexMap[pos-1], nil
}

// Param returns the parameter at placeholder position pos.
func (r *Resolver) Param(pos int) (Param, error) {
	idx, err := r.logical(pos)
	if err != nil {
		return Param{}, err
	}
	return r.params[idx], nil
}

// Position returns the placeholder position of the named parameter.
func (r *Resolver) Position(name string) (int, error) {
	idx, ok := r.byName[strings.ToLower(strings.TrimPrefix(name, "@"))]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownParameter, "%s", name)
	}
	pos, ok := r.placeholders[idx]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownParameter, "%s is passed as a literal", name)
	}
	return pos, nil
}

// Bind checks that the parameter at pos accepts a value.
func (r *Resolver) Bind(pos int) error {
	if _, err := r.Param(pos); err != nil {
		return err
	}
	if r.state == Resolved {
		r.state = Bound
	}
	return nil
}

// RegisterOutput marks the parameter at pos as read after execution.
func (r *Resolver) RegisterOutput(pos int, tp byte) error {
	p, err := r.Param(pos)
	if err != nil {
		return err
	}
	if !p.Direction.IsOutput() {
		return errors.Wrapf(ErrNotAnOutputParameter, "%s is %s", p.Name, p.Direction)
	}
	r.registered[p.Index] = tp
	return nil
}

// HasOutputParams reports whether outputs are read after execution. Results
// of such statements can not be streamed.
func (r *Resolver) HasOutputParams() bool {
	return len(r.outputs()) > 0
}

// outputs returns the logical indexes read by the output query, ascending.
// Permissive resolvers read only the registered parameters.
func (r *Resolver) outputs() []int {
	indexes := make([]int, 0, len(r.params))
	for _, p := range r.params {
		if _, ok := r.placeholders[p.Index]; !ok || !p.Direction.IsOutput() {
			continue
		}
		if _, ok := r.registered[p.Index]; r.permissive && !ok {
			continue
		}
		indexes = append(indexes, p.Index)
	}
	return indexes
}

// MangledName returns the session variable that carries a parameter's output.
func MangledName(name string) string {
	name = OutParamPrefix[1:] + strings.TrimPrefix(name, "@")
	for i := 0; i < len(name); i++ {
		if !isIdentByte(name[i]) {
			return "@`" + strings.ReplaceAll(name, "`", "``") + "`"
		}
	}
	return "@" + name
}

func isIdentByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '$' || c >= 0x80
}

// Execution is what a call sends: the SET statements for INOUT values, then
// the call with output placeholders replaced by session variables.
type Execution struct {
	SetStatements [][]byte
	Slots         []bind.Slot
}

// PrepareExecution builds the execution from the bound slots, one per
// placeholder. Unset INOUT slots that are registered for output are sent as
// NULL.
func (r *Resolver) PrepareExecution(slots []bind.Slot, opts bind.Options) (*Execution, error) {
	if r.state == Unresolved {
		return nil, errors.Wrapf(ErrInvalidState, "prepare execution when %s", r.state)
	}
	if len(slots) != r.site.Placeholders() {
		return nil, errors.Wrapf(ErrParameterCountMismatch, "%d values for %d placeholders", len(slots), r.site.Placeholders())
	}
	outputs := make(map[int]struct{}, len(r.params))
	for _, idx := range r.outputs() {
		outputs[idx] = struct{}{}
	}

	exec := &Execution{Slots: make([]bind.Slot, len(slots))}
	copy(exec.Slots, slots)
	for i, slot := range slots {
		idx, err := r.logical(i + 1)
		if err != nil {
			return nil, err
		}
		if _, ok := outputs[idx]; !ok {
			continue
		}
		p := r.params[idx]
		mangled, err := transcode(opts, []byte(MangledName(p.Name)))
		if err != nil {
			return nil, err
		}
		if p.Direction == InOut {
			if slot.State == bind.Unset {
				if _, ok := r.registered[idx]; !ok {
					return nil, errors.Wrapf(bind.ErrMissingParameter, "parameter %s", p.Name)
				}
				slot = bind.Slot{State: bind.Null, Type: p.Type}
			}
			set, err := setStatement(mangled, slot, opts)
			if err != nil {
				return nil, errors.Wrapf(err, "parameter %s", p.Name)
			}
			exec.SetStatements = append(exec.SetStatements, set)
		}
		exec.Slots[i] = bind.Slot{State: bind.Value, Type: p.Type, Value: mangled}
	}
	r.outRow, r.columns = nil, nil
	r.returnVal, r.hasReturn = nil, false
	r.state = Bound
	return exec, nil
}

func setStatement(mangled []byte, slot bind.Slot, opts bind.Options) ([]byte, error) {
	head, err := transcode(opts, []byte("SET "))
	if err != nil {
		return nil, err
	}
	eq, err := transcode(opts, []byte("="))
	if err != nil {
		return nil, err
	}
	prefix := make([]byte, 0, len(head)+len(mangled)+len(eq))
	prefix = append(append(append(prefix, head...), mangled...), eq...)
	tpl := &parse.Template{Fragments: [][]byte{prefix, nil}, ODKUOffset: -1}
	opts.Comment = ""
	return bind.Bind(tpl, []bind.Slot{slot}, opts)
}

func transcode(opts bind.Options, b []byte) ([]byte, error) {
	if opts.Encoder == nil {
		return b, nil
	}
	return opts.Encoder.Transcode(b)
}

// MarkExecuted records that the call was sent.
func (r *Resolver) MarkExecuted() {
	r.state = Executed
}

// OutputQuery returns SELECT @m1, @m2, ... for the output parameters in
// ascending order.
func (r *Resolver) OutputQuery() (string, error) {
	indexes := r.outputs()
	if len(indexes) == 0 {
		return "", errors.WithStack(ErrNoOutputParameters)
	}
	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, idx := range indexes {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(MangledName(r.params[idx].Name))
	}
	return sb.String(), nil
}

// SetOutputs caches the row returned by OutputQuery.
func (r *Resolver) SetOutputs(row []any) error {
	if r.state != Executed && r.state != OutputsReady {
		return errors.Wrapf(ErrInvalidState, "set outputs when %s", r.state)
	}
	indexes := r.outputs()
	if len(row) != len(indexes) {
		return errors.Wrapf(ErrParameterCountMismatch, "output row has %d columns for %d parameters", len(row), len(indexes))
	}
	r.columns = btree.NewMap[int, int](0)
	for col, idx := range indexes {
		r.columns.Set(idx, col)
	}
	r.outRow = row
	r.state = OutputsReady
	return nil
}

// SetReturnValue caches the value of a function call, read from the first
// result set.
func (r *Resolver) SetReturnValue(v any) error {
	if !r.site.Function {
		return errors.Wrapf(ErrNotAnOutputParameter, "%s is a procedure", r.site.Name)
	}
	r.returnVal, r.hasReturn = v, true
	return nil
}

// ReturnValue returns the function result of the last execution.
func (r *Resolver) ReturnValue() (any, error) {
	if !r.site.Function {
		return nil, errors.Wrapf(ErrNotAnOutputParameter, "%s is a procedure", r.site.Name)
	}
	if !r.hasReturn {
		return nil, errors.WithStack(ErrOutputsNotAvailable)
	}
	return r.returnVal, nil
}

// Output returns the value of the output parameter at placeholder position pos.
func (r *Resolver) Output(pos int) (any, error) {
	p, err := r.Param(pos)
	if err != nil {
		return nil, err
	}
	return r.output(p)
}

// OutputByName returns the value of the named output parameter.
func (r *Resolver) OutputByName(name string) (any, error) {
	pos, err := r.Position(name)
	if err != nil {
		return nil, err
	}
	return r.Output(pos)
}

func (r *Resolver) output(p Param) (any, error) {
	if !r.HasOutputParams() {
		return nil, errors.WithStack(ErrNoOutputParameters)
	}
	if !p.Direction.IsOutput() {
		return nil, errors.Wrapf(ErrNotAnOutputParameter, "%s is %s", p.Name, p.Direction)
	}
	if r.state != OutputsReady {
		return nil, errors.Wrapf(ErrOutputsNotAvailable, "state is %s", r.state)
	}
	col, ok := r.columns.Get(p.Index)
	if !ok {
		return nil, errors.Wrapf(ErrNotAnOutputParameter, "%s is not registered", p.Name)
	}
	return r.outRow[col], nil
}
