package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// DefaultMaxValuesPerFilter is the platform's cap on operation.values.
const DefaultMaxValuesPerFilter = 5000

// BranchLogic is the AND/OR combinator used by filter branches.
type BranchLogic string

const (
	LogicAnd BranchLogic = "AND"
	LogicOr  BranchLogic = "OR"
)

// Operator is the comparison applied by a filter's operation.
type Operator string

// Set-membership operators. Positive operators match when the property
// value is in the set; negative ones when it is not.
const (
	OperatorContains       Operator = "CONTAINS"
	OperatorIsAnyOf        Operator = "IS_ANY_OF"
	OperatorIsEqualTo      Operator = "IS_EQUAL_TO"
	OperatorDoesNotContain Operator = "DOES_NOT_CONTAIN"
	OperatorIsNoneOf       Operator = "IS_NONE_OF"
	OperatorIsNotEqualTo   Operator = "IS_NOT_EQUAL_TO"
)

// Numeric comparison operators.
const (
	OperatorIsGreaterThan        Operator = "IS_GREATER_THAN"
	OperatorIsGreaterThanOrEqual Operator = "IS_GREATER_THAN_OR_EQUAL_TO"
	OperatorIsLessThan           Operator = "IS_LESS_THAN"
	OperatorIsLessThanOrEqual    Operator = "IS_LESS_THAN_OR_EQUAL_TO"
)

// Polarity classifies how an operator treats its value set.
type Polarity int

const (
	// PolarityNone means the operator cannot be split across clauses
	// (numeric comparisons, exact-set operators, anything unknown).
	PolarityNone Polarity = iota
	// PolarityPositive: x IN S == OR over chunks of S.
	PolarityPositive
	// PolarityNegative: x NOT IN S == AND over chunks of S.
	PolarityNegative
)

// Polarity reports how values of this operator may be fragmented.
func (o Operator) Polarity() Polarity {
	switch o {
	case OperatorContains, OperatorIsAnyOf, OperatorIsEqualTo:
		return PolarityPositive
	case OperatorDoesNotContain, OperatorIsNoneOf, OperatorIsNotEqualTo:
		return PolarityNegative
	default:
		return PolarityNone
	}
}

// OperationType names the value shape of an operation.
type OperationType string

const (
	OperationTypeMultiString OperationType = "MULTISTRING"
	OperationTypeEnumeration OperationType = "ENUMERATION"
	OperationTypeString      OperationType = "STRING"
	OperationTypeNumber      OperationType = "NUMBER"
)

// FilterType is the kind of a filter clause.
type FilterType string

const FilterTypeProperty FilterType = "PROPERTY"

// ActionTypeListBranch is the action type carrying list branches.
const ActionTypeListBranch = "LIST_BRANCH"

// ActionTypeIDSetProperty is the actionTypeId of a set-property action.
// Some exported flows tag such actions as LIST_BRANCH; they are skipped.
const ActionTypeIDSetProperty = "0-5"

// Operation is the comparison half of a filter.
// Values is meaningful for set-membership operators, Value for numeric ones.
// Unknown fields are kept in Extra and written back verbatim.
type Operation struct {
	Operator                     Operator
	IncludeObjectsWithNoValueSet bool
	Values                       []string
	Value                        json.Number
	OperationType                OperationType
	Extra                        map[string]json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler, keeping unknown fields.
func (o *Operation) UnmarshalJSON(data []byte) error {
	known, extra, err := splitFields(data, "operator", "includeObjectsWithNoValueSet", "values", "value", "operationType")
	if err != nil {
		return fmt.Errorf("operation: %w", err)
	}
	*o = Operation{Extra: extra}
	if err := decodeField(known, "operator", &o.Operator); err != nil {
		return fmt.Errorf("operation: %w", err)
	}
	if err := decodeField(known, "includeObjectsWithNoValueSet", &o.IncludeObjectsWithNoValueSet); err != nil {
		return fmt.Errorf("operation: %w", err)
	}
	if err := decodeField(known, "values", &o.Values); err != nil {
		return fmt.Errorf("operation: %w", err)
	}
	if err := decodeField(known, "value", &o.Value); err != nil {
		return fmt.Errorf("operation: %w", err)
	}
	if err := decodeField(known, "operationType", &o.OperationType); err != nil {
		return fmt.Errorf("operation: %w", err)
	}
	return nil
}

// MarshalJSON implements json.Marshaler. values and value are omitted when
// empty.
func (o Operation) MarshalJSON() ([]byte, error) {
	fields := []field{
		{"operator", o.Operator},
		{"includeObjectsWithNoValueSet", o.IncludeObjectsWithNoValueSet},
	}
	if len(o.Values) > 0 {
		fields = append(fields, field{"values", o.Values})
	}
	if o.Value != "" {
		fields = append(fields, field{"value", o.Value})
	}
	fields = append(fields, field{"operationType", o.OperationType})
	return joinFields(fields, o.Extra)
}

// FlowFilter is a single clause comparing one property.
type FlowFilter struct {
	Property   string
	Operation  Operation
	FilterType FilterType
	Extra      map[string]json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler, keeping unknown fields.
func (f *FlowFilter) UnmarshalJSON(data []byte) error {
	known, extra, err := splitFields(data, "property", "operation", "filterType")
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	*f = FlowFilter{Extra: extra}
	if err := decodeField(known, "property", &f.Property); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	if err := decodeField(known, "operation", &f.Operation); err != nil {
		return fmt.Errorf("filter %q: %w", f.Property, err)
	}
	if err := decodeField(known, "filterType", &f.FilterType); err != nil {
		return fmt.Errorf("filter %q: %w", f.Property, err)
	}
	return nil
}

// MarshalJSON implements json.Marshaler, restoring unknown fields.
func (f FlowFilter) MarshalJSON() ([]byte, error) {
	return joinFields([]field{
		{"property", f.Property},
		{"operation", f.Operation},
		{"filterType", f.FilterType},
	}, f.Extra)
}

// Matches reports whether the filter targets property (exact equality).
func (f FlowFilter) Matches(property string) bool {
	return f.Property == property
}

// IsNumeric reports whether the filter is a single-value comparison
// rather than a set-membership clause.
func (f FlowFilter) IsNumeric() bool {
	if f.Operation.Value != "" {
		return true
	}
	return f.Operation.Values == nil && f.Operation.OperationType == OperationTypeNumber
}

// Clone returns a copy that shares no slice or map memory with f.
func (f FlowFilter) Clone() FlowFilter {
	if f.Operation.Values != nil {
		f.Operation.Values = append(make([]string, 0, len(f.Operation.Values)), f.Operation.Values...)
	}
	f.Operation.Extra = cloneRaw(f.Operation.Extra)
	f.Extra = cloneRaw(f.Extra)
	return f
}

// FilterBranch is the wire form of a tree node.
type FilterBranch struct {
	FilterBranches       []FilterBranch
	Filters              []FlowFilter
	FilterBranchType     BranchLogic
	FilterBranchOperator BranchLogic
	Extra                map[string]json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler, keeping unknown fields.
func (fb *FilterBranch) UnmarshalJSON(data []byte) error {
	known, extra, err := splitFields(data, "filterBranches", "filters", "filterBranchType", "filterBranchOperator")
	if err != nil {
		return fmt.Errorf("filter branch: %w", err)
	}
	*fb = FilterBranch{Extra: extra}
	if err := decodeField(known, "filterBranches", &fb.FilterBranches); err != nil {
		return err
	}
	if err := decodeField(known, "filters", &fb.Filters); err != nil {
		return err
	}
	if err := decodeField(known, "filterBranchType", &fb.FilterBranchType); err != nil {
		return fmt.Errorf("filter branch: %w", err)
	}
	if err := decodeField(known, "filterBranchOperator", &fb.FilterBranchOperator); err != nil {
		return fmt.Errorf("filter branch: %w", err)
	}
	return nil
}

// MarshalJSON emits filterBranches and filters as arrays even when nil.
func (fb FilterBranch) MarshalJSON() ([]byte, error) {
	children := fb.FilterBranches
	if children == nil {
		children = []FilterBranch{}
	}
	filters := fb.Filters
	if filters == nil {
		filters = []FlowFilter{}
	}
	return joinFields([]field{
		{"filterBranches", children},
		{"filters", filters},
		{"filterBranchType", fb.FilterBranchType},
		{"filterBranchOperator", fb.FilterBranchOperator},
	}, fb.Extra)
}

// Connection links a list branch to its next action.
type Connection struct {
	EdgeType     string
	NextActionID string
	Extra        map[string]json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler, keeping unknown fields.
func (c *Connection) UnmarshalJSON(data []byte) error {
	known, extra, err := splitFields(data, "edgeType", "nextActionId")
	if err != nil {
		return fmt.Errorf("connection: %w", err)
	}
	*c = Connection{Extra: extra}
	if err := decodeField(known, "edgeType", &c.EdgeType); err != nil {
		return fmt.Errorf("connection: %w", err)
	}
	if err := decodeField(known, "nextActionId", &c.NextActionID); err != nil {
		return fmt.Errorf("connection: %w", err)
	}
	return nil
}

// MarshalJSON implements json.Marshaler. Empty fields are omitted.
func (c Connection) MarshalJSON() ([]byte, error) {
	var fields []field
	if c.EdgeType != "" {
		fields = append(fields, field{"edgeType", c.EdgeType})
	}
	if c.NextActionID != "" {
		fields = append(fields, field{"nextActionId", c.NextActionID})
	}
	return joinFields(fields, c.Extra)
}

// ListBranch is a named decision point whose enrollment condition is a
// filter tree. BranchName is the key callers target updates with.
type ListBranch struct {
	FilterBranch FilterBranch
	BranchName   string
	Connection   *Connection
	Extra        map[string]json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler, keeping unknown fields.
func (lb *ListBranch) UnmarshalJSON(data []byte) error {
	known, extra, err := splitFields(data, "filterBranch", "branchName", "connection")
	if err != nil {
		return fmt.Errorf("list branch: %w", err)
	}
	*lb = ListBranch{Extra: extra}
	if err := decodeField(known, "branchName", &lb.BranchName); err != nil {
		return fmt.Errorf("list branch: %w", err)
	}
	if err := decodeField(known, "filterBranch", &lb.FilterBranch); err != nil {
		return fmt.Errorf("list branch %q: %w", lb.BranchName, err)
	}
	if err := decodeField(known, "connection", &lb.Connection); err != nil {
		return fmt.Errorf("list branch %q: %w", lb.BranchName, err)
	}
	return nil
}

// MarshalJSON implements json.Marshaler. connection is omitted when nil.
func (lb ListBranch) MarshalJSON() ([]byte, error) {
	fields := []field{
		{"filterBranch", lb.FilterBranch},
		{"branchName", lb.BranchName},
	}
	if lb.Connection != nil {
		fields = append(fields, field{"connection", lb.Connection})
	}
	return joinFields(fields, lb.Extra)
}

// Clone returns a deep copy of lb.
func (lb ListBranch) Clone() ListBranch {
	out := ListBranch{
		FilterBranch: cloneFilterBranch(lb.FilterBranch),
		BranchName:   lb.BranchName,
		Extra:        cloneRaw(lb.Extra),
	}
	if lb.Connection != nil {
		c := *lb.Connection
		c.Extra = cloneRaw(c.Extra)
		out.Connection = &c
	}
	return out
}

func cloneFilterBranch(fb FilterBranch) FilterBranch {
	out := FilterBranch{
		FilterBranchType:     fb.FilterBranchType,
		FilterBranchOperator: fb.FilterBranchOperator,
		Extra:                cloneRaw(fb.Extra),
	}
	if fb.FilterBranches != nil {
		out.FilterBranches = make([]FilterBranch, len(fb.FilterBranches))
		for i, child := range fb.FilterBranches {
			out.FilterBranches[i] = cloneFilterBranch(child)
		}
	}
	if fb.Filters != nil {
		out.Filters = make([]FlowFilter, len(fb.Filters))
		for i, f := range fb.Filters {
			out.Filters[i] = f.Clone()
		}
	}
	return out
}

// Action is one step of a flow. Only the fields flowfilter reads are
// typed; everything else is kept in Extra and written back verbatim.
type Action struct {
	ActionID     string
	Type         string
	ActionTypeID string
	ListBranches []ListBranch
	Extra        map[string]json.RawMessage
}

// IsListBranch reports whether the action carries usable list branches.
func (a Action) IsListBranch() bool {
	return a.Type == ActionTypeListBranch &&
		len(a.ListBranches) > 0 &&
		a.ActionTypeID != ActionTypeIDSetProperty
}

// UnmarshalJSON implements json.Unmarshaler, keeping unknown fields.
func (a *Action) UnmarshalJSON(data []byte) error {
	known, extra, err := splitFields(data, "actionId", "type", "actionTypeId", "listBranches")
	if err != nil {
		return fmt.Errorf("action: %w", err)
	}
	*a = Action{Extra: extra}
	if err := decodeField(known, "actionId", &a.ActionID); err != nil {
		return fmt.Errorf("action: %w", err)
	}
	if err := decodeField(known, "type", &a.Type); err != nil {
		return fmt.Errorf("action: %w", err)
	}
	if err := decodeField(known, "actionTypeId", &a.ActionTypeID); err != nil {
		return fmt.Errorf("action: %w", err)
	}
	if err := decodeField(known, "listBranches", &a.ListBranches); err != nil {
		return fmt.Errorf("action %q: %w", a.ActionID, err)
	}
	return nil
}

// MarshalJSON implements json.Marshaler, restoring unknown fields.
func (a Action) MarshalJSON() ([]byte, error) {
	var fields []field
	if a.ActionID != "" {
		fields = append(fields, field{"actionId", a.ActionID})
	}
	if a.Type != "" {
		fields = append(fields, field{"type", a.Type})
	}
	if a.ActionTypeID != "" {
		fields = append(fields, field{"actionTypeId", a.ActionTypeID})
	}
	if a.ListBranches != nil {
		fields = append(fields, field{"listBranches", a.ListBranches})
	}
	return joinFields(fields, a.Extra)
}

// Clone returns a deep copy of a.
func (a Action) Clone() Action {
	out := a
	out.Extra = cloneRaw(a.Extra)
	if a.ListBranches != nil {
		out.ListBranches = make([]ListBranch, len(a.ListBranches))
		for i, lb := range a.ListBranches {
			out.ListBranches[i] = lb.Clone()
		}
	}
	return out
}

// Flow is a workflow as retrieved from the platform.
type Flow struct {
	ID      string
	Actions []Action
	Extra   map[string]json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler, keeping unknown fields.
func (f *Flow) UnmarshalJSON(data []byte) error {
	known, extra, err := splitFields(data, "id", "actions")
	if err != nil {
		return fmt.Errorf("flow: %w", err)
	}
	*f = Flow{Extra: extra}
	if err := decodeField(known, "id", &f.ID); err != nil {
		return fmt.Errorf("flow: %w", err)
	}
	if err := decodeField(known, "actions", &f.Actions); err != nil {
		return fmt.Errorf("flow %q: %w", f.ID, err)
	}
	return nil
}

// MarshalJSON implements json.Marshaler, restoring unknown fields.
func (f Flow) MarshalJSON() ([]byte, error) {
	var fields []field
	if f.ID != "" {
		fields = append(fields, field{"id", f.ID})
	}
	if f.Actions != nil {
		fields = append(fields, field{"actions", f.Actions})
	}
	return joinFields(fields, f.Extra)
}

// Clone returns a deep copy of f.
func (f Flow) Clone() Flow {
	out := Flow{ID: f.ID, Extra: cloneRaw(f.Extra)}
	if f.Actions != nil {
		out.Actions = make([]Action, len(f.Actions))
		for i, a := range f.Actions {
			out.Actions[i] = a.Clone()
		}
	}
	return out
}

// ParseFlow decodes a flow from JSON.
func ParseFlow(data []byte) (Flow, error) {
	var f Flow
	if err := json.Unmarshal(data, &f); err != nil {
		return Flow{}, err
	}
	return f, nil
}

// splitFields separates the named keys of a JSON object from the rest.
func splitFields(data []byte, names ...string) (known, extra map[string]json.RawMessage, err error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}
	known = make(map[string]json.RawMessage, len(names))
	for _, name := range names {
		if v, ok := raw[name]; ok {
			known[name] = v
			delete(raw, name)
		}
	}
	if len(raw) == 0 {
		raw = nil
	}
	return known, raw, nil
}

func decodeField(fields map[string]json.RawMessage, name string, dst any) error {
	v, ok := fields[name]
	if !ok || bytes.Equal(v, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("field %q: %w", name, err)
	}
	return nil
}

// field is one typed key of an object being encoded.
type field struct {
	name  string
	value any
}

// joinFields writes the typed fields in order, then the preserved raw ones
// sorted by key, so the output is deterministic. A preserved key that
// repeats a typed one is skipped.
func joinFields(fields []field, extra map[string]json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	put := func(name string, value []byte) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		return json.Compact(&buf, value)
	}

	typed := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		typed[f.name] = struct{}{}
		b, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("marshal %q: %w", f.name, err)
		}
		if err := put(f.name, b); err != nil {
			return nil, fmt.Errorf("marshal %q: %w", f.name, err)
		}
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		if _, ok := typed[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := put(k, extra[k]); err != nil {
			return nil, fmt.Errorf("preserved field %q: %w", k, err)
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func cloneRaw(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = bytes.Clone(v)
	}
	return out
}
