package queryview

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/tinytelemetry/queryview/internal/model"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04"
)

type paramState struct {
	model.Parameter
	pending    any
	hasPending bool
}

// ParameterView is a read-only projection of one parameter for renderers.
type ParameterView struct {
	Name        string
	Title       string
	Type        model.ParameterType
	Value       any
	Pending     any
	HasPending  bool
	EnumOptions []string
}

// ParameterStore holds applied parameter values plus a pending snapshot of
// edits that have not been applied yet.
type ParameterStore struct {
	params []paramState
	index  map[string]int
}

// NewParameterStore builds a store from a query's parameter schema.
func NewParameterStore(schema []model.Parameter) *ParameterStore {
	s := &ParameterStore{index: make(map[string]int, len(schema))}
	for _, p := range schema {
		p.EnumOptions = append([]string(nil), p.EnumOptions...)
		p.Value = normalizeValue(p.Type, p.Value)
		s.index[p.Name] = len(s.params)
		s.params = append(s.params, paramState{Parameter: p})
	}
	return s
}

// UpdatePending records edited values. An edit equal to the applied value
// clears that parameter's pending state. Unknown names are ignored.
func (s *ParameterStore) UpdatePending(values map[string]any) {
	for name, v := range values {
		i, ok := s.index[name]
		if !ok {
			continue
		}
		p := &s.params[i]
		nv := normalizeValue(p.Type, v)
		if reflect.DeepEqual(nv, p.Value) {
			p.pending, p.hasPending = nil, false
			continue
		}
		p.pending, p.hasPending = nv, true
	}
}

// Dirty reports whether any parameter has an unapplied edit.
func (s *ParameterStore) Dirty() bool {
	for _, p := range s.params {
		if p.hasPending {
			return true
		}
	}
	return false
}

// Apply moves every pending value into the applied value as one batch and
// returns the applied values.
func (s *ParameterStore) Apply() map[string]any {
	for i := range s.params {
		p := &s.params[i]
		if p.hasPending {
			p.Value = p.pending
		}
		p.pending, p.hasPending = nil, false
	}
	return s.Values()
}

// Discard drops all pending edits.
func (s *ParameterStore) Discard() {
	for i := range s.params {
		s.params[i].pending, s.params[i].hasPending = nil, false
	}
}

// Sync adopts a new schema for the same query, keeping applied values and
// pending edits of parameters that still exist with the same type.
func (s *ParameterStore) Sync(schema []model.Parameter) {
	next := NewParameterStore(schema)
	for i := range next.params {
		np := &next.params[i]
		j, ok := s.index[np.Name]
		if !ok || s.params[j].Type != np.Type {
			continue
		}
		np.Value = s.params[j].Value
		np.pending, np.hasPending = s.params[j].pending, s.params[j].hasPending
	}
	*s = *next
}

// Values returns a copy of the applied values keyed by name.
func (s *ParameterStore) Values() map[string]any {
	out := make(map[string]any, len(s.params))
	for _, p := range s.params {
		out[p.Name] = p.Value
	}
	return out
}

// Views returns the parameters in declaration order.
func (s *ParameterStore) Views() []ParameterView {
	out := make([]ParameterView, 0, len(s.params))
	for _, p := range s.params {
		out = append(out, ParameterView{
			Name:        p.Name,
			Title:       p.Label(),
			Type:        p.Type,
			Value:       p.Value,
			Pending:     p.pending,
			HasPending:  p.hasPending,
			EnumOptions: append([]string(nil), p.EnumOptions...),
		})
	}
	return out
}

// Len returns the number of declared parameters.
func (s *ParameterStore) Len() int { return len(s.params) }

// normalizeValue coerces user input to the parameter's declared type. Input
// that cannot be coerced is kept as-is so the service reports the error.
func normalizeValue(t model.ParameterType, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case model.ParamNumber:
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case int:
			return float64(n)
		case int64:
			return float64(n)
		case string:
			trimmed := strings.TrimSpace(n)
			if trimmed == "" {
				return nil
			}
			if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
				return f
			}
		}
		return v
	case model.ParamDate:
		return normalizeTime(v, dateLayout)
	case model.ParamDateTime:
		return normalizeTime(v, dateTimeLayout)
	default:
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
}

func normalizeTime(v any, layout string) any {
	switch tv := v.(type) {
	case time.Time:
		return tv.Format(layout)
	case string:
		trimmed := strings.TrimSpace(tv)
		if trimmed == "" {
			return nil
		}
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return ts.Format(layout)
		}
		return trimmed
	}
	return v
}
