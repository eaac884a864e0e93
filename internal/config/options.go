package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind is the shape of an option value.
type Kind int

const (
	// Null is an option given without a value (YAML null or empty).
	Null Kind = iota
	// Scalar is a single value.
	Scalar
	// Vars is a map of variable substitutions (e.g. RosettaScripts
	// script_vars), rendered as var=value pairs.
	Vars
)

// Value is an engine option value as found in the configuration.
type Value struct {
	Kind Kind

	// Text is the scalar text; after Stringify it is the engine rendering.
	Text string

	// Tag is the YAML tag of a scalar (e.g. "!!bool", "!!int", "!!str").
	Tag string

	// Vars holds the variables of a Vars value, in file order.
	Vars []Var
}

// Var is one variable substitution.
type Var struct {
	Name  string
	Value Value
}

// Option is a single engine option.
type Option struct {
	Key   string
	Value Value
}

// Options is an ordered set of engine options. Order follows the
// configuration file and is preserved in the flags files written from it.
type Options []Option

// UnmarshalYAML decodes a mapping of option -> value, preserving order.
func (o *Options) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: options must be a mapping", node.Line)
	}
	out := make(Options, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		val, err := decodeValue(k.Value, v, true)
		if err != nil {
			return err
		}
		out = append(out, Option{Key: k.Value, Value: val})
	}
	*o = out
	return nil
}

func decodeValue(key string, n *yaml.Node, allowVars bool) (Value, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		tag := n.ShortTag()
		if tag == "!!null" {
			return Value{Kind: Null}, nil
		}
		return Value{Kind: Scalar, Text: n.Value, Tag: tag}, nil
	case yaml.MappingNode:
		if !allowVars {
			return Value{}, fmt.Errorf("line %d: option %q: nested maps are only allowed one level deep", n.Line, key)
		}
		val := Value{Kind: Vars, Vars: make([]Var, 0, len(n.Content)/2)}
		for i := 0; i+1 < len(n.Content); i += 2 {
			vk, vv := n.Content[i], n.Content[i+1]
			sub, err := decodeValue(vk.Value, vv, false)
			if err != nil {
				return Value{}, err
			}
			val.Vars = append(val.Vars, Var{Name: vk.Value, Value: sub})
		}
		return val, nil
	default:
		return Value{}, fmt.Errorf("line %d: option %q: unsupported value type", n.Line, key)
	}
}

// Get returns the option with exactly the given key.
func (o Options) Get(key string) (Option, bool) {
	for _, opt := range o {
		if opt.Key == key {
			return opt, true
		}
	}
	return Option{}, false
}

// Set replaces the value of key, or appends the option when absent.
func (o Options) Set(key string, v Value) Options {
	for i := range o {
		if o[i].Key == key {
			out := o.Clone()
			out[i].Value = v
			return out
		}
	}
	return append(o.Clone(), Option{Key: key, Value: v})
}

// Clone returns a deep copy.
func (o Options) Clone() Options {
	out := make(Options, len(o))
	for i, opt := range o {
		out[i] = Option{Key: opt.Key, Value: opt.Value.clone()}
	}
	return out
}

func (v Value) clone() Value {
	if v.Vars != nil {
		vars := make([]Var, len(v.Vars))
		for i, vr := range v.Vars {
			vars[i] = Var{Name: vr.Name, Value: vr.Value.clone()}
		}
		v.Vars = vars
	}
	return v
}

// Var returns the value of the named variable of a Vars value.
func (v Value) Var(name string) (string, bool) {
	for _, vr := range v.Vars {
		if vr.Name == name {
			return vr.Value.Text, true
		}
	}
	return "", false
}

// StringValue returns a scalar string value.
func StringValue(s string) Value {
	return Value{Kind: Scalar, Text: s, Tag: "!!str"}
}

// PruneEmpty drops options and variables without a value.
func PruneEmpty(o Options) Options {
	out := make(Options, 0, len(o))
	for _, opt := range o {
		switch opt.Value.Kind {
		case Null:
			continue
		case Vars:
			v := opt.Value.clone()
			kept := v.Vars[:0]
			for _, vr := range v.Vars {
				if vr.Value.Kind != Null {
					kept = append(kept, vr)
				}
			}
			v.Vars = kept
			opt.Value = v
		}
		out = append(out, opt)
	}
	return out
}

// Stringify renders every scalar the way the engine expects it: booleans
// as lowercase true/false, everything else as written.
func Stringify(o Options) (Options, error) {
	out := o.Clone()
	for i := range out {
		v := &out[i].Value
		switch v.Kind {
		case Scalar:
			if err := stringifyScalar(out[i].Key, v); err != nil {
				return nil, err
			}
		case Vars:
			for j := range v.Vars {
				if err := stringifyScalar(out[i].Key+"."+v.Vars[j].Name, &v.Vars[j].Value); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

func stringifyScalar(key string, v *Value) error {
	if v.Kind != Scalar || v.Tag != "!!bool" {
		return nil
	}
	b, err := strconv.ParseBool(strings.ToLower(v.Text))
	if err != nil {
		return fmt.Errorf("option %q: invalid boolean %q", key, v.Text)
	}
	v.Text = strconv.FormatBool(b)
	return nil
}

// Normalize applies the load-time transform passes: PruneEmpty, then
// Stringify.
func Normalize(o Options) (Options, error) {
	return Stringify(PruneEmpty(o))
}
