package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Recipients is a list of destination ids. In YAML it may be a single
// scalar, a comma-separated string, or a sequence of scalars.
type Recipients []string

// ParseRecipients splits a comma-separated list, dropping blanks
func ParseRecipients(s string) Recipients {
	var out Recipients
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// UnmarshalYAML implements yaml.Unmarshaler
func (r *Recipients) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*r = nil
			return nil
		}
		*r = ParseRecipients(node.Value)
		return nil
	case yaml.SequenceNode:
		out := make(Recipients, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: recipient must be a scalar", item.Line)
			}
			out = append(out, ParseRecipients(item.Value)...)
		}
		*r = out
		return nil
	default:
		return fmt.Errorf("line %d: recipients must be a scalar or a list", node.Line)
	}
}
