package corpus

import (
	"fmt"

	"gopkg.in/yaml.v3"

	appErr "github.com/xxxsen/faqchat/internal/pkg/errors"
)

// parseStructured accepts a yaml or json document holding either a list of
// rows or a mapping with an "entries" list. JSON is read through the yaml
// decoder since every JSON document is valid YAML.
func parseStructured(data []byte) ([]row, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}
	list := doc.Content[0]
	if list.Kind == yaml.MappingNode {
		list = mappingValue(list, "entries")
		if list == nil {
			return nil, fmt.Errorf("%w: mapping document needs an entries list", appErr.ErrCorpusShape)
		}
	}
	if list.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: expected a list of rows", appErr.ErrCorpusShape)
	}
	rows := make([]row, 0, len(list.Content))
	for _, item := range list.Content {
		r := row{line: item.Line}
		if item.Kind != yaml.MappingNode {
			rows = append(rows, r)
			continue
		}
		keys := make([]string, 0, len(item.Content)/2)
		for i := 0; i+1 < len(item.Content); i += 2 {
			keys = append(keys, item.Content[i].Value)
		}
		qIdx, aIdx := detectColumns(keys)
		if qIdx >= 0 {
			r.question = scalarValue(item.Content[qIdx*2+1])
		}
		if aIdx >= 0 {
			r.answer = scalarValue(item.Content[aIdx*2+1])
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func scalarValue(node *yaml.Node) string {
	if node == nil || node.Kind != yaml.ScalarNode {
		return ""
	}
	return node.Value
}
