package rules

import (
	"fmt"

	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// asMap returns v as a struct value, or ErrMalformedBlock.
func asMap(v any, what string) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T, want object", types.ErrMalformedBlock, what, v)
	}
	return m, nil
}

// stringOr returns m[key] when it is a string, def when it is absent or
// null, and ErrMalformedBlock otherwise.
func stringOr(m map[string]any, key, def string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T, want string", types.ErrMalformedBlock, key, v)
	}
	return s, nil
}

// blockValue converts a block into the map form used for blocks nested in
// another block's value.
func blockValue(b types.Block) any {
	if b.Malformed() {
		v, err := types.DecodeValue(b.Raw())
		if err != nil {
			return nil
		}
		return v
	}
	m := make(map[string]any, len(b.Extra)+3)
	for k, v := range b.Extra {
		m[k] = v
	}
	m["type"] = b.Type
	m["value"] = b.Value
	if b.ID != "" {
		m["id"] = b.ID
	}
	return m
}
