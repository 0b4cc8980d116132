package page

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// refKeys are the config keys that hold page ids.
var refKeys = []string{"nextPageId", "targetPageId", "defaultTargetPageId"}

// RemapReferences returns copies of pages with temporary ids replaced by
// the ids in idMap: the page ids themselves and every forward reference in
// button and flow_router configs. Ids missing from idMap are kept as they
// are. The input pages and their configs are never modified.
//
// Configs are rewritten structurally, so keys the typed configs don't know
// about survive the pass.
func RemapReferences(pages []Page, idMap map[string]string) ([]Page, error) {
	out := make([]Page, len(pages))
	for i, p := range pages {
		np := p.Clone()
		np.ID = remap(p.ID, idMap)
		if hasReferences(p.Type) && len(p.Config) > 0 {
			cfg, err := remapConfig(p.Config, idMap)
			if err != nil {
				return nil, fmt.Errorf("remapping page %s: %w", p.ID, err)
			}
			np.Config = cfg
		}
		out[i] = np
	}
	return out, nil
}

// References returns the page ids p's config points at.
func References(p Page) ([]string, error) {
	if !hasReferences(p.Type) {
		return nil, nil
	}
	cfg, err := DecodeConfig(p.Type, p.Config)
	if err != nil {
		return nil, err
	}
	switch c := cfg.(type) {
	case ButtonConfig:
		var refs []string
		for _, b := range c.Buttons {
			if b.NextPageID != "" && b.NextPageID != EndPageID {
				refs = append(refs, b.NextPageID)
			}
		}
		return refs, nil
	case RouterConfig:
		return slices.DeleteFunc(c.PageRefs(), func(id string) bool { return id == EndPageID }), nil
	}
	return nil, nil
}

func hasReferences(t Type) bool {
	return t == TypeButton || t == TypeFlowRouter
}

func remapConfig(raw json.RawMessage, idMap map[string]string) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	data, err := json.Marshal(remapValue(doc, idMap))
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

// remapValue deep-copies v, rewriting string values stored under refKeys.
func remapValue(v any, idMap map[string]string) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			if s, ok := child.(string); ok && slices.Contains(refKeys, k) {
				out[k] = remap(s, idMap)
				continue
			}
			out[k] = remapValue(child, idMap)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = remapValue(child, idMap)
		}
		return out
	default:
		return v
	}
}

func remap(id string, idMap map[string]string) string {
	if mapped, ok := idMap[id]; ok {
		return mapped
	}
	return id
}

