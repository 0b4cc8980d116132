package flow

import "fmt"

// Route sends the player to TargetPageID when Condition holds.
type Route struct {
	Condition    Condition `json:"condition"`
	TargetPageID string    `json:"targetPageId"`
}

// RouterConfig is the config of a flow_router page. Route order is the
// authoring order and is significant.
type RouterConfig struct {
	Routes              []Route `json:"routes"`
	DefaultTargetPageID string  `json:"defaultTargetPageId,omitempty"`
}

// Resolve returns the target of the first route whose condition holds, in
// listed order. When nothing matches it returns defaultTarget, or ("", false)
// if there is none, meaning "advance to the next page in sort order".
//
// Routes without a target never match. Resolve is pure: the same inputs
// always produce the same output, so re-running it is always safe.
func Resolve(routes []Route, defaultTarget string, ctx Context) (string, bool) {
	for _, r := range routes {
		if r.TargetPageID == "" {
			continue
		}
		if Evaluate(r.Condition, ctx) {
			return r.TargetPageID, true
		}
	}
	if defaultTarget != "" {
		return defaultTarget, true
	}
	return "", false
}

// Resolve resolves the router config against ctx.
func (c RouterConfig) Resolve(ctx Context) (string, bool) {
	return Resolve(c.Routes, c.DefaultTargetPageID, ctx)
}

// Validate checks every route for a target and a well-formed condition.
func (c RouterConfig) Validate() error {
	for i, r := range c.Routes {
		if r.TargetPageID == "" {
			return fmt.Errorf("routes[%d]: targetPageId is required", i)
		}
		if err := Validate(r.Condition); err != nil {
			return fmt.Errorf("routes[%d]: %w", i, err)
		}
	}
	return nil
}

// PageRefs returns every page id the config points at, routes first.
func (c RouterConfig) PageRefs() []string {
	refs := make([]string, 0, len(c.Routes)+1)
	for _, r := range c.Routes {
		if r.TargetPageID != "" {
			refs = append(refs, r.TargetPageID)
		}
	}
	if c.DefaultTargetPageID != "" {
		refs = append(refs, c.DefaultTargetPageID)
	}
	return refs
}

// Remap returns a copy of the config with page ids rewritten through idMap.
// Ids absent from idMap are kept. The receiver is not modified.
func (c RouterConfig) Remap(idMap map[string]string) RouterConfig {
	out := RouterConfig{
		Routes:              make([]Route, len(c.Routes)),
		DefaultTargetPageID: remapID(c.DefaultTargetPageID, idMap),
	}
	for i, r := range c.Routes {
		out.Routes[i] = Route{
			Condition:    r.Condition,
			TargetPageID: remapID(r.TargetPageID, idMap),
		}
	}
	return out
}

func remapID(id string, idMap map[string]string) string {
	if mapped, ok := idMap[id]; ok {
		return mapped
	}
	return id
}
