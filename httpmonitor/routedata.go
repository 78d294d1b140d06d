package httpmonitor

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/itsneelabh/gomind-monitoring/core"
	"github.com/itsneelabh/gomind-monitoring/instrumentation"
)

// Route data property names and placeholder values.
const (
	RouteDataProperty = "RouteData"
	EmptyRouteData    = "[empty]"
	NullRouteValue    = "[null]"
)

// AddRouteData adds one property "RouteData[key]" per entry of values,
// or a single "RouteData" = "[empty]" property when values is empty.
// nil values are written as "[null]". Keys are added in sorted order and
// the first failing property stops the loop.
func AddRouteData(op instrumentation.OperationInstance, values map[string]any) error {
	if op == nil {
		return core.InvalidArgument("httpmonitor.AddRouteData", "operation instance is nil")
	}
	if len(values) == 0 {
		return op.AddOperationProperty(RouteDataProperty, EmptyRouteData)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		value := NullRouteValue
		if v := values[k]; v != nil {
			value = fmt.Sprint(v)
		}
		if err := op.AddOperationProperty(RouteDataProperty+"["+k+"]", value); err != nil {
			return err
		}
	}
	return nil
}

// RouteValues returns the wildcard values of the pattern r was matched
// against. It is empty outside a ServeMux route.
func RouteValues(r *http.Request) map[string]any {
	names := wildcardNames(r.Pattern)
	values := make(map[string]any, len(names))
	for _, name := range names {
		values[name] = r.PathValue(name)
	}
	return values
}

// wildcardNames extracts the names of "{name}" and "{name...}" segments
// from a ServeMux pattern. "{$}" is not a wildcard.
func wildcardNames(pattern string) []string {
	var names []string
	for {
		start := strings.IndexByte(pattern, '{')
		if start < 0 {
			return names
		}
		end := strings.IndexByte(pattern[start:], '}')
		if end < 0 {
			return names
		}
		name := strings.TrimSuffix(pattern[start+1:start+end], "...")
		if name != "" && name != "$" {
			names = append(names, name)
		}
		pattern = pattern[start+end+1:]
	}
}
