package main

import (
	"encoding/json"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/andreyvit/lazydb"
)

func runExport(e *env, args []string) error {
	return e.withDB(args[0], func(db *lazydb.DB) error {
		c, err := db.Container()
		if err != nil {
			return err
		}
		tree, err := exportTree(c)
		if err != nil {
			return err
		}
		if e.format == "json" {
			enc := json.NewEncoder(e.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(tree)
		}
		enc := yaml.NewEncoder(e.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(tree); err != nil {
			return err
		}
		return enc.Close()
	})
}

// exportTree collects the whole subtree of c into nested maps.
func exportTree(c *lazydb.Container) (map[string]any, error) {
	entries, err := c.List()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(entries))
	for _, ent := range entries {
		if ent.Container {
			child, err := c.ReadContainer(ent.Key)
			if err != nil {
				return nil, err
			}
			sub, err := exportTree(child)
			if err != nil {
				return nil, err
			}
			out[ent.Key] = sub
			continue
		}
		d, err := c.ReadData(ent.Key)
		if err != nil {
			return nil, err
		}
		v, err := d.Collect()
		if err != nil {
			return nil, err
		}
		out[ent.Key] = exportValue(v)
	}
	return out, nil
}

// exportValue maps collected leaf values onto types both encoders handle
// losslessly: 128-bit integers become decimal strings, non-finite floats
// become their names, links become {"link": path}.
func exportValue(v any) any {
	switch v := v.(type) {
	case lazydb.Int128:
		return v.String()
	case lazydb.Uint128:
		return v.String()
	case float32:
		return exportFloat(float64(v), v)
	case float64:
		return exportFloat(v, v)
	case lazydb.Link:
		return map[string]string{"link": string(v)}
	case []lazydb.Int128:
		return mapSlice(v, exportValue)
	case []lazydb.Uint128:
		return mapSlice(v, exportValue)
	case []float32:
		return mapSlice(v, exportValue)
	case []float64:
		return mapSlice(v, exportValue)
	default:
		return v
	}
}

func exportFloat(f float64, orig any) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	default:
		return orig
	}
}

func mapSlice[T any](in []T, fn func(any) any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}
