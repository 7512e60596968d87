package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	"clawbot/internal/errs"
)

// fileFormat picks the decoder from the extension. Anything that is not
// YAML is read as JSON.
func fileFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// decodeFile reads the optional config file into cfg. Both formats go
// through the strict JSON decoder, so a misspelled key fails the load
// instead of silently falling back to a default.
func decodeFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errs.Wrap(err, "read config")
	}
	format := fileFormat(path)
	if len(bytes.TrimSpace(raw)) == 0 {
		// an empty file leaves everything to env and defaults
		return nil
	}
	if format == "yaml" {
		if raw, err = yamlToJSON(raw); err != nil {
			return errs.Wrapf(err, "%s", path)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return errs.Wrapf(err, "%s (%s)", path, format)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errs.Newf("%s: invalid config: trailing data", path)
		}
		return errs.Wrapf(err, "%s", path)
	}
	return nil
}

func yamlToJSON(raw []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errs.Wrap(err, "yaml")
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(stringKeys(doc))
}

// stringKeys rewrites map[any]any nodes so encoding/json accepts them.
func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = stringKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	default:
		return in
	}
}
