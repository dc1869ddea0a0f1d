// Package config loads named property values and transport settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/toyz/loom/internal/errors"
)

// LoadProperties reads the given files into one flat key/value map.
// .properties and .env files use KEY=value lines, .yaml and .yml files are
// flattened to dotted keys. Later files override earlier ones, and an
// environment variable named EnvName(key) overrides any file value.
func LoadProperties(paths ...string) (map[string]string, error) {
	props := make(map[string]string)

	for _, path := range paths {
		values, err := readFile(path)
		if err != nil {
			return nil, err
		}
		for k, v := range values {
			props[k] = v
		}
	}

	for key := range props {
		if v, ok := os.LookupEnv(EnvName(key)); ok {
			props[key] = v
		}
	}
	return props, nil
}

// EnvName maps a property key to its overriding environment variable:
// app.db-url becomes APP_DB_URL
func EnvName(key string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// Keys returns the property keys in sorted order
func Keys(props map[string]string) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func readFile(path string) (map[string]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return readYAML(path)
	case ".properties", ".env", "":
		values, err := godotenv.Read(path)
		if err != nil {
			return nil, errors.WrapConfigurationError(path, "read", err)
		}
		return values, nil
	default:
		return nil, errors.Newf(errors.ConfigurationErrorCode, "unsupported property file %q", path).
			WithSuggestion("use a .properties, .env, .yaml or .yml file")
	}
}

func readYAML(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigurationError(path, "read", err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapConfigurationError(path, "parse", err)
	}

	values := make(map[string]string)
	flatten("", doc, values)
	return values, nil
}

// flatten turns nested maps into dotted keys; sequences are joined with commas
func flatten(prefix string, node any, out map[string]string) {
	switch n := node.(type) {
	case map[string]any:
		for k, v := range n {
			flatten(join(prefix, k), v, out)
		}
	case []any:
		parts := make([]string, 0, len(n))
		for _, v := range n {
			parts = append(parts, fmt.Sprint(v))
		}
		out[prefix] = strings.Join(parts, ",")
	case nil:
		out[prefix] = ""
	default:
		out[prefix] = fmt.Sprint(n)
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
