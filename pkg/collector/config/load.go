package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/blackcoderx/corpusctl/pkg/collector/action"
	"github.com/blackcoderx/corpusctl/pkg/collector/cerrors"
)

// envRefPattern matches a single ${NAME} occurrence. NAME is
// validated against the stricter [A-Z_][A-Z0-9_]* shape separately so
// the error message can name the exact offending reference.
var envRefPattern = regexp.MustCompile(`\$\{([^}]*)\}`)

var validEnvName = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

const maxResolutionDepth = 5

// Load reads the YAML config at path, resolves ${VAR} environment
// references, and decodes the result into a validated Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, cerrors.Config("failed to read config file", err).WithContext("path", path)
	}

	raw := v.AllSettings()
	resolved, err := resolveEnvTree(raw, "", 0)
	if err != nil {
		return nil, err
	}

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, cerrors.Config("failed to build config decoder", err)
	}
	if err := decoder.Decode(resolved); err != nil {
		return nil, cerrors.Config("config does not match expected schema", err).WithContext("path", path)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolveEnvTree walks a decoded YAML value tree, replacing every
// ${NAME} occurrence in string leaves with os.Getenv(NAME). Maps and
// slices are recursed into; every other leaf is returned unchanged.
func resolveEnvTree(v any, path string, depth int) (any, error) {
	if depth > maxResolutionDepth {
		return nil, cerrors.Injection("environment reference nesting too deep", nil).
			WithContext("path", path)
	}
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			resolvedChild, err := resolveEnvTree(child, childPath, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = resolvedChild
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			resolvedChild, err := resolveEnvTree(child, fmt.Sprintf("%s[%d]", path, i), depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = resolvedChild
		}
		return out, nil
	case string:
		return resolveEnvString(val, path)
	default:
		return v, nil
	}
}

// resolveEnvString resolves every ${NAME} occurrence in s in a single
// pass. If a resolved value itself contains "${" — an environment
// variable whose value is, or contains, another reference — that is
// rejected as nested substitution rather than resolved further. This
// module never performs recursive resolution; resolveEnvTree's depth
// guard bounds the separate, unrelated concern of YAML tree depth.
func resolveEnvString(s, path string) (string, error) {
	var resolveErr error
	result := envRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		if resolveErr != nil {
			return match
		}
		name := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if !validEnvName.MatchString(name) {
			resolveErr = cerrors.Injection("invalid environment variable reference: "+match, nil).
				WithContext("path", path)
			return match
		}
		value := os.Getenv(name)
		if strings.Contains(value, "${") {
			resolveErr = cerrors.Injection("nested ${...} substitution is not allowed", nil).
				WithContext("path", path, "variable", name)
			return match
		}
		return value
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return result, nil
}

// validate applies the bounds checks from spec.md §4.3 and parses
// every rule's action strings into tagged Action variants exactly
// once.
func validate(cfg *Config) error {
	if cfg.OutputDir == "" {
		return cerrors.Config("output_dir is required", nil)
	}
	if cfg.StateFile == "" {
		return cerrors.Config("state_file is required", nil)
	}
	if cfg.RateLimitSeconds < 0 {
		return cerrors.Config("rate_limit_seconds must be >= 0", nil).
			WithContext("value", cfg.RateLimitSeconds)
	}
	if cfg.StateRetainCount == 0 {
		cfg.StateRetainCount = 10000
	}
	if cfg.StateRetainCount < 0 {
		return cerrors.Config("state_retain_count must be >= 0", nil)
	}

	seen := make(map[string]bool, len(cfg.Rules))
	for i := range cfg.Rules {
		r := &cfg.Rules[i]
		if r.Name == "" {
			return cerrors.Config("rule at index is missing a name", nil).WithContext("index", i)
		}
		if seen[r.Name] {
			return cerrors.Config("duplicate rule name: "+r.Name, nil)
		}
		seen[r.Name] = true
		if r.Source == "" {
			return cerrors.Config("rule is missing a source", nil).WithContext("rule", r.Name)
		}

		if r.MaxItems < 0 || r.MaxItems > 100000 {
			return cerrors.Config("max_items out of bounds [0,100000]", nil).
				WithContext("rule", r.Name, "max_items", r.MaxItems)
		}
		if len(r.ActionStrings) == 0 {
			return cerrors.Config("rule has no actions", nil).WithContext("rule", r.Name)
		}
		parsed, err := action.ParseAll(r.ActionStrings)
		if err != nil {
			if ce, ok := cerrors.As(err); ok {
				ce.WithContext("rule", r.Name)
			}
			return err
		}
		r.Actions = parsed
		if r.Filters.MaxAgeDays != nil && *r.Filters.MaxAgeDays < 0 {
			return cerrors.Config("max_age_days must be >= 0", nil).WithContext("rule", r.Name)
		}
	}
	return nil
}
