package loader

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix is the prefix of environment variables read by
// NewEnvLoader when no prefix is given.
const DefaultEnvPrefix = "DISPATCHLOOP_"

// EnvLoader maps prefixed environment variables onto dotted keys.
//
// A variable is either an alias (DISPATCHLOOP_LOG_LEVEL for logging.level)
// or spelled out as SECTION_WORDS, where the words after the section are
// joined in lower camel case: DISPATCHLOOP_DISPATCHER_MAX_FRAME_DEPTH sets
// dispatcher.maxFrameDepth. Variables naming only a section are skipped.
type EnvLoader struct {
	prefix  string
	aliases map[string]string
	environ func() []string
}

// NewEnvLoader returns a loader for variables starting with prefix, which
// includes the trailing underscore. The built-in aliases are installed.
func NewEnvLoader(prefix string) *EnvLoader {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	l := &EnvLoader{prefix: prefix, aliases: make(map[string]string), environ: os.Environ}
	for suffix, path := range builtinAliases {
		l.aliases[prefix+suffix] = path
	}
	return l
}

// NewEnvLoaderWithMapping returns a loader whose aliases are exactly
// mapping, keyed by full variable name.
func NewEnvLoaderWithMapping(prefix string, mapping map[string]string) *EnvLoader {
	l := NewEnvLoader(prefix)
	l.aliases = mapping
	return l
}

var builtinAliases = map[string]string{
	"LOG_LEVEL":      "logging.level",
	"LOG_FORMAT":     "logging.format",
	"ABANDON_POLICY": "dispatcher.abandonPolicy",
	"INVOKE_TIMEOUT": "dispatcher.invokeTimeout",
	"SCRIPT":         "script.path",
}

// AddMapping makes envVar set configPath.
func (l *EnvLoader) AddMapping(envVar, configPath string) {
	if l.aliases == nil {
		l.aliases = make(map[string]string)
	}
	l.aliases[envVar] = configPath
}

// RemoveMapping drops the alias for envVar.
func (l *EnvLoader) RemoveMapping(envVar string) {
	delete(l.aliases, envVar)
}

// Load collects every matching variable. An empty value is a value.
func (l *EnvLoader) Load() (map[string]any, error) {
	out := make(map[string]any)
	for _, kv := range l.environ() {
		name, raw, found := strings.Cut(kv, "=")
		if !found {
			continue
		}
		if key, ok := l.keyFor(name); ok {
			Set(out, key, coerce(raw))
		}
	}
	return out, nil
}

func (l *EnvLoader) keyFor(name string) (string, bool) {
	if key, ok := l.aliases[name]; ok {
		return key, true
	}
	if !strings.HasPrefix(name, l.prefix) {
		return "", false
	}
	key := l.envToPath(name)
	return key, strings.Contains(key, ".")
}

// envToPath turns PREFIX_SECTION_SOME_NAME into section.someName.
func (l *EnvLoader) envToPath(env string) string {
	words := strings.Split(strings.TrimPrefix(env, l.prefix), "_")
	var b strings.Builder
	b.WriteString(strings.ToLower(words[0]))
	for i, w := range words[1:] {
		if w == "" {
			continue
		}
		w = strings.ToLower(w)
		if i == 0 {
			b.WriteByte('.')
			b.WriteString(w)
			continue
		}
		b.WriteString(strings.ToUpper(w[:1]))
		b.WriteString(w[1:])
	}
	return b.String()
}

// coerce types a raw variable value. Integers become int64 and only
// values with a decimal point become float64, so a duration like "250ms"
// stays a string for the typed config to parse. Flow-style lists and maps
// are read as YAML.
func coerce(raw string) any {
	switch strings.ToLower(raw) {
	case "":
		return raw
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if strings.ContainsRune(raw, '.') {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	if raw[0] == '[' || raw[0] == '{' {
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err == nil {
			return v
		}
	}
	return raw
}
