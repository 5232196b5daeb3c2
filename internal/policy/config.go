package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"

	tt "github.com/gnolang/gobfus/internal/types"
)

// DefaultConfigFile is looked up in the working directory when no
// configuration path is given.
const DefaultConfigFile = ".gobfus.yaml"

// EnvPrefix prefixes environment overrides. A double underscore separates
// sections: GOBFUS_OBFUSCATION__MIN_STRING_LENGTH=6.
const EnvPrefix = "GOBFUS_"

// Config is the declarative configuration resource.
// Optional fields are pointers; Resolve applies their defaults.
type Config struct {
	Obfuscation ObfuscationSection `koanf:"obfuscation" yaml:"obfuscation"`
	Identifiers IdentifiersSection `koanf:"identifiers" yaml:"identifiers"`
	Include     IncludeSection     `koanf:"include" yaml:"include"`
	KeyHex      string             `koanf:"key_hex" yaml:"key_hex,omitempty"`
}

type ObfuscationSection struct {
	Strings         bool     `koanf:"strings" yaml:"strings"`
	Numbers         bool     `koanf:"numbers" yaml:"numbers"`
	MinStringLength *int     `koanf:"min_string_length" yaml:"min_string_length,omitempty"`
	IgnoreStrings   []string `koanf:"ignore_strings" yaml:"ignore_strings,omitempty"`
	ControlFlow     bool     `koanf:"control_flow" yaml:"control_flow"`
	SkipFiles       []string `koanf:"skip_files" yaml:"skip_files,omitempty"`
	SkipAttributes  *bool    `koanf:"skip_attributes" yaml:"skip_attributes,omitempty"`
}

type IdentifiersSection struct {
	Rename   bool     `koanf:"rename" yaml:"rename"`
	Preserve []string `koanf:"preserve" yaml:"preserve,omitempty"`
}

type IncludeSection struct {
	Files   []string `koanf:"files" yaml:"files,omitempty"`
	Exclude []string `koanf:"exclude" yaml:"exclude,omitempty"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	skipAttrs := true
	return Config{
		Obfuscation: ObfuscationSection{
			Strings:        true,
			ControlFlow:    true,
			SkipAttributes: &skipAttrs,
		},
	}
}

// flagKeys maps CLI flags to configuration keys.
var flagKeys = map[string]string{
	"strings":           "obfuscation.strings",
	"numbers":           "obfuscation.numbers",
	"min-string-length": "obfuscation.min_string_length",
	"ignore-strings":    "obfuscation.ignore_strings",
	"control-flow":      "obfuscation.control_flow",
	"skip-files":        "obfuscation.skip_files",
	"skip-attributes":   "obfuscation.skip_attributes",
	"rename":            "identifiers.rename",
	"preserve":          "identifiers.preserve",
	"include":           "include.files",
	"exclude":           "include.exclude",
	"key-hex":           "key_hex",
}

// RegisterFlags adds the policy override flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Bool("strings", true, "Protect string literals")
	fs.Bool("numbers", false, "Protect integer literals")
	fs.Int("min-string-length", 0, "Minimum length of a protected string literal")
	fs.StringSlice("ignore-strings", nil, "String literals that are never protected")
	fs.Bool("control-flow", true, "Insert flow markers in control-flow blocks")
	fs.StringSlice("skip-files", nil, "Path suffixes of files that are never transformed")
	fs.Bool("skip-attributes", true, "Do not descend into struct tags and comments")
	fs.Bool("rename", false, "Rename unexported functions and local bindings")
	fs.StringSlice("preserve", nil, "Identifiers that are never renamed")
	fs.StringSlice("include", nil, "Glob patterns of files to transform")
	fs.StringSlice("exclude", nil, "Glob patterns of files to leave untouched")
	fs.String("key-hex", "", "Hex-encoded 32-byte sealing key")
}

// Load reads the configuration.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
// A missing explicit path is an error; a missing default file is not.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"obfuscation.strings":         true,
		"obfuscation.numbers":         false,
		"obfuscation.control_flow":    true,
		"obfuscation.skip_attributes": true,
		"identifiers.rename":          false,
	}, "."), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load defaults: %w", err)
	}

	cfgFile := path
	if cfgFile == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			cfgFile = DefaultConfigFile
		}
	} else if _, err := os.Stat(cfgFile); err != nil {
		return Config{}, &tt.ConfigError{Field: cfgFile, Err: err}
	}

	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), parserFor(cfgFile)); err != nil {
			return Config{}, &tt.ConfigError{Field: cfgFile, Err: err}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, &tt.ConfigError{Field: "decode", Err: err}
	}
	return cfg, nil
}

func parserFor(path string) koanf.Parser {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Parser()
	}
	return yaml.Parser()
}

// WriteDefault writes DefaultConfig as YAML to path.
func WriteDefault(path string) error {
	if path == "" {
		path = DefaultConfigFile
	}

	d, err := yamlv3.Marshal(DefaultConfig())
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(d)
	return err
}
