// Package config loads service configuration from struct tag defaults,
// an optional YAML or JSON file, and environment variables, in that order
// of increasing priority.
//
// # Struct Tags
//
//   - `env:"NAME"`: environment variable for the field; on a nested struct
//     the value becomes a prefix for the child fields
//   - `envDefault:"value"`: applied when the field is still zero-valued
//   - `required:"true"`: loading fails if the field is zero after all layers
//
// File-based loading uses the `yaml` or `json` tags.
//
// # Usage
//
//	type ServerConfig struct {
//	    Listen string        `env:"LISTEN" envDefault:":9100" yaml:"listen"`
//	    Keys   KeysConfig    `env:"KEYS" yaml:"keys"`
//	    Grace  time.Duration `env:"GRACE" envDefault:"10s" yaml:"grace"`
//	}
//
//	cfg, err := config.Load[ServerConfig](config.New().WithEnvPrefix("AUTHD").WithFile(path))
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Loader resolves configuration layers into a struct. Loader is not safe for
// concurrent use.
type Loader struct {
	envPrefix string
	filePath  string
	lookupEnv func(string) (string, bool)
}

// New creates a Loader that reads environment variables only.
func New() *Loader {
	return &Loader{lookupEnv: os.LookupEnv}
}

// WithEnvPrefix sets an upper-cased prefix joined to every env tag with "_".
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets the path to a .yaml, .yml or .json file. A missing file is
// not an error.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// WithLookup replaces the environment lookup function. Tests use this to
// avoid mutating the process environment.
func (l *Loader) WithLookup(lookup func(string) (string, bool)) *Loader {
	l.lookupEnv = lookup
	return l
}

// Load populates cfg, which must be a non-nil pointer to a struct, and then
// validates it. Fields tagged `required:"true"` must be non-zero, and if cfg
// implements [Validator] its Validate method is called.
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a pointer to a struct")
	}

	if err := applyDefaults(rv); err != nil {
		return err
	}
	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}
	if err := l.applyEnv(rv, l.envPrefix); err != nil {
		return err
	}
	return validate(cfg, rv)
}

// Load is a generic convenience wrapper around [Loader.Load].
func Load[T any](loader *Loader) (T, error) {
	var cfg T
	err := loader.Load(&cfg)
	return cfg, err
}

// MustLoad is like [Load] but panics on error. Use it in func main only.
func MustLoad[T any](loader *Loader) T {
	cfg, err := Load[T](loader)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain directory traversal (..) sequences")
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to read file %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q (use .yaml, .yml, or .json)", ext)
	}
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to parse file %q", l.filePath)
	}
	return nil
}

// isNested reports whether a field should be recursed into rather than set
// from a single string.
func isNested(field reflect.Value) bool {
	return field.Kind() == reflect.Struct && field.Type() != durationType
}

func applyDefaults(rv reflect.Value) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		if isNested(field) {
			if err := applyDefaults(field); err != nil {
				return err
			}
			continue
		}
		tag, ok := sf.Tag.Lookup("envDefault")
		if !ok || !field.IsZero() {
			continue
		}
		if err := setField(field, tag); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to apply default for field %q", sf.Name)
		}
	}
	return nil
}

func joinPrefix(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	default:
		return prefix + "_" + name
	}
}

func (l *Loader) applyEnv(rv reflect.Value, prefix string) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		envTag := sf.Tag.Get("env")
		if isNested(field) {
			if err := l.applyEnv(field, joinPrefix(prefix, envTag)); err != nil {
				return err
			}
			continue
		}
		if envTag == "" {
			continue
		}
		key := joinPrefix(prefix, envTag)
		val, ok := l.lookupEnv(key)
		if !ok {
			continue
		}
		if err := setField(field, val); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to set field %q from env var %q", sf.Name, key)
		}
	}
	return nil
}

// setField parses value into field. Supported: string kinds, bool, signed and
// unsigned integers, floats, time.Duration and []string (comma separated).
func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cannot parse bool %q: %w", value, err)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", value, err)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse unsigned integer %q: %w", value, err)
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse float %q: %w", value, err)
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem().Kind())
		}
		var parts []string
		if value != "" {
			parts = strings.Split(value, ",")
		}
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			slice.Index(i).SetString(strings.TrimSpace(p))
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}
	return nil
}
