package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every generated environment variable
const EnvPrefix = "GATEWAY"

// legacyEnv maps the variable names used by earlier deployments to the
// settings they control. GATEWAY_* variables take precedence.
var legacyEnv = []struct {
	name  string
	apply func(cfg *Config, val string)
}{
	{"JUDGE0_HOST", func(cfg *Config, val string) { cfg.Backend.Host = val }},
	{"SUPABASE_URL", func(cfg *Config, val string) { cfg.Quota.Store.URL = val }},
	{"SUPABASE_KEY", func(cfg *Config, val string) { cfg.Quota.Store.Credential = val }},
}

// LoadEnv loads configuration from environment variables
func LoadEnv(cfg *Config) error {
	for _, legacy := range legacyEnv {
		if val := os.Getenv(legacy.name); val != "" {
			legacy.apply(cfg, val)
		}
	}
	return loadEnvStruct(reflect.ValueOf(cfg).Elem(), EnvPrefix)
}

// envKey derives the variable name for a struct field from its yaml tag
func envKey(prefix string, field reflect.StructField) (string, bool) {
	yamlTag := field.Tag.Get("yaml")
	if yamlTag == "" || yamlTag == "-" {
		return "", false
	}
	name := strings.Split(yamlTag, ",")[0]
	return fmt.Sprintf("%s_%s", prefix, strings.ToUpper(name)), true
}

// loadEnvStruct recursively loads environment variables into a struct
func loadEnvStruct(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}

		key, ok := envKey(prefix, t.Field(i))
		if !ok {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			if val := os.Getenv(key); val != "" {
				field.SetString(val)
			}

		case reflect.Int, reflect.Int64:
			if val := os.Getenv(key); val != "" {
				intVal, err := strconv.ParseInt(val, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid int value for %s: %v", key, err)
				}
				field.SetInt(intVal)
			}

		case reflect.Float64:
			if val := os.Getenv(key); val != "" {
				floatVal, err := strconv.ParseFloat(val, 64)
				if err != nil {
					return fmt.Errorf("invalid float value for %s: %v", key, err)
				}
				field.SetFloat(floatVal)
			}

		case reflect.Bool:
			if val := os.Getenv(key); val != "" {
				boolVal, err := strconv.ParseBool(val)
				if err != nil {
					return fmt.Errorf("invalid bool value for %s: %v", key, err)
				}
				field.SetBool(boolVal)
			}

		case reflect.Slice:
			// comma-separated string slices only
			if val := os.Getenv(key); val != "" && field.Type().Elem().Kind() == reflect.String {
				parts := strings.Split(val, ",")
				slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
				for i, part := range parts {
					slice.Index(i).SetString(strings.TrimSpace(part))
				}
				field.Set(slice)
			}

		case reflect.Struct:
			if err := loadEnvStruct(field, key); err != nil {
				return err
			}

		case reflect.Ptr:
			if field.IsNil() {
				if !hasEnvVarsWithPrefix(key) {
					continue
				}
				field.Set(reflect.New(field.Type().Elem()))
			}
			if err := loadEnvStruct(field.Elem(), key); err != nil {
				return err
			}
		}
	}

	return nil
}

// hasEnvVarsWithPrefix checks if any environment variables exist with the given prefix
func hasEnvVarsWithPrefix(prefix string) bool {
	prefix = prefix + "_"
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, prefix) {
			return true
		}
	}
	return false
}

// EnvVar documents one supported environment variable
type EnvVar struct {
	Name    string
	Type    string
	Example string
}

// EnvVars lists every environment variable understood by LoadEnv, legacy names first
func EnvVars() []EnvVar {
	vars := []EnvVar{
		{Name: "JUDGE0_HOST", Type: "string", Example: "http://judge0:2358"},
		{Name: "SUPABASE_URL", Type: "string", Example: "https://project.supabase.co"},
		{Name: "SUPABASE_KEY", Type: "string", Example: "service-role-key"},
	}
	collectEnvVars(reflect.TypeOf(Config{}), EnvPrefix, &vars)
	return vars
}

// EnvExample generates example environment variables for the configuration
func EnvExample() []string {
	var examples []string
	for _, v := range EnvVars() {
		examples = append(examples, fmt.Sprintf("%s=%s", v.Name, v.Example))
	}
	return examples
}

func collectEnvVars(t reflect.Type, prefix string, vars *[]EnvVar) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key, ok := envKey(prefix, field)
		if !ok {
			continue
		}

		switch field.Type.Kind() {
		case reflect.String:
			*vars = append(*vars, EnvVar{Name: key, Type: "string", Example: "value"})
		case reflect.Int, reflect.Int64:
			*vars = append(*vars, EnvVar{Name: key, Type: "int", Example: "123"})
		case reflect.Float64:
			*vars = append(*vars, EnvVar{Name: key, Type: "float", Example: "1.5"})
		case reflect.Bool:
			*vars = append(*vars, EnvVar{Name: key, Type: "bool", Example: "true"})
		case reflect.Slice:
			if field.Type.Elem().Kind() == reflect.String {
				*vars = append(*vars, EnvVar{Name: key, Type: "list", Example: "value1,value2"})
			}
		case reflect.Struct:
			collectEnvVars(field.Type, key, vars)
		case reflect.Ptr:
			if field.Type.Elem().Kind() == reflect.Struct {
				collectEnvVars(field.Type.Elem(), key, vars)
			}
		}
	}
}
