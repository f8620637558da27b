package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/fluxorio/jvm/pkg/core"
)

// Validator validates configuration
type Validator interface {
	Validate(config interface{}) error
}

// ValidatorFunc is a function that validates configuration
type ValidatorFunc func(config interface{}) error

func (f ValidatorFunc) Validate(config interface{}) error {
	return f(config)
}

// Validate runs validators in order and stops at the first failure.
func Validate(config interface{}, validators ...Validator) error {
	for _, validator := range validators {
		if err := validator.Validate(config); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}
	return nil
}

// Validate checks limits, the version range and the enumerated settings.
func (c *Config) Validate() error {
	return Validate(c,
		RangeValidator("MaxCallDepth", 1, 1<<20),
		RangeValidator("MaxHeapObjects", 0, 1<<31-1), // 0 is unbounded
		RangeValidator("MinMajorVersion", 45, 65535),
		RangeValidator("MaxMajorVersion", 45, 65535),
		ValidatorFunc(func(interface{}) error {
			if c.MinMajorVersion > c.MaxMajorVersion {
				return fmt.Errorf("min_major_version %d exceeds max_major_version %d", c.MinMajorVersion, c.MaxMajorVersion)
			}
			return nil
		}),
		OneOfValidator("Log.Format", "text", "json"),
		ValidatorFunc(func(interface{}) error {
			_, err := core.ParseLevel(c.Log.Level)
			return err
		}),
		OneOfValidator("Trace.Exporter", "", "none", "stdout", "zipkin"),
		ValidatorFunc(func(interface{}) error {
			if c.Metrics.Enabled && c.Metrics.Addr == "" {
				return fmt.Errorf("metrics.addr is required when metrics are enabled")
			}
			return nil
		}),
		ValidatorFunc(func(interface{}) error {
			if c.Store.DSN == "" {
				return nil
			}
			return Validate(c,
				RequiredFields("Store.Driver"),
				OneOfValidator("Store.Driver", "sqlite3", "postgres", "pgx"),
				RangeValidator("Store.MaxOpenConns", 1, 1024),
				RangeValidator("Store.MaxIdleConns", 0, 1024),
			)
		}),
	)
}

// RequiredFields validates that required fields are not empty.
// Nested fields use dot notation (e.g., "Store.DSN").
func RequiredFields(fields ...string) Validator {
	return ValidatorFunc(func(config interface{}) error {
		val := reflect.ValueOf(config)
		if val.Kind() == reflect.Ptr {
			val = val.Elem()
		}
		if val.Kind() != reflect.Struct {
			return fmt.Errorf("config must be a struct")
		}

		missing := make([]string, 0)
		for _, fieldName := range fields {
			fieldVal := getNestedField(val, fieldName)
			if !fieldVal.IsValid() {
				return fmt.Errorf("field %s not found in config struct", fieldName)
			}
			if fieldVal.IsZero() {
				missing = append(missing, fieldName)
			}
		}

		if len(missing) > 0 {
			return fmt.Errorf("required fields are missing: %s", strings.Join(missing, ", "))
		}
		return nil
	})
}

// RangeValidator validates that a numeric field is within [min, max]
func RangeValidator(fieldName string, min, max float64) Validator {
	return ValidatorFunc(func(config interface{}) error {
		fieldVal := getNestedField(reflect.ValueOf(config), fieldName)
		if !fieldVal.IsValid() {
			return fmt.Errorf("field %s not found", fieldName)
		}

		var numVal float64
		switch fieldVal.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			numVal = float64(fieldVal.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			numVal = float64(fieldVal.Uint())
		case reflect.Float32, reflect.Float64:
			numVal = fieldVal.Float()
		default:
			return fmt.Errorf("field %s is not numeric", fieldName)
		}

		if numVal < min || numVal > max {
			return fmt.Errorf("field %s value %v is out of range [%v, %v]", fieldName, numVal, min, max)
		}
		return nil
	})
}

// OneOfValidator validates that a field value is one of the allowed values
func OneOfValidator(fieldName string, allowedValues ...interface{}) Validator {
	return ValidatorFunc(func(config interface{}) error {
		fieldVal := getNestedField(reflect.ValueOf(config), fieldName)
		if !fieldVal.IsValid() {
			return fmt.Errorf("field %s not found", fieldName)
		}

		fieldInterface := fieldVal.Interface()
		for _, allowed := range allowedValues {
			if reflect.DeepEqual(fieldInterface, allowed) {
				return nil
			}
		}
		return fmt.Errorf("field %s value %v is not one of allowed values: %v", fieldName, fieldInterface, allowedValues)
	})
}

func getNestedField(val reflect.Value, fieldPath string) reflect.Value {
	current := val
	for _, part := range strings.Split(fieldPath, ".") {
		if current.Kind() == reflect.Ptr {
			current = current.Elem()
		}
		if current.Kind() != reflect.Struct {
			return reflect.Value{}
		}
		current = current.FieldByName(part)
		if !current.IsValid() {
			return reflect.Value{}
		}
	}
	return current
}
