package campaign

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	runPlansSchema = "schemas/run_plans.schema.json"
	runLogSchema   = "schemas/run_log.schema.json"
)

var (
	schemaOnce sync.Once
	schemas    map[string]*jsonschema.Schema
	schemaErr  error
)

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiled := make(map[string]*jsonschema.Schema, 2)

		for _, name := range []string{runPlansSchema, runLogSchema} {
			data, err := schemaFS.ReadFile(name)
			if err != nil {
				schemaErr = fmt.Errorf("reading schema %s: %w", name, err)

				return
			}

			if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
				schemaErr = fmt.Errorf("adding schema %s: %w", name, err)

				return
			}

			schema, err := compiler.Compile(name)
			if err != nil {
				schemaErr = fmt.Errorf("compiling schema %s: %w", name, err)

				return
			}

			compiled[name] = schema
		}

		schemas = compiled
	})

	return schemas, schemaErr
}

// validate decodes raw and validates it against the named schema. The
// decoded document is returned for further processing.
func validate(name string, raw []byte) (any, error) {
	compiled, err := compileSchemas()
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing json: %w", err)
	}

	if err := compiled[name].Validate(doc); err != nil {
		return nil, fmt.Errorf("validating: %w", err)
	}

	return doc, nil
}
