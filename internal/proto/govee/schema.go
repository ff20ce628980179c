package govee

import (
	"bytes"
	"embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

type validators struct {
	device  *jsonschema.Schema
	adapter *jsonschema.Schema
}

func loadValidators() (*validators, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	for _, name := range []string{"device_command.json", "adapter_command.json"} {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, err
		}
		if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
	}
	device, err := compiler.Compile("device_command.json")
	if err != nil {
		return nil, err
	}
	adapter, err := compiler.Compile("adapter_command.json")
	if err != nil {
		return nil, err
	}
	return &validators{device: device, adapter: adapter}, nil
}
