package validate

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const inventorySchemaURL = "opis://schema/inventory.schema.json"

//go:embed inventory.schema.json
var inventorySchema []byte

var (
	once    sync.Once
	schema  *jsonschema.Schema
	loadErr error
)

func load() {
	c := jsonschema.NewCompiler()
	c.AssertFormat = true
	if err := c.AddResource(inventorySchemaURL, bytes.NewReader(inventorySchema)); err != nil {
		loadErr = err
		return
	}
	s, err := c.Compile(inventorySchemaURL)
	if err != nil {
		loadErr = err
		return
	}
	schema = s
}

// Inventory validates any value that marshals to the inventory JSON shape.
func Inventory(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return InventoryJSON(b)
}

// InventoryJSON validates raw inventory JSON.
func InventoryJSON(b []byte) error {
	once.Do(load)
	if loadErr != nil {
		return fmt.Errorf("inventory schema: %w", loadErr)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}
