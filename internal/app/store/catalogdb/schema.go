// internal/app/store/catalogdb/schema.go
package catalogdb

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dalemusser/productcatalog/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DatabaseName       = "meanStackExample"
	ProductsCollection = "products"
)

// JSONSchema is the subset of MongoDB's $jsonSchema keywords the catalog
// uses. It marshals to the exact document sent to the server.
type JSONSchema struct {
	BSONType             string              `bson:"bsonType,omitempty"`
	Required             []string            `bson:"required,omitempty"`
	AdditionalProperties *bool               `bson:"additionalProperties,omitempty"`
	Properties           map[string]Property `bson:"properties,omitempty"`
}

// Property constrains one top-level field. A zero Property accepts any value.
type Property struct {
	BSONType    string   `bson:"bsonType,omitempty"`
	Description string   `bson:"description,omitempty"`
	MinLength   int      `bson:"minLength,omitempty"`
	Enum        []string `bson:"enum,omitempty"`
}

// ProductsSchema returns the validator enforced on the products collection.
func ProductsSchema() JSONSchema {
	closed := false

	types := models.ProductTypes()
	enum := make([]string, len(types))
	quoted := make([]string, len(types))
	for i, t := range types {
		enum[i] = string(t)
		quoted[i] = "'" + string(t) + "'"
	}

	return JSONSchema{
		BSONType:             "object",
		Required:             []string{"name", "position", "type", "description", "selling_price"},
		AdditionalProperties: &closed,
		Properties: map[string]Property{
			"_id": {},
			"name": {
				BSONType:    "string",
				Description: "'name' is required and is a string",
			},
			"position": {
				BSONType:    "string",
				Description: "'position' is required and is a string",
				MinLength:   5,
			},
			"type": {
				BSONType:    "string",
				Description: "'type' is required and is one of " + joinOr(quoted),
				Enum:        enum,
			},
			"description": {
				BSONType:    "string",
				Description: "'description' is required and is a string",
			},
			"selling_price": {
				BSONType:    "number",
				Description: "'selling_price' is required and is a number",
			},
		},
	}
}

// MarshalBSON encodes s with properties in a fixed order: _id, then the
// required fields as listed, then any others by name. A plain map would
// encode in random order, so the stored validator would differ byte for
// byte between runs.
func (s JSONSchema) MarshalBSON() ([]byte, error) {
	var doc bson.D
	if s.BSONType != "" {
		doc = append(doc, bson.E{Key: "bsonType", Value: s.BSONType})
	}
	if len(s.Required) > 0 {
		doc = append(doc, bson.E{Key: "required", Value: s.Required})
	}
	if s.AdditionalProperties != nil {
		doc = append(doc, bson.E{Key: "additionalProperties", Value: *s.AdditionalProperties})
	}
	if len(s.Properties) > 0 {
		props := make(bson.D, 0, len(s.Properties))
		for _, name := range s.propertyOrder() {
			props = append(props, bson.E{Key: name, Value: s.Properties[name]})
		}
		doc = append(doc, bson.E{Key: "properties", Value: props})
	}
	return bson.Marshal(doc)
}

func (s JSONSchema) propertyOrder() []string {
	order := make([]string, 0, len(s.Properties))
	seen := make(map[string]bool, len(s.Properties))
	add := func(name string) {
		if _, ok := s.Properties[name]; ok && !seen[name] {
			seen[name] = true
			order = append(order, name)
		}
	}
	add("_id")
	for _, name := range s.Required {
		add(name)
	}
	for _, name := range sortedKeys(s.Properties) {
		add(name)
	}
	return order
}

// Validator returns the collection validator document for the products
// collection: {"$jsonSchema": ProductsSchema()}.
func Validator() bson.M {
	return bson.M{"$jsonSchema": ProductsSchema()}
}

// Violation is one reason a document does not match a JSONSchema.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// SchemaError lists every violation found by JSONSchema.Check.
type SchemaError struct {
	Violations []Violation
}

func (e *SchemaError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + ": " + v.Message
	}
	return "document failed validation: " + strings.Join(parts, "; ")
}

// Check evaluates s against doc in-process, mirroring what the server
// validator accepts for the keywords JSONSchema models. It returns nil or
// a *SchemaError. Violations are ordered: missing required fields, then
// unknown fields, then per-property failures, each group sorted by name.
func (s JSONSchema) Check(doc bson.M) error {
	var out []Violation

	if doc == nil {
		return &SchemaError{Violations: []Violation{{Field: "$root", Message: "must be an object"}}}
	}

	for _, f := range s.Required {
		if _, ok := doc[f]; !ok {
			out = append(out, Violation{Field: f, Message: s.Properties[f].describe("is required")})
		}
	}

	if s.AdditionalProperties != nil && !*s.AdditionalProperties {
		for _, k := range sortedKeys(doc) {
			if _, ok := s.Properties[k]; !ok {
				out = append(out, Violation{Field: k, Message: "is not an allowed field"})
			}
		}
	}

	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, ok := doc[name]
		if !ok {
			continue
		}
		if msg := s.Properties[name].check(v); msg != "" {
			out = append(out, Violation{Field: name, Message: msg})
		}
	}

	if len(out) == 0 {
		return nil
	}
	return &SchemaError{Violations: out}
}

func (p Property) check(v any) string {
	switch p.BSONType {
	case "":
	case "string":
		if _, ok := v.(string); !ok {
			return p.describe("must be a string")
		}
	case "number":
		if !isNumber(v) {
			return p.describe("must be a number")
		}
	case "object":
		switch v.(type) {
		case bson.M, bson.D, map[string]any:
		default:
			return p.describe("must be an object")
		}
	default:
		return fmt.Sprintf("unsupported bsonType %q in schema", p.BSONType)
	}

	s, isString := v.(string)
	if isString && p.MinLength > 0 && utf8.RuneCountInString(s) < p.MinLength {
		return fmt.Sprintf("must be at least %d characters", p.MinLength)
	}
	if len(p.Enum) > 0 {
		if !isString || !contains(p.Enum, s) {
			return p.describe("must be one of " + strings.Join(p.Enum, ", "))
		}
	}
	return ""
}

// describe prefers the schema's own description so in-process and
// server-side messages read the same.
func (p Property) describe(fallback string) string {
	if p.Description != "" {
		return p.Description
	}
	return fallback
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, primitive.Decimal128:
		return true
	}
	return false
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

func sortedKeys[V any](doc map[string]V) []string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinOr(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + ", or " + items[len(items)-1]
}
