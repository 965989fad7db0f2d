// Package openapi provides reflective OpenAPI 3.0 specification generation.
// Resource schemas are derived from Go structs; custom non-CRUD endpoints
// are registered explicitly.
package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// =============================================================================
// Generator
// =============================================================================

// Generator produces OpenAPI 3.0 specifications by reflecting on registered
// resources.
type Generator struct {
	title       string
	version     string
	description string
	servers     []string
	resources   []ResourceInfo
	operations  []OperationInfo
	mu          sync.RWMutex
	cachedSpec  *openapi3.T
}

// ResourceInfo holds information about a registered JSON:API resource.
type ResourceInfo struct {
	Name           string      // Resource type name (e.g., "templates")
	Model          interface{} // The model struct for schema extraction
	SupportsFind   bool        // GET /{type} and GET /{type}/{id}
	SupportsCreate bool        // POST /{type}
	SupportsUpdate bool        // PATCH /{type}/{id}
	SupportsDelete bool        // DELETE /{type}/{id}
}

// OperationInfo describes a custom endpoint outside the JSON:API CRUD set.
type OperationInfo struct {
	Method      string // http.MethodGet, http.MethodPost, ...
	Path        string // relative to the server URL, e.g. "/templates/search"
	OperationID string
	Summary     string
	Tags        []string
}

// Option configures the generator.
type Option func(*Generator)

// WithTitle sets the API title.
func WithTitle(title string) Option {
	return func(g *Generator) {
		g.title = title
	}
}

// WithVersion sets the API version.
func WithVersion(version string) Option {
	return func(g *Generator) {
		g.version = version
	}
}

// WithDescription sets the API description.
func WithDescription(description string) Option {
	return func(g *Generator) {
		g.description = description
	}
}

// WithServer adds a server URL.
func WithServer(url string) Option {
	return func(g *Generator) {
		g.servers = append(g.servers, url)
	}
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		title:       "Maestro API",
		version:     "1.0.0",
		description: "Namespaced template registry API",
		servers:     []string{"/api/v1"},
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// RegisterResource adds a resource to the generator for spec generation.
func (g *Generator) RegisterResource(info ResourceInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resources = append(g.resources, info)
	g.cachedSpec = nil
}

// RegisterOperation adds a custom endpoint to the spec.
func (g *Generator) RegisterOperation(info OperationInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.operations = append(g.operations, info)
	g.cachedSpec = nil
}

// Generate produces the complete OpenAPI 3.0 specification. The result is
// cached until the next Register call.
func (g *Generator) Generate() *openapi3.T {
	g.mu.RLock()
	if g.cachedSpec != nil {
		spec := g.cachedSpec
		g.mu.RUnlock()
		return spec
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cachedSpec != nil {
		return g.cachedSpec
	}

	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       g.title,
			Version:     g.version,
			Description: g.description,
		},
		Servers: make(openapi3.Servers, 0, len(g.servers)),
		Paths:   &openapi3.Paths{},
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas),
		},
	}

	for _, url := range g.servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: url})
	}

	g.addCommonSchemas(spec)

	for _, res := range g.resources {
		g.addResourceToSpec(spec, res)
	}
	for _, op := range g.operations {
		g.addOperationToSpec(spec, op)
	}

	g.cachedSpec = spec
	return spec
}

// Handler returns an HTTP handler that serves the OpenAPI specification.
func (g *Generator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := g.Generate()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if err := json.NewEncoder(w).Encode(spec); err != nil {
			http.Error(w, "Failed to encode OpenAPI spec", http.StatusInternalServerError)
		}
	}
}

// =============================================================================
// Schema Generation
// =============================================================================

// scalarRef builds a SchemaRef for a primitive type with an optional format.
func scalarRef(typ, format string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{typ}, Format: format}}
}

// objectRef builds a SchemaRef for an object with the given properties.
func objectRef(props openapi3.Schemas) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}, Properties: props}}
}

// addCommonSchemas adds shared schemas to the spec.
func (g *Generator) addCommonSchemas(spec *openapi3.T) {
	spec.Components.Schemas["PaginationMeta"] = objectRef(openapi3.Schemas{
		"total":  scalarRef("integer", ""),
		"limit":  scalarRef("integer", ""),
		"offset": scalarRef("integer", ""),
	})

	spec.Components.Schemas["Error"] = objectRef(openapi3.Schemas{
		"errors": &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type: &openapi3.Types{"array"},
				Items: objectRef(openapi3.Schemas{
					"status": scalarRef("string", ""),
					"title":  scalarRef("string", ""),
					"detail": scalarRef("string", ""),
				}),
			},
		},
	})
}

// addResourceToSpec adds paths and schemas for a JSON:API resource.
func (g *Generator) addResourceToSpec(spec *openapi3.T, res ResourceInfo) {
	basePath := "/" + res.Name
	schemaName := capitalize(singularize(res.Name))

	spec.Components.Schemas[schemaName+"Attributes"] = g.structSchema(res.Model)

	document := objectRef(openapi3.Schemas{
		"type": &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type: &openapi3.Types{"string"},
				Enum: []interface{}{res.Name},
			},
		},
		"id": scalarRef("string", ""),
		"attributes": &openapi3.SchemaRef{
			Ref: "#/components/schemas/" + schemaName + "Attributes",
		},
	})
	document.Value.Required = []string{"type", "id"}
	spec.Components.Schemas[schemaName] = document

	collectionPath := &openapi3.PathItem{}
	if res.SupportsFind {
		collectionPath.Get = g.createListOperation(res)
	}
	if res.SupportsCreate {
		collectionPath.Post = g.createCRUDOperation("create", res, schemaName, true)
	}
	spec.Paths.Set(basePath, collectionPath)

	itemPath := &openapi3.PathItem{
		Parameters: openapi3.Parameters{
			&openapi3.ParameterRef{
				Value: &openapi3.Parameter{
					Name:     "id",
					In:       "path",
					Required: true,
					Schema:   scalarRef("string", ""),
				},
			},
		},
	}
	if res.SupportsFind {
		itemPath.Get = g.createCRUDOperation("get", res, schemaName, false)
	}
	if res.SupportsUpdate {
		itemPath.Patch = g.createCRUDOperation("update", res, schemaName, true)
	}
	if res.SupportsDelete {
		itemPath.Delete = g.createCRUDOperation("delete", res, schemaName, false)
	}
	spec.Paths.Set(basePath+"/{id}", itemPath)
}

// addOperationToSpec adds a registered custom endpoint.
func (g *Generator) addOperationToSpec(spec *openapi3.T, info OperationInfo) {
	op := &openapi3.Operation{
		OperationID: info.OperationID,
		Summary:     info.Summary,
		Tags:        info.Tags,
		Responses:   &openapi3.Responses{},
	}

	item := spec.Paths.Value(info.Path)
	if item == nil {
		item = &openapi3.PathItem{}
	}
	item.SetOperation(info.Method, op)
	spec.Paths.Set(info.Path, item)
}

// structSchema derives an object schema from a struct's exported fields,
// honoring json tags for property names.
func (g *Generator) structSchema(model interface{}) *openapi3.SchemaRef {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	props := make(openapi3.Schemas)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name := field.Name
		if tag := field.Tag.Get("json"); tag != "" {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}

		if ref := g.schemaForType(field.Type); ref != nil {
			props[name] = ref
		}
	}

	return objectRef(props)
}

// schemaForType maps a Go type to its OpenAPI schema.
func (g *Generator) schemaForType(t reflect.Type) *openapi3.SchemaRef {
	switch t.Kind() {
	case reflect.String:
		return scalarRef("string", "")

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return scalarRef("integer", "int32")

	case reflect.Int64:
		return scalarRef("integer", "int64")

	case reflect.Float32:
		return scalarRef("number", "float")

	case reflect.Float64:
		return scalarRef("number", "double")

	case reflect.Bool:
		return scalarRef("boolean", "")

	case reflect.Slice, reflect.Array:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: g.schemaForType(t.Elem()),
			},
		}

	case reflect.Map:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:                 &openapi3.Types{"object"},
				AdditionalProperties: openapi3.AdditionalProperties{Schema: g.schemaForType(t.Elem())},
			},
		}

	case reflect.Ptr:
		ref := g.schemaForType(t.Elem())
		if ref != nil && ref.Value != nil {
			ref.Value.Nullable = true
		}
		return ref

	case reflect.Struct:
		if t == reflect.TypeOf(time.Time{}) {
			return scalarRef("string", "date-time")
		}
		return g.structSchema(reflect.New(t).Interface())

	case reflect.Interface:
		// Opaque task content maps to a free-form value.
		return &openapi3.SchemaRef{Value: &openapi3.Schema{}}

	default:
		return scalarRef("object", "")
	}
}

// =============================================================================
// Operation Generation
// =============================================================================

func (g *Generator) createListOperation(res ResourceInfo) *openapi3.Operation {
	queryParam := func(name string, schema *openapi3.SchemaRef) *openapi3.ParameterRef {
		return &openapi3.ParameterRef{
			Value: &openapi3.Parameter{Name: name, In: "query", Schema: schema},
		}
	}

	pageSize := scalarRef("integer", "")
	pageSize.Value.Default = 100
	pageNumber := scalarRef("integer", "")
	pageNumber.Value.Default = 1

	return &openapi3.Operation{
		OperationID: "list" + capitalize(res.Name),
		Summary:     "List " + res.Name,
		Tags:        []string{capitalize(res.Name)},
		Parameters: openapi3.Parameters{
			queryParam("page[size]", pageSize),
			queryParam("page[number]", pageNumber),
			queryParam("filter[namespace]", scalarRef("string", "")),
		},
		Responses: &openapi3.Responses{},
	}
}

func (g *Generator) createCRUDOperation(verb string, res ResourceInfo, schemaName string, hasBody bool) *openapi3.Operation {
	op := &openapi3.Operation{
		OperationID: verb + schemaName,
		Summary:     capitalize(verb) + " a " + singularize(res.Name),
		Tags:        []string{capitalize(res.Name)},
		Responses:   &openapi3.Responses{},
	}
	if hasBody {
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content: openapi3.Content{
					"application/vnd.api+json": &openapi3.MediaType{
						Schema: &openapi3.SchemaRef{
							Ref: "#/components/schemas/" + schemaName,
						},
					},
				},
			},
		}
	}
	return op
}

// =============================================================================
// Helpers
// =============================================================================

// capitalize returns the string with the first letter capitalized.
func capitalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// singularize performs basic singularization (removes trailing 's').
func singularize(s string) string {
	if strings.HasSuffix(s, "ies") {
		return s[:len(s)-3] + "y"
	}
	if strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss") {
		return s[:len(s)-1]
	}
	return s
}
