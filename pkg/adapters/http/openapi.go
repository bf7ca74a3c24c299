package http

import (
	_ "embed"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var openapiSpec []byte

var loadSpec = sync.OnceValues(func() (*openapi3.T, error) {
	return openapi3.NewLoader().LoadFromData(openapiSpec)
})

// OpenAPI returns the parsed API description served at /openapi.yaml.
func OpenAPI() (*openapi3.T, error) {
	return loadSpec()
}
