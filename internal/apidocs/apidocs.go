//go:build swagger

// Package apidocs embeds the OpenAPI document written by `make swagger-gen`.
package apidocs

import _ "embed"

// SwaggerJSON is the generated swagger.json.
//
//go:embed swagger.json
var SwaggerJSON []byte
