package api

import _ "embed"

// OpenAPISchema describes the REST surface. The router validates requests
// against it unless a schema file is configured instead.
//
//go:embed openapi.yaml
var OpenAPISchema []byte
