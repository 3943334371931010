package router

import (
	"os"

	"github.com/gin-gonic/gin"

	"mentorchat/backend/internal/api"
	"mentorchat/backend/pkg/validator"
)

// addOpenAPIValidation validates /api/v1 requests against the schema at
// schemaPath, or against the built-in schema when no path is configured.
func (r *Router) addOpenAPIValidation(group *gin.RouterGroup, schemaPath string) {
	var (
		v   *validator.OpenAPIValidator
		err error
	)
	switch {
	case schemaPath == "":
		v, err = validator.NewOpenAPIValidatorFromData(api.OpenAPISchema)
	case !fileExists(schemaPath):
		r.Logger.Warn("OpenAPI schema file not found, using built-in schema", "path", schemaPath)
		v, err = validator.NewOpenAPIValidatorFromData(api.OpenAPISchema)
	default:
		v, err = validator.NewOpenAPIValidator(schemaPath)
	}
	if err != nil {
		r.Logger.Error("Failed to initialize OpenAPI validator", "error", err)
		return
	}

	group.Use(v.Middleware())
	r.Engine.GET("/api/docs/openapi.yaml", func(c *gin.Context) {
		c.Data(200, "application/yaml", r.schemaBytes(schemaPath))
	})
	r.Logger.Info("OpenAPI validation enabled", "schema", schemaPath)
}

func (r *Router) schemaBytes(schemaPath string) []byte {
	if schemaPath != "" {
		if b, err := os.ReadFile(schemaPath); err == nil {
			return b
		}
	}
	return api.OpenAPISchema
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
