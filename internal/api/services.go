package api

import "github.com/shopzz/catmap/internal/service"

// Services groups the business logic services used by the API server.
type Services struct {
	Mappings *service.MappingService
	AutoMap  *service.AutoMapService
}
