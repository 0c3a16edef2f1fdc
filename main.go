package main

import (
	"family_messaging_service/internal/chat/router"

	"github.com/gofiber/fiber/v2"
)

// swag init entry: scans the annotated handlers from the module root.
// swag init output ./docs
func main() {
	app := fiber.New()

	router.RegisterRoutes(app, nil, nil, nil, nil)
}
