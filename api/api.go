package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	applog "github.com/sahilchouksey/icm-reconcile/utils/logger"
)

type APIServer struct {
	app           *fiber.App
	listenAddress string
}

func NewAPIServer(listenAddress string) *APIServer {
	return &APIServer{
		app: fiber.New(fiber.Config{
			AppName:      "icm-reconcile",
			BodyLimit:    4 * 1024 * 1024,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0, // event streams stay open
		}),
		listenAddress: listenAddress,
	}
}

func (s *APIServer) GetEngine() *fiber.App {
	return s.app
}

func (s *APIServer) Run() error {
	applog.Infow("starting API server", "address", s.listenAddress)
	return s.app.Listen(s.listenAddress)
}

// Shutdown stops accepting connections and waits up to timeout for open ones
func (s *APIServer) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}
