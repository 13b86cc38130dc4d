package registry

import (
	"errors"
	"fmt"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"p2p-chat/core"
)

// RegisterRequest is the JSON body for POST /register.
type RegisterRequest struct {
	Username  string `json:"username"`
	IPAddress string `json:"ip_address"`
	Port      int    `json:"port"`
}

// UsernameRequest is the JSON body for POST /heartbeat and POST /unregister.
type UsernameRequest struct {
	Username string `json:"username"`
}

// Server exposes the registry over HTTP plus a /ws presence feed.
type Server struct {
	app *fiber.App
	reg *Registry
	hub *Hub
	log *zap.SugaredLogger
}

func NewServer(reg *Registry, log *zap.SugaredLogger) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{DisableStartupMessage: true}),
		reg: reg,
		hub: NewHub(log),
		log: log,
	}
	reg.OnPresence = s.hub.Broadcast

	s.app.Post("/register", s.handleRegister)
	s.app.Get("/peers", s.handlePeers)
	s.app.Get("/peerinfo", s.handlePeerInfo)
	s.app.Post("/heartbeat", s.handleHeartbeat)
	s.app.Post("/unregister", s.handleUnregister)

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.handleEvents))

	return s
}

// App returns the underlying fiber app, used by tests and by Listen.
func (s *Server) App() *fiber.App {
	return s.app
}

// Registry returns the registry this server fronts.
func (s *Server) Registry() *Registry {
	return s.reg
}

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.log.Infow("registry listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the server after in-flight requests finish.
func (s *Server) Shutdown() error {
	s.hub.Close()
	return s.app.Shutdown()
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid JSON body")
	}
	if req.Username == "" {
		return badRequest(c, "Missing required field: username")
	}
	if req.IPAddress == "" {
		return badRequest(c, "Missing required field: ip_address")
	}
	if req.Port == 0 {
		return badRequest(c, "Missing required field: port")
	}

	rec, created, err := s.reg.Register(c.Context(), req.Username, req.IPAddress, req.Port)
	if err != nil {
		return serverError(c, fmt.Sprintf("Registration failed: %v", err))
	}
	status := fiber.StatusOK
	message := "Peer updated successfully"
	if created {
		status = fiber.StatusCreated
		message = "Peer registered successfully"
	}
	return c.Status(status).JSON(fiber.Map{
		"message": message,
		"peer":    rec,
	})
}

func (s *Server) handlePeers(c *fiber.Ctx) error {
	peers, err := s.reg.ListOnline(c.Context())
	if err != nil {
		return serverError(c, fmt.Sprintf("Failed to fetch peers: %v", err))
	}
	if peers == nil {
		peers = []*core.PeerRecord{}
	}
	return c.JSON(fiber.Map{
		"count": len(peers),
		"peers": peers,
	})
}

func (s *Server) handlePeerInfo(c *fiber.Ctx) error {
	username := c.Query("username")
	if username == "" {
		return badRequest(c, "Username parameter is required")
	}
	rec, err := s.reg.Lookup(c.Context(), username)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": fmt.Sprintf("Peer %s not found", username),
			})
		}
		return serverError(c, fmt.Sprintf("Failed to fetch peer info: %v", err))
	}
	return c.JSON(fiber.Map{"peer": rec})
}

func (s *Server) handleHeartbeat(c *fiber.Ctx) error {
	var req UsernameRequest
	if err := c.BodyParser(&req); err != nil || req.Username == "" {
		return badRequest(c, "Username is required")
	}
	if err := s.reg.Heartbeat(c.Context(), req.Username); err != nil {
		return serverError(c, fmt.Sprintf("Heartbeat failed: %v", err))
	}
	return c.JSON(fiber.Map{"message": "Heartbeat received"})
}

func (s *Server) handleUnregister(c *fiber.Ctx) error {
	var req UsernameRequest
	if err := c.BodyParser(&req); err != nil || req.Username == "" {
		return badRequest(c, "Username is required")
	}
	if err := s.reg.Unregister(c.Context(), req.Username); err != nil {
		return serverError(c, fmt.Sprintf("Unregistration failed: %v", err))
	}
	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Peer %s unregistered successfully", req.Username),
	})
}

// handleEvents holds the WebSocket open; the hub does all the writing. The
// read loop only exists to notice the disconnect.
func (s *Server) handleEvents(conn *websocket.Conn) {
	id := uuid.NewString()
	s.hub.Add(id, conn)
	defer s.hub.Remove(id)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func serverError(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msg})
}
