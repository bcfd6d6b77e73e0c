package backendstub

import (
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/domain"
	apperrors "github.com/spec-kit/support-chat/pkg/util"
)

// Options configures the stub server.
type Options struct {
	JWTSecret string
	TokenTTL  time.Duration
	Logger    *zap.Logger

	// RateLimitEvery injects a 429 on every Nth authenticated request
	// when positive. Used to exercise the client's silent-retry path.
	RateLimitEvery int

	// Latency delays every authenticated request, for exercising
	// responses that land after the client moved on.
	Latency time.Duration
}

// Server emulates the support backend contract in process. It backs the
// integration tests and the local console surfaces; no database, no
// cache, nothing outside the process.
type Server struct {
	app      *fiber.App
	store    *memoryStore
	tokens   *TokenManager
	logger   *zap.Logger
	requests atomic.Int64
	every    int
	latency  time.Duration
}

// NewServer builds the stub with two seeded accounts,
// seller@example.com and admin@example.com, both password "password".
func NewServer(opts Options) (*Server, error) {
	if opts.JWTSecret == "" {
		opts.JWTSecret = "stub-secret"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		store:   newMemoryStore(),
		tokens:  NewTokenManager(opts.JWTSecret, opts.TokenTTL),
		logger:  logger,
		every:   opts.RateLimitEvery,
		latency: opts.Latency,
	}
	if err := s.seed(); err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          s.handleError,
		DisableStartupMessage: true,
	})
	s.app = app
	s.routes()
	return s, nil
}

func (s *Server) seed() error {
	for _, acct := range []struct {
		name, email, company string
		role                 domain.Role
	}{
		{name: "Sam Seller", email: "seller@example.com", company: "Acme Storefront", role: domain.RoleSeller},
		{name: "Avery Admin", email: "admin@example.com", company: "Support", role: domain.RoleAdmin},
	} {
		hash, err := HashPassword("password")
		if err != nil {
			return err
		}
		s.store.addUser(&user{
			ID:           uuid.NewString(),
			Name:         acct.name,
			Email:        acct.email,
			Company:      acct.company,
			PasswordHash: hash,
			Role:         acct.role,
		})
	}
	return nil
}

func (s *Server) routes() {
	s.app.Post("/auth/login", s.login)

	authed := s.app.Group("", s.authenticate, s.rateLimit)

	authed.Get("/tickets", s.listTickets)
	authed.Post("/tickets", s.requireRole(domain.RoleSeller), s.createTicket)
	authed.Get("/tickets/:id", s.fetchMessages)
	authed.Post("/tickets/:id/message", s.requireRole(domain.RoleSeller), s.sendMessage)
	authed.Post("/tickets/:id/mark-read", s.markRead)
	authed.Post("/tickets/:id/typing", s.emitTyping)
	authed.Get("/tickets/:id/typing", s.fetchTyping)
	authed.Post("/tickets/:id/upload", s.upload)
	authed.Get("/files/:name", s.download)

	admin := authed.Group("/admin", s.requireRole(domain.RoleAdmin))
	admin.Get("/tickets", s.listTickets)
	admin.Get("/tickets/:id", s.fetchMessages)
	admin.Post("/tickets/:id/reply", s.sendMessage)
	admin.Patch("/tickets/:id/status", s.setStatus)
	admin.Patch("/tickets/:id/priority", s.setPriority)
}

// Listener serves on an existing listener, for tests on loopback ports.
func (s *Server) Listener(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Listen serves on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown drains the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		err = apperrors.NewDomainError("API_ERROR", fiberErr.Message, fiberErr.Code, nil)
	}
	domainErr := apperrors.ToDomainError(err)
	if domainErr.HTTPStatus >= 500 {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    domainErr.Code,
			"message": domainErr.Message,
		},
	})
}

func data(c *fiber.Ctx, status int, payload any) error {
	return c.Status(status).JSON(fiber.Map{"data": payload})
}

// authenticate resolves the bearer token into the request's user.
func (s *Server) authenticate(c *fiber.Ctx) error {
	const prefix = "Bearer "
	header := c.Get(fiber.HeaderAuthorization)
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return apperrors.NewUnauthorized("missing bearer token")
	}
	claims, err := s.tokens.ParseToken(header[len(prefix):])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	c.Locals("userID", claims.Subject)
	c.Locals("userName", claims.Name)
	c.Locals("role", domain.Role(claims.Role))
	return c.Next()
}

func (s *Server) rateLimit(c *fiber.Ctx) error {
	if s.latency > 0 {
		time.Sleep(s.latency)
	}
	if s.every > 0 && s.requests.Add(1)%int64(s.every) == 0 {
		return apperrors.NewRateLimited()
	}
	return c.Next()
}

func (s *Server) requireRole(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Locals("role") != role {
			return apperrors.NewForbidden("wrong role for this route")
		}
		return c.Next()
	}
}

func requestRole(c *fiber.Ctx) domain.Role {
	role, _ := c.Locals("role").(domain.Role)
	return role
}

func (s *Server) login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidationError("malformed login body", nil)
	}
	u, ok := s.store.userByEmail(body.Email)
	if !ok || ComparePassword(u.PasswordHash, body.Password) != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	token, err := s.tokens.GenerateToken(u.ID, u.Name, u.Role)
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, fiber.Map{"token": token})
}

func (s *Server) listTickets(c *fiber.Ctx) error {
	role := requestRole(c)
	filter := listFilter{
		status:   c.Query("status"),
		priority: c.Query("priority"),
		category: c.Query("category"),
		search:   c.Query("q"),
	}
	sellerID, _ := c.Locals("userID").(string)
	return data(c, fiber.StatusOK, s.store.list(role, sellerID, filter))
}

func (s *Server) createTicket(c *fiber.Ctx) error {
	var body struct {
		Subject     string                `json:"subject"`
		Category    string                `json:"category"`
		Priority    domain.TicketPriority `json:"priority"`
		Message     string                `json:"message"`
		Attachments []domain.Attachment   `json:"attachments"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidationError("malformed ticket body", nil)
	}
	if body.Subject == "" || body.Message == "" {
		return apperrors.NewValidationError("subject and message are required", nil)
	}
	if body.Priority == "" {
		body.Priority = domain.TicketPriorityMedium
	}
	if !domain.ValidPriority(body.Priority) {
		return apperrors.NewValidationError("unknown priority", nil)
	}

	sellerID, _ := c.Locals("userID").(string)
	u, ok := s.userByID(sellerID)
	if !ok {
		return apperrors.NewUnauthorized("unknown user")
	}
	ticket := s.store.createTicket(u, body.Subject, body.Category, body.Priority, body.Message, body.Attachments)
	return data(c, fiber.StatusCreated, ticket)
}

func (s *Server) userByID(id string) (*user, bool) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	for _, u := range s.store.users {
		if u.ID == id {
			return u, true
		}
	}
	return nil, false
}

func (s *Server) fetchMessages(c *fiber.Ctx) error {
	role := requestRole(c)
	ticketID := c.Params("id")
	limit := c.QueryInt("limit", 10)
	offset := c.QueryInt("offset", 0)
	includeInternal := role == domain.RoleAdmin && c.Query("include_internal") == "true"

	msgs, hasMore, ok := s.store.page(ticketID, role, includeInternal, limit, offset)
	if !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}

	payload := fiber.Map{"messages": msgs, "has_more": hasMore}
	if role == domain.RoleAdmin {
		if rec, found := s.store.get(ticketID); found {
			payload["seller"] = rec.creator
		}
	}
	return data(c, fiber.StatusOK, payload)
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	role := requestRole(c)
	ticketID := c.Params("id")

	var body struct {
		Message     string              `json:"message"`
		Attachments []domain.Attachment `json:"attachments"`
		IsInternal  bool                `json:"is_internal"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidationError("malformed message body", nil)
	}
	if body.Message == "" && len(body.Attachments) == 0 {
		return apperrors.NewValidationError("message or attachment required", nil)
	}

	rec, ok := s.store.get(ticketID)
	if !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	if role == domain.RoleSeller && rec.status == domain.TicketStatusClosed {
		return apperrors.NewDomainError("TICKET_CLOSED", "ticket is closed", fiber.StatusConflict, nil)
	}

	senderID, _ := c.Locals("userID").(string)
	internal := role == domain.RoleAdmin && body.IsInternal
	msg, ok := s.store.appendMessage(ticketID, senderID, role, body.Message, body.Attachments, internal)
	if !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return data(c, fiber.StatusCreated, msg)
}

func (s *Server) markRead(c *fiber.Ctx) error {
	ticketID := c.Params("id")
	var body struct {
		MessageIDs []string `json:"message_ids"`
	}
	_ = c.BodyParser(&body)
	if !s.store.markRead(ticketID, requestRole(c), body.MessageIDs) {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return data(c, fiber.StatusOK, fiber.Map{"ok": true})
}

func (s *Server) emitTyping(c *fiber.Ctx) error {
	ticketID := c.Params("id")
	var body struct {
		IsTyping bool `json:"is_typing"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidationError("malformed typing body", nil)
	}
	name, _ := c.Locals("userName").(string)
	if !s.store.setTyping(ticketID, requestRole(c), name, body.IsTyping) {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return data(c, fiber.StatusOK, fiber.Map{"ok": true})
}

func (s *Server) fetchTyping(c *fiber.Ctx) error {
	ticketID := c.Params("id")
	state, ok := s.store.getTyping(ticketID, requestRole(c))
	if !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return data(c, fiber.StatusOK, state)
}

const maxUploadBytes = 5 << 20

func (s *Server) upload(c *fiber.Ctx) error {
	ticketID := c.Params("id")
	if _, ok := s.store.get(ticketID); !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}

	header, err := c.FormFile("file")
	if err != nil {
		return apperrors.NewValidationError("file field is required", nil)
	}
	if header.Size > maxUploadBytes {
		return apperrors.NewValidationError("file exceeds the upload limit", map[string]any{
			"size":  header.Size,
			"limit": maxUploadBytes,
		})
	}

	f, err := header.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	stored := uuid.NewString() + "-" + header.Filename
	contentType := header.Header.Get(fiber.HeaderContentType)
	s.store.saveFile(stored, contentType, content)

	return data(c, fiber.StatusCreated, domain.Attachment{
		Filename: header.Filename,
		URL:      "/files/" + stored,
		Size:     header.Size,
		Type:     contentType,
	})
}

func (s *Server) download(c *fiber.Ctx) error {
	name := c.Params("name")
	f, ok := s.store.file(name)
	if !ok {
		return apperrors.NewNotFound("file", map[string]any{"filename": name})
	}
	if f.contentType != "" {
		c.Set(fiber.HeaderContentType, f.contentType)
	}
	return c.Status(fiber.StatusOK).Send(f.data)
}

func (s *Server) setStatus(c *fiber.Ctx) error {
	ticketID := c.Params("id")
	var body struct {
		Status domain.TicketStatus `json:"status"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidationError("malformed status body", nil)
	}
	if !domain.ValidStatus(body.Status) {
		return apperrors.NewValidationError("unknown status", map[string]any{"status": body.Status})
	}
	ticket, ok := s.store.setStatus(ticketID, body.Status)
	if !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return data(c, fiber.StatusOK, ticket)
}

func (s *Server) setPriority(c *fiber.Ctx) error {
	ticketID := c.Params("id")
	var body struct {
		Priority domain.TicketPriority `json:"priority"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidationError("malformed priority body", nil)
	}
	if !domain.ValidPriority(body.Priority) {
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority": body.Priority})
	}
	ticket, ok := s.store.setPriority(ticketID, body.Priority)
	if !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return data(c, fiber.StatusOK, ticket)
}
