package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/park285/rps-room-server/internal/obslog"
	"github.com/park285/rps-room-server/internal/rps"
	"github.com/park285/rps-room-server/pkg/rpsdto"
)

// Rooms is the matchmaking side of the API.
type Rooms interface {
	GetRoom(ctx context.Context, roomID string) (*rps.Room, error)
	CreateRoom(ctx context.Context, firstPlayerName, mode string) (*rps.Room, error)
	AcceptRoomInvitation(ctx context.Context, roomID, secondPlayerName string) (*rps.Room, error)
}

// Games is the gameplay side of the API.
type Games interface {
	Play(ctx context.Context, roomID string, gameNumber int, playerID string, choice rps.Choice) (*rps.Room, error)
	CreateNewGame(ctx context.Context, roomID, playerID string) (*rps.Room, error)
}

type options struct {
	gatherer prometheus.Gatherer
	health   func(ctx context.Context) error
	log      *zap.Logger
}

type Option func(*options)

// WithMetrics exposes g on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option { return func(o *options) { o.gatherer = g } }

// WithHealthCheck makes /healthz report 503 while check fails.
func WithHealthCheck(check func(ctx context.Context) error) Option {
	return func(o *options) { o.health = check }
}

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

type handler struct {
	rooms Rooms
	games Games
	log   *zap.Logger
}

// New builds the fiber app serving the room API.
func New(rooms Rooms, games Games, opts ...Option) *fiber.App {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = obslog.Or(o.log)

	app := fiber.New(fiber.Config{
		AppName:               "rps-room-server",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(o.log),
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})
	app.Use(recover.New())
	app.Use(accessLog(o.log))

	h := &handler{rooms: rooms, games: games, log: o.log}
	v1 := app.Group("/api/v1/rooms")
	app.Post("/api/v1/rooms", h.createRoom)
	v1.Get("/:roomId", h.getRoom)
	v1.Post("/:roomId/accept-invite", h.acceptInvite)
	v1.Post("/:roomId/games/:gameNumber/play", h.play)
	v1.Post("/:roomId/games", h.newGame)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if o.health != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := o.health(ctx); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "error": err.Error()})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if o.gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{})))
	}
	return app
}

func (h *handler) getRoom(c *fiber.Ctx) error {
	room, err := h.rooms.GetRoom(c.UserContext(), c.Params("roomId"))
	if err != nil {
		return err
	}
	return c.JSON(rpsdto.FromRoom(room))
}

func (h *handler) createRoom(c *fiber.Ctx) error {
	room, err := h.rooms.CreateRoom(c.UserContext(), c.Query("firstPlayerName"), c.Query("gameMode"))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(rpsdto.FromRoom(room))
}

func (h *handler) acceptInvite(c *fiber.Ctx) error {
	room, err := h.rooms.AcceptRoomInvitation(c.UserContext(), c.Params("roomId"), c.Query("secondPlayerName"))
	if err != nil {
		return err
	}
	return c.JSON(rpsdto.FromRoom(room))
}

func (h *handler) play(c *fiber.Ctx) error {
	n, err := strconv.Atoi(c.Params("gameNumber"))
	if err != nil || n <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid game number")
	}
	choice, err := rps.ParseChoice(c.Query("choice"))
	if err != nil {
		return err
	}
	room, err := h.games.Play(c.UserContext(), c.Params("roomId"), n, c.Query("playerId"), choice)
	if err != nil {
		return err
	}
	return c.JSON(rpsdto.FromRoom(room))
}

func (h *handler) newGame(c *fiber.Ctx) error {
	room, err := h.games.CreateNewGame(c.UserContext(), c.Params("roomId"), c.Query("playerId"))
	if err != nil {
		return err
	}
	return c.JSON(rpsdto.FromRoom(room))
}

// statusOf maps a handler error to the response status.
func statusOf(err error) int {
	switch rps.KindOf(err) {
	case "":
	case rps.KindNotFound:
		return fiber.StatusNotFound
	case rps.KindRoomBusy:
		return fiber.StatusConflict
	default:
		return fiber.StatusBadRequest
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := statusOf(err)
		if rps.KindOf(err) != "" {
			return c.Status(status).JSON(rpsdto.FromError(err))
		}
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code := strings.ToUpper(strings.ReplaceAll(http.StatusText(fe.Code), " ", "_"))
			return c.Status(status).JSON(rpsdto.ErrorMessage{Code: code, Message: fe.Message})
		}
		log.Error("http_internal_error", zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Error(err))
		return c.Status(status).JSON(rpsdto.FromError(err))
	}
}

func accessLog(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			// the error handler runs after this middleware returns
			status = statusOf(err)
		}
		log.Debug("http_request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("took", time.Since(start)),
		)
		return err
	}
}
