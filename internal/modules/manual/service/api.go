package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"aster_bot/internal/models"
	advisory "aster_bot/internal/modules/advisory/service"
	"aster_bot/pkg/logger"
)

// OrderService — то, что API нужно от Handler. nil — подсистема не готова (503).
type OrderService interface {
	Execute(ctx context.Context, o models.ManualOrder) (models.ManualPosition, error)
	Close(ctx context.Context, id string) error
	Count() int
	Statuses(ctx context.Context) []PositionStatus
	Advise(ctx context.Context, id string) (advisory.PositionAdvice, error)
}

// ConnCounter — учёт подключений /ws (health).
type ConnCounter interface {
	WSClientConnected()
	WSClientGone()
}

type API struct {
	svc      OrderService
	conns    ConnCounter
	now      func() time.Time
	upgrader websocket.Upgrader
}

func NewAPI(svc OrderService, conns ConnCounter) *API {
	return &API{
		svc:   svc,
		conns: conns,
		now:   time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:           true,
		AllowMethods:              []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:              []string{"Origin", "Content-Type"},
		MaxAge:                    12 * time.Hour,
		OptionsResponseStatusCode: http.StatusOK,
	}))

	r.GET("/", a.index)
	r.GET("/health", a.health)
	r.GET("/positions", a.positions)
	r.GET("/positions/:id/advice", a.advice)
	r.POST("/order", a.createOrder)
	r.POST("/close/:id", a.closePosition)
	r.GET("/ws", a.ws)

	r.NoRoute(func(c *gin.Context) {
		// OPTIONS без Origin до cors не доходит
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusOK)
			return
		}
		fail(c, http.StatusNotFound, "Not Found")
	})
	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-Id", id)
		c.Set("request_id", id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("[API] %s %s %d %s rid=%s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(),
			time.Since(start).Round(time.Microsecond), c.GetString("request_id"))
	}
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

func (a *API) notReady(c *gin.Context) bool {
	if a.svc == nil {
		fail(c, http.StatusServiceUnavailable, "Order handler not initialized")
		return true
	}
	return false
}

func (a *API) health(c *gin.Context) {
	n := 0
	if a.svc != nil {
		n = a.svc.Count()
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "running", "manual_positions": n})
}

func (a *API) positions(c *gin.Context) {
	if a.notReady(c) {
		return
	}
	ps := a.svc.Statuses(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true, "positions": ps, "count": len(ps)})
}

func (a *API) createOrder(c *gin.Context) {
	if a.notReady(c) {
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid parameter: "+err.Error())
		return
	}
	raw := map[string]any{}
	if len(body) > 0 {
		if err := sonic.Unmarshal(body, &raw); err != nil {
			fail(c, http.StatusBadRequest, "Invalid parameter: "+err.Error())
			return
		}
	}
	order, err := DecodeOrder(raw, models.SourceAPI, a.now())
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	pos, err := a.svc.Execute(c.Request.Context(), order)
	if err != nil {
		logger.Error("[API] order %s %s: %v", order.Symbol, order.Side, err)
		fail(c, http.StatusInternalServerError, "Failed to create order")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Order created successfully",
		"order_id": pos.OrderID,
		"symbol":   order.Symbol,
		"side":     string(order.Side),
	})
}

func (a *API) closePosition(c *gin.Context) {
	if a.notReady(c) {
		return
	}
	id := c.Param("id")
	err := a.svc.Close(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "message": fmt.Sprintf("Position %s closed successfully", id)})
	case errors.Is(err, ErrPositionNotFound):
		fail(c, http.StatusNotFound, fmt.Sprintf("Position %s not found", id))
	default:
		fail(c, http.StatusInternalServerError, err.Error())
	}
}

func (a *API) advice(c *gin.Context) {
	if a.notReady(c) {
		return
	}
	id := c.Param("id")
	adv, err := a.svc.Advise(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "order_id": id, "advice": adv})
	case errors.Is(err, ErrPositionNotFound):
		fail(c, http.StatusNotFound, fmt.Sprintf("Position %s not found", id))
	case errors.Is(err, ErrAdvisoryDisabled):
		fail(c, http.StatusServiceUnavailable, "Advisory not configured")
	default:
		fail(c, http.StatusInternalServerError, err.Error())
	}
}

// ws: каждое входящее сообщение — ордер в формате /order, ответ — результат исполнения.
func (a *API) ws(c *gin.Context) {
	if a.notReady(c) {
		return
	}
	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("[API] ws upgrade: %v", err)
		return
	}
	defer conn.Close()
	if a.conns != nil {
		a.conns.WSClientConnected()
		defer a.conns.WSClientGone()
	}
	logger.Info("[API] ws client %s connected", c.Request.RemoteAddr)

	ctx := c.Request.Context()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("[API] ws read: %v", err)
			}
			return
		}
		if err := conn.WriteJSON(a.wsOrder(ctx, msg)); err != nil {
			logger.Warn("[API] ws write: %v", err)
			return
		}
	}
}

func (a *API) wsOrder(ctx context.Context, msg []byte) gin.H {
	raw := map[string]any{}
	if err := sonic.Unmarshal(msg, &raw); err != nil {
		return gin.H{"success": false, "error": "Invalid parameter: " + err.Error()}
	}
	order, err := DecodeOrder(raw, models.SourceWS, a.now())
	if err != nil {
		return gin.H{"success": false, "error": err.Error()}
	}
	pos, err := a.svc.Execute(ctx, order)
	if err != nil {
		logger.Error("[API] ws order %s %s: %v", order.Symbol, order.Side, err)
		return gin.H{"success": false, "error": "Failed to create order"}
	}
	return gin.H{
		"success":  true,
		"message":  "Order created successfully",
		"order_id": pos.OrderID,
		"symbol":   order.Symbol,
		"side":     string(order.Side),
	}
}

func (a *API) index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
  <title>AsterDEX Manual Trading API</title>
  <style>
    body { font-family: Arial, sans-serif; max-width: 800px; margin: 50px auto; padding: 20px; }
    pre { background: #f4f4f4; padding: 15px; border-radius: 5px; overflow-x: auto; }
    .endpoint { margin: 20px 0; padding: 15px; border: 1px solid #ddd; border-radius: 5px; }
    .method { font-weight: bold; color: #0066cc; }
  </style>
</head>
<body>
  <h1>AsterDEX Manual Trading API</h1>

  <div class="endpoint">
    <h3><span class="method">GET</span> /health</h3>
    <pre>curl http://localhost:8080/health</pre>
  </div>

  <div class="endpoint">
    <h3><span class="method">GET</span> /positions</h3>
    <p>Tracked manual positions with current price and PnL %.</p>
    <pre>curl http://localhost:8080/positions</pre>
  </div>

  <div class="endpoint">
    <h3><span class="method">POST</span> /order</h3>
    <p>Open a position now; it is monitored and closed on stop-loss / take-profit.</p>
    <pre>
curl -X POST http://localhost:8080/order \
  -H "Content-Type: application/json" \
  -d '{"symbol": "BTCUSDT", "side": "LONG", "leverage": 3, "stop_loss_percent": 2.0, "take_profit_percent": 5.0, "note": "manual long"}'
    </pre>
    <ul>
      <li><b>symbol</b>: required, e.g. BTCUSDT</li>
      <li><b>side</b>: required, LONG or SHORT</li>
      <li><b>quantity</b>: optional, default position size otherwise</li>
      <li><b>leverage</b>: optional, default leverage otherwise</li>
      <li><b>stop_loss_percent</b>, <b>take_profit_percent</b>: optional</li>
      <li><b>note</b>: optional</li>
    </ul>
  </div>

  <div class="endpoint">
    <h3><span class="method">POST</span> /close/{order_id}</h3>
    <pre>curl -X POST http://localhost:8080/close/123456</pre>
  </div>

  <div class="endpoint">
    <h3><span class="method">GET</span> /positions/{order_id}/advice</h3>
    <p>Advisory recommendation for an open position (when advisory is configured).</p>
  </div>

  <div class="endpoint">
    <h3><span class="method">GET</span> /ws</h3>
    <p>WebSocket: send order JSON in the /order format, receive the result.</p>
  </div>
</body>
</html>
`
