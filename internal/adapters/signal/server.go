package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/VideoCall/internal/app"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// MailboxWSController serves /ws/:id on the rendezvous side. Envelopes read
// from the socket go into the addressed mailbox; the peer's own mailbox is
// drained down the socket.
type MailboxWSController struct {
	Boxes   *app.Mailboxes
	Limiter *app.SendLimiter
}

func NewMailboxWSController(boxes *app.Mailboxes, limiter *app.SendLimiter) *MailboxWSController {
	return &MailboxWSController{Boxes: boxes, Limiter: limiter}
}

type wsPeerConn struct {
	id     domain.PeerID
	remote string
	conn   *websocket.Conn

	once sync.Once
}

func (c *wsPeerConn) Close() {
	c.once.Do(func() { _ = c.conn.Close() })
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleMailbox upgrades the request and returns; the pumps run until the
// socket fails or ctx is done.
func (ctl *MailboxWSController) HandleMailbox(ctx context.Context, c *gin.Context) {
	id := domain.PeerID(c.Param("id"))
	if err := domain.ValidatePeerID(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("module", "adapters.signal").Str("peer", string(id)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("ws upgrade")
		return
	}

	conn := &wsPeerConn{id: id, remote: c.ClientIP(), conn: ws}
	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, conn)
}
