package realtime

import (
	"net/http"

	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SocketServer hosts the client socket: line-delimited JSON frames over
// a persistent websocket. Clients must authenticate before they receive
// anything.
type SocketServer struct {
	conns  *ConnManager
	secret []byte
}

func NewSocketServer(conns *ConnManager, secret []byte) *SocketServer {
	return &SocketServer{conns: conns, secret: secret}
}

// HandleWS is the gin handler for the socket path.
func (s *SocketServer) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade failed: %v", err)
		return
	}

	conn := s.conns.Add(ws)
	defer s.conns.Remove(conn)

	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed conn=%s", conn.ID)
			} else {
				logger.Infof("[ws] read err conn=%s err=%v", conn.ID, rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseClientFrame(data)
		if perr != nil {
			// Malformed frames get an error reply, not a hangup.
			conn.Send(BuildErrorFrame("malformed frame"))
			continue
		}

		switch frame.Op {
		case "authenticate":
			uid, aerr := VerifyToken(s.secret, frame.Token)
			if aerr != nil {
				// Auth violation is the one thing that closes the socket.
				// The reply goes through the send queue like every other
				// frame; the writer flushes it before closing.
				conn.Send(BuildErrorFrame("authentication failed"))
				return
			}
			s.conns.Bind(conn, uid)
			conn.Send(BuildAckFrame("authenticated"))
			logger.Infof("[ws] authenticated conn=%s uid=%s", conn.ID, uid)
		case "ping":
			s.conns.Refresh(conn.Uid)
			conn.Send(BuildAckFrame("pong"))
		default:
			conn.Send(BuildErrorFrame("unknown op"))
		}
	}
}
