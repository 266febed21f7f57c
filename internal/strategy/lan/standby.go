package lan

import (
	"context"

	"github.com/coder/websocket"

	"github.com/relayshell/connectcore/internal/transport"
	"github.com/relayshell/connectcore/internal/transport/lanws"
)

// wsAliveCheck verifies that an idle standby connection is still usable
// before handing it off, in the style of an alive-check
// (internal/warm_standby.go) from a manual ping/pong frame exchange to
// coder/websocket's built-in Ping.
func wsAliveCheck(ctx context.Context, c *websocket.Conn) bool {
	return c.Ping(ctx) == nil
}

func newStandbyTransport(c *websocket.Conn, release func()) transport.Transport {
	return lanws.FromConn(c, release)
}
