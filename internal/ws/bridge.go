package ws

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// bridgeChannel is the redis pub/sub channel every hub instance subscribes
// to. A broadcast published here is delivered by each node, including the
// publisher, to its own local subscribers.
const bridgeChannel = "fieldtrack-broadcast"

// runBridge feeds bridge messages into the hub loop. Started by Run when a
// redis client is configured.
func (h *Hub) runBridge(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, bridgeChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var f fanoutMsg
			if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
				h.logger.Error("failed to decode bridge message", zap.Error(err))
				continue
			}
			select {
			case h.fanout <- f:
			case <-ctx.Done():
				return
			}
		}
	}
}
