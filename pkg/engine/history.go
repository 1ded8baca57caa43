package engine

import (
	"github.com/buhlergroup/chatengine/pkg/storage"
	"github.com/buhlergroup/chatengine/pkg/upstream"
)

// HistoryFromMessages converts persisted thread messages into the input
// items of a new stream request, oldest first. Each assistant turn
// replays its tool call and output pairs before its text so the backend
// sees the same ordering it originally produced. Reasoning content is
// not replayed; it belongs to the turn that produced it.
func HistoryFromMessages(msgs []*storage.Message) []upstream.InputItem {
	var items []upstream.InputItem
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		for _, call := range msg.ToolCalls {
			items = append(items,
				upstream.FunctionCallItem(call.CallID, call.Name, call.Arguments),
				upstream.FunctionCallOutputItem(call.CallID, call.Output),
			)
		}
		if msg.Content != "" {
			items = append(items, upstream.TextMessage(msg.Role, msg.Content))
		}
	}
	return items
}
