package api

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/undercity/undercity/pkg/events"
)

// writeSSEEvent writes one events.Event as a Server-Sent Events frame:
// "event: <kind>\ndata: <json>\n\n".
func writeSSEEvent(c *gin.Context, ev events.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	c.Writer.WriteString("event: " + string(ev.Kind) + "\n")
	c.Writer.WriteString("data: ")
	c.Writer.Write(payload)
	c.Writer.WriteString("\n\n")
}
