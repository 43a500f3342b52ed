package progress

import (
	"encoding/json"
	"fmt"

	"github.com/labstack/echo/v4"
)

// EchoSink writes events as SSE frames (`data: <json>\n\n`) to an echo
// response, flushing after every write so proxies forward each event as
// it is issued rather than buffering.
func EchoSink(c echo.Context) func(Event) {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(200)

	return func(evt Event) {
		body, err := json.Marshal(evt)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", body)
		w.Flush()
	}
}
