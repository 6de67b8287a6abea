package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGraylogHandler returns a handler shipping JSON records to a Graylog GELF UDP
// input. The returned closer releases the connection.
func NewGraylogHandler(address, level string) (slog.Handler, io.Closer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to graylog at %s: %w", address, err)
	}
	w.Facility = "backplot"
	return slog.NewJSONHandler(w, handlerOptions(parseLevel(level))), w, nil
}
