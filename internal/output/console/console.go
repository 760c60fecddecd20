package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/speedwagon-io/ambilight/internal/model"
	"github.com/speedwagon-io/ambilight/internal/output"
)

type ConsoleOutput struct {
	w io.Writer
}

func NewConsole() output.Output { return NewConsoleWriter(os.Stdout) }

func NewConsoleWriter(w io.Writer) output.Output { return &ConsoleOutput{w: w} }

func (c *ConsoleOutput) Name() string { return "console" }

func (c *ConsoleOutput) Publish(r model.LuxReading) error {
	_, err := fmt.Fprintf(c.w, "%s lux=%.2f\n", r.Time().Format(time.RFC3339), r.Lux)
	return err
}

func (c *ConsoleOutput) Close() error { return nil }
