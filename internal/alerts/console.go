package alerts

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// ConsoleSender prints alerts instead of delivering them. It is used when
// no notification credential is configured.
type ConsoleSender struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleSender creates a sender writing to out
func NewConsoleSender(out io.Writer) *ConsoleSender {
	return &ConsoleSender{out: out}
}

// Deliver prints the message
func (s *ConsoleSender) Deliver(ctx context.Context, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := fmt.Fprintf(s.out, "\n[ALERT SIMULATION] >>>\n%s\n\n", message)
	return err
}
