package capability

import (
	"context"
	"fmt"
	"sync"

	"github.com/atotto/clipboard"
)

// ClipboardBackend is the host-side clipboard a Service writes to.
type ClipboardBackend interface {
	WriteText(text string) error
	ReadText() (string, error)
}

// SystemClipboard uses the operating system clipboard.
type SystemClipboard struct{}

// SystemClipboardAvailable reports whether the OS clipboard can be used.
func SystemClipboardAvailable() bool {
	return !clipboard.Unsupported
}

func (SystemClipboard) WriteText(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}

func (SystemClipboard) ReadText() (string, error) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", fmt.Errorf("failed to read clipboard: %w", err)
	}
	return text, nil
}

// MemoryClipboard is an in-process clipboard for headless hosts and tests.
type MemoryClipboard struct {
	mu   sync.Mutex
	text string
}

func (m *MemoryClipboard) WriteText(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	return nil
}

func (m *MemoryClipboard) ReadText() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, nil
}

type serviceClipboard struct {
	s        *Service
	pluginID string
}

func (c serviceClipboard) Copy(_ context.Context, text string) error {
	return c.s.clipboard.WriteText(text)
}

func (c serviceClipboard) Paste(_ context.Context, text string) error {
	if err := c.s.clipboard.WriteText(text); err != nil {
		return err
	}
	c.s.publish(c.pluginID, EventPaste, textArgs{Text: text})
	return nil
}

func (c serviceClipboard) ReadText(context.Context) (string, error) {
	return c.s.clipboard.ReadText()
}

func (c serviceClipboard) Clear(context.Context) error {
	return c.s.clipboard.WriteText("")
}
