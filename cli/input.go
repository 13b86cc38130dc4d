package cli

import (
	"io"
	"sync"
)

// ChatInput is the pull-based input source a session's outbound flow
// consumes. The console pushes lines in; the session pulls them out. Closing
// it (user end-session command, or session teardown) makes Next return
// io.EOF, which the session turns into a disconnect message.
type ChatInput struct {
	lines chan string
	done  chan struct{}
	once  sync.Once
}

func NewChatInput() *ChatInput {
	return &ChatInput{
		lines: make(chan string, 16),
		done:  make(chan struct{}),
	}
}

// Next blocks until a line is available or the input is closed.
func (ci *ChatInput) Next() (string, error) {
	select {
	case <-ci.done:
		return "", io.EOF
	case line := <-ci.lines:
		return line, nil
	}
}

// Push hands a line to the session. Dropped silently if the input is closed.
func (ci *ChatInput) Push(line string) {
	select {
	case ci.lines <- line:
	case <-ci.done:
	}
}

// Close ends the input; pending and future Next calls return io.EOF.
func (ci *ChatInput) Close() error {
	ci.once.Do(func() { close(ci.done) })
	return nil
}
