package cli

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// The session-closed callback rewrites the recipient from another goroutine
// while the command loop reads it; both sides must go through the accessors.
func TestConsole_RecipientAccessIsGoroutineSafe(t *testing.T) {
	c := &Console{
		username: "alice",
		inputs:   make(map[string]*ChatInput),
		pending:  make(map[string]chan bool),
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.setRecipient(fmt.Sprintf("peer%d", i))
			_ = c.recipient()
			_ = c.makePrompt()
		}(i)
	}
	wg.Wait()

	got := c.recipient()
	require.True(t, strings.HasPrefix(got, "peer"))
	require.Contains(t, c.makePrompt(), "alice@"+got)
}

func TestConsole_PromptReflectsRecipient(t *testing.T) {
	c := &Console{
		username: "alice",
		inputs:   make(map[string]*ChatInput),
		pending:  make(map[string]chan bool),
	}
	require.Contains(t, c.makePrompt(), "alice> ")

	c.setRecipient("bob")
	require.Contains(t, c.makePrompt(), "alice@bob> ")

	c.setRecipient("")
	require.Contains(t, c.makePrompt(), "alice> ")
}
