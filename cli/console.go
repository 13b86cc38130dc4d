// Package cli is the interactive console: the command loop, the consent
// prompt and the per-session chat input. Any other UI could replace it; the
// node only sees the injected Consent/NewInput/OnMessage callbacks.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"go.uber.org/zap"
	"golang.org/x/term"

	"p2p-chat/core"
	pnet "p2p-chat/net"
)

const consentTimeout = 60 * time.Second

// Console drives one peer from a terminal.
type Console struct {
	username string
	registry *pnet.RegistryClient
	node     *pnet.Node
	rl       *readline.Instance
	log      *zap.SugaredLogger

	mu        sync.Mutex
	inputs    map[string]*ChatInput
	pending   map[string]chan bool
	currentTo string
}

func NewConsole(username string, registry *pnet.RegistryClient, log *zap.SugaredLogger) (*Console, error) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}
	c := &Console{
		username: username,
		registry: registry,
		log:      log,
		inputs:   make(map[string]*ChatInput),
		pending:  make(map[string]chan bool),
	}

	completer := readline.NewPrefixCompleter(
		readline.PcItem("/help"),
		readline.PcItem("/list"),
		readline.PcItem("/connect"),
		readline.PcItem("/to", readline.PcItemDynamic(func(string) []string { return c.sessionNames() })),
		readline.PcItem("/accept"),
		readline.PcItem("/reject"),
		readline.PcItem("/disconnect", readline.PcItemDynamic(func(string) []string { return c.sessionNames() })),
		readline.PcItem("/info"),
		readline.PcItem("/exit"),
		readline.PcItem("@", readline.PcItemDynamic(func(string) []string { return c.sessionNames() })),
	)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.makePrompt(),
		HistoryFile:     "/tmp/p2p_chat_history.log",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "/exit",
	})
	if err != nil {
		return nil, fmt.Errorf("readline init: %w", err)
	}
	c.rl = rl
	return c, nil
}

// SetNode attaches the node after construction; the node's config points
// back at this console's callbacks.
func (c *Console) SetNode(node *pnet.Node) {
	c.node = node
}

// Close releases the terminal; a blocked Run returns.
func (c *Console) Close() error {
	return c.rl.Close()
}

func (c *Console) makePrompt() string {
	if to := c.recipient(); to != "" {
		return color.GreenString("%s@%s> ", c.username, to)
	}
	return color.GreenString("%s> ", c.username)
}

// recipient and setRecipient guard currentTo: the session-closed callback
// resets it from another goroutine.
func (c *Console) recipient() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTo
}

func (c *Console) setRecipient(user string) {
	c.mu.Lock()
	c.currentTo = user
	c.mu.Unlock()
}

func (c *Console) sessionNames() []string {
	if c.node == nil {
		return nil
	}
	return c.node.Sessions()
}

// NewInput builds the chat input for a new session. One per remote username.
func (c *Console) NewInput(remote string) pnet.InputSource {
	ci := NewChatInput()
	c.mu.Lock()
	c.inputs[remote] = ci
	c.mu.Unlock()
	return ci
}

// OnMessage prints a remote text message.
func (c *Console) OnMessage(msg core.ChatMessage) {
	fmt.Printf("%s %s\n", color.CyanString("[%s]>", msg.From), msg.Content)
}

// OnSessionClosed drops the session's input and resets the recipient.
func (c *Console) OnSessionClosed(remote string) {
	c.mu.Lock()
	delete(c.inputs, remote)
	if c.currentTo == remote {
		c.currentTo = ""
	}
	c.mu.Unlock()
	color.Red("Session with %s ended", remote)
	c.rl.SetPrompt(c.makePrompt())
}

// Consent surfaces an incoming connect request and blocks until the user
// answers with /accept or /reject, or the timeout rejects it.
func (c *Console) Consent(req core.HandshakeMessage) bool {
	ch := make(chan bool, 1)
	c.mu.Lock()
	c.pending[req.Username] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.Username)
		c.mu.Unlock()
	}()

	color.Yellow("Connection request from %s. Type /accept %s or /reject %s", req.Username, req.Username, req.Username)

	select {
	case accepted := <-ch:
		return accepted
	case <-time.After(consentTimeout):
		color.Red("Request from %s timed out", req.Username)
		return false
	}
}

func (c *Console) resolveConsent(username string, accepted bool) {
	c.mu.Lock()
	ch, ok := c.pending[username]
	c.mu.Unlock()
	if !ok {
		color.Red("No pending request from %s", username)
		return
	}
	ch <- accepted
	if accepted {
		color.Green("Accepted connection from %s", username)
	} else {
		color.Red("Rejected connection from %s", username)
	}
}

func printHelp() {
	color.Magenta("Available commands:")
	fmt.Println("  /help               - Show this help")
	fmt.Println("  /list               - List online peers")
	fmt.Println("  /connect <user>     - Connect to a peer")
	fmt.Println("  /to <user>          - Select recipient for plain messages")
	fmt.Println("  /accept <user>      - Accept a pending connection request")
	fmt.Println("  /reject <user>      - Reject a pending connection request")
	fmt.Println("  /disconnect [user]  - End a chat session")
	fmt.Println("  /info               - Show my connection info")
	fmt.Println("  @user <msg>         - Send a message to a connected peer")
	fmt.Println("  /exit               - Quit")
}

// Run is the console loop. It returns when the user exits or the terminal
// closes.
func (c *Console) Run() {
	printHelp()
	for {
		line, err := c.rl.Readline()
		if err != nil {
			// ^C or ^D, or Close() during shutdown
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		switch parts[0] {
		case "/help":
			printHelp()

		case "/exit":
			color.Red("Bye!")
			return

		case "/list":
			c.listPeers()

		case "/connect":
			if len(parts) != 2 {
				color.Red("Usage: /connect <user>")
				break
			}
			c.connect(parts[1])

		case "/to":
			if len(parts) != 2 {
				color.Red("Usage: /to <user>")
				break
			}
			if !c.node.HasSession(parts[1]) {
				color.Red("No active session with %s (use /connect)", parts[1])
				break
			}
			c.setRecipient(parts[1])
			color.Green("Recipient: %s", parts[1])

		case "/accept":
			if len(parts) != 2 {
				color.Red("Usage: /accept <user>")
				break
			}
			c.resolveConsent(parts[1], true)

		case "/reject":
			if len(parts) != 2 {
				color.Red("Usage: /reject <user>")
				break
			}
			c.resolveConsent(parts[1], false)

		case "/disconnect":
			target := c.recipient()
			if len(parts) == 2 {
				target = parts[1]
			}
			if target == "" {
				color.Red("Usage: /disconnect <user>")
				break
			}
			c.disconnect(target)

		case "/info":
			c.printInfo()

		default:
			if strings.HasPrefix(parts[0], "@") && len(parts) > 1 {
				user := strings.TrimPrefix(parts[0], "@")
				c.sendTo(user, strings.Join(parts[1:], " "))
			} else if !strings.HasPrefix(parts[0], "/") {
				if to := c.recipient(); to == "" {
					color.Red("Pick a recipient first: @user <msg> or /to <user>")
				} else {
					c.sendTo(to, line)
				}
			} else {
				color.Red("Unknown command. Use /help.")
			}
		}
		c.rl.SetPrompt(c.makePrompt())
	}
}

func (c *Console) listPeers() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	peers, err := c.registry.Peers(ctx)
	if err != nil {
		color.Red("Failed to list peers: %v", err)
		return
	}
	color.Cyan("Online peers:")
	count := 0
	for _, p := range peers {
		if p.Username == c.username {
			continue
		}
		count++
		fmt.Printf(" - %s (%s)\n", p.Username, p.Addr())
	}
	if count == 0 {
		fmt.Println(" (no other peers online)")
	}
}

func (c *Console) connect(user string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*consentTimeout)
	defer cancel()
	err := c.node.Dial(ctx, user)
	switch {
	case err == nil:
		color.Green("Connected to %s", user)
		c.setRecipient(user)
	case errors.Is(err, core.ErrNotFound):
		color.Red("Peer %s is not registered", user)
	case errors.Is(err, core.ErrAlreadyConnected):
		color.Yellow("Already connected to %s", user)
	case errors.Is(err, pnet.ErrRejected):
		color.Red("%s rejected the connection", user)
	default:
		color.Red("Could not connect to %s: %v", user, err)
	}
}

func (c *Console) disconnect(user string) {
	if !c.node.HasSession(user) {
		color.Red("No active session with %s", user)
		return
	}
	// EndSession lets the outbound flow send the disconnect message, then
	// waits for the socket to be released.
	c.node.EndSession(user)
	color.Green("Disconnected from %s", user)
}

func (c *Console) sendTo(user, text string) {
	c.mu.Lock()
	ci, ok := c.inputs[user]
	c.mu.Unlock()
	if !ok {
		color.Red("No active session with %s (use /connect)", user)
		return
	}
	ci.Push(text)
}

func (c *Console) printInfo() {
	color.Cyan("My information:")
	fmt.Printf("  Username: %s\n", c.username)
	fmt.Printf("  Address:  %s\n", c.node.Addr())
	sessions := c.node.Sessions()
	fmt.Printf("  Active sessions: %d\n", len(sessions))
	for _, s := range sessions {
		fmt.Printf("   - %s\n", s)
	}
}

// NotifyPresence prints registry presence events as console notices.
func (c *Console) NotifyPresence(ev core.PresenceEvent) {
	if ev.Username == c.username {
		return
	}
	if ev.Event == core.EventOnline {
		color.Green("* %s is now online", ev.Username)
	} else {
		color.Yellow("* %s went offline", ev.Username)
	}
}
