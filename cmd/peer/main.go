package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"p2p-chat/cli"
	"p2p-chat/config"
	pnet "p2p-chat/net"
)

func main() {
	cfg := config.Load()
	registryURL := flag.String("registry", cfg.RegistryURL, "registry base URL")
	listenAddr := flag.String("listen", cfg.ListenAddr, "TCP listen address (port 0 for ephemeral)")
	username := flag.String("username", "", "username (prompted when empty)")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	name := strings.TrimSpace(*username)
	for name == "" {
		fmt.Print("Enter your username: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		name = strings.TrimSpace(line)
	}

	registryClient := pnet.NewRegistryClient(*registryURL)

	console, err := cli.NewConsole(name, registryClient, sugar)
	if err != nil {
		sugar.Fatalw("console init", "error", err)
	}
	defer console.Close()

	node, err := pnet.NewNode(pnet.Config{
		Username:          name,
		ListenAddr:        *listenAddr,
		Registry:          registryClient,
		Consent:           console.Consent,
		NewInput:          console.NewInput,
		OnMessage:         console.OnMessage,
		OnSessionClosed:   console.OnSessionClosed,
		HeartbeatInterval: cfg.HeartbeatInterval,
		DialTimeout:       cfg.DialTimeout,
		Log:               sugar,
	})
	if err != nil {
		sugar.Fatalw("node init", "error", err)
	}
	console.SetNode(node)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	err = node.Start(startCtx)
	cancelStart()
	if err != nil {
		// Without a registration nobody can find us; bail out.
		sugar.Fatalw("could not start node", "error", err)
	}
	fmt.Printf("Registered as %s at %s (registry %s)\n", name, node.Addr(), *registryURL)

	// Presence notifications are advisory; losing the feed is not an error.
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	go func() {
		if err := registryClient.WatchPresence(watchCtx, console.NotifyPresence); err != nil {
			sugar.Debugw("presence feed unavailable", "error", err)
		}
	}()

	console.Run()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := node.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("shutdown", "error", err)
	}
}
