package main

import (
	"bufio"
	"chat-sync/auth"
	"chat-sync/domain"
	"chat-sync/infrastructure/rest"
	"chat-sync/infrastructure/websocket"
	"chat-sync/internal"
	"chat-sync/repositories"
	"chat-sync/runtime"
	"chat-sync/runtime/workers"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK       = 0
	exitConfig   = 2
	exitIdentity = 3
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
	}
	os.Exit(code)
}

// run wires the session and drives it from stdin.
// Every defer runs before main exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Identity (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitConfig, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Debug("Closing BadgerDB...")
		_ = db.Close()
	}()

	identity, err := repositories.NewIdentityRepository(db).GetIdentity()
	if err != nil {
		return exitIdentity, fmt.Errorf("%w (run the identity tool to sign in)", err)
	}
	if _, err := auth.ValidateIdentity(identity, time.Now()); err != nil {
		return exitIdentity, err
	}

	// 3. Collaborators & Orchestration
	session := websocket.NewSession(log, identity, websocket.Settings{
		URL:               config.WebsocketURL,
		ReconnectDelay:    config.ReconnectDelay,
		HeartbeatInterval: config.HeartbeatInterval,
		HandshakeTimeout:  config.HandshakeTimeout,
		BufferSize:        config.InboundBufferSize,
	})
	api := rest.NewClient(log, config.APIURL, identity, &http.Client{Timeout: config.HTTPTimeout})
	orchestrator := runtime.NewOrchestrator(log, identity,
		workers.NewSupervisor(log, config.RestartInterval), runtime.NewRegistry(),
		session, api, api, runtime.Settings{
			BufferSize:           config.InboundBufferSize,
			SinkTimeout:          config.SinkTimeout,
			TypingTimeout:        config.TypingTimeout,
			TypingDebounce:       config.TypingDebounce,
			MaxContentLength:     config.MaxContentLength,
			MetricInterval:       config.MetricInterval,
			LowCapacityThreshold: config.LowCapacityThreshold,
		})
	terminal := NewTerminal(os.Stdout, orchestrator)
	orchestrator.Add(terminal)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.DebugPort > 0 {
		internal.StartDebugServer(ctx, log, config.DebugPort, internal.NewDebugRouter(orchestrator, db))
	}

	// 5. Start the session
	sessionCtx, cancelSession := context.WithCancel(ctx)
	defer cancelSession()
	done := make(chan error, 1)
	go func() { done <- orchestrator.Start(sessionCtx) }()

	// 6. Drive it from stdin until EOF, /quit or a signal
	prompt := &Prompt{orchestrator: orchestrator, terminal: terminal}
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Println("Commands: /users, /open <id>, /read, /quit. Anything else is sent to the open conversation.")
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok || !prompt.Handle(ctx, line) {
				break loop
			}
		}
	}

	// 7. Final Cleanup
	cancelSession()
	orchestrator.Stop()
	if err := <-done; err != nil {
		return 1, err
	}
	log.Info("Program stopped cleanly")
	return exitOK, nil
}

// Prompt interprets one line typed by the user.
type Prompt struct {
	orchestrator *runtime.Orchestrator
	terminal     *Terminal
	partner      domain.ParticipantID
	open         bool
}

// Handle returns false when the user asked to quit.
func (p *Prompt) Handle(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	switch fields[0] {
	case "/quit":
		return false
	case "/users":
		partners, err := p.orchestrator.Partners(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot list users: %v\n", err)
			return true
		}
		PrintPartners(os.Stdout, partners, p.orchestrator.IsTyping)
	case "/open":
		if len(fields) != 2 {
			fmt.Fprintln(os.Stderr, "usage: /open <id>")
			return true
		}
		id, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "not a participant id: %s\n", fields[1])
			return true
		}
		p.partner, p.open = domain.ParticipantID(id), true
		if _, err := p.orchestrator.LoadHistory(ctx, p.partner); err != nil {
			fmt.Fprintf(os.Stderr, "history unavailable: %v\n", err)
		}
		p.orchestrator.MarkRead(p.partner)
		p.terminal.Show(p.partner)
	case "/read":
		if p.open {
			p.orchestrator.MarkRead(p.partner)
		}
	default:
		if !p.open {
			fmt.Fprintln(os.Stderr, "open a conversation first: /open <id>")
			return true
		}
		if _, err := p.orchestrator.Send(ctx, p.partner, line); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}
	return true
}
