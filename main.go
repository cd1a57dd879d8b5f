// Program inventoryview connects to a text game session, scans a character's
// inventory, vault, deed register, home and trader storage on request, and
// keeps the resulting item trees on disk for browsing and search.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"inventoryview/commands"
	"inventoryview/config"
	"inventoryview/inventory"
	"inventoryview/notify"
	"inventoryview/persist"
	"inventoryview/scan"
	"inventoryview/session"
	"inventoryview/ui"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

var Version = "dev"

// Purpose: Report whether stdout is a TTY for UI gating.
// Key aspects: Uses term.IsTerminal on stdout fd.
// Upstream: main presenter selection.
// Downstream: term.IsTerminal.
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Purpose: Load configuration from env/default locations.
// Key aspects: Tries the env override first, then the default file.
// Upstream: main startup.
// Downstream: config.Load and errors.Is(os.ErrNotExist).
func loadConfig() (*config.Config, error) {
	candidates := make([]string, 0, 2)
	if envPath := strings.TrimSpace(os.Getenv(config.EnvPath)); envPath != "" {
		candidates = append(candidates, envPath)
	}
	candidates = append(candidates, config.DefaultPath)

	var lastErr error
	for _, path := range candidates {
		cfg, err := config.Load(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("unable to load config; tried %s (last error: %v)", strings.Join(candidates, ", "), lastErr)
}

// consoleWriter serializes game text, local echoes and plain-text views on
// stdout, and drops game text while a full-screen view is open.
type consoleWriter struct {
	mu      sync.Mutex
	w       io.Writer
	viewing atomic.Bool
}

func (c *consoleWriter) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Write(p)
}

func (c *consoleWriter) GameLine(raw string) {
	if c.viewing.Load() {
		return
	}
	c.mu.Lock()
	fmt.Fprintln(c.w, raw)
	c.mu.Unlock()
}

// screenPresenter hands the terminal to the browser for the duration of Show.
type screenPresenter struct {
	browser *ui.Browser
	console *consoleWriter
	logs    *logFanout
}

func (p *screenPresenter) Show(store *inventory.Store) error {
	p.console.viewing.Store(true)
	p.logs.MuteConsole(true)
	defer func() {
		p.logs.MuteConsole(false)
		p.console.viewing.Store(false)
	}()
	return p.browser.Show(store)
}

// Purpose: Program entrypoint; wires config, storage, session, scanner and console.
// Key aspects: Runs offline when no session host is configured; Ctrl+C or EOF on stdin exits.
// Upstream: OS process start.
// Downstream: persist, session, scan, commands, notify, ui.
func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	fanout, err := setupLogging(cfg.Logging, os.Stderr)
	if err != nil {
		log.Printf("Logging: file logging disabled: %v", err)
	}
	log.SetFlags(0)
	log.SetOutput(fanout)
	defer fanout.Close()

	log.Printf("InventoryView v%s starting (config %s)", Version, cfg.LoadedFrom)
	cfg.Print()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := persist.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Error opening storage: %v", err)
	}
	codec := persist.NewCodec(backend)
	defer codec.Close()

	store := inventory.NewStore()
	start := time.Now()
	if err := codec.Load(store); err != nil {
		log.Printf("Persist: initial load failed: %v", err)
	} else {
		log.Printf("Persist: loaded %s snapshots for %s characters in %s",
			humanize.Comma(int64(store.Len())), humanize.Comma(int64(len(store.Characters()))), time.Since(start).Round(time.Millisecond))
	}

	var notifier scan.Notifier
	if m := cfg.Notify.MQTT; m.Enabled {
		publisher := notify.NewMQTT(notify.Options{
			Broker:   m.Broker,
			Port:     m.Port,
			Topic:    m.Topic,
			ClientID: m.ClientID,
			Username: m.Username,
			Password: m.Password,
			QoS:      byte(m.QoS),
			Retain:   m.Retain,
		})
		if err := publisher.Connect(); err != nil {
			log.Printf("Notify: %v (summaries dropped until the broker is reachable)", err)
		}
		defer publisher.Stop()
		notifier = publisher
	}

	console := &consoleWriter{w: os.Stdout}
	s := cfg.Session
	client := session.NewClient(session.Options{
		Host:          s.Host,
		Port:          s.Port,
		Transport:     s.Transport,
		CharacterName: s.CharacterName,
		Guild:         s.Guild,
		Login:         s.Login,
		LoginDelay:    time.Duration(s.LoginDelayMS) * time.Millisecond,
		DialTimeout:   time.Duration(s.DialTimeoutSeconds) * time.Second,
		ReadTimeout:   time.Duration(s.ReadTimeoutSeconds) * time.Second,
		Reconnect:     !s.DisableReconnect,
		Echo:          console,
	}, nil)
	defer client.Stop()

	machine := scan.NewMachine(scan.Options{
		Store:    store,
		Host:     client,
		Saver:    codec,
		Notifier: notifier,
	})
	client.SetHandler(func(raw string) {
		console.GameLine(raw)
		client.Send(machine.Consume(raw)...)
	})

	var presenter commands.Presenter = ui.NewTextPresenter(console)
	if cfg.UI.Mode == "tview" {
		if isStdoutTTY() {
			presenter = &screenPresenter{browser: ui.NewBrowser(cfg.UI.EnableMouse), console: console, logs: fanout}
		} else {
			log.Printf("UI: tview requires an interactive console; using text output")
		}
	}
	processor := commands.NewProcessor(machine, client, codec, client, presenter)

	if s.Host != "" {
		if err := client.Connect(ctx); err != nil {
			log.Printf("Session: %v; running offline", err)
		}
	} else {
		log.Printf("Session: no host configured; running offline")
	}

	go runConsole(ctx, cancel, os.Stdin, processor, client)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	log.Println("Type /iv help for InventoryView commands. Press Ctrl+C to stop.")

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}
	log.Println("Shutting down...")
	if machine.Phase() != scan.Idle {
		log.Printf("Scan: abandoning scan in phase %s", machine.Phase())
		machine.Abort()
	}
}

// Purpose: Read console lines and route them to mini-commands or the game.
// Key aspects: Stops on EOF or context cancellation.
// Upstream: main.
// Downstream: commands.Processor.ProcessInput and session.Client.SendText.
func runConsole(ctx context.Context, cancel context.CancelFunc, in io.Reader, processor *commands.Processor, client *session.Client) {
	defer cancel()
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		forward, handled := processor.ProcessInput(scanner.Text())
		if handled || forward == "" {
			continue
		}
		client.SendText(forward)
	}
	if err := scanner.Err(); err != nil {
		log.Printf("Console: read error: %v", err)
	}
}
