package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/api"
	"github.com/spec-kit/support-chat/internal/config"
	"github.com/spec-kit/support-chat/internal/domain"
	"github.com/spec-kit/support-chat/internal/drafts"
	"github.com/spec-kit/support-chat/internal/engine"
	"github.com/spec-kit/support-chat/internal/events"
	"github.com/spec-kit/support-chat/internal/observability"
)

// console is a line-oriented surface over the sync engine, mostly for
// poking at a running backend. The engine does the real work; this file
// only translates commands and prints events.
type console struct {
	engine *engine.Engine
	out    *bufio.Writer
}

func main() {
	email := flag.String("email", "", "log in with this email instead of CHAT_API_TOKEN")
	password := flag.String("password", "", "password for -email")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fail("config", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		fail("logger", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *email != "" {
		token, err := api.Login(ctx, cfg.API.BaseURL, *email, *password, cfg.API.Timeout())
		if err != nil {
			fail("login", err)
		}
		cfg.API.Token = token
	}
	if cfg.API.Token == "" {
		fail("auth", fmt.Errorf("set CHAT_API_TOKEN or pass -email/-password"))
	}

	backend, err := api.New(cfg.API, logger)
	if err != nil {
		fail("api", err)
	}

	var draftKV drafts.KV
	if cfg.Drafts.Backend == "redis" {
		draftKV = drafts.NewRedisKV(cfg.Redis, cfg.Drafts.Retention(), logger)
	} else {
		draftKV = drafts.NewMemoryKV()
	}

	eng := engine.New(cfg, backend, backend.Role(), draftKV, logger)
	c := &console{engine: eng, out: bufio.NewWriter(os.Stdout)}
	c.subscribe()

	eng.Start(ctx)
	defer eng.Stop(context.Background())

	identity, err := api.ParseIdentity(cfg.API.Token)
	if err == nil {
		c.printf("signed in as %s (%s)\n", identity.Name, identity.Role)
	}
	c.printf("commands: list, open <id>, older, send <text>, note <text>, attach <path>, draft, new <subject> | <message>, status <value>, priority <value>, filter [status=..] [priority=..] [q=..], hide, show, close, quit\n")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		c.printf("> ")
		c.out.Flush()
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")
		if cmd == "quit" || cmd == "exit" {
			return
		}
		c.dispatch(ctx, cmd, strings.TrimSpace(rest))
		c.out.Flush()
	}
}

func (c *console) dispatch(ctx context.Context, cmd, rest string) {
	var err error
	switch cmd {
	case "list":
		c.list()
	case "open":
		err = c.open(ctx, rest)
	case "older":
		err = c.engine.Messages().LoadOlder(ctx)
	case "send":
		err = c.send(ctx, rest, false)
	case "note":
		err = c.send(ctx, rest, true)
	case "attach":
		err = c.attach(ctx, rest)
	case "draft":
		c.printf("draft: %q\n", c.engine.Drafts().Get(ctx, c.activeID()))
	case "new":
		err = c.create(ctx, rest)
	case "status":
		err = c.engine.Store().SetStatus(ctx, c.activeID(), domain.TicketStatus(rest))
	case "priority":
		err = c.engine.Store().SetPriority(ctx, c.activeID(), domain.TicketPriority(rest))
	case "filter":
		c.filter(rest)
	case "hide":
		c.engine.SetVisible(false)
	case "show":
		c.engine.SetVisible(true)
	case "close":
		c.engine.CloseTicket(ctx)
		c.printf("ticket closed, list polling continues\n")
	default:
		c.printf("unknown command %q\n", cmd)
	}
	if err != nil {
		c.printf("error: %v\n", err)
	}
}

func (c *console) list() {
	for _, t := range c.engine.Store().All() {
		marker := " "
		if t.UnreadCount > 0 {
			marker = "*"
		}
		c.printf("%s [%s/%s] %s  %s (%d unread)\n", marker, t.Status, t.Priority, t.ID, t.Subject, t.UnreadCount)
	}
	total, tickets := c.engine.Store().UnreadSummary()
	c.printf("unread: %d across %d tickets\n", total, tickets)
}

func (c *console) open(ctx context.Context, id string) error {
	ticket, err := c.engine.SelectTicket(ctx, id)
	if err != nil {
		return err
	}
	c.printf("opened %s (%s)\n", ticket.Subject, ticket.Status)
	for _, msg := range c.engine.Messages().Messages() {
		c.printMessage(msg)
	}
	if draft := c.engine.Drafts().Get(ctx, id); draft != "" {
		c.printf("restored draft: %q\n", draft)
	}
	return nil
}

func (c *console) send(ctx context.Context, text string, internal bool) error {
	ticketID := c.activeID()
	if ticketID == "" {
		return fmt.Errorf("no ticket open")
	}
	c.engine.Drafts().Set(ticketID, text)
	_, err := c.engine.Composer().Send(ctx, ticketID, text, internal)
	return err
}

func (c *console) attach(ctx context.Context, path string) error {
	ticketID := c.activeID()
	if ticketID == "" {
		return fmt.Errorf("no ticket open")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	staged, err := c.engine.Composer().Stager().Stage(ctx, ticketID, filepath.Base(path), f, info.Size())
	if err != nil {
		return err
	}
	c.printf("staged %s (%d bytes)\n", staged.Filename, staged.Size)
	return nil
}

func (c *console) create(ctx context.Context, rest string) error {
	subject, message, ok := strings.Cut(rest, "|")
	if !ok {
		return fmt.Errorf("usage: new <subject> | <message>")
	}
	ticket, err := c.engine.CreateTicket(ctx, strings.TrimSpace(subject), "general", "", strings.TrimSpace(message))
	if err != nil {
		return err
	}
	c.printf("created and opened %s\n", ticket.ID)
	return nil
}

func (c *console) filter(rest string) {
	var f api.ListFilter
	for _, part := range strings.Fields(rest) {
		key, value, _ := strings.Cut(part, "=")
		switch key {
		case "status":
			f.Status = domain.TicketStatus(value)
		case "priority":
			f.Priority = domain.TicketPriority(value)
		case "category":
			f.Category = value
		case "q":
			f.Search = value
		}
	}
	c.engine.List().SetFilter(f)
	c.printf("filter applied, refreshing\n")
}

func (c *console) activeID() string {
	if ticket, ok := c.engine.Store().Active(); ok {
		return ticket.ID
	}
	return ""
}

func (c *console) subscribe() {
	bus := c.engine.Events()
	bus.Subscribe(events.EventMessageReceived, func(_ context.Context, e events.Event) error {
		if p, ok := e.Payload.(events.MessageReceivedPayload); ok {
			for _, msg := range p.Messages {
				c.printMessage(msg)
			}
			c.out.Flush()
		}
		return nil
	})
	bus.Subscribe(events.EventTypingChanged, func(_ context.Context, e events.Event) error {
		if p, ok := e.Payload.(events.TypingChangedPayload); ok {
			if p.IsTyping {
				c.printf("%s is typing...\n", p.UserName)
			}
			c.out.Flush()
		}
		return nil
	})
	bus.Subscribe(events.EventUnreadChanged, func(_ context.Context, e events.Event) error {
		if p, ok := e.Payload.(events.UnreadChangedPayload); ok {
			c.printf("unread: %s\n", badge(p.TotalUnread))
			c.out.Flush()
		}
		return nil
	})
	bus.Subscribe(events.EventSyncError, func(_ context.Context, e events.Event) error {
		if p, ok := e.Payload.(events.SyncErrorPayload); ok {
			c.printf("sync error (%s): %s\n", p.Op, p.Error)
			c.out.Flush()
		}
		return nil
	})
}

func (c *console) printMessage(msg domain.Message) {
	tag := ""
	if msg.IsInternal {
		tag = " [internal]"
	}
	c.printf("[%s] %s%s: %s\n", msg.CreatedAt.Local().Format("15:04"), msg.SenderRole, tag, msg.Body)
	for _, a := range msg.Attachments {
		c.printf("    attachment: %s (%d bytes)\n", a.Filename, a.Size)
	}
}

func badge(total int) string {
	if total > 99 {
		return "99+"
	}
	return strconv.Itoa(total)
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func fail(stage string, err error) {
	logger, _ := zap.NewProduction()
	if logger != nil {
		logger.Fatal(stage+" failed", zap.Error(err))
	}
	os.Exit(1)
}
