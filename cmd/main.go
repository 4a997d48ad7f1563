package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"

	"tutor-chatbot/internal/archive"
	"tutor-chatbot/internal/auth"
	"tutor-chatbot/internal/chatlog"
	"tutor-chatbot/internal/domain"
	"tutor-chatbot/internal/integrations/backend"
	"tutor-chatbot/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	_ = godotenv.Load()
	apiURL := mustEnv("TUTOR_API_URL")
	sessionCookie := os.Getenv("TUTOR_SESSION_COOKIE")
	archiveTable := os.Getenv("ARCHIVE_TABLE")
	maxQuestionLen := envInt("MAX_QUESTION_LENGTH", 5000)
	idleSeconds := envInt("STREAM_IDLE_TIMEOUT_SECONDS", 90)

	// ---- Clients ----
	backendOpts := []backend.Option{}
	if sessionCookie != "" {
		backendOpts = append(backendOpts, backend.WithSessionCookie(sessionCookie))
	}
	api, err := backend.NewClient(apiURL, backendOpts...)
	if err != nil {
		slog.Error("failed to create backend client", "err", err)
		os.Exit(1)
	}

	session, err := auth.NewSession(api)
	if err != nil {
		slog.Error("failed to create auth session", "err", err)
		os.Exit(1)
	}
	user, err := session.Hydrate(ctx)
	if err != nil {
		slog.Error("not signed in; set TUTOR_SESSION_COOKIE to a valid session", "err", err)
		os.Exit(1)
	}

	store := chatlog.New()

	opts := []usecase.Option{
		usecase.WithMaxQuestionLength(maxQuestionLen),
		usecase.WithIdleTimeout(time.Duration(idleSeconds) * time.Second),
		usecase.WithAuthRedirect(func() {
			fmt.Fprintln(os.Stderr, "session expired, please sign in again")
		}),
	}

	if archiveTable != "" {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			slog.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
		arc, err := archive.New(awsdynamodb.NewFromConfig(cfg), archiveTable)
		if err != nil {
			slog.Error("failed to create archive client", "err", err)
			os.Exit(1)
		}
		opts = append(opts, usecase.WithArchiver(arc))
	}

	printer := &deltaPrinter{out: os.Stdout}
	opts = append(opts, usecase.WithRenderFunc(printer.render))

	svc, err := usecase.NewStreamService(api, store, opts...)
	if err != nil {
		slog.Error("failed to create stream service", "err", err)
		os.Exit(1)
	}

	if err := svc.HydrateChats(ctx, user.Email); err != nil {
		slog.Warn("failed to load existing chats", "err", err)
	}

	fmt.Printf("signed in as %s (%d chats). /help for commands.\n", user.Email, store.Len())
	runREPL(ctx, svc, store, user)
}

// deltaPrinter writes only the suffix added since the previous render of the
// same message, so streamed answers appear token by token.
type deltaPrinter struct {
	out       *os.File
	messageID string
	printed   int
}

func (p *deltaPrinter) render(_, messageID, content string) {
	if messageID != p.messageID {
		p.messageID = messageID
		p.printed = 0
	}
	if len(content) < p.printed {
		// Content was replaced rather than extended (e.g. an error text).
		fmt.Fprintln(p.out)
		p.printed = 0
	}
	fmt.Fprint(p.out, content[p.printed:])
	p.printed = len(content)
}

func runREPL(ctx context.Context, svc *usecase.StreamService, store *chatlog.Store, user domain.User) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := runCommand(ctx, svc, store, user, line); quit {
				return
			}
			continue
		}

		askCtx, cancel := signal.NotifyContext(ctx, os.Interrupt)
		_, err := svc.Ask(askCtx, usecase.AskInput{
			ConversationID: store.ActiveID(),
			Question:       line,
			UserEmail:      user.Email,
		})
		cancel()
		fmt.Println()
		if err != nil {
			if code, ok := usecase.CodeOf(err); ok && code == usecase.ErrorCanceled {
				fmt.Println("(canceled)")
				continue
			}
			slog.Error("exchange failed", "err", err)
		}
	}
}

func runCommand(ctx context.Context, svc *usecase.StreamService, store *chatlog.Store, user domain.User, line string) (quit bool) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/new":
		conv := store.CreateConversation()
		store.SelectConversation(conv.ID)
		fmt.Println("started a new chat")
	case "/list":
		for i, conv := range store.Conversations() {
			marker := " "
			if conv.ID == store.ActiveID() {
				marker = "*"
			}
			title := conv.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s %2d  %s\n", marker, i+1, title)
		}
	case "/select":
		if conv, ok := conversationByNumber(store, arg); ok {
			store.SelectConversation(conv.ID)
			printConversation(conv)
		} else {
			fmt.Println("usage: /select <number from /list>")
		}
	case "/rename":
		num, title, _ := strings.Cut(arg, " ")
		conv, ok := conversationByNumber(store, num)
		if !ok || strings.TrimSpace(title) == "" {
			fmt.Println("usage: /rename <number> <new title>")
			break
		}
		if err := svc.RenameConversation(ctx, conv.ID, title); err != nil {
			slog.Error("rename failed", "err", err)
		}
	case "/delete":
		conv, ok := conversationByNumber(store, arg)
		if !ok {
			fmt.Println("usage: /delete <number from /list>")
			break
		}
		if err := svc.DeleteConversation(ctx, conv.ID, user.Email); err != nil {
			slog.Error("delete failed", "err", err)
		}
	case "/help":
		fmt.Println("/new /list /select <n> /rename <n> <title> /delete <n> /quit")
	default:
		fmt.Printf("unknown command %q, try /help\n", cmd)
	}
	return false
}

func conversationByNumber(store *chatlog.Store, arg string) (domain.Conversation, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return domain.Conversation{}, false
	}
	convs := store.Conversations()
	if n < 1 || n > len(convs) {
		return domain.Conversation{}, false
	}
	return convs[n-1], true
}

func printConversation(conv domain.Conversation) {
	for _, msg := range conv.Messages {
		prefix := "you"
		if msg.Role == domain.RoleAssistant {
			prefix = "tutor"
		}
		fmt.Printf("[%s] %s\n", prefix, msg.Content)
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
