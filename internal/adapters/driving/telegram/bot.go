// Package telegram answers questions about the ingested documents in
// Telegram chats. Every chat is its own conversation session.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// maxMessageRunes is Telegram's limit on a single text message.
const maxMessageRunes = 4096

// historyLimit is the number of turns /history shows.
const historyLimit = 10

// typingInterval re-sends the typing action before Telegram expires it (~5s).
const typingInterval = 4 * time.Second

// ErrMissingToken is returned when no bot token is configured.
var ErrMissingToken = errors.New("telegram: bot token is required (set TELEGRAM_BOT_TOKEN)")

// Ports aggregates the driving ports the bot calls.
type Ports struct {
	RAG           driving.RAGService
	Conversations driving.ConversationService
	Documents     driving.DocumentService
	Ingest        driving.IngestService
}

// Options configures the bot.
type Options struct {
	// AllowUploads lets users ingest PDFs by sending them to the bot.
	AllowUploads bool

	// MaxFileBytes rejects larger uploads. Zero disables the check.
	MaxFileBytes int64
}

// api is the subset of the Telegram client the bot uses.
type api interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
	GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error)
	FileDownloadLink(f *models.File) string
}

// Bot is the Telegram front-end.
type Bot struct {
	client *bot.Bot
	api    api
	ports  *Ports
	opts   Options
	http   *http.Client
}

// New connects to Telegram with token.
func New(token string, ports *Ports, opts Options) (*Bot, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	if ports == nil || ports.RAG == nil {
		return nil, errors.New("telegram: rag service is required")
	}

	b := &Bot{
		ports: ports,
		opts:  opts,
		http:  &http.Client{Timeout: 2 * time.Minute},
	}

	client, err := bot.New(token, bot.WithDefaultHandler(b.handleUpdate))
	if err != nil {
		return nil, fmt.Errorf("initialise telegram bot: %w", err)
	}
	b.client = client
	b.api = client
	return b, nil
}

// Run polls for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) {
	logger.Info("Telegram bot started")
	b.client.Start(ctx)
	logger.Info("Telegram bot stopped")
}

func (b *Bot) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	switch {
	case msg.Document != nil:
		b.handleDocument(ctx, msg)
	case strings.HasPrefix(msg.Text, "/"):
		b.handleCommand(ctx, msg)
	case strings.TrimSpace(msg.Text) != "":
		b.handleQuestion(ctx, msg)
	default:
		logger.Debug("telegram: chat %d: ignored message without text", msg.Chat.ID)
	}
}

// sessionID keys history by chat, so a group shares one conversation.
func sessionID(msg *models.Message) string {
	return "tg-" + strconv.FormatInt(msg.Chat.ID, 10)
}

func (b *Bot) handleCommand(ctx context.Context, msg *models.Message) {
	command, _, _ := strings.Cut(strings.TrimPrefix(msg.Text, "/"), " ")
	// Commands in groups arrive as /cmd@botname.
	command, _, _ = strings.Cut(command, "@")
	logger.Debug("telegram: chat %d: /%s", msg.Chat.ID, command)

	switch strings.ToLower(command) {
	case "start":
		name := "there"
		if msg.From != nil && msg.From.FirstName != "" {
			name = msg.From.FirstName
		}
		b.reply(ctx, msg.Chat.ID, fmt.Sprintf(
			"Hello %s! I answer questions about the documents I have read.\nAsk me anything, or send /help.", name))
	case "help":
		b.reply(ctx, msg.Chat.ID, b.helpText())
	case "history", "historial":
		b.handleHistory(ctx, msg)
	case "stats":
		b.handleStats(ctx, msg)
	default:
		b.reply(ctx, msg.Chat.ID, "Unknown command. Try /help to see available commands.")
	}
}

func (b *Bot) helpText() string {
	var sb strings.Builder
	sb.WriteString("Send a question as a normal message and I will answer from the documents.\n\n")
	sb.WriteString("Commands:\n")
	sb.WriteString("/start - Greeting\n")
	sb.WriteString("/help - Show this message\n")
	sb.WriteString("/history - Your recent conversation\n")
	sb.WriteString("/stats - Documents and conversation statistics\n")
	if b.opts.AllowUploads && b.ports.Ingest != nil {
		sb.WriteString("\nSend a PDF file to add it to the documents.")
	}
	return sb.String()
}

func (b *Bot) handleQuestion(ctx context.Context, msg *models.Message) {
	stop := b.typing(ctx, msg.Chat.ID)
	answer, err := b.ports.RAG.Ask(ctx, sessionID(msg), strings.TrimSpace(msg.Text))
	stop()

	if err != nil {
		logger.Warn("telegram: chat %d: %s: %v", msg.Chat.ID, domain.ErrorKind(err), err)
		b.reply(ctx, msg.Chat.ID, domain.UserMessage(err))
		return
	}
	b.reply(ctx, msg.Chat.ID, answer.Text)
}

func (b *Bot) handleHistory(ctx context.Context, msg *models.Message) {
	if b.ports.Conversations == nil {
		b.reply(ctx, msg.Chat.ID, "History is not available.")
		return
	}

	turns, err := b.ports.Conversations.History(ctx, sessionID(msg))
	if err != nil {
		logger.Warn("telegram: chat %d: history: %v", msg.Chat.ID, err)
		b.reply(ctx, msg.Chat.ID, "Sorry, I could not read the conversation history.")
		return
	}
	if len(turns) == 0 {
		b.reply(ctx, msg.Chat.ID, "No conversation in the last 24 hours.")
		return
	}

	if len(turns) > historyLimit {
		turns = turns[len(turns)-historyLimit:]
	}
	var sb strings.Builder
	sb.WriteString("Recent conversation:\n")
	for _, t := range turns {
		who := "You"
		if t.Role == domain.RoleAssistant {
			who = "Bot"
		}
		fmt.Fprintf(&sb, "\n[%s] %s: %s\n", t.Timestamp.Format("15:04"), who, truncate(t.Text, 300))
	}
	b.reply(ctx, msg.Chat.ID, sb.String())
}

func (b *Bot) handleStats(ctx context.Context, msg *models.Message) {
	var sb strings.Builder

	if b.ports.Documents != nil {
		stats, err := b.ports.Documents.Stats(ctx)
		if err != nil {
			logger.Warn("telegram: stats: %v", err)
		} else {
			fmt.Fprintf(&sb, "Documents: %d (%d ready)\nChunks: %d\n",
				stats.Documents, stats.ByStatus[domain.StatusEmbedded], stats.Chunks)
		}
	}
	if b.ports.Conversations != nil {
		stats, err := b.ports.Conversations.Stats(ctx, sessionID(msg))
		if err != nil {
			logger.Warn("telegram: session stats: %v", err)
		} else {
			fmt.Fprintf(&sb, "Your messages: %d total, %d in the last 24 hours\n", stats.TotalTurns, stats.RecentTurns)
		}
	}

	if sb.Len() == 0 {
		b.reply(ctx, msg.Chat.ID, "Statistics are not available.")
		return
	}
	b.reply(ctx, msg.Chat.ID, sb.String())
}

func (b *Bot) handleDocument(ctx context.Context, msg *models.Message) {
	doc := msg.Document
	if !b.opts.AllowUploads || b.ports.Ingest == nil {
		b.reply(ctx, msg.Chat.ID, "Document uploads are disabled.")
		return
	}
	if doc.MimeType != "application/pdf" && !strings.EqualFold(filepath.Ext(doc.FileName), ".pdf") {
		b.reply(ctx, msg.Chat.ID, "Only PDF files can be added.")
		return
	}
	if b.opts.MaxFileBytes > 0 && doc.FileSize > b.opts.MaxFileBytes {
		b.reply(ctx, msg.Chat.ID, "That file is too large.")
		return
	}

	stop := b.typing(ctx, msg.Chat.ID)
	defer stop()

	data, err := b.download(ctx, doc.FileID)
	if err != nil {
		logger.Warn("telegram: chat %d: download %s: %v", msg.Chat.ID, doc.FileName, err)
		b.reply(ctx, msg.Chat.ID, "Sorry, I could not download that file.")
		return
	}

	res, err := b.ports.Ingest.Ingest(ctx, "", doc.FileName, data)
	if err != nil {
		logger.Warn("telegram: chat %d: ingest %s: %v", msg.Chat.ID, doc.FileName, err)
		b.reply(ctx, msg.Chat.ID, fmt.Sprintf("Could not process %s: %s", doc.FileName, ingestFailure(err)))
		return
	}
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf("Added %s (%d chunks). You can ask about it now.", res.Filename, res.Chunks))
}

func ingestFailure(err error) string {
	switch {
	case errors.Is(err, domain.ErrExtraction):
		return "no readable text was found."
	case errors.Is(err, domain.ErrAlreadyExists):
		return "it was already added."
	case errors.Is(err, domain.ErrInvalidInput):
		return "the file was rejected."
	default:
		return "please try again later."
	}
}

func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	file, err := b.api.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.api.FileDownloadLink(file), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// typing shows the typing indicator until the returned func is called.
func (b *Bot) typing(ctx context.Context, chatID int64) func() {
	done := make(chan struct{})
	send := func() {
		if _, err := b.api.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: "typing"}); err != nil {
			logger.Debug("telegram: chat %d: typing: %v", chatID, err)
		}
	}
	send()

	go func() {
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				send()
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// reply sends text, split into messages Telegram accepts.
func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	for _, part := range splitMessage(text, maxMessageRunes) {
		if _, err := b.api.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: part}); err != nil {
			logger.Warn("telegram: chat %d: send: %v", chatID, err)
			return
		}
	}
}

// splitMessage cuts text into parts of at most limit runes, preferring
// paragraph then line breaks.
func splitMessage(text string, limit int) []string {
	if text == "" {
		return []string{"(empty)"}
	}
	var parts []string
	for utf8.RuneCountInString(text) > limit {
		runes := []rune(text)
		head := string(runes[:limit])
		cut := strings.LastIndex(head, "\n\n")
		if cut <= 0 {
			cut = strings.LastIndex(head, "\n")
		}
		if cut <= 0 {
			cut = len(head)
		}
		parts = append(parts, strings.TrimRight(text[:cut], "\n"))
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
