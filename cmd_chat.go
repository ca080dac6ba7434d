package main

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"otchat/model"
	"otchat/render"
	"otchat/session"
)

var (
	chatModel  string
	chatResume string
	chatGoal   string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start or continue a chat",
	Long: `Start an interactive chat. Type a message and press enter.

  /image <path>     attach an image to the next message
  /uphurry <goal>   let the chat work towards a goal on its own
  /cancel           stop the running request (Ctrl-C does the same)
  /quit             leave`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "id of the first model of the fallback chain")
	chatCmd.Flags().StringVarP(&chatResume, "resume", "r", "", "id of a stored chat to continue")
	chatCmd.Flags().StringVar(&chatGoal, "uphurry", "", "start with an uphurry request towards this goal")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	chain, err := a.cfg.ModelChain(chatModel)
	if err != nil {
		return err
	}

	mgr := session.NewManager(session.OptionsFromConfig(a.cfg, a.store, chain, a.tools))
	if err := mgr.Restore(ctx); err != nil {
		fmt.Fprintln(os.Stderr, render.Warning("could not restore ongoing chats: "+err.Error()))
	}
	mgr.Start(ctx)
	defer mgr.Stop()

	var c *model.ChatContext
	if chatResume != "" {
		if c, err = mgr.LoadChat(ctx, chatResume, session.ChatOptions{}); err != nil {
			return err
		}
	} else {
		c = mgr.EmptyChat(ctx, session.ChatOptions{})
	}

	out := newTerminal(os.Stdout, terminalWidth())
	unsubscribe := mgr.Subscribe(c.ID, out)
	defer unsubscribe()

	out.printHistory(c)
	out.printf("%s\n", render.DimStyle.Render(fmt.Sprintf("chat %s with %s", c.ID, chain[0].DisplayName())))

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	var images []model.MessagePart
	busy := false
	submit := func(req *model.ChatRequest) {
		ok, err := mgr.SetChatRequest(ctx, c.ID, req)
		switch {
		case err != nil && !ok:
			out.printf("%s\n", render.Warning(err.Error()+" (use /cancel to stop it)"))
		case err != nil:
			out.printf("%s\n", render.Error(err.Error()))
		default:
			busy = true
		}
	}

	if chatGoal != "" {
		submit(model.NewUphurryRequest(chatGoal))
	}

	for {
		if !busy {
			out.printf("%s ", render.UserStyle.Render(">"))
		}

		select {
		case <-ctx.Done():
			return nil

		case <-interrupts:
			if !busy {
				return nil
			}
			mgr.CancelChat(ctx, c.ID)
			busy = false
			out.endReply()
			out.printf("%s\n", render.Warning("cancelled"))

		case err := <-out.finished:
			busy = false
			out.endReply()
			if err != nil {
				out.printf("%s\n", render.Error(err.Error()))
			}

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case line == "/quit" || line == "/exit":
				return nil
			case line == "/cancel":
				mgr.CancelChat(ctx, c.ID)
				busy = false
				out.endReply()
			case strings.HasPrefix(line, "/image "):
				part, err := imageFile(strings.TrimSpace(strings.TrimPrefix(line, "/image ")))
				if err != nil {
					out.printf("%s\n", render.Error(err.Error()))
					continue
				}
				images = append(images, part)
				out.printf("%s\n", render.DimStyle.Render(fmt.Sprintf("%d image(s) attached to the next message", len(images))))
			case strings.HasPrefix(line, "/uphurry "):
				submit(model.NewUphurryRequest(strings.TrimSpace(strings.TrimPrefix(line, "/uphurry "))))
			default:
				parts := append(images, model.TextPart(line))
				images = nil
				submit(model.NewUserMsgRequest(parts))
			}
		}
	}
}

// imageFile reads an image into a data URL part.
func imageFile(path string) (model.MessagePart, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.MessagePart{}, fmt.Errorf("failed to read image: %w", err)
	}
	mediaType := http.DetectContentType(data)
	if !strings.HasPrefix(mediaType, "image/") {
		return model.MessagePart{}, fmt.Errorf("%s is not an image (%s)", path, mediaType)
	}
	url := "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
	return model.ImagePart(url, mediaType), nil
}

// terminalWidth falls back to $COLUMNS, then 100, when stdout is not a tty.
func terminalWidth() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return max(width, 40)
	}
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 20 {
		return n
	}
	return 100
}

// terminal prints the events of the current chat.
type terminal struct {
	session.NopListener

	mu        sync.Mutex
	out       io.Writer
	width     int
	streaming bool
	shown     map[string]bool
	finished  chan error
}

func newTerminal(out io.Writer, width int) *terminal {
	return &terminal{
		out:      out,
		width:    width,
		shown:    make(map[string]bool),
		finished: make(chan error, 1),
	}
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

func (t *terminal) printHistory(c *model.ChatContext) {
	if c.Title != "" {
		t.printf("%s\n\n", render.TitleStyle.Render(c.Title))
	}
	for _, pair := range c.History.MsgPairs {
		for _, msg := range []*model.Msg{pair.User, pair.Assistant} {
			if msg == nil {
				continue
			}
			t.printf("%s\n\n", render.Message(msg, t.width))
			for _, fc := range model.FunctionCalls(msg.Parts) {
				t.shown[fc.ID] = true
			}
		}
	}
}

func (t *terminal) endReply() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.streaming {
		fmt.Fprintln(t.out)
		t.streaming = false
	}
}

func (t *terminal) OnChunk(_ string, fragment string, _ []model.MessagePart, _ string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.streaming {
		fmt.Fprintf(t.out, "%s\n", render.AssistantStyle.Render("Assistant"))
		t.streaming = true
	}
	fmt.Fprint(t.out, fragment)
}

// OnMessagesUpdated prints tool calls once their results are in.
func (t *terminal) OnMessagesUpdated(_ string, h model.ChatHistory) {
	last := h.Last()
	if last == nil || last.Assistant == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range last.Assistant.Parts {
		if p.Kind() != model.KindFunctionCall {
			continue
		}
		fc, err := model.DecodeFunctionCall(p)
		if err != nil || !fc.HasResult() || t.shown[fc.ID] {
			continue
		}
		t.shown[fc.ID] = true
		fmt.Fprintf(t.out, "\n%s\n", render.FunctionCall(p, t.width))
	}
}

func (t *terminal) OnUphurryProgress(_ string, step int, question string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.streaming {
		fmt.Fprintln(t.out)
		t.streaming = false
	}
	fmt.Fprintf(t.out, "\n%s %s\n%s\n", render.UserStyle.Render("You (auto)"), render.DimStyle.Render(fmt.Sprintf("step %d", step)), question)
}

func (t *terminal) OnWarningsChanged(_ string, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "\n%s\n", render.Warning(warnings[len(warnings)-1]))
}

// OnContextUpdate claims every update: the chat is on screen.
func (t *terminal) OnContextUpdate(string, *model.ChatContext) bool {
	return true
}

func (t *terminal) OnFinished(_ string, err error) {
	select {
	case t.finished <- err:
	default:
	}
}

var _ session.Listener = (*terminal)(nil)
