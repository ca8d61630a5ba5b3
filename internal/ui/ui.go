package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bz888/modeler/internal/event"
	"github.com/bz888/modeler/internal/logger"
	"github.com/bz888/modeler/internal/session"
	"github.com/bz888/modeler/internal/supervisor"
	"github.com/bz888/modeler/internal/transcript"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

type UI struct {
	app          *tview.Application
	pages        *tview.Pages
	mainFlex     *tview.Flex
	textView     *tview.TextView
	textArea     *tview.TextArea
	debugConsole *tview.TextView
	debugShown   bool

	sup *supervisor.Supervisor
	bus *event.Bus
	log *logger.Logger

	ctx context.Context
}

// New builds the widgets. The debug console exists from the start so it can
// be handed to the logger before Run; it is only laid out in dev mode or
// after /debug.
func New(sup *supervisor.Supervisor, bus *event.Bus, dev bool) *UI {
	u := &UI{
		app:        tview.NewApplication(),
		sup:        sup,
		bus:        bus,
		log:        logger.NewLogger("views"),
		debugShown: dev,
		ctx:        context.Background(),
	}
	u.app.EnablePaste(true)
	u.app.EnableMouse(true)

	u.debugConsole = u.initDebugConsole()
	u.textView = u.initChatViewer()
	u.textArea = u.initChatInput()

	subFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(u.textView, 0, 1, false).
		AddItem(u.textArea, 8, 2, true)
	u.mainFlex = tview.NewFlex().
		AddItem(subFlex, 0, 2, false)
	if dev {
		u.mainFlex.AddItem(u.debugConsole, 0, 1, false)
	}
	u.pages = tview.NewPages().AddPage(pageMain, u.mainFlex, true, true)

	u.setInputCapture()
	return u
}

const (
	pageMain    = "main"
	pageModels  = "modelModal"
	pageConfirm = "confirmModal"
)

func (u *UI) initChatViewer() *tview.TextView {
	textView := tview.NewTextView().
		SetChangedFunc(func() {
			u.app.Draw()
		}).
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)

	textView.SetTitle("Conversation").SetBorder(true)
	textView.SetScrollable(true)
	textView.ScrollToEnd()
	return textView
}

func (u *UI) initChatInput() *tview.TextArea {
	textArea := tview.NewTextArea()
	textArea.SetTitle("Question").SetBorder(true)
	return textArea
}

func (u *UI) initDebugConsole() *tview.TextView {
	console := tview.NewTextView().
		SetChangedFunc(func() {
			u.app.Draw()
		}).
		SetWordWrap(true)

	console.SetTitle("Debugger").SetBorder(true)
	console.ScrollToEnd()
	return console
}

// DebugConsole is where console log output goes while the UI runs.
func (u *UI) DebugConsole() io.Writer {
	return u.debugConsole
}

// Run blocks until the user quits or ctx is cancelled.
func (u *UI) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	u.ctx = ctx

	go u.consumeUpdates(ctx)
	if u.bus != nil {
		events, err := u.bus.Subscribe(ctx, event.AllTypes...)
		if err != nil {
			return err
		}
		go u.consumeEvents(ctx, events)
	}
	go func() {
		<-ctx.Done()
		u.app.Stop()
	}()

	u.textView.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyEnter {
			u.app.SetFocus(u.textArea)
		}
		return ev
	})

	u.log.Info().Str("model", u.sup.Model()).Str("precontext", u.sup.Precontext()).Msg("ui started")
	return u.app.SetRoot(u.pages, true).SetFocus(u.textArea).Run()
}

func (u *UI) setInputCapture() {
	u.textArea.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		switch ev.Key() {
		case tcell.KeyESC:
			if u.textView.GetText(false) != "" {
				u.app.SetFocus(u.textView)
			}
			return ev
		case tcell.KeyEnter:
			content := u.textArea.GetText()
			if strings.TrimSpace(content) == "" {
				return nil
			}
			u.textArea.SetText("", true)

			if name, arg, ok := parseCommand(content); ok {
				u.runCommand(name, arg)
				return nil
			}
			u.send(content)
			return nil
		}
		return ev
	})
}

func (u *UI) send(content string) {
	if _, err := u.sup.Send(u.ctx, content); err != nil {
		if errors.Is(err, supervisor.ErrSessionActive) {
			u.notice("still answering, use /cancel to stop")
			return
		}
		u.log.Error().Err(err).Msg("send failed")
		u.failure(err)
		return
	}
	fmt.Fprintf(u.textView, "[red::]You:[-]\n%s\n\n", tview.Escape(content))
	fmt.Fprintf(u.textView, "[green::]Bot:[-]\n")
}

func (u *UI) consumeUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-u.sup.Updates():
			u.app.QueueUpdateDraw(func() { u.apply(up) })
		}
	}
}

func (u *UI) apply(up supervisor.Update) {
	switch up.Kind {
	case supervisor.UpdateDelta:
		fmt.Fprint(u.textView, tview.Escape(up.Text))
		u.textView.ScrollToEnd()
	case supervisor.UpdateTerminal:
		switch up.Outcome {
		case session.OutcomeCompleted:
			fmt.Fprint(u.textView, "\n\n")
		case session.OutcomeCancelled:
			fmt.Fprint(u.textView, "\n[yellow::]cancelled[-]\n\n")
		default:
			fmt.Fprint(u.textView, "\n")
			u.failure(up.Err)
		}
	case supervisor.UpdateReset:
		u.textView.SetText(renderTranscript(u.sup.Turns()))
		u.textView.ScrollToEnd()
	}
}

func (u *UI) consumeEvents(ctx context.Context, events <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintln(u.debugConsole, formatEvent(ev))
		}
	}
}

func (u *UI) notice(msg string) {
	fmt.Fprintf(u.textView, "[yellow::]%s[-]\n\n", tview.Escape(msg))
}

func (u *UI) failure(err error) {
	fmt.Fprintf(u.textView, "[red::]error: %s[-]\n\n", tview.Escape(err.Error()))
}

func (u *UI) createModal(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}

func (u *UI) closeModal(name string) {
	u.pages.RemovePage(name)
	u.app.SetFocus(u.textArea)
}

func (u *UI) toggleDebugConsole() {
	if u.debugShown {
		u.mainFlex.RemoveItem(u.debugConsole)
		u.notice("Debug console disabled")
	} else {
		u.mainFlex.AddItem(u.debugConsole, 0, 1, false)
		u.notice("Debug console enabled")
	}
	u.debugShown = !u.debugShown
}

func (u *UI) quit() {
	fmt.Fprintf(u.textView, "Bye bye\n")
	u.sup.Cancel()
	u.app.Stop()
}

// renderTranscript redraws the whole conversation after a clear or load.
func renderTranscript(turns []transcript.Turn) string {
	var b strings.Builder
	for _, turn := range turns {
		switch turn.Role {
		case transcript.RoleUser:
			b.WriteString("[red::]You:[-]\n")
		default:
			b.WriteString("[green::]Bot:[-]\n")
		}
		b.WriteString(tview.Escape(turn.Content))
		b.WriteString("\n\n")
	}
	return b.String()
}

func formatEvent(ev event.Event) string {
	line := ev.Time.Format("15:04:05") + " " + string(ev.Type)
	if ev.SessionID != "" {
		line += " session=" + ev.SessionID
	}
	if ev.Key != "" {
		line += " key=" + ev.Key
	}
	if ev.Detail != "" {
		line += " " + ev.Detail
	}
	return line
}
