package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/bz888/modeler/internal/api/client"
	"github.com/rivo/tview"
)

type command struct {
	name  string
	usage string
	help  string
}

var commands = []command{
	{"/help", "/help", "Display this help message"},
	{"/bye", "/bye", "Exit the application"},
	{"/debug", "/debug", "Toggle the debug console"},
	{"/cancel", "/cancel", "Stop the answer being streamed"},
	{"/clear", "/clear", "Start a new conversation"},
	{"/models", "/models", "Select between the available models"},
	{"/precontext", "/precontext [name|none]", "Show or switch the server-side precontext"},
	{"/save", "/save <key>", "Save the conversation"},
	{"/load", "/load <key>", "Replace the conversation with a saved one"},
}

// quitAliases all behave like /bye.
var quitAliases = map[string]bool{"/bye": true, "/quit": true, "/exit": true}

// parseCommand splits a known slash command from its argument. Unknown
// slash-prefixed text is sent as a normal message.
func parseCommand(input string) (name, arg string, ok bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return "", "", false
	}
	name, arg, _ = strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	if quitAliases[name] {
		return "/bye", arg, true
	}
	for _, c := range commands {
		if c.name == name {
			return name, arg, true
		}
	}
	return "", "", false
}

func helpText() string {
	var b strings.Builder
	b.WriteString("Here are some commands you can use:\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "- %s: %s\n", tview.Escape(c.usage), c.help)
	}
	return b.String()
}

// resolvePrecontext maps user input to a known precontext; "none" selects
// plain chat.
func resolvePrecontext(arg string) (string, bool) {
	if strings.EqualFold(arg, "none") {
		return "", true
	}
	for _, p := range client.Precontexts {
		if strings.EqualFold(p, arg) {
			return p, true
		}
	}
	return "", false
}

func (u *UI) runCommand(name, arg string) {
	u.log.Debug().Str("command", name).Str("arg", arg).Msg("command")

	switch name {
	case "/help":
		fmt.Fprintf(u.textView, "[green::]Bot:[-]\n%s\n", helpText())
	case "/bye":
		u.quit()
	case "/debug":
		u.toggleDebugConsole()
	case "/cancel":
		if !u.sup.Cancel() {
			u.notice("nothing to cancel")
		}
	case "/clear":
		u.sup.Clear()
	case "/models":
		go u.showModels()
	case "/precontext":
		u.precontext(arg)
	case "/save":
		u.save(arg)
	case "/load":
		u.load(arg)
	}
}

func (u *UI) precontext(arg string) {
	if arg == "" {
		current := u.sup.Precontext()
		if current == "" {
			current = "none"
		}
		u.notice(fmt.Sprintf("precontext: %s (available: %s, none)", current, strings.Join(client.Precontexts, ", ")))
		return
	}
	p, ok := resolvePrecontext(arg)
	if !ok {
		u.notice("unknown precontext: " + arg)
		return
	}
	u.sup.SetPrecontext(p)
	if p == "" {
		u.notice("Using plain chat")
		return
	}
	u.notice("Using precontext: " + p)
}

func (u *UI) save(key string) {
	if key == "" {
		u.notice("usage: /save <key>")
		return
	}
	if !u.sup.Exists(u.ctx, key) {
		u.doSave(key)
		return
	}

	modal := tview.NewModal().
		SetText(fmt.Sprintf("%s already exists. Overwrite it?", key)).
		AddButtons([]string{"Overwrite", "Cancel"}).
		SetDoneFunc(func(_ int, label string) {
			u.closeModal(pageConfirm)
			if label == "Overwrite" {
				u.doSave(key)
			}
		})
	u.pages.AddPage(pageConfirm, modal, false, true)
	u.app.SetFocus(modal)
}

func (u *UI) doSave(key string) {
	if err := u.sup.Save(u.ctx, key); err != nil {
		u.log.Error().Err(err).Str("key", key).Msg("save failed")
		u.failure(err)
		return
	}
	u.notice("Saved as " + key)
}

func (u *UI) load(key string) {
	if key == "" {
		u.notice("usage: /load <key>")
		return
	}
	if err := u.sup.Load(u.ctx, key); err != nil {
		u.log.Error().Err(err).Str("key", key).Msg("load failed")
		u.failure(err)
	}
}

// showModels fetches the model list off the UI goroutine and then opens the
// picker.
func (u *UI) showModels() {
	ctx, cancel := context.WithCancel(u.ctx)
	defer cancel()

	models, err := u.sup.Models(ctx)
	u.app.QueueUpdateDraw(func() {
		if err != nil {
			u.log.Error().Err(err).Msg("list models failed")
			u.failure(err)
			return
		}

		current := u.sup.Model()
		list := tview.NewList()
		list.SetBorder(true).SetTitle("Models")
		for i, model := range models {
			name := model.Name
			shortcut := rune(0)
			if i < 9 {
				shortcut = '1' + rune(i)
			}
			if name == current {
				list.AddItem(name, "Current LLM", shortcut, func() {
					u.closeModal(pageModels)
					u.notice("Already using model: " + name)
				})
				continue
			}
			list.AddItem(name, model.Details.ParameterSize, shortcut, func() {
				u.sup.SetModel(name)
				u.log.Info().Str("model", name).Msg("model selected")
				u.closeModal(pageModels)
				u.notice("Using Model: " + name)
			})
		}
		list.AddItem("Back", "", 'q', func() {
			u.closeModal(pageModels)
		})

		u.pages.AddPage(pageModels, u.createModal(list, 40, 12), true, true)
		u.app.SetFocus(list)
	})
}
