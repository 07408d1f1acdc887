package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/muesli/termenv"
	"golang.org/x/term"

	"dotphrase/internal/store"
)

const intro = `dotphrase watches what you type. When you type a "dot phrase", a '.'
followed by a phrase you created, it deletes the dot phrase and types your
message instead. For example, set ".hi" to "Hello, world!" and typing ".hi "
produces "Hello, world!".`

// menuAction is a main menu entry.
type menuAction int

const (
	actionInvalid menuAction = iota
	actionStart
	actionCreate
	actionView
	actionDelete
	actionQuit
)

var menuEntries = []struct {
	action menuAction
	label  string
	alias  string
}{
	{actionStart, "Start monitoring for dot phrases", "start"},
	{actionCreate, "Create a new dot phrase", "create"},
	{actionView, "View created dot phrases", "view"},
	{actionDelete, "Delete a dot phrase", "delete"},
	{actionQuit, "Exit/quit the program", "quit"},
}

// parseAction accepts an entry number or its one-word alias.
func parseAction(choice string) menuAction {
	choice = strings.ToLower(strings.TrimSpace(choice))
	for i, e := range menuEntries {
		if choice == fmt.Sprint(i+1) || choice == e.alias {
			return e.action
		}
	}
	switch choice {
	case "q", "exit":
		return actionQuit
	}
	return actionInvalid
}

// errInputClosed ends the menu when stdin reaches EOF.
var errInputClosed = errors.New("input closed")

// Menu is the interactive numbered menu.
type Menu struct {
	app    *app
	reader *bufio.Reader
	out    io.Writer
	term   *termenv.Output
	tty    bool
}

func newMenu(a *app, in io.Reader, out io.Writer) *Menu {
	m := &Menu{
		app:    a,
		reader: bufio.NewReader(in),
		out:    out,
		term:   termenv.NewOutput(out),
	}
	if f, ok := out.(*os.File); ok {
		m.tty = term.IsTerminal(int(f.Fd()))
	}
	return m
}

// Run shows the menu until the user quits or input ends.
func (m *Menu) Run(ctx context.Context) error {
	m.println(intro)

	for {
		m.printMainMenu()

		choice, err := m.prompt("Select an option")
		if err != nil {
			return nil
		}

		switch parseAction(choice) {
		case actionStart:
			err = m.runStart(ctx)
		case actionCreate:
			err = m.runCreate(ctx)
		case actionView:
			err = m.runView(ctx)
		case actionDelete:
			err = m.runDelete(ctx)
		case actionQuit:
			m.printGoodbye()
			return nil
		default:
			m.printError("Invalid option. Enter a number from 1 to 5.")
			continue
		}

		if errors.Is(err, errInputClosed) {
			return nil
		}
		if err != nil {
			m.printError(err.Error())
		}
	}
}

func (m *Menu) printMainMenu() {
	m.println("")
	m.println(m.term.String("Please select one of the following:").Bold().String())
	for i, e := range menuEntries {
		m.printf("%s %s\n", m.term.String(fmt.Sprintf("%d.", i+1)).Foreground(m.term.Color("6")), e.label)
	}
}

func (m *Menu) runStart(ctx context.Context) error {
	m.println("Beginning dot phrase monitoring. You can minimize this window.")
	m.println("")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return m.app.listen(ctx, m.out)
}

func (m *Menu) runCreate(ctx context.Context) error {
	return m.app.withStore(ctx, func(s store.Store) error {
		trigger, err := m.prompt("\nWhat is the new dot phrase?")
		if err != nil {
			return err
		}
		for store.ValidateTrigger(trigger) != nil {
			m.println(`
That is an invalid dot phrase. Dot phrases must start with a '.' and
contain no spaces. For example, ".hello" is a valid dot phrase.`)
			if trigger, err = m.prompt("\nWhat is the new dot phrase?"); err != nil {
				return err
			}
		}

		if _, exists, err := s.Lookup(ctx, trigger); err != nil {
			return err
		} else if exists {
			m.printError("That dot phrase already exists.")
			return m.waitForEnter()
		}

		expansion, err := m.promptRaw("\nWhat would you like this dot phrase replaced with?")
		if err != nil {
			return err
		}
		if err := s.Insert(ctx, trigger, expansion); err != nil {
			if errors.Is(err, store.ErrExists) {
				m.printError("That dot phrase already exists.")
				return m.waitForEnter()
			}
			return err
		}

		m.printSuccess(fmt.Sprintf("Your dot phrase: %s will be replaced with: %s", trigger, expansion))
		return m.waitForEnter()
	})
}

func (m *Menu) runView(ctx context.Context) error {
	return m.app.withStore(ctx, func(s store.Store) error {
		phrases, err := s.List(ctx)
		if err != nil {
			return err
		}
		m.println("")
		printPhrases(m.out, phrases)
		m.println("")
		return m.waitForEnter()
	})
}

func (m *Menu) runDelete(ctx context.Context) error {
	return m.app.withStore(ctx, func(s store.Store) error {
		phrases, err := s.List(ctx)
		if err != nil {
			return err
		}
		if len(phrases) == 0 {
			m.println("\nNo dot phrases to delete.")
			return m.waitForEnter()
		}

		m.println("\nEnter the dot phrase you want to delete (empty to go back).\n")
		for {
			printPhrases(m.out, phrases)
			trigger, err := m.prompt("")
			if err != nil {
				return err
			}
			if trigger == "" {
				return nil
			}

			err = s.Delete(ctx, trigger)
			if errors.Is(err, store.ErrNotFound) {
				m.println("\nThat dot phrase does not exist. Please enter the dot phrase you want to delete.\n")
				continue
			}
			if err != nil {
				return err
			}

			m.printSuccess(fmt.Sprintf("The dot phrase: %s has been deleted.", trigger))
			return m.waitForEnter()
		}
	})
}

// prompt reads one trimmed line.
func (m *Menu) prompt(label string) (string, error) {
	line, err := m.promptRaw(label)
	return strings.TrimSpace(line), err
}

// promptRaw reads one line, keeping surrounding spaces.
func (m *Menu) promptRaw(label string) (string, error) {
	if label != "" {
		m.println(m.term.String(label).Foreground(m.term.Color("6")).String())
	}
	m.printf("> ")
	line, err := m.reader.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", errInputClosed
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (m *Menu) waitForEnter() error {
	m.printf("%s", m.term.String("Press Enter to continue...").Faint())
	if _, err := m.reader.ReadString('\n'); err != nil {
		return errInputClosed
	}
	m.clearScreen()
	return nil
}

func (m *Menu) clearScreen() {
	if m.tty {
		m.term.ClearScreen()
	}
}

func (m *Menu) printError(message string) {
	m.println("")
	m.println(m.term.String("✗ " + message).Foreground(m.term.Color("1")).String())
}

func (m *Menu) printSuccess(message string) {
	m.println("")
	m.println(m.term.String("✓ " + message).Foreground(m.term.Color("2")).String())
	m.println("")
}

func (m *Menu) printGoodbye() {
	m.println("")
	m.println(m.term.String("Goodbye!").Faint().String())
}

func (m *Menu) println(s string) {
	fmt.Fprintln(m.out, s)
}

func (m *Menu) printf(format string, args ...any) {
	fmt.Fprintf(m.out, format, args...)
}
