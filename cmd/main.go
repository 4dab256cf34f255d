package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/chzyer/readline"

	"gorepl"
)

func main() {
	cfg := gorepl.Config{
		Framework:        os.Getenv("GOREPL_FRAMEWORK"),
		FrameworkVersion: os.Getenv("GOREPL_FRAMEWORK_VERSION"),
		Theme:            os.Getenv("GOREPL_THEME"),
		ThemeFile:        os.Getenv("GOREPL_THEME_FILE"),
		ProxyURL:         os.Getenv("GOREPL_PROXY"),
		Debug:            os.Getenv("GOREPL_DEBUG") != "",
		Args:             os.Args[1:],
	}
	repl := gorepl.New(cfg, gorepl.ReplOptions{})
	defer repl.Close()

	session := repl.Session()
	fmt.Printf("Session %s started at %v\n", session.SessionID, session.StartTime.Format("15:04:05"))
	fmt.Println(`Welcome to gorepl. Type Go code, #r "mod:path" to reference modules, :help for commands.`)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          gorepl.GetPrompt(0),
		AutoComplete:    completer{repl},
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "An error occurred:", err)
		os.Exit(1)
	}
	defer rl.Close()

	// Replay persisted history into the editor once warm-up has it.
	go func() {
		if err := repl.Ready(context.Background()); err != nil {
			return
		}
		for _, item := range repl.History(200) {
			rl.SaveHistory(item)
		}
	}()

	ordinal := 0
	var buffer strings.Builder
	for {
		if buffer.Len() == 0 {
			rl.SetPrompt(gorepl.GetPrompt(ordinal))
		} else {
			rl.SetPrompt(gorepl.ContinuationPrompt)
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			buffer.Reset()
			continue
		} else if err == io.EOF {
			fmt.Println("\nExit command received. Exiting gorepl.")
			return
		} else if err != nil {
			fmt.Fprintln(os.Stderr, "An error occurred:", err)
			continue
		}

		if buffer.Len() > 0 {
			buffer.WriteString("\n")
		}
		buffer.WriteString(line)
		input := buffer.String()
		if strings.TrimSpace(input) == "" {
			buffer.Reset()
			continue
		}

		if strings.HasPrefix(strings.TrimSpace(input), ":") {
			buffer.Reset()
			if quit := runCommand(repl, strings.TrimSpace(input)); quit {
				return
			}
			continue
		}

		// A syntactically open statement keeps accumulating lines.
		if !repl.IsCompleteStatement(input) {
			continue
		}
		buffer.Reset()

		render(evaluate(repl, input))
		ordinal++
	}
}

// evaluate runs one submission with Ctrl-C wired to cooperative
// cancellation.
func evaluate(repl *gorepl.Repl, input string) gorepl.EvaluationResult {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return repl.Evaluate(ctx, input)
}

func render(result gorepl.EvaluationResult) {
	switch r := result.(type) {
	case gorepl.Success:
		if r.HasValue {
			fmt.Printf("%v\n", r.ReturnValue)
		}
	case gorepl.Error:
		fmt.Printf("\033[31m%v\033[0m\n", r.Err)
	case gorepl.Cancelled:
		fmt.Println("\033[33mcancelled\033[0m")
	}
}

func runCommand(repl *gorepl.Repl, input string) (quit bool) {
	cmd, rest, _ := strings.Cut(input, " ")
	switch cmd {
	case ":exit", ":quit":
		return true
	case ":clear":
		fmt.Print("\033[2J\033[H")
	case ":help":
		help := `Commands:
  :help              show this help
  :exit              leave the session
  :clear             clear the screen
  :history [n]       show recent submissions
  :theme <name>      switch highlight theme
  :prompt <text>     set the prompt (%u user, %n ordinal, %d date, %t time)
  :dis [-debug] <code>   show compiler assembly for code
  :source <code>     look up the source URL for the symbol in code`
		fmt.Println(help)
	case ":history":
		n := 20
		fmt.Sscanf(rest, "%d", &n)
		for _, item := range repl.History(n) {
			fmt.Println(item)
		}
	case ":theme":
		repl.SetTheme(strings.TrimSpace(rest))
	case ":prompt":
		if err := gorepl.SetPrompt(rest); err != nil {
			fmt.Printf("\033[31m%v\033[0m\n", err)
		}
	case ":dis":
		debug := false
		if strings.HasPrefix(rest, "-debug ") {
			debug = true
			rest = strings.TrimPrefix(rest, "-debug ")
		}
		render(repl.Disassemble(context.Background(), rest, debug))
	case ":source":
		code := strings.TrimSpace(rest)
		url, err := repl.LookupSourceURL(context.Background(), code, len(code))
		if err != nil {
			fmt.Printf("\033[31m%v\033[0m\n", err)
		} else {
			fmt.Println(url)
		}
	default:
		fmt.Printf("unknown command %s, try :help\n", cmd)
	}
	return false
}

// completer adapts the facade to the line editor's completion contract.
type completer struct {
	repl *gorepl.Repl
}

func (c completer) Do(line []rune, pos int) ([][]rune, int) {
	text := string(line)
	caret := len(string(line[:pos]))
	items := c.repl.Complete(text, caret)
	var out [][]rune
	length := 0
	for _, item := range items {
		out = append(out, []rune(item.ReplacementText[item.Length:]))
		length = item.Length
	}
	return out, length
}
