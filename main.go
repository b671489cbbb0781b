package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/CrowderSoup/retro-board/app"
	"github.com/CrowderSoup/retro-board/config"
	"github.com/CrowderSoup/retro-board/database"
	"github.com/CrowderSoup/retro-board/handlers"
	"github.com/CrowderSoup/retro-board/services"
	"github.com/CrowderSoup/retro-board/ui"
)

const usage = `usage: retro [-dir path] <command> [args]

commands:
  init                          write a default retro.yaml
  login [id-token]              exchange an identity-provider token (or RETRO_ID_TOKEN)
  logout                        sign out and wipe local state
  profile                       show the signed-in user
  sessions [list]               list retro sessions
  sessions create <name>        create a session (-team, -sprint)
  sessions delete <id>          delete a session
  board <session-id>            open the live board
  polls <session-id> [create <question> <option>...]
  actions <session-id> [create <title> | done <id> | delete <id>]
  teams [list|create <name>|delete <id>]
  sprints <team-id> [create <name>]
  relay                         run the development room relay
`

func main() {
	dir := flag.String("dir", ".", "directory holding .env and retro.yaml")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if args[0] == "init" {
		path, err := config.WriteDefault(*dir)
		if err != nil {
			die("init: %v", err)
		}
		fmt.Println("wrote", path)
		return
	}

	cfg, err := config.Load(*dir)
	if err != nil {
		die("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd, rest := args[0], args[1:]
	if cmd == "relay" {
		setupLogging(os.Stderr, cfg.LogLevel)
		err = runRelay(ctx, cfg, rest)
	} else {
		err = runClient(ctx, cfg, cmd, rest)
	}
	if err != nil {
		die("%s: %v", cmd, err)
	}
}

func setupLogging(w io.Writer, level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func runClient(ctx context.Context, cfg *config.Config, cmd string, args []string) error {
	if cmd == "board" {
		// the terminal belongs to the board, so logs go to a file
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(cfg.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		setupLogging(f, cfg.LogLevel)
	} else {
		setupLogging(os.Stderr, cfg.LogLevel)
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Hydrate(ctx); err != nil {
		return err
	}
	a.OnSignOut(func() {
		fmt.Fprintln(os.Stderr, "signed out, run `retro login` to sign in again")
	})

	switch cmd {
	case "login":
		return login(ctx, a, args)
	case "logout":
		a.SignOut()
		return nil
	}

	if a.Auth.AccessToken() == "" {
		return fmt.Errorf("%w, run `retro login` first", app.ErrSignedOut)
	}

	switch cmd {
	case "profile":
		u, err := a.RefreshProfile(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s <%s>\nid: %s\n", u.Name, u.Email, u.ID)
		return nil
	case "sessions":
		return sessions(ctx, a, args)
	case "board":
		return board(a, args)
	case "polls":
		return polls(ctx, a, args)
	case "actions":
		return actionItems(ctx, a, args)
	case "teams":
		return teams(ctx, a, args)
	case "sprints":
		return sprints(ctx, a, args)
	}
	return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
}

func login(ctx context.Context, a *app.App, args []string) error {
	idToken := a.Config.IDToken
	if len(args) > 0 {
		idToken = args[0]
	}
	if idToken == "" {
		return errors.New("an identity token is required (argument or RETRO_ID_TOKEN)")
	}
	u, err := a.Login(ctx, idToken)
	if err != nil {
		return err
	}
	fmt.Printf("signed in as %s <%s>\n", u.Name, u.Email)
	return nil
}

func sessions(ctx context.Context, a *app.App, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	switch sub {
	case "list":
		list, err := a.API.ListRetroSessions(ctx)
		if err != nil {
			return err
		}
		w := table()
		fmt.Fprintln(w, "ID\tNAME\tSTEP\tPLANS")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", s.ID, s.Name, s.Step, len(s.Plans))
		}
		return w.Flush()
	case "create":
		fs := flag.NewFlagSet("sessions create", flag.ContinueOnError)
		team := fs.String("team", "", "team id")
		sprint := fs.String("sprint", "", "sprint id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		name := strings.Join(fs.Args(), " ")
		if name == "" {
			return errors.New("a session name is required")
		}
		s, err := a.API.CreateRetroSession(ctx, services.CreateRetroSessionRequest{Name: name, TeamID: *team, SprintID: *sprint})
		if err != nil {
			return err
		}
		fmt.Println(s.ID)
		return nil
	case "delete":
		if len(args) != 1 {
			return errors.New("usage: sessions delete <id>")
		}
		return a.API.DeleteRetroSession(ctx, args[0])
	}
	return fmt.Errorf("unknown sessions command %q", sub)
}

func board(a *app.App, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: board <session-id>")
	}
	err := ui.Run(ui.Session{
		ID:     args[0],
		UserID: a.Users.UserID(),
		Hooks: ui.Hooks{
			Board:       a.Board,
			Polls:       a.PollHooks,
			ActionItems: a.ActionItems,
			Steps:       a.Steps,
		},
		Sync:     a.Session,
		Stores:   a.Stores(),
		Toasts:   a,
		SignOuts: a,
	})
	switch {
	case errors.Is(err, handlers.ErrSessionNotFound):
		return fmt.Errorf("session %s does not exist", args[0])
	case errors.Is(err, ui.ErrSignedOut):
		return fmt.Errorf("%w, run `retro login` to sign in again", app.ErrSignedOut)
	}
	return err
}

func polls(ctx context.Context, a *app.App, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: polls <session-id> [create <question> <option>...]")
	}
	sessionID, args := args[0], args[1:]
	if len(args) > 0 && args[0] == "create" {
		if len(args) < 4 {
			return errors.New("usage: polls <session-id> create <question> <option> <option>...")
		}
		q := database.PollQuestion{Text: args[1], RetroSessionID: sessionID}
		for _, o := range args[2:] {
			q.Options = append(q.Options, database.Option{Text: o})
		}
		created, err := a.API.CreatePollQuestion(ctx, q)
		if err != nil {
			return err
		}
		fmt.Println(created.ID)
		return nil
	}
	qs, err := a.API.ListPollQuestions(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, q := range qs {
		fmt.Printf("%s (%d votes)\n", q.Text, q.Votes)
		for i, o := range q.Options {
			fmt.Printf("  %d. %s  %d\n", i+1, o.Text, len(o.Votes))
		}
	}
	return nil
}

func actionItems(ctx context.Context, a *app.App, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: actions <session-id> [create <title> | done <id> | delete <id>]")
	}
	sessionID, args := args[0], args[1:]
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	switch sub {
	case "list":
		items, err := a.API.ListActionItems(ctx, sessionID)
		if err != nil {
			return err
		}
		w := table()
		fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPRIORITY\tASSIGNEE")
		for _, it := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", it.ID, it.Title, it.Status, it.Priority, it.AssigneeTo)
		}
		return w.Flush()
	case "create":
		fs := flag.NewFlagSet("actions create", flag.ContinueOnError)
		priority := fs.String("priority", "", "priority")
		assignee := fs.String("assignee", "", "assignee user id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		title := strings.Join(fs.Args(), " ")
		if title == "" {
			return errors.New("an action item title is required")
		}
		it, err := a.API.CreateActionItem(ctx, database.ActionItem{
			Title:          title,
			Status:         database.ActionTodo,
			Priority:       *priority,
			AssigneeTo:     *assignee,
			RetroSessionID: sessionID,
		})
		if err != nil {
			return err
		}
		fmt.Println(it.ID)
		return nil
	case "done":
		if len(args) != 1 {
			return errors.New("usage: actions <session-id> done <id>")
		}
		items, err := a.API.ListActionItems(ctx, sessionID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if it.ID == args[0] {
				it.Status = database.ActionDone
				_, err := a.API.UpdateActionItem(ctx, it)
				return err
			}
		}
		return fmt.Errorf("no action item %s in session %s", args[0], sessionID)
	case "delete":
		if len(args) != 1 {
			return errors.New("usage: actions <session-id> delete <id>")
		}
		return a.API.DeleteActionItem(ctx, args[0])
	}
	return fmt.Errorf("unknown actions command %q", sub)
}

func teams(ctx context.Context, a *app.App, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	switch sub {
	case "list":
		list, err := a.API.ListTeams(ctx)
		if err != nil {
			return err
		}
		w := table()
		fmt.Fprintln(w, "ID\tNAME\tMEMBERS")
		for _, t := range list {
			fmt.Fprintf(w, "%s\t%s\t%d\n", t.ID, t.Name, len(t.Members))
		}
		return w.Flush()
	case "create":
		if len(args) == 0 {
			return errors.New("usage: teams create <name>")
		}
		t, err := a.API.CreateTeam(ctx, database.Team{Name: strings.Join(args, " ")})
		if err != nil {
			return err
		}
		fmt.Println(t.ID)
		return nil
	case "delete":
		if len(args) != 1 {
			return errors.New("usage: teams delete <id>")
		}
		return a.API.DeleteTeam(ctx, args[0])
	}
	return fmt.Errorf("unknown teams command %q", sub)
}

func sprints(ctx context.Context, a *app.App, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: sprints <team-id> [create <name>]")
	}
	teamID, args := args[0], args[1:]
	if len(args) > 0 && args[0] == "create" {
		if len(args) < 2 {
			return errors.New("usage: sprints <team-id> create <name>")
		}
		s, err := a.API.CreateSprint(ctx, database.Sprint{Name: strings.Join(args[1:], " "), TeamID: teamID})
		if err != nil {
			return err
		}
		fmt.Println(s.ID)
		return nil
	}
	list, err := a.API.ListSprints(ctx, teamID)
	if err != nil {
		return err
	}
	w := table()
	fmt.Fprintln(w, "ID\tNAME\tSTART\tEND")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Name, s.StartDate, s.EndDate)
	}
	return w.Flush()
}

func table() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
