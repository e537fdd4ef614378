package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/park285/sealed-battleship/internal/battleship"
	"github.com/park285/sealed-battleship/internal/bsclient"
	"github.com/park285/sealed-battleship/pkg/battledto"
)

const usage = `bscheck <command> [flags]

commands:
  commit   place a random fleet, save it and print the commitment
  init     open a game with a saved fleet
  join     join a game with a saved fleet
  fire     fire at a cell
  answer   answer the pending shot truthfully from a saved fleet
  reveal   reveal a saved fleet after the game is over
  show     print a game snapshot
  games    list the games of a player
  watch    print events of a game

environment: BS_NODE_URL, BS_EVENTS_URL, BS_PLAYER (or -player)`

type env struct {
	nodeURL   string
	eventsURL string
	player    string
}

func main() {
	_ = godotenv.Load()
	log.SetFlags(0)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	e := env{
		nodeURL:   getenvDefault("BS_NODE_URL", "http://127.0.0.1:8080"),
		eventsURL: getenvDefault("BS_EVENTS_URL", "ws://127.0.0.1:8081"),
		player:    strings.TrimSpace(os.Getenv("BS_PLAYER")),
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "commit":
		err = runCommit(e, args)
	case "init":
		err = runInit(e, args)
	case "join":
		err = runJoin(e, args)
	case "fire":
		err = runFire(e, args)
	case "answer":
		err = runAnswer(e, args)
	case "reveal":
		err = runReveal(e, args)
	case "show":
		err = runShow(e, args)
	case "games":
		err = runGames(e, args)
	case "watch":
		err = runWatch(e, args)
	case "help", "-h", "--help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		if pe, ok := bsclient.ProtocolError(err); ok {
			log.Fatalf("%s (%s): %v", pe.Code, pe.Kind, err)
		}
		log.Fatalf("%s: %v", cmd, err)
	}
}

// newFlags adds the flags every subcommand shares.
func newFlags(name string, e *env) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&e.player, "player", e.player, "player identity (X-Player-Id)")
	fs.StringVar(&e.nodeURL, "node", e.nodeURL, "transaction API base URL")
	return fs
}

func (e env) client() *bsclient.Client {
	return bsclient.NewClient(e.nodeURL, bsclient.WithPlayer(e.player), bsclient.WithTimeout(8*time.Second))
}

func timeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

func runCommit(e env, args []string) error {
	fs := newFlags("commit", &e)
	out := fs.String("out", "fleet.json", "where to save the fleet secret")
	seed := fs.Uint64("seed", 0, "deterministic layout seed (0 = random)")
	offline := fs.Bool("offline", false, "use standard rules without asking the node")
	_ = fs.Parse(args)

	rules := battleship.StandardRules()
	if !*offline {
		ctx, cancel := timeout()
		defer cancel()
		rv, err := e.client().Rules(ctx)
		if err != nil {
			return fmt.Errorf("fetch rules: %w", err)
		}
		rules = battleship.Rules{BoardSize: rv.BoardSize}
		for _, s := range rv.Ships {
			rules.Fleet = append(rules.Fleet, s.Length)
		}
	}
	var secret *bsclient.FleetSecret
	var err error
	if *seed != 0 {
		secret, err = bsclient.NewFleetSecret(rules, battleship.SeededRand(*seed))
	} else {
		secret, err = bsclient.NewFleetSecret(rules, nil)
	}
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(*out); statErr == nil {
		return fmt.Errorf("%s exists; refusing to overwrite a fleet secret", *out)
	}
	if err := secret.Save(*out); err != nil {
		return err
	}
	printBoard(secret.Board.String(), rules.BoardSize, func(c byte) byte {
		if c == '1' {
			return '#'
		}
		return '.'
	})
	fmt.Printf("commitment %s\nsaved to %s (keep it until the game is verified)\n", secret.Commitment(), *out)
	return nil
}

func runInit(e env, args []string) error {
	fs := newFlags("init", &e)
	secretPath := fs.String("secret", "fleet.json", "fleet secret file")
	game := fs.String("game", "", "game id (empty = node assigns one)")
	_ = fs.Parse(args)

	secret, err := bsclient.LoadFleetSecret(*secretPath)
	if err != nil {
		return err
	}
	ctx, cancel := timeout()
	defer cancel()
	v, err := e.client().CreateGame(ctx, *game, secret.Commitment())
	if err != nil {
		return err
	}
	fmt.Printf("game %s created, waiting for an opponent\n", v.ID)
	return nil
}

func runJoin(e env, args []string) error {
	fs := newFlags("join", &e)
	secretPath := fs.String("secret", "fleet.json", "fleet secret file")
	game := fs.String("game", "", "game id")
	_ = fs.Parse(args)

	secret, err := bsclient.LoadFleetSecret(*secretPath)
	if err != nil {
		return err
	}
	ctx, cancel := timeout()
	defer cancel()
	v, err := e.client().Join(ctx, *game, secret.Commitment())
	if err != nil {
		return err
	}
	fmt.Printf("joined %s against %s\n", v.ID, v.PlayerA)
	return nil
}

func runFire(e env, args []string) error {
	fs := newFlags("fire", &e)
	game := fs.String("game", "", "game id")
	x := fs.Int("x", -1, "column")
	y := fs.Int("y", -1, "row")
	_ = fs.Parse(args)

	ctx, cancel := timeout()
	defer cancel()
	v, err := e.client().Fire(ctx, *game, *x, *y)
	if err != nil {
		return err
	}
	fmt.Printf("fired at (%d,%d); %s\n", *x, *y, v.Phase)
	return nil
}

func runAnswer(e env, args []string) error {
	fs := newFlags("answer", &e)
	secretPath := fs.String("secret", "fleet.json", "fleet secret file")
	game := fs.String("game", "", "game id")
	_ = fs.Parse(args)

	secret, err := bsclient.LoadFleetSecret(*secretPath)
	if err != nil {
		return err
	}
	c := e.client()
	ctx, cancel := timeout()
	defer cancel()
	v, err := c.Game(ctx, *game)
	if err != nil {
		return err
	}
	if v.PendingShot == nil {
		return errors.New("no shot is waiting for an answer")
	}
	hit, err := secret.Answer(v.PendingShot.X, v.PendingShot.Y)
	if err != nil {
		return err
	}
	res, err := c.RevealShot(ctx, *game, hit)
	if err != nil {
		return err
	}
	word := "miss"
	if res.Shot.Hit {
		word = "hit"
	}
	fmt.Printf("(%d,%d) %s; %s\n", res.Shot.X, res.Shot.Y, word, res.Game.Phase)
	if res.Game.GameOver {
		fmt.Printf("winner: %s\n", res.Game.WinnerID)
	}
	return nil
}

func runReveal(e env, args []string) error {
	fs := newFlags("reveal", &e)
	secretPath := fs.String("secret", "fleet.json", "fleet secret file")
	game := fs.String("game", "", "game id")
	slot := fs.String("slot", "", "a or b (default: looked up from the game)")
	_ = fs.Parse(args)

	secret, err := bsclient.LoadFleetSecret(*secretPath)
	if err != nil {
		return err
	}
	c := e.client()
	ctx, cancel := timeout()
	defer cancel()
	s := strings.ToLower(strings.TrimSpace(*slot))
	if s == "" {
		v, err := c.Game(ctx, *game)
		if err != nil {
			return err
		}
		switch c.Player() {
		case v.PlayerA:
			s = "a"
		case v.PlayerB:
			s = "b"
		default:
			return fmt.Errorf("%q is not seated in %s", c.Player(), *game)
		}
	}
	v, err := c.RevealBoard(ctx, *game, s, secret.Board, secret.Salt)
	if err != nil {
		return err
	}
	fmt.Printf("board %s revealed; %s\n", strings.ToUpper(s), v.Phase)
	return nil
}

func runShow(e env, args []string) error {
	fs := newFlags("show", &e)
	game := fs.String("game", "", "game id")
	asJSON := fs.Bool("json", false, "print raw JSON")
	_ = fs.Parse(args)

	ctx, cancel := timeout()
	defer cancel()
	v, err := e.client().Game(ctx, *game)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(v)
	}
	printView(v)
	return nil
}

func runGames(e env, args []string) error {
	fs := newFlags("games", &e)
	_ = fs.Parse(args)

	ctx, cancel := timeout()
	defer cancel()
	list, err := e.client().GamesOf(ctx, e.player)
	if err != nil {
		return err
	}
	for _, g := range list.Games {
		fmt.Printf("%-38s %-16s A=%s B=%s turn=%s\n", g.ID, g.Phase, g.PlayerA, g.PlayerB, g.Turn)
	}
	return nil
}

func runWatch(e env, args []string) error {
	fs := newFlags("watch", &e)
	game := fs.String("game", "", "game id (empty = all games)")
	events := fs.String("events", e.eventsURL, "event feed base URL")
	dur := fs.Duration("for", 0, "stop after this long (0 = until interrupted)")
	_ = fs.Parse(args)

	u := strings.TrimRight(*events, "/") + "/events"
	if *game != "" {
		u += "?game=" + *game
	}
	w := bsclient.NewEventWatcher(u, 5)
	w.SetPlayer(e.player)
	w.OnStateChange(func(s bsclient.WatchState) { log.Printf("feed %s", s) })
	w.OnEvent(func(ev *battledto.Event) {
		text := ev.Text
		if text == "" {
			text = fmt.Sprint(ev.Attributes)
		}
		fmt.Printf("%s %-14s %s %s\n", ev.At.Format(time.TimeOnly), ev.Type, ev.GameID, text)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if *dur > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *dur)
		defer cancel()
	}
	if err := w.Connect(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	cctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return w.Close(cctx)
}

func printView(v *battledto.GameView) {
	fmt.Printf("game %s  %s  turn %s\n", v.ID, v.Phase, v.Turn)
	fmt.Printf("A %s (%d hits taken)  B %s (%d hits taken)\n", v.PlayerA, v.HitCountA, orDash(v.PlayerB), v.HitCountB)
	if v.PendingShot != nil {
		fmt.Printf("pending shot by %s at (%d,%d)\n", v.PendingBy, v.PendingShot.X, v.PendingShot.Y)
	}
	if v.GameOver {
		fmt.Printf("winner %s  revealed A=%v B=%v\n", v.WinnerID, v.RevealedA, v.RevealedB)
	}
	same := func(c byte) byte { return c }
	fmt.Println("\nshots on A")
	printBoard(v.HitsA, v.Rules.BoardSize, same)
	fmt.Println("\nshots on B")
	printBoard(v.HitsB, v.Rules.BoardSize, same)
}

func printBoard(cells string, size int, glyph func(byte) byte) {
	if size <= 0 {
		return
	}
	var b strings.Builder
	b.WriteString("   ")
	for x := 0; x < size; x++ {
		fmt.Fprintf(&b, "%d", x%10)
	}
	b.WriteByte('\n')
	for y := 0; y*size < len(cells); y++ {
		fmt.Fprintf(&b, "%2d ", y)
		for x := 0; x < size && y*size+x < len(cells); x++ {
			b.WriteByte(glyph(cells[y*size+x]))
		}
		b.WriteByte('\n')
	}
	fmt.Print(b.String())
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func getenvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
