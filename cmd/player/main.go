// Command player is a terminal client for the game: it speaks the same
// channel protocol as the web frontend and renders each frame as plain text.
// Mostly useful for demos and for poking at a running server.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/southernadd-cmyk/kanbanpizza2/internal/client"
	"github.com/southernadd-cmyk/kanbanpizza2/internal/game"
	"github.com/southernadd-cmyk/kanbanpizza2/internal/sio"
)

func main() {
	var (
		server      string
		room        string
		password    string
		facilitator bool
	)
	cmd := &cobra.Command{
		Use:           "player",
		Short:         "Terminal player for the kanban pizza game.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), server, room, password, facilitator)
		},
	}
	cmd.Flags().StringVarP(&server, "server", "s", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVarP(&room, "room", "r", "", "room to join on startup")
	cmd.Flags().StringVarP(&password, "password", "P", "", "room password")
	cmd.Flags().BoolVar(&facilitator, "facilitator", false, "poll the facilitator dashboard")
	cobra.CheckErr(cmd.Execute())
}

func run(ctx context.Context, server, room, password string, facilitator bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger().Level(zerolog.WarnLevel)

	sock, err := sio.New(server, log)
	if err != nil {
		return err
	}
	session := client.NewSession(sock, client.NewFileCredentials(client.DefaultCredentialsPath()), log)
	moderation := client.NewModeration(client.DefaultModerationURL, log)
	c := client.New(session, moderation, log)
	c.SetFacilitatorView(facilitator)

	var mu sync.Mutex
	var lastPlan client.RenderPlan

	c.OnRender(func(plan client.RenderPlan) {
		mu.Lock()
		lastPlan = plan
		mu.Unlock()
		render(plan)
	})
	c.OnNotice(func(text string) { fmt.Println("* " + text) })
	c.OnJoinError(func(text string) { fmt.Println("! " + text) })
	c.OnTime(func(t game.TimeResponse) {
		fmt.Printf("\r[%s] %ds remaining  ", t.Phase, t.RoundTimeRemaining)
	})
	c.OnRoomList(func(list game.RoomList) {
		fmt.Println("rooms:")
		for name, n := range list.Rooms {
			fmt.Printf("  %s (%d players)\n", name, n)
		}
	})
	c.OnStatus(func(st sio.Status) { fmt.Printf("* connection %s\n", st) })

	go c.Run(ctx)

	if room != "" {
		c.JoinRoom(ctx, room, password)
	}

	go readCommands(ctx, c, &mu, &lastPlan)

	<-ctx.Done()
	return nil
}

func readCommands(ctx context.Context, c *client.Client, mu *sync.Mutex, lastPlan *client.RenderPlan) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "help":
			fmt.Print(helpText)
		case "rooms":
			c.RequestRoomList()
		case "join":
			if len(fields) < 3 {
				fmt.Println("usage: join <room> <password>")
				continue
			}
			c.JoinRoom(ctx, fields[1], fields[2])
		case "prepare":
			if len(fields) < 2 {
				fmt.Println("usage: prepare base|sauce|ham|pineapple")
				continue
			}
			c.PrepareIngredient(game.IngredientType(fields[1]))
		case "take":
			if len(fields) < 2 {
				fmt.Println("usage: take <ingredient-id> [target-sid]")
				continue
			}
			target := ""
			if len(fields) > 2 {
				target = fields[2]
			}
			mu.Lock()
			var item game.Ingredient
			for _, p := range lastPlan.Pool {
				if p.ID == fields[1] {
					item = game.Ingredient{ID: p.ID, Type: p.Type}
					break
				}
			}
			mu.Unlock()
			if item.ID == "" {
				fmt.Println("no such ingredient in the pool")
				continue
			}
			c.TakeIngredient(item, target)
		case "build":
			target := ""
			if len(fields) > 1 {
				target = fields[1]
			}
			c.SubmitPizza(target)
		case "oven":
			if len(fields) < 2 {
				fmt.Println("usage: oven <pizza-id>")
				continue
			}
			c.MoveToOven(fields[1])
		case "toggle":
			on := len(fields) > 1 && fields[1] == "on"
			c.ToggleOven(on)
		case "start":
			c.StartRound()
		case "quit", "exit":
			return
		default:
			fmt.Println("unknown command, try: help")
		}
	}
}

const helpText = `commands:
  rooms                      list open rooms
  join <room> <password>     join or create a room
  start                      start the next round
  prepare <type>             add an ingredient to the pool
  take <id> [sid]            take a pool ingredient (into sid's builder after round 1)
  build [sid]                submit a builder as a pizza
  oven <pizza-id>            move a built pizza into the oven
  toggle on|off              switch the oven
  quit
`

func render(p client.RenderPlan) {
	fmt.Printf("\n== round %d | %s | %d players ==\n", p.Round, p.Phase, p.PlayerCount)
	if p.StartRoundVisible {
		fmt.Println("[start] to begin the round")
	}
	if !p.GameAreaVisible {
		return
	}
	if p.OrdersVisible {
		fmt.Printf("orders (%d):\n", p.OrderCount)
		for _, o := range p.Orders {
			fmt.Printf("  %s %s\n", o.ID, o.Label)
		}
	}
	fmt.Print("pool:")
	for _, item := range p.Pool {
		fmt.Printf(" %s/%s", item.ID, item.Type)
	}
	fmt.Println()
	fmt.Println(p.BuilderHeading + ":")
	if p.OwnBuilderVisible {
		fmt.Printf("  %v\n", p.OwnBuilder)
	}
	for _, b := range p.SharedBuilders {
		fmt.Printf("  %s: %v\n", b.SID, b.Ingredients)
	}
	printColumn("built", p.Built)
	printColumn("oven", p.Oven)
	printColumn("completed", p.Completed)
	printColumn("wasted", p.Wasted)
	if len(p.Built) > 0 {
		fmt.Printf("oven button: %q enabled=%v\n", p.Built[0].MoveToOven.Label, p.Built[0].MoveToOven.Enabled)
	}
}

func printColumn(name string, cards []client.PizzaCard) {
	if len(cards) == 0 {
		return
	}
	fmt.Printf("%s:", name)
	for _, card := range cards {
		fmt.Printf(" %s/%s", card.ID, card.Type)
		if card.Status != "" {
			fmt.Printf("(%s)", card.Status)
		}
	}
	fmt.Println()
}
