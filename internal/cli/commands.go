// Package cli implements the interactive command-line interface for
// Murmurlink: connection status, channel and user listings, and the
// desired-state commands (join, listen, voice targets).
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/murmurlink-project/murmurlink/internal/client"
	"github.com/murmurlink-project/murmurlink/internal/config"
	"github.com/murmurlink-project/murmurlink/internal/db"
	"github.com/murmurlink-project/murmurlink/internal/events"
)

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	voice    *client.Client
	database *db.Database
}

// NewCLI creates a new CLI handler.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, voice *client.Client, database *db.Database) *CLI {
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		voice:    voice,
		database: database,
	}
}

// Start begins the interactive CLI loop.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nMurmurlink CLI ready. Type 'help' for available commands.")
	fmt.Println("─────────────────────────────────────────────────────")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Print("murmurlink> ")
		if !scanner.Scan() {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if err := c.execute(ctx, cmd, args); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "channels", "ch":
		c.printChannels()
	case "users", "u":
		c.printUsers()
	case "talkers", "t":
		c.printTalkers()
	case "history":
		return c.printHistory()
	case "join", "j":
		return c.cmdJoin(args)
	case "listen", "l":
		return c.cmdListen(args)
	case "target":
		return c.cmdTarget(args)
	case "settarget":
		return c.cmdSetTarget(args)
	case "volume", "vol":
		return c.cmdVolume(args)
	case "quit", "exit", "q":
		fmt.Println("Shutting down Murmurlink...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║  Murmurlink Commands                                         ║")
	fmt.Println("╠══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  status             Connection and transport status          ║")
	fmt.Println("║  channels           List server channels                     ║")
	fmt.Println("║  users              List connected users                     ║")
	fmt.Println("║  talkers            List who is talking right now            ║")
	fmt.Println("║  history            Show connection history                  ║")
	fmt.Println("║  join <name>        Move to a channel (created if missing)   ║")
	fmt.Println("║  listen add <name>  Start listening to a channel             ║")
	fmt.Println("║  listen rm <name>   Stop listening to a channel              ║")
	fmt.Println("║  target <id> user|channel <names...>  Build a voice target   ║")
	fmt.Println("║  settarget <id>     Select voice target (0 = normal talk)    ║")
	fmt.Println("║  volume <name> <v>  Override a user's playback volume        ║")
	fmt.Println("║  quit               Shutdown Murmurlink                      ║")
	fmt.Println("║  help               Show this help message                   ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

// printStatus displays the connection state and transport health.
func (c *CLI) printStatus() {
	info := c.voice.GetConnectionInfo()
	stats := c.voice.GetStats()

	state := "disconnected"
	if info.IsConnecting {
		state = "connecting"
	} else if info.IsConnected {
		state = "connected"
	}

	voicePath := "tcp tunnel"
	if stats.HasUDP {
		voicePath = "udp"
	}

	fmt.Printf("\n  Server:       %s\n", info.Address)
	fmt.Printf("  Username:     %s\n", info.Username)
	fmt.Printf("  State:        %s\n", state)
	fmt.Printf("  Voice path:   %s\n", voicePath)
	fmt.Printf("  TCP ping:     %.1f ms (var %.1f, %d packets)\n", stats.TCPPingAvg, stats.TCPPingVar, stats.TCPPackets)
	fmt.Printf("  UDP ping:     %.1f ms (var %.1f, %d packets)\n", stats.UDPPingAvg, stats.UDPPingVar, stats.UDPPackets)
	fmt.Printf("  Crypt:        good=%d late=%d lost=%d resync=%d\n",
		stats.CryptGood, stats.CryptLate, stats.CryptLost, stats.CryptResync)
	fmt.Printf("  Server side:  good=%d late=%d lost=%d resync=%d\n",
		stats.RemoteGood, stats.RemoteLate, stats.RemoteLost, stats.RemoteResync)
	fmt.Println()
}

// printChannels displays the channel tree in a formatted table.
func (c *CLI) printChannels() {
	channels := c.voice.GetChannels()
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"ID", "Parent", "Name", "Temporary"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, ch := range channels {
		tw.Append([]string{
			fmt.Sprintf("%d", ch.ID),
			fmt.Sprintf("%d", ch.Parent),
			ch.Name,
			fmt.Sprintf("%v", ch.Temporary),
		})
	}

	tw.Render()
	fmt.Println()
}

// printUsers displays the connected users in a formatted table.
func (c *CLI) printUsers() {
	users := c.voice.GetUsers()
	sort.Slice(users, func(i, j int) bool { return users[i].Session < users[j].Session })

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Session", "Name", "Channel"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, u := range users {
		tw.Append([]string{
			fmt.Sprintf("%d", u.Session),
			u.Name,
			u.Channel,
		})
	}

	tw.Render()
	fmt.Println()
}

// printTalkers lists everyone talking right now.
func (c *CLI) printTalkers() {
	talkers := c.voice.GetTalkers()
	if len(talkers) == 0 {
		fmt.Println("Nobody is talking.")
		return
	}
	fmt.Printf("Talking: %s\n", strings.Join(talkers, ", "))
}

// printHistory displays the persisted connection history.
func (c *CLI) printHistory() error {
	if c.database == nil {
		return fmt.Errorf("database disabled")
	}

	records, err := c.database.ConnectionHistory(10)
	if err != nil {
		return err
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Server", "Username", "Last Connected", "Count"})
	tw.SetBorder(true)

	for _, r := range records {
		tw.Append([]string{
			r.Address,
			r.Username,
			r.LastConnected.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", r.ConnectCount),
		})
	}

	tw.Render()
	fmt.Println()
	return nil
}

// cmdJoin updates the desired channel.
func (c *CLI) cmdJoin(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("channel name required")
	}
	name := strings.Join(args, " ")
	c.voice.SetChannel(name)
	fmt.Printf("Joining '%s' (created as temporary if it doesn't exist)\n", name)
	return nil
}

// cmdListen mutates the listen-channel set.
func (c *CLI) cmdListen(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: listen add|rm <channel>")
	}

	name := strings.Join(args[1:], " ")
	switch args[0] {
	case "add":
		c.voice.AddListenChannel(name)
		fmt.Printf("Listening to '%s'\n", name)
	case "rm", "remove":
		c.voice.RemoveListenChannel(name)
		fmt.Printf("No longer listening to '%s'\n", name)
	default:
		return fmt.Errorf("usage: listen add|rm <channel>")
	}
	return nil
}

// cmdTarget queues a voice-target rebuild.
func (c *CLI) cmdTarget(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: target <id> user|channel <names...>")
	}

	id, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil || id == 0 || id > 30 {
		return fmt.Errorf("target id must be 1..30")
	}

	cfgT := client.VoiceTargetConfig{}
	switch args[1] {
	case "user", "users":
		cfgT.Users = args[2:]
	case "channel", "channels":
		cfgT.Channels = args[2:]
	default:
		return fmt.Errorf("usage: target <id> user|channel <names...>")
	}

	c.voice.UpdateVoiceTarget(uint8(id), cfgT)
	fmt.Printf("Voice target %d queued\n", id)
	return nil
}

// cmdSetTarget selects the active voice target.
func (c *CLI) cmdSetTarget(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: settarget <id>")
	}
	id, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil || id > 30 {
		return fmt.Errorf("target id must be 0..30")
	}
	c.voice.SetVoiceTarget(uint8(id))
	fmt.Printf("Active voice target: %d\n", id)
	return nil
}

// cmdVolume overrides and persists a user's playback volume.
func (c *CLI) cmdVolume(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: volume <name> <0.0..2.0>")
	}

	volume, err := strconv.ParseFloat(args[1], 32)
	if err != nil || volume < 0 || volume > 2 {
		return fmt.Errorf("volume must be between 0.0 and 2.0")
	}

	c.voice.SetClientVolumeOverride(args[0], float32(volume))
	if c.database != nil {
		if err := c.database.SetVolumeOverride(args[0], float32(volume)); err != nil {
			return err
		}
	}
	fmt.Printf("Volume for '%s' set to %.2f\n", args[0], volume)
	return nil
}
