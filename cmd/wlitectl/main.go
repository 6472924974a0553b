package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/matheus3301/wlite/internal/api"
	"github.com/matheus3301/wlite/internal/client"
	"github.com/matheus3301/wlite/internal/model"
	"github.com/matheus3301/wlite/internal/profile"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fail(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "profiles" {
		cmdProfiles(*jsonFlag)
		return
	}

	socketPath := profile.SocketPath(profileName)
	c, err := client.New(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for profile %q: %v\n", profileName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		namespace := ""
		if len(args) > 1 {
			namespace = args[1]
		}
		cmdWatch(c, namespace)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	out := printer{json: *jsonFlag}
	switch args[0] {
	case "status":
		resp, err := c.Session.GetStatus(ctx)
		check(err)
		out.print(resp, func() {
			fmt.Printf("Profile: %s\n", resp.Profile)
			fmt.Printf("State:   %s\n", resp.State)
			if resp.UserID != "" {
				fmt.Printf("User:    %s (%s)\n", resp.UserName, resp.Phone)
			}
			fmt.Printf("Backend: %s (available: %v)\n", resp.BackendURL, resp.BackendAvailable)
			fmt.Printf("Chats:   %d  Messages: %d\n", resp.ChatCount, resp.MessageCount)
			fmt.Printf("Uptime:  %dms\n", resp.UptimeMs)
		})
	case "register":
		need(args, 3, "register <phone> <first name> [last name]")
		req := &api.RegisterRequest{Phone: args[1], FirstName: args[2]}
		if len(args) > 3 {
			req.LastName = strings.Join(args[3:], " ")
		}
		resp, err := c.Session.Register(ctx, req)
		check(err)
		out.print(resp, func() { fmt.Printf("Registered %s (%s)\n", resp.User.Name, resp.User.ID) })
	case "login":
		need(args, 2, "login <phone>")
		resp, err := c.Session.Login(ctx, args[1])
		check(err)
		out.print(resp, func() { fmt.Printf("Logged in as %s\n", resp.User.Name) })
	case "logout":
		check(c.Session.Logout(ctx))
		fmt.Println("Logged out")
	case "whoami":
		resp, err := c.Session.Whoami(ctx)
		check(err)
		out.print(resp, func() { fmt.Printf("%s %s (%s)\n", resp.User.ID, resp.User.Name, resp.User.Phone) })
	case "profile":
		req := parseProfileFlags(args[1:])
		resp, err := c.Session.UpdateProfile(ctx, req)
		check(err)
		out.print(resp, func() {
			fmt.Printf("%s %s (%s)\n", resp.User.ID, sanitizeForTerminal(resp.User.Name), resp.User.Phone)
			if resp.User.Status != "" {
				fmt.Printf("About: %s\n", sanitizeForTerminal(resp.User.Status))
			}
		})
	case "sync":
		need(args, 2, "sync <start|stop|status|now>")
		cmdSync(ctx, c, args[1], out)
	case "chats":
		cmdChats(ctx, c, args[1:], out)
	case "open":
		need(args, 2, "open <chat id>")
		resp, err := c.Chat.OpenChat(ctx, args[1])
		check(err)
		msgs, err := c.Message.ListMessages(ctx, resp.Chat.ID)
		check(err)
		out.print(msgs, func() { printMessages(resp.Chat, msgs.Messages) })
	case "send":
		need(args, 3, "send <chat id> <text>")
		resp, err := c.Message.SendText(ctx, &api.SendTextRequest{ChatID: args[1], Text: strings.Join(args[2:], " ")})
		check(err)
		out.print(resp, func() { fmt.Printf("Sent %s at %s\n", resp.Message.ID, resp.Message.Timestamp) })
	case "voice":
		need(args, 4, "voice <chat id> <seconds> <audio url>")
		secs, err := strconv.Atoi(args[2])
		check(err)
		resp, err := c.Message.SendVoice(ctx, &api.SendVoiceRequest{ChatID: args[1], Duration: secs, AudioURL: args[3]})
		check(err)
		out.print(resp, func() { fmt.Printf("Sent voice message %s\n", resp.Message.ID) })
	case "read":
		need(args, 2, "read <chat id>")
		resp, err := c.Message.MarkRead(ctx, args[1])
		check(err)
		out.print(resp, func() { fmt.Printf("Marked %d message(s) read\n", resp.Updated) })
	case "status-post":
		need(args, 2, "status-post <text>")
		resp, err := c.Story.CreateStatus(ctx, &api.CreateStatusRequest{Content: strings.Join(args[1:], " ")})
		check(err)
		out.print(resp, func() { fmt.Printf("Posted status %s, expires %s\n", resp.Status.ID, resp.Status.ExpiresAt.Local().Format(time.DateTime)) })
	case "statuses":
		mine, err := c.Story.ListMine(ctx)
		check(err)
		others, err := c.Story.ListOthers(ctx)
		check(err)
		out.print(map[string]any{"mine": mine.Statuses, "others": others.Statuses}, func() {
			printStatuses("Mine", mine.Statuses)
			printStatuses("Others", others.Statuses)
		})
	case "status-view":
		need(args, 2, "status-view <status id>")
		resp, err := c.Story.ViewStatus(ctx, args[1])
		check(err)
		out.print(resp, func() { fmt.Printf("%s: %s\n", resp.Status.UserID, sanitizeForTerminal(resp.Status.Content)) })
	case "contacts":
		cmdContacts(ctx, c, args[1:], out)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: wlitectl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                          Show daemon status")
	fmt.Fprintln(os.Stderr, "  register <phone> <first> [last]  Create an account")
	fmt.Fprintln(os.Stderr, "  login <phone> | logout | whoami")
	fmt.Fprintln(os.Stderr, "  profile [--first f] [--last l] [--about s] [--avatar url]  Edit your profile")
	fmt.Fprintln(os.Stderr, "  sync start|stop|status|now      Control polling")
	fmt.Fprintln(os.Stderr, "  chats [search <q>]              List or search chats")
	fmt.Fprintln(os.Stderr, "  chats new <user id>             Open a direct chat")
	fmt.Fprintln(os.Stderr, "  chats group <name> <ids...>     Create a group")
	fmt.Fprintln(os.Stderr, "  chats community <name> <ids...> Create a community")
	fmt.Fprintln(os.Stderr, "  open <chat id>                  Open a chat and show messages")
	fmt.Fprintln(os.Stderr, "  send <chat id> <text>           Send a message")
	fmt.Fprintln(os.Stderr, "  voice <chat id> <secs> <url>    Send a voice message")
	fmt.Fprintln(os.Stderr, "  read <chat id>                  Mark a chat's messages read")
	fmt.Fprintln(os.Stderr, "  status-post <text> | statuses | status-view <id>")
	fmt.Fprintln(os.Stderr, "  contacts [add <name> <phone> | search <q>]")
	fmt.Fprintln(os.Stderr, "  watch [namespace]               Stream daemon events")
	fmt.Fprintln(os.Stderr, "  profiles                        List local profiles")
}

func cmdSync(ctx context.Context, c *client.Client, sub string, out printer) {
	var (
		resp *api.SyncStatus
		err  error
	)
	switch sub {
	case "start":
		resp, err = c.Sync.StartSync(ctx)
	case "stop":
		resp, err = c.Sync.StopSync(ctx)
	case "status":
		resp, err = c.Sync.GetSyncStatus(ctx)
	case "now":
		check(c.Sync.PollNow(ctx))
		fmt.Println("Poll complete")
		return
	default:
		fail(fmt.Errorf("unknown sync subcommand: %s", sub))
	}
	check(err)
	out.print(resp, func() {
		fmt.Printf("State:   %s\n", resp.State)
		fmt.Printf("Syncing: %v\n", resp.Syncing)
		fmt.Printf("Backend available: %v\n", resp.BackendAvailable)
	})
}

func cmdChats(ctx context.Context, c *client.Client, args []string, out printer) {
	var (
		list *api.ChatList
		err  error
	)
	switch {
	case len(args) == 0:
		list, err = c.Chat.ListChats(ctx)
	case args[0] == "search" && len(args) > 1:
		list, err = c.Chat.SearchChats(ctx, strings.Join(args[1:], " "))
	case args[0] == "new" && len(args) == 2:
		resp, err := c.Chat.CreateDirect(ctx, args[1])
		check(err)
		out.print(resp, func() { fmt.Printf("%s %s\n", resp.Chat.ID, resp.Chat.Name) })
		return
	case (args[0] == "group" || args[0] == "community") && len(args) > 2:
		resp, err := c.Chat.CreateGroup(ctx, &api.CreateGroupRequest{
			Name:      args[1],
			Members:   args[2:],
			Community: args[0] == "community",
		})
		check(err)
		out.print(resp, func() { fmt.Printf("%s %s (%d members)\n", resp.Chat.ID, resp.Chat.Name, len(resp.Chat.Participants)) })
		return
	default:
		fail(fmt.Errorf("usage: chats [search <q> | new <user id> | group|community <name> <ids...>]"))
	}
	check(err)
	out.print(list, func() {
		if len(list.Chats) == 0 {
			fmt.Println("No chats.")
			return
		}
		for _, ch := range list.Chats {
			unread := ""
			if ch.UnreadCount > 0 {
				unread = fmt.Sprintf(" (%d)", ch.UnreadCount)
			}
			fmt.Printf("%-38s %-20s %5s  %s%s\n", ch.ID, sanitizeForTerminal(ch.Name), ch.Timestamp, sanitizeForTerminal(ch.LastMessage), unread)
		}
	})
}

func cmdContacts(ctx context.Context, c *client.Client, args []string, out printer) {
	var (
		list *api.ContactList
		err  error
	)
	switch {
	case len(args) == 0:
		list, err = c.Contact.ListContacts(ctx)
	case args[0] == "search" && len(args) > 1:
		list, err = c.Contact.SearchContacts(ctx, strings.Join(args[1:], " "))
	case args[0] == "add" && len(args) == 3:
		resp, err := c.Contact.AddContact(ctx, args[1], args[2])
		check(err)
		out.print(resp, func() { fmt.Printf("Added %s (%s)\n", resp.Contact.Name, resp.Contact.Phone) })
		return
	default:
		fail(fmt.Errorf("usage: contacts [add <name> <phone> | search <q>]"))
	}
	check(err)
	out.print(list, func() {
		for _, ct := range list.Contacts {
			fmt.Printf("%-38s %-20s %s\n", ct.ID, ct.Name, ct.Phone)
		}
	})
}

func cmdWatch(c *client.Client, namespace string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	err := c.Session.WatchEvents(ctx, namespace, func(evt *api.EventEnvelope) error {
		return enc.Encode(evt)
	})
	if err != nil && ctx.Err() == nil {
		fail(err)
	}
}

func cmdProfiles(jsonOut bool) {
	names, err := profile.List()
	check(err)
	out := printer{json: jsonOut}
	out.print(names, func() {
		if len(names) == 0 {
			fmt.Println("No profiles found.")
			return
		}
		for _, n := range names {
			fmt.Printf("%-20s %s\n", n, profile.Dir(n))
		}
	})
}

func printMessages(ch model.Chat, msgs []model.Message) {
	fmt.Printf("== %s ==\n", sanitizeForTerminal(ch.Name))
	for _, m := range msgs {
		who := m.SenderID
		if m.IsMe {
			who = "me"
		}
		ticks := ""
		switch {
		case m.IsMe && m.Read:
			ticks = " ✓✓ read"
		case m.IsMe && m.Delivered:
			ticks = " ✓✓"
		case m.IsMe && m.Sent:
			ticks = " ✓"
		}
		fmt.Printf("[%s] %s: %s%s\n", m.Timestamp, who, sanitizeForTerminal(m.Preview()), ticks)
	}
}

func printStatuses(title string, list []model.Status) {
	fmt.Printf("%s:\n", title)
	if len(list) == 0 {
		fmt.Println("  (none)")
	}
	for _, s := range list {
		fmt.Printf("  %s %s %s viewed by %d\n", s.ID, s.UserID, sanitizeForTerminal(s.Content), len(s.ViewedBy))
	}
}

type printer struct{ json bool }

func (p printer) print(v any, human func()) {
	if !p.json {
		human()
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fail(fmt.Errorf("usage: wlitectl %s", usage))
	}
}

func check(err error) {
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// parseProfileFlags turns the profile subcommand flags into an update that
// only carries the flags actually given.
func parseProfileFlags(args []string) *api.UpdateProfileRequest {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	about := fs.String("about", "", "status line")
	avatar := fs.String("avatar", "", "avatar URL")
	_ = fs.Parse(args)

	req := &api.UpdateProfileRequest{}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "first":
			req.FirstName = first
		case "last":
			req.LastName = last
		case "about":
			req.Status = about
		case "avatar":
			req.AvatarURL = avatar
		}
	})
	return req
}
