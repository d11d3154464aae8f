// Package main provides the room CLI for driving a TuneClash server by hand.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/tuneclash/tuneclash/internal/app/room"
)

var (
	app    = kingpin.New("tuneclash-roomcli", "TuneClash room client for testing")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Bearer token for user-scoped calls").Envar("TUNECLASH_TOKEN").String()

	// create command
	createCmd      = app.Command("create", "Create a room")
	createPublic   = createCmd.Flag("public", "List the room in the public lobby").Bool()
	createCategory = createCmd.Arg("category", "Category query (optional)").String()

	// list command
	listCmd = app.Command("list", "List public rooms waiting for players")

	// status command
	statusCmd  = app.Command("status", "Show a room snapshot")
	statusCode = statusCmd.Arg("code", "Room code").Required().String()

	// join command
	joinCmd  = app.Command("join", "Join a room")
	joinCode = joinCmd.Arg("code", "Room code").Required().String()
	joinName = joinCmd.Arg("name", "Display name").Required().String()

	// ready command
	readyCmd    = app.Command("ready", "Mark yourself ready")
	readyCode   = readyCmd.Arg("code", "Room code").Required().String()
	readyPlayer = readyCmd.Arg("player-id", "Player ID").Required().String()
	readyOff    = readyCmd.Flag("off", "Mark not ready instead").Bool()

	// source command
	sourceCmd    = app.Command("source", "Set the room's track source (host only)")
	sourceCode   = sourceCmd.Arg("code", "Room code").Required().String()
	sourcePlayer = sourceCmd.Arg("player-id", "Host player ID").Required().String()
	sourceQuery  = sourceCmd.Arg("query", "Category query, e.g. 'spotify:playlist:<id>' or free text").String()
	sourceMode   = sourceCmd.Flag("mode", "Switch source mode: public_playlist or players_liked").String()

	// start command
	startCmd    = app.Command("start", "Start the game (host only)")
	startCode   = startCmd.Arg("code", "Room code").Required().String()
	startPlayer = startCmd.Arg("player-id", "Host player ID").Required().String()

	// answer command
	answerCmd    = app.Command("answer", "Submit an answer for the open round")
	answerCode   = answerCmd.Arg("code", "Room code").Required().String()
	answerPlayer = answerCmd.Arg("player-id", "Player ID").Required().String()
	answerValue  = answerCmd.Arg("value", "Answer text").Required().String()

	// skip command
	skipCmd    = app.Command("skip", "Skip the current round (host only)")
	skipCode   = skipCmd.Arg("code", "Room code").Required().String()
	skipPlayer = skipCmd.Arg("player-id", "Host player ID").Required().String()

	// results command
	resultsCmd  = app.Command("results", "Show the room standings")
	resultsCode = resultsCmd.Arg("code", "Room code").Required().String()

	// chat command
	chatCmd    = app.Command("chat", "Post a chat message")
	chatCode   = chatCmd.Arg("code", "Room code").Required().String()
	chatPlayer = chatCmd.Arg("player-id", "Player ID").Required().String()
	chatText   = chatCmd.Arg("text", "Message text").Required().String()

	// kick command
	kickCmd    = app.Command("kick", "Kick a player (host only)")
	kickCode   = kickCmd.Arg("code", "Room code").Required().String()
	kickPlayer = kickCmd.Arg("player-id", "Host player ID").Required().String()
	kickTarget = kickCmd.Arg("target-id", "Player ID to kick").Required().String()

	// leave command
	leaveCmd    = app.Command("leave", "Leave a room")
	leaveCode   = leaveCmd.Arg("code", "Room code").Required().String()
	leavePlayer = leaveCmd.Arg("player-id", "Player ID").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Create client
	c := &client{
		base:  strings.TrimRight(*server, "/"),
		token: *token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}

	ctx := context.Background()

	// Execute command
	switch command {
	case createCmd.FullCommand():
		create(ctx, c, *createPublic, *createCategory)
	case listCmd.FullCommand():
		list(ctx, c)
	case statusCmd.FullCommand():
		status(ctx, c, *statusCode)
	case joinCmd.FullCommand():
		join(ctx, c, *joinCode, *joinName)
	case readyCmd.FullCommand():
		ready(ctx, c, *readyCode, *readyPlayer, !*readyOff)
	case sourceCmd.FullCommand():
		source(ctx, c, *sourceCode, *sourcePlayer, *sourceQuery, *sourceMode)
	case startCmd.FullCommand():
		start(ctx, c, *startCode, *startPlayer)
	case answerCmd.FullCommand():
		answer(ctx, c, *answerCode, *answerPlayer, *answerValue)
	case skipCmd.FullCommand():
		skip(ctx, c, *skipCode, *skipPlayer)
	case resultsCmd.FullCommand():
		results(ctx, c, *resultsCode)
	case chatCmd.FullCommand():
		chat(ctx, c, *chatCode, *chatPlayer, *chatText)
	case kickCmd.FullCommand():
		kick(ctx, c, *kickCode, *kickPlayer, *kickTarget)
	case leaveCmd.FullCommand():
		leave(ctx, c, *leaveCode, *leavePlayer)
	}
}

func create(ctx context.Context, c *client, public bool, category string) {
	var snap room.Snapshot
	err := c.post(ctx, "/api/rooms", map[string]any{
		"public":        public,
		"categoryQuery": category,
	}, &snap)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Room created: %s\n", snap.RoomCode)
	if snap.CategoryQuery != "" {
		fmt.Printf("Category: %s\n", snap.CategoryQuery)
	}
	fmt.Printf("Join it with: roomcli join %s <name>\n", snap.RoomCode)
}

func list(ctx context.Context, c *client) {
	var resp struct {
		Rooms []room.PublicRoomSummary `json:"rooms"`
	}
	if err := c.get(ctx, "/api/rooms", &resp); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if len(resp.Rooms) == 0 {
		fmt.Println("No public rooms waiting.")
		return
	}
	for _, r := range resp.Rooms {
		line := fmt.Sprintf("%s  %d player(s)  %s", r.RoomCode, r.PlayerCount, r.SourceMode)
		if r.CategoryQuery != "" {
			line += fmt.Sprintf("  %q", r.CategoryQuery)
		}
		fmt.Println(line)
	}
}

func status(ctx context.Context, c *client, code string) {
	var snap room.Snapshot
	if err := c.get(ctx, roomPath(code), &snap); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Room %s\n", snap.RoomCode)
	fmt.Printf("  State: %s\n", formatState(snap.State))
	if snap.TotalRounds > 0 {
		fmt.Printf("  Round: %d/%d\n", snap.Round, snap.TotalRounds)
	}
	fmt.Printf("  Source: %s\n", describeSource(&snap))
	if snap.PoolSize > 0 {
		fmt.Printf("  Pool: %d tracks\n", snap.PoolSize)
	}
	if snap.IsResolvingTracks {
		fmt.Println("  Resolving tracks...")
	}
	if snap.DeadlineMs > 0 {
		fmt.Printf("  Time left: %.1fs\n", float64(snap.DeadlineMs-snap.ServerNowMs)/1000)
	}

	fmt.Println("\nPlayers:")
	for _, p := range snap.Players {
		flags := make([]string, 0, 3)
		if p.IsHost {
			flags = append(flags, "host")
		}
		if p.IsReady {
			flags = append(flags, "ready")
		}
		if p.HasAnsweredCurrentRound {
			flags = append(flags, "answered")
		}
		line := fmt.Sprintf("  %s (%s)", p.DisplayName, p.PlayerID)
		if len(flags) > 0 {
			line += "  [" + strings.Join(flags, ", ") + "]"
		}
		fmt.Println(line)
	}

	if len(snap.Choices) > 0 {
		fmt.Println("\nChoices:")
		for i, choice := range snap.Choices {
			fmt.Printf("  %d. %s\n", i+1, choice)
		}
	}
	if snap.Media != nil {
		u := snap.Media.EmbedURL
		if u == "" {
			u = snap.Media.SourceURL
		}
		fmt.Printf("\nNow playing: %s\n", u)
	}
	if snap.Reveal != nil {
		fmt.Printf("\nRound %d was: %s - %s\n", snap.Reveal.Round, snap.Reveal.Artist, snap.Reveal.Title)
	}
}

func join(ctx context.Context, c *client, code, name string) {
	var resp struct {
		PlayerID string         `json:"playerId"`
		Room     *room.Snapshot `json:"room"`
	}
	err := c.post(ctx, roomPath(code)+"/join", map[string]any{"displayName": name}, &resp)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Joined %s! Your player ID: %s\n", code, resp.PlayerID)
	if resp.Room != nil && resp.Room.HostPlayerID == resp.PlayerID {
		fmt.Println("You are the host.")
	}
}

func ready(ctx context.Context, c *client, code, playerID string, value bool) {
	var snap room.Snapshot
	err := c.post(ctx, roomPath(code)+"/ready", map[string]any{
		"playerId": playerID,
		"ready":    value,
	}, &snap)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Ready: %d/%d players\n", snap.ReadyCount, snap.PlayerCount)
	if snap.CanStart {
		fmt.Println("The host can start the game.")
	}
}

func source(ctx context.Context, c *client, code, playerID, query, mode string) {
	payload := map[string]any{"playerId": playerID}
	if mode != "" {
		payload["sourceMode"] = mode
	} else {
		payload["categoryQuery"] = query
	}

	var snap room.Snapshot
	if err := c.post(ctx, roomPath(code)+"/source", payload, &snap); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Source set: %s\n", describeSource(&snap))
}

func start(ctx context.Context, c *client, code, playerID string) {
	var snap room.Snapshot
	err := c.post(ctx, roomPath(code)+"/start", map[string]any{"playerId": playerID}, &snap)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Game starting: %d rounds, %d player(s)\n", snap.TotalRounds, snap.PlayerCount)
	fmt.Printf("State: %s\n", formatState(snap.State))
}

func answer(ctx context.Context, c *client, code, playerID, value string) {
	var res room.SubmitResult
	err := c.post(ctx, roomPath(code)+"/answer", map[string]any{
		"playerId": playerID,
		"value":    value,
	}, &res)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if res.Accepted {
		fmt.Printf("Answer recorded for round %d\n", res.Round)
	} else {
		fmt.Printf("Answer not counted: state=%s round=%d\n", res.State, res.Round)
	}
}

func skip(ctx context.Context, c *client, code, playerID string) {
	var snap room.Snapshot
	err := c.post(ctx, roomPath(code)+"/skip", map[string]any{"playerId": playerID}, &snap)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Skipped. State: %s\n", formatState(snap.State))
	if snap.Reveal != nil {
		fmt.Printf("Round %d was: %s - %s\n", snap.Reveal.Round, snap.Reveal.Artist, snap.Reveal.Title)
	}
}

func results(ctx context.Context, c *client, code string) {
	var res room.Results
	if err := c.get(ctx, roomPath(code)+"/results", &res); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if res.Final {
		fmt.Printf("Final results for %s:\n", res.RoomCode)
	} else {
		fmt.Printf("Standings for %s (round %d/%d):\n", res.RoomCode, res.Round, res.TotalRounds)
	}
	for _, r := range res.Rankings {
		fmt.Printf("  %2d. %-20s %5d pts  %d correct  max streak %d\n",
			r.Rank, r.DisplayName, r.Score, r.CorrectAnswers, r.MaxStreak)
	}
}

func chat(ctx context.Context, c *client, code, playerID, text string) {
	var msg room.ChatMessage
	err := c.post(ctx, roomPath(code)+"/chat", map[string]any{
		"playerId": playerID,
		"text":     text,
	}, &msg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("[%s] %s\n", msg.DisplayName, msg.Text)
}

func kick(ctx context.Context, c *client, code, playerID, targetID string) {
	var snap room.Snapshot
	err := c.post(ctx, roomPath(code)+"/kick", map[string]any{
		"playerId": playerID,
		"targetId": targetID,
	}, &snap)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Kicked. %d player(s) remain.\n", snap.PlayerCount)
}

func leave(ctx context.Context, c *client, code, playerID string) {
	var snap room.Snapshot
	err := c.post(ctx, roomPath(code)+"/leave", map[string]any{"playerId": playerID}, &snap)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Left %s. %d player(s) remain.\n", code, snap.PlayerCount)
}

func formatState(state string) string {
	switch state {
	case "waiting":
		return "⏳ Waiting (lobby)"
	case "countdown":
		return "🕒 Countdown"
	case "playing":
		return "▶️  Playing"
	case "reveal":
		return "💡 Reveal"
	case "leaderboard":
		return "🏆 Leaderboard"
	case "results":
		return "⏹  Finished"
	default:
		return "❓ " + state
	}
}

func describeSource(snap *room.Snapshot) string {
	if cfg := snap.SourceConfig; cfg != nil && cfg.PlaylistID != "" {
		return fmt.Sprintf("%s playlist %s", cfg.PlaylistProvider, cfg.PlaylistID)
	}
	if snap.CategoryQuery != "" {
		return fmt.Sprintf("%s %q", snap.SourceMode, snap.CategoryQuery)
	}
	return snap.SourceMode
}

func roomPath(code string) string {
	return "/api/rooms/" + url.PathEscape(code)
}

// client speaks the server's JSON API. Error envelopes come back as plain
// errors so every command can print them the same way.
type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *client) post(ctx context.Context, path string, payload, out any) error {
	return c.do(ctx, http.MethodPost, path, payload, out)
}

func (c *client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		var envelope struct {
			Error struct {
				Code         string `json:"code"`
				Message      string `json:"message"`
				RetryAfterMs int64  `json:"retryAfterMs"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil && envelope.Error.Code != "" {
			if envelope.Error.RetryAfterMs > 0 {
				return fmt.Errorf("%s: %s (retry in %dms)",
					envelope.Error.Code, envelope.Error.Message, envelope.Error.RetryAfterMs)
			}
			return fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
