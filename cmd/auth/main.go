// Package main provides the Spotify authorization helper. It walks the
// OAuth code flow once and prints the refresh token the server needs.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

var (
	app          = kingpin.New("tuneclash-auth", "Spotify authorization helper for TuneClash")
	clientID     = app.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	clientSecret = app.Flag("client-secret", "Spotify Client Secret").Envar("SPOTIFY_CLIENT_SECRET").Required().String()
	port         = app.Flag("port", "Callback server port").Default("8888").Int()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	if err := run(); err != nil {
		log.Fatalf("Authorization failed: %v", err)
	}
}

func run() error {
	state, err := randomState()
	if err != nil {
		return err
	}

	// Scopes mirror what the server's Spotify client uses: private playlist
	// reads and the user's liked tracks.
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(fmt.Sprintf("http://127.0.0.1:%d/callback", *port)),
		spotifyauth.WithClientID(*clientID),
		spotifyauth.WithClientSecret(*clientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopeUserLibraryRead,
		),
	)

	tokenCh := make(chan *oauth2.Token, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if got := r.FormValue("state"); got != state {
			http.Error(w, "state mismatch", http.StatusForbidden)
			log.Printf("State mismatch, ignoring callback")
			return
		}
		token, err := auth.Token(r.Context(), state, r)
		if err != nil {
			http.Error(w, "token exchange failed", http.StatusForbidden)
			log.Printf("Token exchange failed: %v", err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, successPage)
		select {
		case tokenCh <- token:
		default:
		}
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	fmt.Println("Open this URL in a browser to authorize TuneClash:")
	fmt.Println()
	fmt.Println(auth.AuthURL(state))
	fmt.Println()
	fmt.Println("Waiting for the callback...")

	var token *oauth2.Token
	select {
	case token = <-tokenCh:
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	printToken(token)
	return nil
}

func printToken(token *oauth2.Token) {
	fmt.Println()
	fmt.Println("Authorization complete. Refresh token:")
	fmt.Println()
	fmt.Println("  " + token.RefreshToken)
	fmt.Println()
	fmt.Println("Paste it into the spotify adapter of config/server.yaml:")
	fmt.Println()
	fmt.Println("  sources:")
	fmt.Println("    adapters:")
	fmt.Println("      - type: spotify")
	fmt.Println("        settings:")
	fmt.Printf("          refresh_token: %q\n", token.RefreshToken)
	fmt.Println()
	fmt.Printf("or export SPOTIFY_REFRESH_TOKEN=%q\n", token.RefreshToken)
}

// randomState makes the one-shot CSRF state for the code flow.
func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

const successPage = `<!DOCTYPE html>
<html>
<head><title>TuneClash</title></head>
<body style="font-family: sans-serif; background: #191414; color: #fff; text-align: center; padding-top: 20vh;">
  <h1>Authorization complete</h1>
  <p>Close this tab and return to the terminal.</p>
</body>
</html>
`
