// Package main provides the Spotify authentication tool.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/tunedl/internal/infra/logger"
	"github.com/osa030/tunedl/internal/infra/spotify"
)

var (
	app          = kingpin.New("tunedl-auth", "Spotify authentication tool for tunedl")
	clientID     = app.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	clientSecret = app.Flag("client-secret", "Spotify Client Secret").Envar("SPOTIFY_CLIENT_SECRET").Required().String()
	port         = app.Flag("port", "Callback server port").Default("8888").Int()
	waitTimeout  = app.Flag("timeout", "How long to wait for authorization").Default("5m").Duration()
)

type authResult struct {
	token *oauth2.Token
	err   error
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	if err := logger.Init(logger.Config{Output: "stderr", Level: "info"}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	redirectURI := fmt.Sprintf("http://127.0.0.1:%d/callback", *port)
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(redirectURI),
		spotifyauth.WithClientID(*clientID),
		spotifyauth.WithClientSecret(*clientSecret),
		spotifyauth.WithScopes(spotify.Scopes...),
	)
	state := uuid.New().String()

	results := make(chan authResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", completeAuth(auth, state, results))

	server := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", *port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Msgf("Failed to start callback server: %v", err)
		}
	}()

	fmt.Println("Please visit the following URL to authorize tunedl:")
	fmt.Println("")
	fmt.Println(auth.AuthURL(state))
	fmt.Println("")
	fmt.Println("Waiting for authorization...")

	var res authResult
	select {
	case res = <-results:
	case <-time.After(*waitTimeout):
		res.err = fmt.Errorf("no authorization received within %s", *waitTimeout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		zlog.Warn().Msgf("Failed to shutdown callback server: %v", err)
	}

	if res.err != nil {
		fmt.Printf("Error: %v\n", res.err)
		os.Exit(1)
	}

	fmt.Println("")
	fmt.Println("=== Authorization Successful ===")
	fmt.Println("")
	fmt.Println("Refresh Token:")
	fmt.Println(res.token.RefreshToken)
	fmt.Println("")
	fmt.Println("Add this to your server.yaml:")
	fmt.Println("")
	fmt.Println("spotify:")
	fmt.Printf("  refresh_token: \"%s\"\n", res.token.RefreshToken)
	fmt.Println("")
	fmt.Println("Or set as environment variable:")
	fmt.Printf("export SPOTIFY_REFRESH_TOKEN=\"%s\"\n", res.token.RefreshToken)
}

func completeAuth(auth *spotifyauth.Authenticator, state string, results chan<- authResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if st := r.FormValue("state"); st != state {
			http.Error(w, "State mismatch", http.StatusForbidden)
			zlog.Warn().Msgf("State mismatch: %s", st)
			return
		}

		token, err := auth.Token(r.Context(), state, r)
		if err != nil {
			http.Error(w, "Failed to get token", http.StatusForbidden)
			select {
			case results <- authResult{err: err}:
			default:
			}
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>tunedl - Authorization Complete</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 20vh;">
    <h1>Authorization Complete</h1>
    <p>You can close this window and return to the terminal.</p>
</body>
</html>
`)

		select {
		case results <- authResult{token: token}:
		default:
		}
	}
}
