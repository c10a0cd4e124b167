// Package main provides the spotgrab CLI application entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"spotgrab/internal/core"
	httpserver "spotgrab/internal/http"
	"spotgrab/internal/spotify"
	"spotgrab/internal/store"
	"spotgrab/internal/tag"
	"spotgrab/pkg/ref"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "spotgrab",
	Short: "spotgrab - Spotify reference resolver and audio tag writer",
	Long: `spotgrab resolves Spotify track, album, playlist and artist references,
expands them into flat track lists, and writes the resulting metadata into
local MP3 and FLAC files.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var (
	tagCoverPath string
	tagForce     bool
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("spotify-client-id", "", "Spotify client ID")
	rootCmd.PersistentFlags().String("spotify-client-secret", "", "Spotify client secret")
	rootCmd.PersistentFlags().String("spotify-market", "", "market country code applied to lookups")
	rootCmd.PersistentFlags().String("tag-separator", ", ", "separator joining multi-valued tag fields")
	rootCmd.PersistentFlags().Bool("tag-id3v24", false, "write ID3v2.4 instead of v2.3 for MP3 files")
	rootCmd.PersistentFlags().String("store-path", "./spotgrab.db", "tagged-track registry database path")
	rootCmd.PersistentFlags().Int("server-port", 8080, "HTTP server port")
	rootCmd.PersistentFlags().Int("server-rate-limit", 120, "API requests per client per minute (0 disables)")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}

	tagCmd.Flags().StringVar(&tagCoverPath, "cover", "", "path to a front-cover image to embed")
	tagCmd.Flags().BoolVar(&tagForce, "force", false, "tag even if the track is already in the registry")

	rootCmd.AddCommand(resolveCmd, tracksCmd, searchCmd, tagCmd, serveCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".env")
		viper.SetConfigType("env")
	}

	viper.SetEnvPrefix("SPOTGRAB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify-client-secret")
	cfg.Spotify.Market = viper.GetString("spotify-market")

	cfg.Tag.Separator = viper.GetString("tag-separator")
	cfg.Tag.ID3v24 = viper.GetBool("tag-id3v24")

	cfg.Store.Path = viper.GetString("store-path")
	if cfg.Store.Path == "" {
		cfg.Store.Path = "./spotgrab.db"
	}

	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Server.RateLimitPerMinute = viper.GetInt("server-rate-limit")

	cfg.Log.Level = viper.GetString("log-level")

	return cfg
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func validateSpotifyConfig() error {
	if config.Spotify.ClientID == "" {
		return fmt.Errorf("spotify client ID is required")
	}
	if config.Spotify.ClientSecret == "" {
		return fmt.Errorf("spotify client secret is required")
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newAuthenticatedClient(ctx context.Context) (*spotify.Client, error) {
	if err := validateSpotifyConfig(); err != nil {
		return nil, err
	}
	client := spotify.NewClient(&config.Spotify, logger.Named("spotify"))
	if err := client.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Spotify: %w", err)
	}
	return client, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type trackJSON struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Artists     []string `json:"artists"`
	Album       string   `json:"album,omitempty"`
	AlbumArtist string   `json:"album_artist,omitempty"`
	TrackNumber int      `json:"track_number,omitempty"`
	DiscNumber  int      `json:"disc_number,omitempty"`
	ReleaseDate string   `json:"release_date,omitempty"`
	DurationMS  int64    `json:"duration_ms,omitempty"`
	URL         string   `json:"url,omitempty"`
}

func toTrackJSON(tracks []core.Track) []trackJSON {
	out := make([]trackJSON, 0, len(tracks))
	for i := range tracks {
		t := &tracks[i]
		out = append(out, trackJSON{
			ID:          t.ID,
			Title:       t.Title,
			Artists:     t.Artists,
			Album:       t.Album,
			AlbumArtist: t.AlbumArtist,
			TrackNumber: t.TrackNumber,
			DiscNumber:  t.DiscNumber,
			ReleaseDate: t.ReleaseDate,
			DurationMS:  t.Duration.Milliseconds(),
			URL:         t.URL,
		})
	}
	return out
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <reference>",
	Short: "Resolve a Spotify URI or web URL to its catalog item",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func runResolve(_ *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	reference, err := ref.Parse(args[0])
	if err != nil {
		return err
	}

	client, err := newAuthenticatedClient(ctx)
	if err != nil {
		return err
	}

	item, err := client.Resolve(ctx, reference)
	if err != nil {
		return err
	}

	out := map[string]string{
		"reference": reference.String(),
		"kind":      string(reference.Kind),
	}
	switch {
	case item.Track != nil:
		out["name"] = item.Track.Name
	case item.Album != nil:
		out["name"] = item.Album.Name
	case item.Playlist != nil:
		out["name"] = item.Playlist.Name
	case item.Artist != nil:
		out["name"] = item.Artist.Name
	case item.IsOther():
		out["reference"] = item.Other
	}
	return printJSON(out)
}

var tracksCmd = &cobra.Command{
	Use:   "tracks <reference>",
	Short: "Expand a reference into its flat track list",
	Args:  cobra.ExactArgs(1),
	RunE:  runTracks,
}

func runTracks(_ *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	reference, err := ref.Parse(args[0])
	if err != nil {
		return err
	}

	client, err := newAuthenticatedClient(ctx)
	if err != nil {
		return err
	}

	tracks, err := client.Tracks(ctx, reference)
	if err != nil {
		return err
	}

	logger.Info("Expanded reference",
		zap.String("reference", reference.String()),
		zap.Int("tracks", len(tracks)))
	return printJSON(toTrackJSON(tracks))
}

var searchCmd = &cobra.Command{
	Use:   "search <query>...",
	Short: "Search the catalog for tracks matching a free-text query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func runSearch(_ *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	client, err := newAuthenticatedClient(ctx)
	if err != nil {
		return err
	}

	query := strings.Join(args, " ")
	tracks, err := client.SearchTracks(ctx, query)
	if err != nil {
		return err
	}

	logger.Info("Search finished",
		zap.String("query", query),
		zap.Int("results", len(tracks)))
	return printJSON(toTrackJSON(tracks))
}

var tagCmd = &cobra.Command{
	Use:   "tag <track-reference> <file>",
	Short: "Resolve a track and write its metadata into a local audio file",
	Args:  cobra.ExactArgs(2),
	RunE:  runTag,
}

func runTag(_ *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	reference, err := ref.Parse(args[0])
	if err != nil {
		return err
	}
	if reference.Kind != ref.KindTrack {
		return fmt.Errorf("%w: tag requires a track reference, got %s",
			core.ErrInvalidReference, reference.Kind)
	}
	path := args[1]

	client, err := newAuthenticatedClient(ctx)
	if err != nil {
		return err
	}

	tracks, err := client.Tracks(ctx, reference)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		return fmt.Errorf("track %s not found", reference.ID)
	}
	track := &tracks[0]

	registry, err := store.NewRegistry(ctx, &config.Store)
	if err != nil {
		return err
	}
	defer registry.Close()

	if registry.Has(track.ID) && !tagForce {
		logger.Info("Track already tagged, skipping",
			zap.String("track_id", track.ID),
			zap.String("title", track.Title))
		return nil
	}

	var (
		coverData []byte
		coverMIME string
	)
	if tagCoverPath != "" {
		coverData, err = os.ReadFile(tagCoverPath)
		if err != nil {
			return fmt.Errorf("failed to read cover image: %w", err)
		}
		coverMIME = mime.TypeByExtension(filepath.Ext(tagCoverPath))
		if coverMIME == "" {
			coverMIME = "image/jpeg"
		}
	}

	writer, err := tag.OpenFile(path, &config.Tag)
	if err != nil {
		return err
	}
	if err := tag.Apply(writer, track, config.Tag.Separator, coverMIME, coverData); err != nil {
		return err
	}
	if err := writer.Save(); err != nil {
		return err
	}

	if err := registry.MarkTagged(ctx, track); err != nil {
		return err
	}

	logger.Info("Tagged file",
		zap.String("file", path),
		zap.String("track_id", track.ID),
		zap.String("title", track.Title),
		zap.Strings("artists", track.Artists))
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with health probes and metrics",
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	logger.Info("Starting spotgrab",
		zap.String("market", config.Spotify.Market),
		zap.String("store_path", config.Store.Path))

	client, err := newAuthenticatedClient(ctx)
	if err != nil {
		return err
	}

	registry, err := store.NewRegistry(ctx, &config.Store)
	if err != nil {
		return err
	}
	defer registry.Close()

	httpServer := httpserver.NewServer(&config.Server, &config.Tag, logger.Named("http"), client, registry)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Start(gCtx)
	})

	logger.Info("spotgrab started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("spotgrab stopped with error", zap.Error(err))
		return err
	}

	logger.Info("spotgrab stopped gracefully")
	return nil
}
