package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/jkivisto/watchlog/handlers"
	"github.com/jkivisto/watchlog/lib/catalog"
	"github.com/jkivisto/watchlog/lib/config"
	"github.com/jkivisto/watchlog/lib/db"
	"github.com/jkivisto/watchlog/lib/movies"
	"github.com/jkivisto/watchlog/lib/plex"
	"github.com/jkivisto/watchlog/lib/recommend"
	"github.com/jkivisto/watchlog/lib/seed"
	"github.com/jkivisto/watchlog/lib/session"
	"github.com/jkivisto/watchlog/lib/stats"
	"github.com/jkivisto/watchlog/lib/users"
	"github.com/jkivisto/watchlog/lib/validation"
)

// app bundles the assembled services for the commands.
type app struct {
	cfg     *config.Config
	db      *gorm.DB
	users   *users.Service
	stats   *stats.Service
	movies  *movies.Service
	catalog *catalog.Registry
	logger  *slog.Logger
}

func newApp(configFile string) (*app, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	gdb, err := db.Open(cfg.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(gdb, logger); err != nil {
		return nil, err
	}

	statsSvc := stats.NewService(gdb, logger)
	return &app{
		cfg:     cfg,
		db:      gdb,
		users:   users.NewService(gdb, logger).WithCost(cfg.BcryptCost),
		stats:   statsSvc,
		movies:  movies.NewService(gdb, statsSvc, logger),
		catalog: catalog.NewRegistry(gdb, logger),
		logger:  logger,
	}, nil
}

func main() {
	var configFile string

	root := &cobra.Command{
		Use:          "watchlog",
		Short:        "Multi-user movie watching tracker",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configFile)
			if err != nil {
				return err
			}
			sessions := session.NewStore(a.db, a.logger, a.cfg.SessionTTL)
			suggester := recommend.New(a.db, a.cfg.OpenAIKey, a.logger)
			h := handlers.New(a.db, a.users, sessions, a.movies, a.catalog, a.stats, suggester, a.logger)

			a.logger.Info("Starting server", slog.String("addr", a.cfg.ListenAddr))
			return http.ListenAndServe(a.cfg.ListenAddr, h.Routes())
		},
	}

	var profileFile string
	var clearFirst bool
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Bulk-load test data",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configFile)
			if err != nil {
				return err
			}

			opts := seed.DefaultOptions()
			if profileFile != "" {
				raw, err := os.ReadFile(profileFile)
				if err != nil {
					return fmt.Errorf("failed to read seed profile: %w", err)
				}
				profile, err := validation.ParseSeedProfile(raw)
				if err != nil {
					return err
				}
				opts = seed.Options{
					Users:      profile.Users,
					Movies:     profile.Movies,
					Ratings:    profile.Ratings,
					Favorites:  profile.Favorites,
					ClearFirst: profile.ClearFirst,
				}
			}
			if clearFirst {
				opts.ClearFirst = true
			}

			seeder := seed.NewSeeder(a.db, a.users, a.stats, a.logger)
			return seeder.Run(context.Background(), opts)
		},
	}
	seedCmd.Flags().StringVar(&profileFile, "profile", "", "JSON seed profile file")
	seedCmd.Flags().BoolVar(&clearFirst, "clear", false, "clear existing data first")

	recompute := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild the aggregate stats tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configFile)
			if err != nil {
				return err
			}
			return a.stats.RecomputeAll(context.Background())
		},
	}

	var plexUser string
	plexImport := &cobra.Command{
		Use:   "plex-import",
		Short: "Import watched movies from a Plex server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configFile)
			if err != nil {
				return err
			}
			if a.cfg.PlexURL == "" || a.cfg.PlexToken == "" {
				return fmt.Errorf("plex_url and plex_token must be configured")
			}
			user, err := a.users.GetByUsername(context.Background(), plexUser)
			if err != nil {
				return err
			}

			client := plex.NewClient(a.cfg.PlexURL, a.cfg.PlexToken, a.movies, a.catalog, a.logger)
			if err := client.TestConnection(context.Background()); err != nil {
				return fmt.Errorf("plex server unreachable: %w", err)
			}
			result, err := client.ImportWatched(context.Background(), user.ID)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d movies, skipped %d\n", result.Imported, result.Skipped)
			return nil
		},
	}
	plexImport.Flags().StringVar(&plexUser, "user", "", "username to import into")
	if err := plexImport.MarkFlagRequired("user"); err != nil {
		panic(err)
	}

	root.AddCommand(serve, seedCmd, recompute, plexImport)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
