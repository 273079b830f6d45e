package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"dora/internal/config"
	"dora/internal/logger"
	"dora/internal/repository"
	"dora/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	locationsPath string
	eventsPath    string
	jsonOutput    bool

	eventCategory string
	eventUpcoming bool
	eventThisWeek bool
)

// core is the set of components the commands work on
type core struct {
	store    *service.LocationStore
	search   *service.LocationSearch
	routes   *service.RouteFinder
	catalog  *service.EventCatalog
	classify *service.IntentClassifier
	logger   *zap.Logger
}

func loadCore(ctx context.Context) (*core, error) {
	log := logger.New(os.Getenv("LOG_LEVEL"), "console")
	dataset, err := repository.NewDatasetRepository(locationsPath, eventsPath)
	if err != nil {
		return nil, err
	}
	store := service.NewLocationStore(dataset, log)
	if err := store.Load(ctx); err != nil {
		return nil, err
	}
	search := service.NewLocationSearch(store, 0)
	return &core{
		store:    store,
		search:   search,
		routes:   service.NewRouteFinder(store, search),
		catalog:  service.LoadEventCatalog(ctx, dataset, log),
		classify: service.NewIntentClassifier(),
		logger:   log,
	}, nil
}

var rootCmd = &cobra.Command{
	Use:           "doractl",
	Short:         "doractl - inspect the DORA campus assistant offline",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var classifyCmd = &cobra.Command{
	Use:   "classify <message>",
	Short: "Classify a message as campus, volunteer or general",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result := service.NewIntentClassifier().Classify(strings.Join(args, " "))
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), result)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "mode:       %s\n", result.Mode)
		fmt.Fprintf(out, "confidence: %.2f\n", result.Confidence)
		fmt.Fprintf(out, "keywords:   %s\n", strings.Join(result.MatchedKeywords, ", "))
		fmt.Fprintf(out, "patterns:   %s\n", strings.Join(result.MatchedPatternIDs, ", "))
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search campus locations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadCore(cmd.Context())
		if err != nil {
			return err
		}
		matches, layer := c.search.SearchWithLayer(cmd.Context(), strings.Join(args, " "))
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), map[string]any{"layer": layer, "matches": matches})
		}
		out := cmd.OutOrStdout()
		if len(matches) == 0 {
			fmt.Fprintln(out, "no matching locations")
			return nil
		}
		fmt.Fprintf(out, "%d match(es) via %s layer\n", len(matches), layer)
		for _, l := range matches {
			fmt.Fprintf(out, "  %s (%s)\n", l.Name, l.Category)
		}
		return nil
	},
}

var routeCmd = &cobra.Command{
	Use:   "route <from> <to>",
	Short: "Find a walking route between two locations",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadCore(cmd.Context())
		if err != nil {
			return err
		}
		route, err := c.routes.Route(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), route)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, strings.Join(route.Path, " -> "))
		for i, step := range route.Steps {
			fmt.Fprintf(out, "%d. %s\n", i+1, step)
		}
		return nil
	},
}

var locationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "List every campus location",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadCore(cmd.Context())
		if err != nil {
			return err
		}
		all := c.store.All(cmd.Context())
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), all)
		}
		for _, l := range all {
			fmt.Fprintf(cmd.OutOrStdout(), "%-22s %s\n", l.Name, l.Category)
		}
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List volunteer events",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadCore(cmd.Context())
		if err != nil {
			return err
		}
		events := c.catalog.Filter(service.EventFilter{
			Category: eventCategory,
			Upcoming: eventUpcoming,
			ThisWeek: eventThisWeek,
		})
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), events)
		}
		for _, e := range events {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-28s %s\n", e.Date, e.Title, e.Category)
		}
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with DORA in the terminal (sessions and registrations stay in memory)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadCore(cmd.Context())
		if err != nil {
			return err
		}
		completer := service.TextCompleter(service.DisabledCompleter{})
		if cfg, err := config.Load(); err == nil && cfg.LLM.Enabled {
			switch cfg.LLM.Provider {
			case "gemini":
				if g, err := service.NewGeminiClient(cmd.Context(), &cfg.LLM, c.logger); err == nil {
					completer = g
				}
			default:
				completer = service.NewOpenAIClient(&cfg.LLM, c.logger)
			}
		}

		chat := service.NewChatService(
			c.classify,
			c.search,
			service.NewResponseComposer(c.store, c.catalog),
			service.NewRegistrationDialogue(c.catalog, repository.NewMemoryRegistrationRepository(), c.logger),
			service.NewFallbackTable(c.catalog),
			completer,
			repository.NewMemorySessionStore(),
			c.logger,
		)
		return runChat(cmd.Context(), chat, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

// runChat reads one message per line until EOF or "exit"
func runChat(ctx context.Context, chat *service.ChatService, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "%s\n\n", chat.Welcome())
	sessionID := ""
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		reply, err := chat.HandleMessage(ctx, sessionID, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		sessionID = reply.SessionID
		fmt.Fprintf(out, "%s\n\n", reply.Response)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&locationsPath, "locations", "data/locations.json", "Location dataset (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&eventsPath, "events", "data/events.json", "Event catalog (JSON or YAML)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of text")

	eventsCmd.Flags().StringVar(&eventCategory, "category", "", "Only events whose category contains this text")
	eventsCmd.Flags().BoolVar(&eventUpcoming, "upcoming", false, "Only events from today on")
	eventsCmd.Flags().BoolVar(&eventThisWeek, "this-week", false, "Only events in the next 7 days")

	rootCmd.AddCommand(classifyCmd, searchCmd, routeCmd, locationsCmd, eventsCmd, chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
