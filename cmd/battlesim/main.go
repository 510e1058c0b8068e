package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/warcore/internal/repository/postgres"
	"github.com/freeeve/warcore/internal/service"
	"github.com/freeeve/warcore/pkg/combat"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var (
		scenarioPath string
		rulesPath    string
		numRuns      int
		workers      int
		seed         int64
		play         bool
		dbURL        string
		jsonOut      bool
		verbose      bool
	)

	flag.StringVar(&scenarioPath, "scenario", "", "Scenario file (YAML or JSON)")
	flag.StringVar(&rulesPath, "rules", "", "Rule property file overriding the scenario's rules")
	flag.IntVar(&numRuns, "n", 1000, "Number of simulated runs")
	flag.IntVar(&workers, "workers", 0, "Concurrency (0 = GOMAXPROCS)")
	flag.Int64Var(&seed, "seed", 0, "Base seed (0 = random)")
	flag.BoolVar(&play, "play", false, "Also fight one run in full and print its history")
	flag.StringVar(&dbURL, "db", "", "Save the played run's records to this database")
	flag.BoolVar(&jsonOut, "json", false, "Output results as JSON")
	flag.BoolVar(&verbose, "v", false, "Log every battle step")

	flag.Parse()

	if scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "usage: battlesim -scenario FILE [-n RUNS] [-play] [-db URL]")
		os.Exit(2)
	}
	if !verbose {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	state, rules, attacks, name, err := loadScenario(scenarioPath, rulesPath)
	if err != nil {
		log.Fatal().Err(err).Str("scenario", scenarioPath).Msg("Failed to load scenario")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Shutting down...")
		cancel()
	}()

	start := time.Now()
	odds, err := combat.Estimate(ctx, state, rules, attacks, combat.EstimateOptions{Runs: numRuns, Seed: seed, Workers: workers})
	if err != nil {
		log.Fatal().Err(err).Msg("Simulation failed")
	}
	log.Info().Int("runs", odds.Runs).Dur("elapsed", time.Since(start)).Int64("seed", seed).Msg("Simulation completed")

	var played *playedRun
	if play {
		played, err = playOnce(ctx, state, rules, attacks, seed, verbose)
		if err != nil {
			log.Fatal().Err(err).Msg("Played run failed")
		}
		if dbURL != "" {
			if err := saveRun(ctx, dbURL, name, rules, played.Records); err != nil {
				log.Fatal().Err(err).Msg("Failed to save records")
			}
		}
	}

	if jsonOut {
		printJSON(name, seed, odds, played)
	} else {
		printSummary(name, seed, odds, played)
	}
}

// loadScenario builds the board and its attacks. A rules file overrides
// the scenario's own properties.
func loadScenario(scenarioPath, rulesPath string) (*combat.State, *combat.Rules, []combat.Attack, string, error) {
	sc, err := combat.LoadScenario(scenarioPath)
	if err != nil {
		return nil, nil, nil, "", err
	}
	state, rules, attacks, err := sc.Build()
	if err != nil {
		return nil, nil, nil, "", err
	}
	if len(attacks) == 0 {
		return nil, nil, nil, "", fmt.Errorf("scenario %q has no attacks", sc.Name)
	}
	if rulesPath != "" {
		data, err := os.ReadFile(rulesPath)
		if err != nil {
			return nil, nil, nil, "", err
		}
		override, err := combat.ParseRules(data)
		if err != nil {
			return nil, nil, nil, "", err
		}
		props := rules.Props()
		if props == nil {
			props = make(map[string]any)
		}
		maps.Copy(props, override.Props())
		rules = combat.NewRules(props)
	}
	return state, rules, attacks, sc.Name, nil
}

type playedRun struct {
	Records []combat.Record       `json:"records"`
	History []combat.HistoryEntry `json:"history"`
}

// playOnce fights a copy of the board with every default decision and
// keeps the history of the run.
func playOnce(ctx context.Context, state *combat.State, rules *combat.Rules, attacks []combat.Attack, seed int64, verbose bool) (*playedRun, error) {
	s := state.Clone()
	tr := combat.NewTracker()
	for _, attack := range attacks {
		a := attack
		a.Units = s.Resolve(unitIDs(attack.Units))
		a.Bombarding = s.Resolve(unitIDs(attack.Bombarding))
		for _, u := range a.Units {
			if u.Territory == a.To {
				continue
			}
			if err := s.Apply(combat.MoveUnits(u.Territory, a.To, []*combat.Unit{u})); err != nil {
				return nil, fmt.Errorf("move %s to %s: %w", u.ID, a.To, err)
			}
		}
		if _, err := tr.RegisterAttack(s, rules, a); err != nil {
			return nil, err
		}
	}

	history := &combat.MemoryHistory{}
	br := combat.NewBridge(s, rules, combat.NewSeededRandom(seed))
	br.History = history
	if verbose {
		br.Log = log.Logger
	}
	if err := tr.FightAll(ctx, br); err != nil {
		return nil, err
	}
	return &playedRun{Records: tr.TakeRecords(), History: history.Entries()}, nil
}

func unitIDs(units []*combat.Unit) []combat.UnitID {
	ids := make([]combat.UnitID, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	return ids
}

// saveRun stores the played records under a finished game owned by the
// simulator user.
func saveRun(ctx context.Context, dbURL, name string, rules *combat.Rules, records []combat.Record) error {
	db, err := postgres.Connect(dbURL)
	if err != nil {
		return err
	}
	defer db.Close()

	userRepo := postgres.NewUserRepo(db)
	gameRepo := postgres.NewGameRepo(db)
	battleRepo := postgres.NewBattleRepo(db)

	user, err := userRepo.Upsert(ctx, "bot", "battlesim", "Battle Simulator", "")
	if err != nil {
		return fmt.Errorf("upsert simulator user: %w", err)
	}
	rulesJSON, err := json.Marshal(rules.Props())
	if err != nil {
		return err
	}
	game, err := gameRepo.Create(ctx, "battlesim: "+name, user.ID, rulesJSON)
	if err != nil {
		return fmt.Errorf("create game: %w", err)
	}
	if err := battleRepo.SaveRecords(ctx, service.ToBattleRecords(game.ID, records)); err != nil {
		return fmt.Errorf("save records: %w", err)
	}
	if err := gameRepo.SetFinished(ctx, game.ID); err != nil {
		return fmt.Errorf("finish game: %w", err)
	}
	log.Info().Str("gameId", game.ID).Int("records", len(records)).Msg("Run saved")
	return nil
}

func printSummary(name string, seed int64, odds combat.Odds, played *playedRun) {
	fmt.Printf("\n%s (%d runs, seed %d):\n", name, odds.Runs, seed)
	if odds.Unresolved > 0 {
		fmt.Printf("  (%d runs unresolved)\n", odds.Unresolved)
	}
	fmt.Printf("  attacker wins: %5d  (%.1f%%)\n", odds.AttackerWins, 100*odds.AttackerWinRate)
	fmt.Printf("  defender wins: %5d  (%.1f%%)\n", odds.DefenderWins, 100*odds.DefenderWinRate)
	fmt.Printf("  draws:         %5d  (%.1f%%)\n", odds.Draws, 100*odds.DrawRate)
	fmt.Printf("  avg lost TUV:  attacker %.1f, defender %.1f  -- swing %+.1f\n",
		odds.AvgAttackerLostTUV, odds.AvgDefenderLostTUV, odds.TUVSwing)
	fmt.Printf("  avg rounds:    %.2f\n", odds.AvgRounds)

	if played == nil {
		return
	}
	fmt.Printf("\nPlayed run:\n")
	for _, e := range played.History {
		if e.Kind == "event" {
			fmt.Printf("  %s\n", e.Text)
		}
	}
	for _, r := range played.Records {
		fmt.Printf("  => %s\n", r.Description())
	}
}

func printJSON(name string, seed int64, odds combat.Odds, played *playedRun) {
	out := struct {
		Scenario string      `json:"scenario"`
		Seed     int64       `json:"seed"`
		Odds     combat.Odds `json:"odds"`
		Played   *playedRun  `json:"played,omitempty"`
	}{
		Scenario: name,
		Seed:     seed,
		Odds:     odds,
		Played:   played,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(out)
}
