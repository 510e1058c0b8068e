package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/warcore/internal/bot"
)

func main() {
	url := flag.String("url", "http://localhost:8009", "server base URL")
	gameID := flag.String("game", "", "game to join")
	nation := flag.String("nation", "", "nation to command")
	name := flag.String("name", "", "dev login name (default bot-<nation>)")
	difficulty := flag.String("difficulty", bot.DifficultyEasy, "bot difficulty (easy, random)")
	fight := flag.Bool("fight", false, "ask the server to fight all battles after joining")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if *gameID == "" || *nation == "" {
		fmt.Fprintln(os.Stderr, "usage: bot -game ID -nation NATION [-url URL]")
		os.Exit(2)
	}
	if *name == "" {
		*name = "bot-" + *nation
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Received shutdown signal")
		cancel()
	}()

	orch := bot.NewOrchestrator(bot.NewClient(*name, *url), *gameID, *nation, *difficulty, *fight)
	if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("Bot failed")
	}
	log.Info().Msg("Bot finished")
}
