package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"

	"erpbot/internal/config"
	"erpbot/internal/logger"
	"erpbot/internal/memory"
	"erpbot/internal/nlu"
	"erpbot/internal/storage"
)

const defaultConversationKey = "whatsapp:5215550001111"

func main() {
	// .env is optional outside development.
	_ = godotenv.Load()

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Error loading %s: %v\n", configPath, err)
		return
	}

	if err := logger.Init(cfg.Log); err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		return
	}
	log := logger.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var users memory.UserStore
	var transcripts nlu.TranscriptStore
	redisStore, err := storage.NewRedisStore(ctx, cfg.Redis.TTL())
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, running with volatile memory only")
		users = storage.NopStore{}
		transcripts = storage.NopStore{}
	} else {
		users = redisStore
		transcripts = redisStore
	}

	mem := memory.NewService(users, memory.Limits{
		MaxMessages:   cfg.Memory.MaxMessages,
		MaxIntents:    cfg.Memory.MaxIntents,
		MaxTopics:     cfg.Memory.MaxTopics,
		Expiration:    cfg.Memory.Expiration(),
		SweepInterval: cfg.Memory.SweepInterval(),
	}, memory.EntityTuning{
		PersistenceThreshold: cfg.Memory.EntityPersistenceThreshold,
		RepeatIncrement:      cfg.Memory.EntityRepeatIncrement,
		ReplaceConfidence:    cfg.Memory.EntityReplaceConfidence,
		DecayStep:            cfg.Memory.EntityDecayStep,
		DecayFloor:           cfg.Memory.EntityDecayFloor,
		PruneMinConfidence:   cfg.Memory.EntityPruneMinConfidence,
		PruneMaxAge:          time.Duration(cfg.Memory.EntityPruneMaxAgeDays) * 24 * time.Hour,
	}, *log)
	mem.StartSweeper(ctx)

	chatModel, err := nlu.NewChatModel(ctx, cfg.LLM)
	if err != nil {
		log.Error().Err(err).Msg("chat model unavailable")
		return
	}

	svc := nlu.NewService(chatModel, mem, &cfg.Catalog, transcripts, cfg.LLM.MaxRetries, *log)

	log.Info().
		Str("backend", cfg.LLM.Backend).
		Str("model", cfg.LLM.Model).
		Msg("assistant ready")
	fmt.Println("Commands: /as <key>, /context, /reset, /quit")

	key := defaultConversationKey
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("[%s] > ", key)
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return
		case line == "/reset":
			svc.Reset(ctx, key)
			fmt.Println("conversation cleared")
		case line == "/context":
			view := svc.ProjectContext(ctx, key)
			out, err := sonic.MarshalIndent(view, "", "  ")
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println(string(out))
		case strings.HasPrefix(line, "/as "):
			key = strings.TrimSpace(strings.TrimPrefix(line, "/as "))
			fmt.Printf("now chatting as %s\n", key)
		default:
			fmt.Println(svc.Respond(ctx, key, line))
		}
	}
}
