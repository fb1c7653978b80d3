package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/park285/rps-room-server/internal/notify"
)

func main() {
	roomID := flag.String("room", "", "room id to watch")
	window := flag.Duration("for", 30*time.Second, "how long to watch")
	flag.Parse()
	_ = godotenv.Load()

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		log.Fatal("REDIS_URL is required")
	}
	if *roomID == "" {
		log.Fatal("-room is required")
	}
	pattern := os.Getenv("RPS_ROOMS_TOPIC_PATTERN")
	if pattern == "" {
		pattern = "/topic/rooms/%s"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("redis url: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *window)
	defer cancel()

	dest := notify.Destination(pattern, *roomID)
	sub := rdb.Subscribe(ctx, dest)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		log.Fatalf("subscribe %s: %v", dest, err)
	}
	log.Printf("watching %s for %s", dest, *window)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev notify.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("bad payload: %v", err)
				continue
			}
			fmt.Println(describe(ev))
		}
	}
}

func describe(ev notify.Event) string {
	line := fmt.Sprintf("%s %-19s player=%s", ev.EventTime.Format(time.RFC3339), ev.Type, ev.Data.PlayerID)
	if g := ev.Data.Room.CurrentGame; g != nil {
		line += fmt.Sprintf(" game=%d %s %d-%d", g.GameNumber, g.State, g.ScoreFirstPlayer, g.ScoreSecondPlayer)
		if rd := g.LastRound; rd != nil {
			line += fmt.Sprintf(" round=%d turns=%d", rd.RoundNumber, len(rd.RoundTurns))
		}
	}
	return line
}
