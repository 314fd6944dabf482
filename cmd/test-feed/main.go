package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/signalhub/keyword-radar/internal/config"
	"github.com/signalhub/keyword-radar/internal/sources"
)

// Manual smoke tool: queries the live feed source for a couple of keywords and
// prints what comes back. Useful for checking connectivity and rate limiting
// before running the full bot.
func main() {
	fmt.Println("Keyword Radar - Feed Connectivity Test")
	fmt.Println("======================================")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	client := sources.NewFeedClient(cfg.FeedBaseURL, cfg.FeedUserAgent,
		time.Duration(cfg.RequestDelayMs)*time.Millisecond)

	keywords := []string{"kubernetes", "golang"}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	for _, keyword := range keywords {
		fmt.Printf("\nSearching for '%s' in %v\n", keyword, cfg.DefaultChannels)
		fmt.Println(strings.Repeat("-", 40))

		posts, failures, err := client.FetchKeyword(ctx, keyword, sources.FetchOptions{
			Channels: cfg.DefaultChannels,
			MaxPosts: 5,
		})
		if err != nil {
			fmt.Printf("  FAILED: %v\n", err)
			continue
		}

		for _, failure := range failures {
			fmt.Printf("  skipped: %s\n", failure)
		}

		fmt.Printf("  %d posts\n", len(posts))
		for i, post := range posts {
			if i >= 3 {
				break
			}
			fmt.Printf("  %d. [%s] %s (by %s)\n", i+1, post.Channel, post.Title, post.Author)
		}
	}

	fmt.Println("\nFeed connectivity test completed.")
}
