// Command modelcheck lists the Gemini models visible to the configured key
// and shows which one the server would select.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/nellyGuo1225/NoWasteLifeV2/internal/config"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/llm"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/llm/gemini"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if !cfg.GeminiConfigured() {
		fmt.Println("GEMINI_API_KEY is not set")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := gemini.NewClient(cfg.GeminiAPIKey,
		gemini.WithBaseURL(cfg.GeminiBaseURL),
		gemini.WithHTTPClient(&http.Client{Timeout: cfg.GeminiTimeout}),
	)

	fmt.Println("Listing models from:", cfg.GeminiBaseURL)
	candidates, err := client.ListModels(ctx)
	if err != nil {
		fmt.Printf("Error listing models: %v\n", err)
	} else {
		for _, c := range candidates {
			marker := " "
			if c.SupportsGeneration {
				marker = "*"
			}
			fmt.Printf(" %s %s\n", marker, c.ID)
		}
		fmt.Println("(* supports generateContent)")
	}

	selector := llm.NewSelector(client, cfg.PreferredModels, zap.NewNop())
	selected, err := selector.Select(ctx)
	if err != nil {
		fmt.Printf("Selection failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Selected: %s (%s)\n", selected.Name(), selected.Tier)

	if len(os.Args) > 1 && os.Args[1] == "-generate" {
		text, err := selected.GenerateContent(ctx, `Reply with the JSON object {"ok": true} and nothing else.`)
		if err != nil {
			fmt.Printf("Generate failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generate result: %s\n", text)
	}
}
