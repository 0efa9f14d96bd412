package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

var (
	roles  = []string{"cognito", "muse"}
	models = []string{"gpt-4", "claude-3", "gemini-pro"}
	events = []string{"debate_start", "round_start", "round_complete", "debate_end"}
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080/api/logs", "Base URL of the log endpoints")
	apiKey := flag.String("api-key", "", "API Key for authentication")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the load test")
	rps := flag.Int("rps", 200, "Requests per second limit")
	errorRate := flag.Float64("error-rate", 0.05, "Fraction of API calls reported as failed")
	flag.Parse()

	log.Printf("Starting load test on %s", *baseURL)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %d", *concurrency, *duration, *rps)

	var wg sync.WaitGroup
	var successCount, errorCount atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 100) // Allow bursts up to 100
	base := strings.TrimRight(*baseURL, "/")

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{
				Timeout: 5 * time.Second,
			}

			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				path, payload := randomRecord(workerID, *errorRate)
				body, err := json.Marshal(payload)
				if err != nil {
					continue // Should not happen
				}
				req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
				if err != nil {
					continue
				}
				req.Header.Set("Content-Type", "application/json")
				if *apiKey != "" {
					req.Header.Set("X-API-Key", *apiKey)
				}

				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					errorCount.Add(1)
					continue
				}

				if resp.StatusCode == http.StatusAccepted {
					successCount.Add(1)
				} else {
					errorCount.Add(1)
				}
				resp.Body.Close()
			}
		}(i)
	}

	wg.Wait()

	totalRequests := successCount.Load() + errorCount.Load()
	actualRPS := float64(totalRequests) / duration.Seconds()

	log.Println("Load test finished.")
	log.Printf("Total Requests: %d", totalRequests)
	log.Printf("Successful (202 Accepted): %d", successCount.Load())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Actual RPS: %.2f", actualRPS)
}

// randomRecord returns an ingest path and body, mostly API calls with some
// flow events and errors mixed in.
func randomRecord(workerID int, errorRate float64) (string, map[string]any) {
	switch n := rand.IntN(10); {
	case n < 7:
		rec := map[string]any{
			"callId":     uuid.NewString(),
			"role":       roles[rand.IntN(len(roles))],
			"model":      models[rand.IntN(len(models))],
			"input":      strings.Repeat("prompt ", 1+rand.IntN(50)),
			"output":     strings.Repeat("answer ", 1+rand.IntN(80)),
			"durationMs": 50 + rand.IntN(3000),
		}
		if rand.Float64() < errorRate {
			rec["error"] = "upstream returned 503"
		}
		return "/calls", rec
	case n < 9:
		return "/flows", map[string]any{
			"event": events[rand.IntN(len(events))],
			"data":  map[string]any{"worker": workerID, "round": rand.IntN(5)},
		}
	default:
		return "/errors", map[string]any{
			"context": "load test worker",
			"error":   "simulated failure",
		}
	}
}
