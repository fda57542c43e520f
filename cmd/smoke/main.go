// Command smoke exercises a running server end to end.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/nellyGuo1225/NoWasteLifeV2/internal/eventbus"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/models"
	"go.uber.org/zap"
)

func main() {
	baseURL := os.Getenv("SMOKE_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}
	client := &http.Client{Timeout: 90 * time.Second}

	var observed atomic.Int32
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		nc, err := eventbus.Connect(natsURL, zap.NewNop())
		if err != nil {
			log.Printf("Events will not be checked: %v", err)
		} else {
			defer nc.Close()
			if _, err := nc.Subscribe("nowastelife.>", func(subject string, data []byte) {
				observed.Add(1)
				log.Printf("event %s: %s", subject, data)
			}); err != nil {
				log.Fatalf("Failed to subscribe: %v", err)
			}
		}
	}

	// Retry loop for server startup
	var health models.HealthStatus
	for i := 0; ; i++ {
		resp, err := client.Get(baseURL + "/health")
		if err == nil {
			err = json.NewDecoder(resp.Body).Decode(&health)
			resp.Body.Close()
		}
		if err == nil {
			break
		}
		if i == 9 {
			log.Fatalf("Server not reachable at %s: %v", baseURL, err)
		}
		log.Printf("Waiting for server... (%v)", err)
		time.Sleep(2 * time.Second)
	}
	log.Printf("Health: status=%s gemini_configured=%v", health.Status, health.GeminiConfigured)

	// Validation must fail without touching the model.
	expectStatus(client, baseURL+"/api/breakdown-task", models.BreakdownRequest{Task: "  "}, http.StatusBadRequest)
	expectStatus(client, baseURL+"/api/diagnose-procrastination", models.DiagnosisRequest{}, http.StatusBadRequest)

	if !health.GeminiConfigured {
		log.Println("Gemini is not configured; skipping model calls")
		return
	}

	status, body := post(client, baseURL+"/api/breakdown-task", models.BreakdownRequest{Task: "準備下週的簡報"})
	if status == http.StatusOK {
		var result models.BreakdownResult
		if err := json.Unmarshal(body, &result); err != nil {
			log.Fatalf("Breakdown returned malformed JSON: %v", err)
		}
		log.Printf("Breakdown: %d subtasks", len(result.Subtasks))
		for i, s := range result.Subtasks {
			fmt.Printf("  %d. %s: %s\n", i+1, s.Title, s.Description)
		}
	} else {
		log.Printf("Breakdown failed with %d: %s", status, body)
	}

	status, body = post(client, baseURL+"/api/diagnose-procrastination", models.DiagnosisRequest{
		CompletedTasks: []models.CompletedTask{
			{Title: "寫報告", Feeling: "很焦慮", Deadline: "2024-05-01", CompletedDate: "2024-05-03"},
			{Title: "運動", Feeling: "輕鬆", Deadline: "2024-05-02", CompletedDate: "2024-05-02"},
		},
	})
	if status == http.StatusOK {
		var diagnosis models.Diagnosis
		if err := json.Unmarshal(body, &diagnosis); err != nil {
			log.Fatalf("Diagnosis returned malformed JSON: %v", err)
		}
		if diagnosis.Summary != "" {
			log.Printf("Diagnosis (degraded): %s", diagnosis.Summary)
		} else {
			log.Printf("Diagnosis: %s (%d solutions)", diagnosis.Cause, len(diagnosis.Solutions))
		}
	} else {
		log.Printf("Diagnosis failed with %d: %s", status, body)
	}

	time.Sleep(500 * time.Millisecond)
	log.Printf("Smoke test finished, %d events observed", observed.Load())
}

func post(client *http.Client, url string, payload any) (int, []byte) {
	jsonBody, _ := json.Marshal(payload)
	resp, err := client.Post(url, "application/json", bytes.NewReader(jsonBody))
	if err != nil {
		log.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func expectStatus(client *http.Client, url string, payload any, want int) {
	status, body := post(client, url, payload)
	if status != want {
		log.Fatalf("POST %s: expected %d, got %d: %s", url, want, status, body)
	}
	log.Printf("POST %s -> %d as expected", url, status)
}
