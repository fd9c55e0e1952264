package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-json"
)

var baseURL = "http://localhost:8080"

func main() {
	if v := os.Getenv("E2E_BASE_URL"); v != "" {
		baseURL = v
	}
	// Wait for server to start
	time.Sleep(2 * time.Second)

	// 1. Health Check
	checkEndpoint("GET", "/health", 200)

	// 2. Trigger a cycle
	runID := runCycle()
	fmt.Printf("Cycle run ID: %s\n", runID)

	// 3. Last cycle must be the one we just ran
	body := checkEndpoint("GET", "/cycle/last", 200)
	var last map[string]interface{}
	if err := json.Unmarshal(body, &last); err != nil || last["run_id"] != runID {
		log.Fatalf("Expected last run %s, got %s", runID, string(body))
	}

	// 4. Portfolio and holdings
	checkEndpoint("GET", "/portfolio", 200)
	checkEndpoint("GET", "/holdings", 200)
	checkEndpoint("GET", "/holdings?class=crypto", 200)
	checkEndpoint("GET", "/holdings?class=commodity", 400)

	// 5. A second cycle with unchanged balances adjusts nothing
	var sum struct {
		Adjusted []interface{} `json:"adjusted"`
		Created  []interface{} `json:"created"`
	}
	if err := json.Unmarshal(post("/cycle"), &sum); err != nil {
		log.Fatalf("Decode summary failed: %v", err)
	}
	if len(sum.Adjusted) != 0 || len(sum.Created) != 0 {
		log.Fatalf("Expected a quiet second cycle, got %d adjusted and %d created", len(sum.Adjusted), len(sum.Created))
	}

	fmt.Println("ALL TESTS PASSED")
}

func checkEndpoint(method, path string, expectedStatus int) []byte {
	fmt.Printf("Testing %s %s...\n", method, path)
	req, _ := http.NewRequest(method, baseURL+path, nil)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != expectedStatus {
		log.Fatalf("Expected status %d, got %d. Body: %s", expectedStatus, resp.StatusCode, string(respBody))
	}
	fmt.Printf("Response: %s\n", string(respBody))
	return respBody
}

func post(path string) []byte {
	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Post(baseURL+path, "application/json", nil)
	if err != nil {
		log.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 {
		log.Fatalf("POST %s failed with status %d: %s", path, resp.StatusCode, string(body))
	}
	return body
}

func runCycle() string {
	fmt.Println("Running cycle...")
	var res map[string]interface{}
	if err := json.Unmarshal(post("/cycle"), &res); err != nil {
		log.Fatalf("Decode cycle response failed: %v", err)
	}
	id, _ := res["run_id"].(string)
	return id
}
