package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/braianpx/fieldtrack/fieldclient"
	"github.com/braianpx/fieldtrack/internal/models"
)

const (
	BaseURL    = "http://localhost:8080"
	WSURL      = "ws://localhost:8080/ws"
	AgentCount = 50 // Start small; each agent holds one websocket plus pings.
	PingCount  = 20 // Location pings per agent
	PingEvery  = 100 * time.Millisecond
)

type authResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func main() {
	log.Printf("🔥 STARTING FLEET TEST: %d agents, %d pings each...", AgentCount, PingCount)

	// One supervisor dashboard watching the whole fleet.
	supToken, supID := authenticate("fleet_supervisor", "password123", "supervisor")
	if supToken == "" {
		log.Fatal("❌ supervisor auth failed")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dashboard := runDashboard(ctx, supID)

	var wg sync.WaitGroup
	for i := 0; i < AgentCount; i++ {
		wg.Add(1)
		go func(agentID int) {
			defer wg.Done()
			runAgent(ctx, agentID)
		}(i)
	}
	wg.Wait()

	// Give the final snapshots a moment to land.
	time.Sleep(2 * time.Second)
	log.Printf("✅ FLEET TEST COMPLETE: dashboard sees %d locations, %d responses",
		len(dashboard.SurveyorLocations()), len(dashboard.Responses()))
}

func runDashboard(ctx context.Context, userID int) *fieldclient.Client {
	client, err := fieldclient.New(fieldclient.Config{
		URL:       WSURL,
		UserID:    userID,
		Role:      models.RoleSupervisor,
		Reconnect: true,
	})
	if err != nil {
		log.Fatalf("❌ dashboard client: %v", err)
	}
	go client.Run(ctx)
	return client
}

func runAgent(ctx context.Context, agentID int) {
	username := fmt.Sprintf("agent_%d", agentID)
	_, userID := authenticate(username, "password123", "surveyor")
	if userID == 0 {
		return
	}

	client, err := fieldclient.New(fieldclient.Config{
		URL:    WSURL,
		UserID: userID,
		Role:   models.RoleSurveyor,
	})
	if err != nil {
		log.Printf("❌ agent client [%s]: %v", username, err)
		return
	}
	agentCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go client.Run(agentCtx)

	// Wait for the dial before spamming pings.
	for i := 0; i < 50 && !client.Connected(); i++ {
		time.Sleep(100 * time.Millisecond)
	}
	if !client.Connected() {
		log.Printf("❌ WS connect fail [%s]", username)
		return
	}

	client.StartShift(nil)
	for i := 0; i < PingCount; i++ {
		p := models.Point{
			Type:        "Point",
			Coordinates: []float64{-58.38 + float64(agentID)/1000, -34.60 + float64(i)/1000},
		}
		if err := client.UpdateLocation(p); err != nil {
			log.Printf("❌ ping fail [%s]: %v", username, err)
			break
		}
		time.Sleep(PingEvery)
	}
	client.EndShift(nil)
	log.Printf("✅ %s finished %d pings", username, PingCount)
}

// authenticate registers (ignoring conflicts) and logs in.
func authenticate(username, password, role string) (string, int) {
	if resp, err := postJSON("/api/register", map[string]string{
		"username": username, "password": password, "name": username, "role": role,
	}); err == nil {
		resp.Body.Close()
	}

	resp, err := postJSON("/api/login", map[string]string{"username": username, "password": password})
	if err != nil {
		log.Printf("❌ login failed [%s]: %v", username, err)
		return "", 0
	}
	defer resp.Body.Close()

	var data authResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Token, data.User.ID
}

func postJSON(endpoint string, data any) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
