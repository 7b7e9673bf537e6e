// Package main runs a demo WebSocket client for route optimization events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// demoRoute zigzags across Munich so the optimizer has something to fix.
const demoRoute = `{"planDate":"2026-01-05","depot":{"lat":48.1351,"lng":11.5820},"stops":[
 {"id":"s1","location":{"lat":48.10,"lng":11.40}},
 {"id":"s2","location":{"lat":48.11,"lng":11.80}},
 {"id":"s3","location":{"lat":48.12,"lng":11.40},"priority":"URGENT"},
 {"id":"s4","location":{"lat":48.13,"lng":11.80}},
 {"id":"s5","location":{"lat":48.14,"lng":11.40}}]}`

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	var route struct {
		ID string `json:"id"`
	}
	if err := post(base+"/v1/routes", []byte(demoRoute), &route); err != nil {
		log.Fatal(err)
	}
	log.Printf("Route ID: %s", route.ID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/routes/" + route.ID + "/events/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Trigger route.optimized (and route.applied via auto-apply)
	time.Sleep(500 * time.Millisecond)
	var res map[string]any
	if err := post(fmt.Sprintf("%s/v1/routes/%s/optimize?autoApply=true&algorithm=SIMULATED_ANNEALING", base, route.ID), nil, &res); err != nil {
		log.Fatal(err)
	}
	log.Printf("optimize: saved_km=%v improvement=%v applied=%v", res["distanceSavedKm"], res["improvementPercent"], res["applied"])

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}

func post(u string, body []byte, out any) error {
	req, _ := http.NewRequest(http.MethodPost, u, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: status %d", u, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
