// File: cmd/probe/main.go

// probe submits one generation job through the running HTTP API and follows
// it until a terminal status or its own patience runs out. Useful for
// smoke-testing a deployment end to end.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"render-studio/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

type submitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Prompt string `json:"prompt"`
}

type renderResponse struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	ImageURL *string `json:"imageUrl"`
	Error    string  `json:"error"`
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	userID := flag.String("user", "probe-user", "user id to submit as")
	prompt := flag.String("prompt", "a lighthouse at dusk, oil painting", "generation prompt")
	image := flag.String("image", "https://images.example.com/probe-source.jpg", "public source image URL")
	renderType := flag.String("type", "generate", "render type")
	patience := flag.Duration("patience", 90*time.Second, "how long to follow the job")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	token, err := mintToken(cfg.Web.JWTSecret, *userID, cfg.Web.TokenTTL)
	if err != nil {
		log.Fatalf("token: %v", err)
	}
	base := fmt.Sprintf("http://localhost:%d", cfg.Web.Port)

	body, _ := json.Marshal(map[string]any{
		"render_type": *renderType,
		"image":       *image,
		"prompt":      *prompt,
	})
	req, _ := http.NewRequest(http.MethodPost, base+"/api/v1/renders", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	httpClient := &http.Client{Timeout: 30 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		log.Fatalf("submit: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		log.Fatalf("submit: unexpected status %s", resp.Status)
	}
	var sub submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		log.Fatalf("submit decode: %v", err)
	}
	log.Printf("submitted id=%s status=%s", sub.ID, sub.Status)

	deadline := time.Now().Add(*patience)
	for {
		if time.Now().After(deadline) {
			log.Printf("still running after %s; giving up (the job keeps going server-side)", *patience)
			return
		}
		time.Sleep(2 * time.Second)

		get, _ := http.NewRequest(http.MethodGet, base+"/api/v1/renders/"+sub.ID, nil)
		get.Header.Set("Authorization", "Bearer "+token)
		r, err := httpClient.Do(get)
		if err != nil {
			log.Printf("poll: %v", err)
			continue
		}
		var rr renderResponse
		err = json.NewDecoder(r.Body).Decode(&rr)
		r.Body.Close()
		if err != nil {
			log.Printf("poll decode: %v", err)
			continue
		}
		log.Printf("status=%s", rr.Status)

		switch rr.Status {
		case "succeeded":
			if rr.ImageURL != nil {
				log.Printf("artifact: %s", *rr.ImageURL)
			}
			return
		case "failed", "canceled", "failed_timeout":
			log.Printf("ended: %s (%s)", rr.Status, rr.Error)
			return
		}
	}
}

func mintToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Subject:   userID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
