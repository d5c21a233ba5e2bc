package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/relink/relink/internal/auth"
	"github.com/relink/relink/internal/model"
	"github.com/relink/relink/internal/store"
)

type output struct {
	OwnerID   string `json:"owner_id"`
	KeyID     string `json:"key_id"`
	Key       string `json:"key"`
	KeyPrefix string `json:"key_prefix"`
	Role      string `json:"role"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		ownerID     = flag.String("owner-id", "system", "Owner ID for the API key")
		name        = flag.String("name", "bootstrap", "API key name")
		roleInput   = flag.String("role", "admin", "Key role: user or admin")
		env         = flag.String("env", auth.EnvLive, "Key environment: live or test")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	role, err := parseRole(*roleInput)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := store.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer st.Close()

	generated, err := auth.GenerateKey(*env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate api key:", err)
		os.Exit(1)
	}

	apiKey := &model.APIKey{
		ID:        ulid.Make().String(),
		OwnerID:   *ownerID,
		KeyHash:   generated.Hash,
		KeyPrefix: generated.Prefix,
		Role:      role,
		Name:      *name,
		CreatedAt: time.Now().UTC(),
	}

	if err := st.CreateAPIKey(ctx, apiKey); err != nil {
		fmt.Fprintln(os.Stderr, "create api key:", err)
		os.Exit(1)
	}

	out := output{
		OwnerID:   *ownerID,
		KeyID:     apiKey.ID,
		Key:       generated.Plaintext,
		KeyPrefix: apiKey.KeyPrefix,
		Role:      string(role),
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.Key)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}

func parseRole(input string) (model.Role, error) {
	switch strings.TrimSpace(strings.ToLower(input)) {
	case string(model.RoleUser):
		return model.RoleUser, nil
	case string(model.RoleAdmin):
		return model.RoleAdmin, nil
	default:
		return "", fmt.Errorf("invalid role %q; use user or admin", input)
	}
}
