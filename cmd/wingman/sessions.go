package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"wingman/internal/adapter/store"
	"wingman/internal/domain"
	"wingman/internal/infra/config"
)

// runSessions prints the stored sessions of --user (default identity when
// omitted) without hydrating an orchestrator.
func runSessions(w io.Writer) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kv, closer, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer closer.Close()

	owner := flagValue(os.Args, "--user")
	if owner == "" {
		owner = cfg.Identity.DefaultUser
	}
	return listSessions(ctx, kv, owner, w)
}

func listSessions(ctx context.Context, kv domain.KVStore, owner string, w io.Writer) error {
	owner = domain.OwnerOrDefault(owner)
	raw, err := kv.Get(ctx, domain.SessionsKey(owner))
	if errors.Is(err, domain.ErrNotFound) {
		fmt.Fprintf(w, "no sessions stored for %s\n", owner)
		return nil
	}
	if err != nil {
		return err
	}

	var sessions []domain.ChatSession
	if err := json.Unmarshal(raw, &sessions); err != nil {
		return domain.NewDomainError("sessions", domain.ErrCorruptData, err.Error())
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tMESSAGES\tTITLE")
	for _, s := range sessions {
		created := time.UnixMilli(s.CreatedAt).Local().Format("2006-01-02 15:04")
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, created, s.MessageCount(), s.Title)
	}
	return tw.Flush()
}
