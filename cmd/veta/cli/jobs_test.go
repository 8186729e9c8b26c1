package cli

import (
	"context"
	"testing"
)

func TestTriggerRejectsUnknownJob(t *testing.T) {
	cli, err := NewJobsCLI("127.0.0.1:0")
	if err != nil {
		t.Fatalf("new cli: %v", err)
	}
	defer func() { _ = cli.Close() }()

	if _, err := cli.Trigger(context.Background(), "finance:close"); err == nil {
		t.Fatal("expected unsupported job error")
	}
}

func TestTriggerRequiresClient(t *testing.T) {
	var cli *JobsCLI
	if _, err := cli.Trigger(context.Background(), "kardex:integrity"); err == nil {
		t.Fatal("expected not configured error")
	}
}
