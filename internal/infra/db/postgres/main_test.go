//go:build integration

package postgres

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
)

var testPool *pgxpool.Pool

// TestMain uses ASSISTANT_TEST_DATABASE_URL when set, otherwise a throwaway postgres container.
func TestMain(m *testing.M) {
	ctx := context.Background()

	dsn := os.Getenv("ASSISTANT_TEST_DATABASE_URL")
	stop := func() {}
	if dsn == "" {
		var err error
		dsn, stop, err = startContainer()
		if err != nil {
			log.Fatalf("could not start postgres container: %v. Is Docker running?", err)
		}
	}

	var err error
	for attempt := 1; attempt <= 15; attempt++ {
		testPool, err = Connect(ctx, dsn)
		if err == nil {
			break
		}
		log.Printf("waiting for postgres (attempt %d/15): %v", attempt, err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		stop()
		log.Fatalf("postgres never became ready: %v", err)
	}

	code := m.Run()

	testPool.Close()
	stop()
	os.Exit(code)
}

func startContainer() (string, func(), error) {
	const user, password, db = "assistant", "assistant", "assistant_test"
	cmd := exec.Command("docker", "run", "-d", "--rm",
		"-p", "55432:5432",
		"-e", "POSTGRES_DB="+db,
		"-e", "POSTGRES_USER="+user,
		"-e", "POSTGRES_PASSWORD="+password,
		"postgres:16-alpine",
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", nil, err
	}
	id := strings.TrimSpace(out.String())
	stop := func() {
		if err := exec.Command("docker", "stop", id).Run(); err != nil {
			log.Printf("could not stop postgres container %s: %v", id, err)
		}
	}
	dsn := fmt.Sprintf("postgres://%s:%s@localhost:55432/%s?sslmode=disable", user, password, db)
	return dsn, stop, nil
}

func cleanup(t *testing.T) {
	t.Helper()
	if _, err := testPool.Exec(context.Background(), `TRUNCATE assistant_records`); err != nil {
		t.Fatalf("truncate assistant_records: %v", err)
	}
}
