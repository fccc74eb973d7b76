// Package testutil provides shared fixtures for integration tests.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	mongoStartupTimeout = 60 * time.Second
	mongoCtxTimeout     = 5 * time.Second
	maxDBNameLength     = 63
)

// The container is started once and reused by every test in the binary.
var (
	mongoOnce sync.Once
	mongoURI  string
	mongoErr  error
)

func sharedMongoURI() (string, error) {
	mongoOnce.Do(func() {
		// testcontainers panics (rather than returning an error) when no
		// container runtime can be found; fold that into mongoErr so the
		// documented skip path still works.
		defer func() {
			if r := recover(); r != nil {
				mongoErr = fmt.Errorf("start mongodb container: %v", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), mongoStartupTimeout)
		defer cancel()

		// Transactions require a replica set, even a single-node one.
		container, err := mongodb.Run(ctx, "mongo:8", mongodb.WithReplicaSet("rs0"))
		if err != nil {
			mongoErr = fmt.Errorf("start mongodb container: %w", err)
			return
		}

		uri, err := container.ConnectionString(ctx)
		if err != nil {
			mongoErr = fmt.Errorf("mongodb connection string: %w", err)
			return
		}
		mongoURI = uri
	})

	return mongoURI, mongoErr
}

// SetupTestMongoDB connects to the shared MongoDB container and hands the
// test a client plus a database name unique to the test. The database is
// dropped and the client disconnected on cleanup. Skips in short mode and
// when no container runtime is available.
func SetupTestMongoDB(t *testing.T) (*mongo.Client, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping MongoDB integration test in short mode")
	}

	uri, err := sharedMongoURI()
	if err != nil {
		t.Skipf("MongoDB container unavailable: %v", err)
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect to MongoDB: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), mongoCtxTimeout)
	defer cancel()
	if err = client.Ping(ctx, nil); err != nil {
		t.Fatalf("ping MongoDB: %v", err)
	}

	dbName := testDBName(t.Name())

	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), mongoCtxTimeout)
		defer cleanupCancel()
		_ = client.Database(dbName).Drop(cleanupCtx)
		_ = client.Disconnect(cleanupCtx)
	})

	return client, dbName
}

// testDBName derives a valid MongoDB database name from a test name.
// Test names contain slashes from subtests, so the name is hashed when
// it cannot be used directly.
func testDBName(testName string) string {
	name := "eventra_test_" + testName
	valid := len(name) <= maxDBNameLength
	for _, r := range testName {
		if r == '/' || r == ' ' || r == '.' || r == '"' || r == '$' || r == '\\' {
			valid = false
			break
		}
	}
	if valid {
		return name
	}

	sum := sha256.Sum256([]byte(testName))
	return "eventra_test_" + hex.EncodeToString(sum[:8])
}
