// Package test provides testing utilities for the payments service: test
// containers for MongoDB and Redis and a random database name generator.
package test

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// MongoPort is the port exposed by the MongoDB test container.
	MongoPort = 27017
	// RedisPort is the port exposed by the Redis test container.
	RedisPort = 6379
)

// StartMongoContainer starts a MongoDB container. Use
// container.Endpoint(ctx, "mongodb") to get its connection string.
func StartMongoContainer(ctx context.Context) (testcontainers.Container, error) {
	exposedPort := fmt.Sprintf("%d/tcp", MongoPort)
	return testcontainers.GenericContainer(ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "mongo:7",
				ExposedPorts: []string{exposedPort},
				WaitingFor: wait.ForAll(
					wait.ForLog("Waiting for connections"),
					wait.ForListeningPort(nat.Port(exposedPort)),
				),
			},
			Started: true,
		})
}

// StartRedisContainer starts a Redis container. Use
// container.Endpoint(ctx, "redis") to get its connection URL.
func StartRedisContainer(ctx context.Context) (testcontainers.Container, error) {
	exposedPort := fmt.Sprintf("%d/tcp", RedisPort)
	return testcontainers.GenericContainer(ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "redis:7-alpine",
				ExposedPorts: []string{exposedPort},
				WaitingFor: wait.ForAll(
					wait.ForLog("Ready to accept connections"),
					wait.ForListeningPort(nat.Port(exposedPort)),
				),
			},
			Started: true,
		})
}

// RandomDatabaseName returns a database name unlikely to collide between
// test packages sharing a container.
func RandomDatabaseName() string {
	return fmt.Sprintf("payments-test-%d", rand.Intn(1000000))
}
