package monitoring

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestNewHealthChecker(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	healthChecker := NewHealthChecker("1.0.0", db)
	if healthChecker == nil {
		t.Fatal("Expected health checker, got nil")
	}

	if healthChecker.version != "1.0.0" {
		t.Errorf("Expected version 1.0.0, got %s", healthChecker.version)
	}
}

func TestHealthCheckHealthy(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	healthChecker := NewHealthChecker("1.0.0", db)

	healthCheck := healthChecker.Check("online", 2)

	if healthCheck.Status != HealthStatusHealthy {
		t.Errorf("Expected status healthy, got %s", healthCheck.Status)
	}
	if healthCheck.Connectivity != "online" {
		t.Errorf("Expected connectivity online, got %s", healthCheck.Connectivity)
	}
	if healthCheck.ActiveDownloads != 2 {
		t.Errorf("Expected 2 active downloads, got %d", healthCheck.ActiveDownloads)
	}
	if healthCheck.DatabaseStatus != "connected" {
		t.Errorf("Expected database connected, got %s", healthCheck.DatabaseStatus)
	}
}

func TestHealthCheckOfflineIsDegraded(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	healthChecker := NewHealthChecker("1.0.0", db)
	healthCheck := healthChecker.Check("offline", 0)

	// Offline means degraded, never unhealthy: local playback still works
	if healthCheck.Status != HealthStatusDegraded {
		t.Errorf("Expected status degraded, got %s", healthCheck.Status)
	}
}

func TestHealthCheckNoDatabase(t *testing.T) {
	healthChecker := NewHealthChecker("1.0.0", nil)
	healthCheck := healthChecker.Check("online", 0)

	if healthCheck.Status != HealthStatusUnhealthy {
		t.Errorf("Expected status unhealthy, got %s", healthCheck.Status)
	}
	if healthCheck.DatabaseStatus != "disconnected" {
		t.Errorf("Expected database disconnected, got %s", healthCheck.DatabaseStatus)
	}
}

func TestHealthCheckClosedDatabase(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	db.Close()

	healthChecker := NewHealthChecker("1.0.0", db)
	healthCheck := healthChecker.Check("online", 0)

	if healthCheck.Status != HealthStatusUnhealthy {
		t.Errorf("Expected status unhealthy, got %s", healthCheck.Status)
	}
}
