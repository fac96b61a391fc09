// Command seed loads users, saved locations and alert preferences into the
// store so the engine has something to watch during local runs.
//
// Usage:
//
//	go run ./cmd/seed \
//	  -driver sqlite \
//	  -dsn data/marine-alerts.db \
//	  -fixture testdata/fleet.json
//
// Without -fixture the bundled demo fleet is loaded.
package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/couchcryptid/marine-alerts/internal/domain"
	"github.com/couchcryptid/marine-alerts/internal/store"
)

//go:embed demo.json
var demoFixture []byte

type fixture struct {
	Users []fixtureUser `json:"users"`
}

type fixtureUser struct {
	Email     string            `json:"email"`
	Name      string            `json:"name"`
	Locations []fixtureLocation `json:"locations"`
}

type fixtureLocation struct {
	Name       string             `json:"name"`
	Latitude   float64            `json:"latitude"`
	Longitude  float64            `json:"longitude"`
	Thresholds map[string]float64 `json:"thresholds"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	driver := flag.String("driver", store.DriverSQLite, "database driver: sqlite or postgres")
	dsn := flag.String("dsn", "data/marine-alerts.db", "sqlite path or postgres URL")
	fixturePath := flag.String("fixture", "", "JSON fixture to load (default: bundled demo fleet)")
	flag.Parse()

	raw := demoFixture
	if *fixturePath != "" {
		b, err := os.ReadFile(*fixturePath)
		if err != nil {
			return fmt.Errorf("read fixture: %w", err)
		}
		raw = b
	}

	fx, err := parseFixture(raw)
	if err != nil {
		return err
	}

	ctx := context.Background()
	db, err := store.Open(ctx, *driver, *dsn)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	stats, err := seed(ctx, db, fx)
	if err != nil {
		return err
	}
	log.Printf("seeded %d users, %d locations, %d preferences", stats.users, stats.locations, stats.preferences)
	return nil
}

// parseFixture decodes and validates a fixture before anything is written.
func parseFixture(raw []byte) (fixture, error) {
	var fx fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		return fixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	if len(fx.Users) == 0 {
		return fixture{}, errors.New("fixture has no users")
	}
	for _, u := range fx.Users {
		if u.Email == "" {
			return fixture{}, errors.New("fixture user without email")
		}
		for _, l := range u.Locations {
			loc := domain.Location{ID: "fixture", Name: l.Name, Latitude: l.Latitude, Longitude: l.Longitude}
			if err := loc.Validate(); err != nil {
				return fixture{}, fmt.Errorf("user %s: %w", u.Email, err)
			}
			for kind := range l.Thresholds {
				if _, err := domain.ParseHazardKind(kind); err != nil {
					return fixture{}, fmt.Errorf("user %s, location %q: %w", u.Email, l.Name, err)
				}
			}
		}
	}
	return fx, nil
}

type seedStats struct {
	users, locations, preferences int
}

func seed(ctx context.Context, db store.Store, fx fixture) (seedStats, error) {
	var stats seedStats
	for _, fu := range fx.Users {
		user, err := db.CreateUser(ctx, fu.Email, fu.Name)
		if err != nil {
			return stats, fmt.Errorf("create user %s: %w", fu.Email, err)
		}
		stats.users++

		for _, fl := range fu.Locations {
			loc, err := db.SaveLocation(ctx, user.ID, fl.Name, fl.Latitude, fl.Longitude)
			if err != nil {
				return stats, fmt.Errorf("save location %q: %w", fl.Name, err)
			}
			stats.locations++

			if len(fl.Thresholds) == 0 {
				continue
			}
			pref := domain.AlertPreference{
				User:       user,
				Location:   loc,
				Thresholds: make(map[domain.HazardKind]float64, len(fl.Thresholds)),
				Active:     true,
			}
			for kind, v := range fl.Thresholds {
				k := domain.HazardKind(kind)
				pref.Kinds = append(pref.Kinds, k)
				pref.Thresholds[k] = v
			}
			sort.Slice(pref.Kinds, func(i, j int) bool { return pref.Kinds[i] < pref.Kinds[j] })

			if _, err := db.SavePreference(ctx, pref); err != nil {
				return stats, fmt.Errorf("save preference for %q: %w", fl.Name, err)
			}
			stats.preferences++
		}
	}
	return stats, nil
}
