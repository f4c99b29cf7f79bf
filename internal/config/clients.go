package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// ErrClientNotFound is returned when a client id is not in the registry.
var ErrClientNotFound = errors.New("client not found")

// Client describes one reported site. A Client value is passed explicitly
// into the generation pipeline.
type Client struct {
	ID              string   `toml:"id" validate:"required,max=64,client_id"`
	Name            string   `toml:"name"`
	ZoneID          string   `toml:"zone_id" validate:"required"`
	Domain          string   `toml:"domain" validate:"required,hostname"`
	Timezone        string   `toml:"timezone" validate:"omitempty,timezone"`
	PerformanceURLs []string `toml:"performance_urls" validate:"dive,required,http_url"`
}

// Location returns the client's timezone, falling back to UTC.
func (c Client) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TimezoneName returns the configured timezone name or "UTC".
func (c Client) TimezoneName() string {
	if c.Timezone == "" {
		return "UTC"
	}
	return c.Timezone
}

// Registry holds the configured clients in file order.
type Registry struct {
	clients []Client
	byID    map[string]int
}

type registryFile struct {
	Clients []Client `toml:"client"`
}

// clientIDPattern keeps ids usable as a single object key segment.
var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("client_id", func(fl validator.FieldLevel) bool {
		return clientIDPattern.MatchString(fl.Field().String())
	})
	return v
}

// LoadClients reads and validates a TOML client registry.
//
//	[[client]]
//	id = "demo-client"
//	zone_id = "023e105f4ecef8ad9ca31a8372d0c353"
//	domain = "example.com"
//	timezone = "Europe/Berlin"
//	performance_urls = ["https://example.com/"]
func LoadClients(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read clients file: %w", err)
	}
	return ParseClients(string(data))
}

// ParseClients decodes and validates registry TOML.
func ParseClients(data string) (*Registry, error) {
	var file registryFile
	if _, err := toml.Decode(data, &file); err != nil {
		return nil, fmt.Errorf("decode clients: %w", err)
	}
	return NewRegistry(file.Clients...)
}

// NewRegistry validates clients and indexes them by id.
func NewRegistry(clients ...Client) (*Registry, error) {
	reg := &Registry{
		clients: make([]Client, 0, len(clients)),
		byID:    make(map[string]int, len(clients)),
	}
	for i, c := range clients {
		c.ID = strings.TrimSpace(c.ID)
		if err := validate.Struct(c); err != nil {
			return nil, fmt.Errorf("client %d (%q): %w", i, c.ID, err)
		}
		if _, dup := reg.byID[c.ID]; dup {
			return nil, fmt.Errorf("client %q defined twice", c.ID)
		}
		reg.byID[c.ID] = len(reg.clients)
		reg.clients = append(reg.clients, c)
	}
	return reg, nil
}

// Get returns the client with the given id.
func (r *Registry) Get(id string) (Client, error) {
	i, ok := r.byID[id]
	if !ok {
		return Client{}, fmt.Errorf("%w: %q", ErrClientNotFound, id)
	}
	return r.clients[i], nil
}

// All returns every client in registry order.
func (r *Registry) All() []Client {
	return append([]Client(nil), r.clients...)
}
