package service

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/quorra/internal/model"
)

// hiddenStatuses are never offered to users.
var hiddenStatuses = map[model.ClientStatus]bool{
	model.StatusChurned:  true,
	model.StatusProspect: true,
	"":                   true,
}

type clientsFile struct {
	Clients []model.Client `yaml:"clients"`
}

// ClientService serves the client organizations conversations are scoped to.
type ClientService struct {
	clients []model.Client
}

// NewClientService creates a client service over a fixed list.
func NewClientService(clients []model.Client) *ClientService {
	return &ClientService{clients: append([]model.Client(nil), clients...)}
}

// LoadClients reads a YAML seed file of the form `clients: [{id, name, status}]`.
func LoadClients(path string) ([]model.Client, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clients file: %w", err)
	}
	var f clientsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse clients file: %w", err)
	}
	for i, c := range f.Clients {
		if c.ID == "" {
			return nil, fmt.Errorf("client %d has no id", i)
		}
	}
	return f.Clients, nil
}

// List returns the selectable clients ordered by name.
func (s *ClientService) List() []model.Client {
	out := make([]model.Client, 0, len(s.clients))
	for _, c := range s.clients {
		status := model.ClientStatus(strings.ToLower(strings.TrimSpace(string(c.Status))))
		if hiddenStatuses[status] {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Exists reports whether id is a known client.
func (s *ClientService) Exists(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Get returns the client with the given id, hidden statuses included.
func (s *ClientService) Get(id string) (model.Client, bool) {
	for _, c := range s.clients {
		if c.ID == id {
			return c, true
		}
	}
	return model.Client{}, false
}

// DefaultClients seeds a development store when no file is configured.
func DefaultClients() []model.Client {
	return []model.Client{
		{ID: "acme", Name: "Acme Corp", Status: model.StatusActive},
		{ID: "globex", Name: "Globex", Status: model.StatusAtRisk},
		{ID: "initech", Name: "Initech", Status: model.StatusPendingRenewal},
		{ID: "umbrella", Name: "Umbrella", Status: model.StatusOnHold},
	}
}
