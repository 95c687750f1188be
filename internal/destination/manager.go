// internal/destination/manager.go

package destination

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/orgoj/crogger/internal/config"
	"github.com/orgoj/crogger/internal/logger"
	"github.com/orgoj/crogger/internal/version"
	"github.com/orgoj/crogger/pkg/ingest"
	"github.com/orgoj/crogger/pkg/record"
)

// DefaultName is the destination created when the config lists none.
const DefaultName = "default"

// ErrNoDestinations is returned by Ingest when no client is initialized.
var ErrNoDestinations = errors.New("no enabled log destinations")

// Manager owns the configured ingest clients. It is itself an
// ingest.Client that fans every batch out to all of them.
type Manager struct {
	clients   map[string]ingest.Client
	order     []string
	mu        sync.RWMutex
	appLogger *logger.AppLogger
}

// NewManager creates a new destination manager.
func NewManager() *Manager {
	return &Manager{
		clients:   make(map[string]ingest.Client),
		appLogger: logger.GetAppLogger(),
	}
}

// InitClients builds a client for every enabled destination in cfg. With no
// destinations configured, a single HTTP client for cfg.Ingest is created.
// A destination that fails to initialize is skipped and reported in the
// returned error; the others stay usable.
func (m *Manager) InitClients(cfg *config.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Close existing clients first if any (e.g., on re-initialization)
	for name, c := range m.clients {
		if err := c.Close(); err != nil {
			m.appLogger.Warn("Error closing existing destination '%s' during re-initialization: %v", name, err)
		}
	}
	m.clients = make(map[string]ingest.Client)
	m.order = nil

	destinations := cfg.LogDestinations
	if len(destinations) == 0 {
		destinations = []config.LogDestination{{Name: DefaultName, Type: config.DestinationHTTP, Enabled: true}}
	}

	var initErrors []error
	for _, dest := range destinations {
		if !dest.Enabled {
			continue
		}

		c, err := newClient(dest, cfg)
		if err != nil {
			m.appLogger.Error("Failed to initialize log destination '%s' (type: %s): %v", dest.Name, dest.Type, err)
			initErrors = append(initErrors, fmt.Errorf("dest '%s': %w", dest.Name, err))
			continue
		}

		m.clients[dest.Name] = c
		m.order = append(m.order, dest.Name)
		m.appLogger.Info("Initialized log destination '%s' (type: %s)", dest.Name, dest.Type)
	}

	if len(initErrors) > 0 {
		return fmt.Errorf("failed to initialize some destinations: %w", errors.Join(initErrors...))
	}
	return nil
}

func newClient(dest config.LogDestination, cfg *config.Config) (ingest.Client, error) {
	switch dest.Type {
	case config.DestinationHTTP:
		endpoint := dest.Endpoint
		if endpoint == "" {
			endpoint = cfg.Ingest.Endpoint
		}
		return ingest.NewHTTPClient(ingest.HTTPConfig{
			Name:        dest.Name,
			Endpoint:    endpoint,
			Token:       cfg.Ingest.Token,
			Compression: dest.Compression,
			Timeout:     cfg.IngestTimeout(),
			UserAgent:   version.UserAgent(),
		})
	case config.DestinationFile:
		rotation, err := parseRotation(dest)
		if err != nil {
			return nil, err
		}
		return ingest.NewFileClient(ingest.FileConfig{
			Name:     dest.Name,
			Path:     dest.Path,
			Format:   dest.Format,
			Rotation: rotation,
		})
	case config.DestinationGelf:
		return ingest.NewGelfClient(ingest.GelfConfig{
			Name:            dest.Name,
			Host:            dest.Host,
			Port:            dest.Port,
			Protocol:        dest.Protocol,
			CompressionType: dest.CompressionType,
		})
	case config.DestinationElasticsearch:
		return ingest.NewElasticsearchClient(ingest.ElasticsearchConfig{
			Name:      dest.Name,
			Addresses: dest.Addresses,
			Username:  dest.Username,
			Password:  dest.Password,
			APIKey:    dest.APIKey,
		})
	default:
		return nil, fmt.Errorf("unsupported destination type: %s", dest.Type)
	}
}

// parseRotation converts the configured limits to lumberjack units.
// max_size without a unit is megabytes; max_age is rounded up to days.
func parseRotation(dest config.LogDestination) (ingest.Rotation, error) {
	r := ingest.Rotation{
		MaxBackups: dest.Rotation.MaxBackups,
		Compress:   dest.Rotation.Compress,
	}

	if dest.Rotation.MaxSize != "" {
		if mb, err := strconv.Atoi(dest.Rotation.MaxSize); err == nil {
			r.MaxSizeMB = mb
		} else {
			sizeBytes, err := config.ParseSize(dest.Rotation.MaxSize)
			if err != nil {
				return r, fmt.Errorf("invalid rotation.max_size '%s': %w", dest.Rotation.MaxSize, err)
			}
			r.MaxSizeMB = int(sizeBytes / (1024 * 1024))
			if sizeBytes > 0 && r.MaxSizeMB == 0 {
				// Minimum value is 1MB (lumberjack limitation)
				r.MaxSizeMB = 1
			}
		}
		if r.MaxSizeMB < 0 {
			r.MaxSizeMB = 0
		}
	}

	if dest.Rotation.MaxAge != "" {
		age, err := config.ParseDuration(dest.Rotation.MaxAge)
		if err != nil {
			return r, fmt.Errorf("invalid rotation.max_age '%s': %w", dest.Rotation.MaxAge, err)
		}
		r.MaxAgeDays = int(age.Hours() / 24)
		if r.MaxAgeDays == 0 {
			r.MaxAgeDays = 1
		}
	}
	return r, nil
}

// GetClient retrieves a client by destination name.
// Returns nil if the destination is not found or not initialized.
func (m *Manager) GetClient(name string) ingest.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[name]
	if !ok {
		return nil
	}
	return c
}

// Names returns the initialized destination names in config order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	return names
}

// Ingest sends the batch to every destination concurrently. Failures are
// joined; one failing destination does not stop the others.
func (m *Manager) Ingest(ctx context.Context, dataset string, records []record.Fields, opts ingest.Options) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.order) == 0 {
		return ErrNoDestinations
	}

	errs := make([]error, len(m.order))
	var wg sync.WaitGroup
	for i, name := range m.order {
		wg.Add(1)
		go func(i int, name string, c ingest.Client) {
			defer wg.Done()
			if err := c.Ingest(ctx, dataset, records, opts); err != nil {
				errs[i] = fmt.Errorf("destination '%s': %w", name, err)
			}
		}(i, name, m.clients[name])
	}
	wg.Wait()

	return errors.Join(errs...)
}

// CloseAll closes all managed clients.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.appLogger.Info("Shutting down... Closing log destinations.")
	var wg sync.WaitGroup
	for name, c := range m.clients {
		wg.Add(1)
		go func(name string, c ingest.Client) {
			defer wg.Done()
			if err := c.Close(); err != nil {
				m.appLogger.Warn("Error closing log destination '%s': %v", name, err)
			}
		}(name, c)
	}
	wg.Wait()
	m.appLogger.Info("Log destinations closed.")
	m.clients = make(map[string]ingest.Client)
	m.order = nil
}

// Close closes all managed clients.
func (m *Manager) Close() error {
	m.CloseAll()
	return nil
}

// Name returns the name of the manager.
func (m *Manager) Name() string {
	return "manager"
}

var _ ingest.Client = (*Manager)(nil)
