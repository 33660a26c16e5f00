package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/connreg/internal/connection"
	"github.com/zjrosen/connreg/internal/log"
	"github.com/zjrosen/connreg/internal/watcher"
)

// DefaultCategoryName names the provider category when the source gives none.
const DefaultCategoryName = "Local Network"

// idNamespace seeds the stable IDs given to services listed without one.
var idNamespace = uuid.MustParse("5b0c1f9e-4a57-4d3c-9a7e-2f6f0d7c9e11")

// fileDocument is the YAML layout read by FileProvider.
//
//	category: Local Network
//	services:
//	  - name: printer
//	    params:
//	      protocol: ipp
//	      address: 10.0.0.5
type fileDocument struct {
	Category string        `yaml:"category"`
	Services []fileService `yaml:"services"`
}

type fileService struct {
	ID     string            `yaml:"id"`
	Name   string            `yaml:"name"`
	Params map[string]string `yaml:"params"`
}

// FileProvider reads discovered services from a YAML file that another agent
// (an mDNS browser, a script) keeps up to date.
type FileProvider struct {
	path     string
	debounce time.Duration
}

// NewFileProvider creates a provider over path.
func NewFileProvider(path string, debounce time.Duration) *FileProvider {
	return &FileProvider{path: path, debounce: debounce}
}

// Snapshot implements Provider. A missing file is an empty snapshot.
func (p *FileProvider) Snapshot(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{Category: connection.Category{Name: DefaultCategoryName}}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading discovery file: %w", err)
	}
	return ParseSnapshot(data)
}

// ParseSnapshot decodes a discovery document.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("parsing discovery file: %w", err)
	}

	snap := Snapshot{Category: connection.Category{Name: doc.Category}}
	if snap.Category.Name == "" {
		snap.Category.Name = DefaultCategoryName
	}

	seen := make(map[connection.ID]bool, len(doc.Services))
	for i, svc := range doc.Services {
		if svc.Name == "" {
			return Snapshot{}, fmt.Errorf("service %d: name is required", i)
		}
		id := connection.ID(svc.ID)
		if id == "" {
			id = stableID(svc)
		}
		if seen[id] {
			log.Warn(log.CatDiscovery, "Duplicate discovered service ignored", "id", id, "name", svc.Name)
			continue
		}
		seen[id] = true
		var params connection.Params
		if len(svc.Params) > 0 {
			params = connection.Params(svc.Params)
		}
		snap.Hosts = append(snap.Hosts, connection.Host{ID: id, Name: svc.Name, Params: params})
	}
	return snap, nil
}

// stableID derives an ID from the service's name and address so the same
// service keeps its identity across reads.
func stableID(svc fileService) connection.ID {
	key := svc.Name + "\x00" + svc.Params["address"] + "\x00" + svc.Params["port"]
	return connection.ID("discovered-" + uuid.NewSHA1(idNamespace, []byte(key)).String())
}

// Watch implements Provider. The file's directory must exist.
func (p *FileProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
	w, err := watcher.New(watcher.Config{Paths: []string{p.path}, DebounceDur: p.debounce})
	if err != nil {
		return nil, err
	}
	signals, err := w.Start()
	if err != nil {
		_ = w.Stop()
		return nil, fmt.Errorf("watching discovery file: %w", err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer func() { _ = w.Stop() }()
		for {
			select {
			case <-ctx.Done():
				return
			case <-signals:
				log.Debug(log.CatDiscovery, "Discovery file changed", "path", p.path)
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}

var _ Provider = (*FileProvider)(nil)
