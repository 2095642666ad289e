package memory

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"barberbot/app/config"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
	"github.com/samber/oops"
)

// Service is a JSON lines store of customer notes. Every operation reads the
// whole file and rewrites it, which is fine for a single shop's clientele.
type Service struct {
	path string
	mu   sync.Mutex
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)
	return NewService(cfg.Tools.NotesFile)
}

func NewService(path string) (*Service, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, oops.In("memory").Wrapf(err, "create notes dir")
		}
	}

	file, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, oops.In("memory").Wrapf(err, "open notes file")
	}
	_ = file.Close()

	return &Service{path: path}, nil
}

func (s *Service) load() ([]*Customer, error) {
	file, err := os.OpenFile(s.path, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, oops.In("memory").Wrapf(err, "open notes file")
	}
	defer file.Close()

	var customers []*Customer

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var item jsonLineItem
		if err = json.Unmarshal([]byte(line), &item); err != nil {
			return nil, oops.In("memory").Wrapf(err, "parse notes line")
		}

		customers = append(customers, &Customer{
			ID:    item.ID,
			Name:  item.Name,
			Notes: item.Notes,
		})
	}

	if err = scanner.Err(); err != nil {
		return nil, oops.In("memory").Wrapf(err, "read notes file")
	}

	return customers, nil
}

func (s *Service) save(customers []*Customer) error {
	tmp := s.path + ".tmp"

	file, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return oops.In("memory").Wrapf(err, "create notes file")
	}

	writer := bufio.NewWriter(file)
	for _, c := range customers {
		if len(c.Notes) == 0 && c.Name == "" {
			continue
		}

		data, err := json.Marshal(jsonLineItem{ID: c.ID, Name: c.Name, Notes: c.Notes})
		if err != nil {
			_ = file.Close()
			return oops.In("memory").Wrapf(err, "marshal customer")
		}
		if _, err = writer.Write(append(data, '\n')); err != nil {
			_ = file.Close()
			return oops.In("memory").Wrapf(err, "write customer")
		}
	}

	if err = writer.Flush(); err != nil {
		_ = file.Close()
		return oops.In("memory").Wrapf(err, "flush notes")
	}
	if err = file.Close(); err != nil {
		return oops.In("memory").Wrapf(err, "close notes file")
	}

	return os.Rename(tmp, s.path)
}

func find(customers []*Customer, id string) *Customer {
	for _, c := range customers {
		if strings.EqualFold(c.ID, id) {
			return c
		}
	}
	return nil
}

// AddNotes appends notes that are not already known, creating customers on
// demand.
func (s *Service) AddNotes(requests []AddNotesRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	customers, err := s.load()
	if err != nil {
		return err
	}

	for _, req := range requests {
		if req.CustomerID == "" {
			return oops.In("memory").Errorf("customerId is required")
		}

		notes := pie.Filter(req.Notes, func(n string) bool {
			return strings.TrimSpace(n) != ""
		})

		customer := find(customers, req.CustomerID)
		if customer == nil {
			customer = &Customer{ID: req.CustomerID}
			customers = append(customers, customer)
		}
		if req.Name != "" {
			customer.Name = req.Name
		}

		for _, note := range notes {
			if !pie.Contains(customer.Notes, note) {
				customer.Notes = append(customer.Notes, note)
			}
		}
	}

	if err = s.save(customers); err != nil {
		return err
	}

	slog.Info("Added customer notes", "requests", requests)

	return nil
}

// DeleteNotes removes the exact notes given and returns how many were found.
func (s *Service) DeleteNotes(deletions []DeleteNotesRequest) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customers, err := s.load()
	if err != nil {
		return 0, err
	}

	totalDeleted := 0
	for _, d := range deletions {
		customer := find(customers, d.CustomerID)
		if customer == nil {
			continue
		}

		kept := pie.Filter(customer.Notes, func(n string) bool {
			return !pie.Contains(d.Notes, n)
		})
		totalDeleted += len(customer.Notes) - len(kept)
		customer.Notes = kept
	}

	if err = s.save(customers); err != nil {
		return 0, err
	}

	slog.Info("Deleted customer notes", "deletions", deletions, "deleted", totalDeleted)

	return totalDeleted, nil
}

// Search returns the customers whose id or name case-insensitively equals one
// of ids.
func (s *Service) Search(ids []string) ([]*Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customers, err := s.load()
	if err != nil {
		return nil, err
	}

	result := make([]*Customer, 0)
	for _, id := range ids {
		for _, c := range customers {
			if strings.EqualFold(c.ID, id) || (c.Name != "" && strings.EqualFold(c.Name, id)) {
				if !pie.Contains(result, c) {
					result = append(result, c)
				}
			}
		}
	}

	slog.Debug("Customer search completed",
		"ids", ids,
		"customers_count", len(result),
	)

	return result, nil
}
