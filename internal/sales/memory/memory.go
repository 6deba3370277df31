package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"storico/internal/core"
	ports "storico/internal/sales"
)

var (
	_ ports.SaleLister = (*Store)(nil)
	_ ports.SaleWriter = (*Store)(nil)
)

// SeedFile is the file name looked up by NewFromFiles.
const SeedFile = "seed_sales.json"

type Store struct {
	mu       sync.Mutex
	byClient map[string][]core.Sale
}

func New(sales []core.Sale) *Store {
	s := &Store{byClient: make(map[string][]core.Sale)}
	for _, sale := range sales {
		id := strings.TrimSpace(sale.ClientID)
		if id == "" {
			continue
		}
		s.byClient[id] = append(s.byClient[id], sale)
	}
	return s
}

// NewFromFiles loads base/seed_sales.json. A missing or malformed file yields
// an empty store.
func NewFromFiles(base string) *Store {
	sales, err := readSeed(filepath.Join(base, SeedFile))
	if err != nil {
		return New(nil)
	}
	return New(sales)
}

// ListClientSales returns a copy of the client's sales in insertion order.
func (s *Store) ListClientSales(_ context.Context, clientID string) ([]core.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSales(s.byClient[strings.TrimSpace(clientID)]), nil
}

// ReplaceClientSales swaps the stored sales of a client.
func (s *Store) ReplaceClientSales(_ context.Context, clientID string, sales []core.Sale) error {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return fmt.Errorf("replace sales: empty client id")
	}
	for _, sale := range sales {
		if err := sale.ValidateHeader(); err != nil {
			return fmt.Errorf("sale %q: %w", sale.ID, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byClient[clientID] = cloneSales(sales)
	return nil
}

// Clients returns the ids of all clients with stored sales.
func (s *Store) Clients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.byClient))
	for id := range s.byClient {
		out = append(out, id)
	}
	return out
}

func cloneSales(in []core.Sale) []core.Sale {
	out := make([]core.Sale, len(in))
	for i, sale := range in {
		sale.Items = append([]core.LineItem(nil), sale.Items...)
		out[i] = sale
	}
	return out
}

type seedItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
}

type seedSale struct {
	ID        string     `json:"id"`
	ClientID  string     `json:"client_id"`
	CreatedAt time.Time  `json:"created_at"`
	Total     string     `json:"total"`
	Items     []seedItem `json:"items"`
}

func readSeed(path string) ([]core.Sale, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed []seedSale
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	out := make([]core.Sale, 0, len(seed))
	for _, ss := range seed {
		total, err := core.ParseDecimalToCents(ss.Total)
		if err != nil {
			continue
		}
		sale := core.Sale{
			ID:        ss.ID,
			ClientID:  ss.ClientID,
			CreatedAt: ss.CreatedAt,
			Total:     core.Money{Cents: total},
		}
		for _, it := range ss.Items {
			price, err := core.ParseDecimalToCents(it.UnitPrice)
			if err != nil {
				price = 0
			}
			sale.Items = append(sale.Items, core.LineItem{
				ProductID:   it.ProductID,
				ProductName: it.ProductName,
				Quantity:    it.Quantity,
				UnitPrice:   core.Money{Cents: price},
			})
		}
		out = append(out, sale)
	}
	return out, nil
}
