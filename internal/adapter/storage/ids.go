package storage

import (
	"crypto/sha256"
	"log/slog"
	"math/big"
	"sync"

	"github.com/metafates/gache"
	"github.com/spf13/afero"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

// idDigits bounds IDs to 16 decimal digits.
const idDigits = 16

var idModulus = new(big.Int).Exp(big.NewInt(10), big.NewInt(idDigits), nil)

// idData is the persisted form of the ID table.
type idData struct {
	IDs map[string]map[string]domain.ID `json:"ids"`
}

// IDTable hands out IDs derived from sha256(name) mod 10^16 and remembers every ID it handed out.
// The table is persisted with gache so AlreadyMaterialized survives restarts.
//
// Thread-safe: All operations protected by sync.Mutex.
type IDTable struct {
	logger *slog.Logger
	cache  *gache.Cache[*idData]

	mu    sync.Mutex
	data  *idData
	known map[domain.ID]struct{}
}

// NewIDTable loads the table from layout.IDTablePath() on fs.
func NewIDTable(fs afero.Fs, layout Layout, logger *slog.Logger) *IDTable {
	t := &IDTable{
		logger: logger,
		cache: gache.New[*idData](&gache.Options{
			Path:       layout.IDTablePath(),
			FileSystem: GacheFs{Fs: fs},
		}),
		known: make(map[domain.ID]struct{}),
	}

	data, expired, err := t.cache.Get()
	if err != nil {
		logger.Warn("id table unreadable, starting fresh", slog.Any("error", err))
	}
	if err != nil || expired || data == nil || data.IDs == nil {
		data = &idData{IDs: make(map[string]map[string]domain.ID)}
	}
	t.data = data
	for _, names := range data.IDs {
		for _, id := range names {
			t.known[id] = struct{}{}
		}
	}
	return t
}

// HashName derives the ID of a name.
func HashName(name string) domain.ID {
	sum := sha256.Sum256([]byte(name))
	n := new(big.Int).SetBytes(sum[:])
	return domain.ID(n.Mod(n, idModulus).Uint64())
}

// IDFor returns the ID for name within kind, persisting newly allocated IDs.
func (t *IDTable) IDFor(name string, kind domain.IDKind) (domain.ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	names, ok := t.data.IDs[kind.String()]
	if !ok {
		names = make(map[string]domain.ID)
		t.data.IDs[kind.String()] = names
	}
	if id, ok := names[name]; ok {
		return id, nil
	}

	id := HashName(name)
	names[name] = id
	t.known[id] = struct{}{}
	if err := t.cache.Set(t.data); err != nil {
		return id, domain.NewRepositoryError("IDFor", "ids", "failed to persist id table", err)
	}
	t.logger.Debug("id allocated", slog.String("name", name), slog.String("kind", kind.String()), slog.Uint64("id", uint64(id)))
	return id, nil
}

// AlreadyMaterialized reports whether the ID was handed out before.
func (t *IDTable) AlreadyMaterialized(id domain.ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.known[id]
	return ok
}

// Len returns the number of allocated names across all kinds.
func (t *IDTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, names := range t.data.IDs {
		n += len(names)
	}
	return n
}

// Verify interface implementation
var _ ports.IDAllocator = (*IDTable)(nil)
