// Package session owns the in-memory portfolio of every signed-in user.
//
// A Manager keeps one Session per user. Sessions are opened and closed from
// the identity event stream (or lazily on the first request after a restart)
// and all mutations of one user run under that user's session lock, so two
// requests never compute their next state from the same snapshot.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/events"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/portfolio"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/service"
	"github.com/google/uuid"
)

const (
	UnsyncedWarning = "portfolio storage is unreachable, showing an unsaved empty portfolio"

	publishTimeout = 5 * time.Second
)

type Session struct {
	mu        sync.Mutex
	userID    uuid.UUID
	portfolio models.Portfolio
	unsynced  bool
	closed    bool
	updatedAt time.Time
}

// Snapshot is a read of a session. Warning is set while the stored portfolio
// could not be loaded.
type Snapshot struct {
	models.PortfolioView
	Warning string `json:"warning,omitempty"`
}

type Manager struct {
	portfolios service.PortfolioService
	publisher  events.Publisher
	log        *slog.Logger
	now        func() time.Time

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewManager(portfolios service.PortfolioService, publisher events.Publisher, log *slog.Logger) *Manager {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &Manager{
		portfolios: portfolios,
		publisher:  publisher,
		log:        log,
		now:        time.Now,
		sessions:   make(map[uuid.UUID]*Session),
	}
}

// Run applies session events until ctx is done or the channel is closed.
func (m *Manager) Run(ctx context.Context, sessionEvents <-chan models.SessionEvent) {
	for {
		select {
		case <-ctx.Done():
			m.log.Info("session manager stopping...")
			return
		case event, ok := <-sessionEvents:
			if !ok {
				m.log.Warn("session event channel closed")
				return
			}
			if event.Identity == nil {
				m.Close(event.UserID)
				continue
			}
			m.Open(ctx, event.Identity.UID)
		}
	}
}

// Open starts a session for the user or reloads an existing one from storage.
func (m *Manager) Open(ctx context.Context, userID uuid.UUID) {
	s, created := m.lock(ctx, userID)
	defer s.mu.Unlock()

	if !created {
		m.load(ctx, s)
	}
}

// Close drops the user's session once the mutation it may be running is done.
func (m *Manager) Close(userID uuid.UUID) {
	m.mu.RLock()
	s, ok := m.sessions[userID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m.mu.Lock()
	if m.sessions[userID] == s {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()

	if !s.closed {
		s.closed = true
		m.log.Info("session closed", "userID", userID)
	}
}

func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) Get(ctx context.Context, userID uuid.UUID) Snapshot {
	s, _ := m.lock(ctx, userID)
	defer s.mu.Unlock()

	if s.unsynced {
		m.load(ctx, s)
	}
	return m.snapshot(s)
}

func (m *Manager) Allocation(ctx context.Context, userID uuid.UUID) ([]models.AllocationEntry, string) {
	snap := m.Get(ctx, userID)
	return portfolio.Allocation(models.Portfolio{Assets: snap.Assets}), snap.Warning
}

func (m *Manager) AddAsset(ctx context.Context, userID uuid.UUID, in service.AddAssetInput) (models.PortfolioView, error) {
	var index int
	return m.mutate(ctx, userID, models.OpAssetAdded, &index, func(current models.Portfolio) (models.Portfolio, error) {
		index = len(current.Assets)
		return m.portfolios.AddAsset(ctx, userID, current, in)
	})
}

func (m *Manager) EditAsset(ctx context.Context, userID uuid.UUID, index int, amount string) (models.PortfolioView, error) {
	return m.mutate(ctx, userID, models.OpAssetEdited, &index, func(current models.Portfolio) (models.Portfolio, error) {
		return m.portfolios.EditAsset(ctx, userID, current, index, amount)
	})
}

func (m *Manager) RemoveAsset(ctx context.Context, userID uuid.UUID, index int) (models.PortfolioView, error) {
	return m.mutate(ctx, userID, models.OpAssetRemoved, &index, func(current models.Portfolio) (models.Portfolio, error) {
		return m.portfolios.RemoveAsset(ctx, userID, current, index)
	})
}

// mutate runs fn against the committed portfolio while holding the session
// lock and commits its result only when fn succeeds.
func (m *Manager) mutate(ctx context.Context, userID uuid.UUID, op string, index *int, fn func(models.Portfolio) (models.Portfolio, error)) (models.PortfolioView, error) {
	s, _ := m.lock(ctx, userID)
	defer s.mu.Unlock()

	if s.unsynced {
		if err := m.load(ctx, s); err != nil {
			return models.PortfolioView{}, err
		}
	}

	next, err := fn(s.portfolio)
	if err != nil {
		return models.PortfolioView{}, err
	}

	s.portfolio = next
	s.updatedAt = m.now().UTC()
	view := portfolio.View(userID.String(), s.portfolio, s.updatedAt)

	m.publish(ctx, models.PortfolioEvent{
		EventID:   uuid.New(),
		UserID:    userID,
		Op:        op,
		Index:     *index,
		Portfolio: view,
		Time:      s.updatedAt,
	})

	return view, nil
}

func (m *Manager) publish(ctx context.Context, event models.PortfolioEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := m.publisher.Publish(ctx, event); err != nil {
		m.log.Error("failed to publish portfolio event", "userID", event.UserID, "op", event.Op, "error", err)
	}
}

// lock returns the user's open session with s.mu held, opening it when the
// login event has not been seen, for instance after a restart with a still
// valid token. A session closed while the caller waited is skipped.
func (m *Manager) lock(ctx context.Context, userID uuid.UUID) (*Session, bool) {
	for {
		s, created := m.acquire(ctx, userID)
		s.mu.Lock()
		if !s.closed {
			return s, created
		}
		s.mu.Unlock()
	}
}

// acquire returns the session and whether it was created (and loaded) by this
// call.
func (m *Manager) acquire(ctx context.Context, userID uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[userID]
	m.mu.RUnlock()
	if ok {
		return s, false
	}

	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		return s, false
	}

	s = &Session{userID: userID}
	// concurrent callers wait on the session lock until the first load is done
	s.mu.Lock()
	m.sessions[userID] = s
	m.mu.Unlock()

	defer s.mu.Unlock()
	m.load(ctx, s)
	m.log.Info("session opened", "userID", userID, "assets", len(s.portfolio.Assets), "unsynced", s.unsynced)

	return s, true
}

// load replaces the session state with the stored portfolio. The caller holds
// s.mu.
func (m *Manager) load(ctx context.Context, s *Session) error {
	p, err := m.portfolios.Load(ctx, s.userID)
	if err != nil {
		m.log.Warn("failed to load portfolio, session is unsynced", "userID", s.userID, "error", err)
		s.portfolio = models.Portfolio{Assets: []models.Asset{}}
		s.unsynced = true
		return err
	}

	s.portfolio = p
	s.unsynced = false
	s.updatedAt = m.now().UTC()
	return nil
}

func (m *Manager) snapshot(s *Session) Snapshot {
	snap := Snapshot{PortfolioView: portfolio.View(s.userID.String(), s.portfolio, s.updatedAt)}
	if s.unsynced {
		snap.Warning = UnsyncedWarning
	}
	return snap
}
