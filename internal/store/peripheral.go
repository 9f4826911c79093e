package store

import "time"

// The types and methods in this file back peripheral bookkeeping
// entities (children, registry entries, reputation) plus the cost and
// revenue events the agent loop writes on every turn.
// Each gets its own table, and each owns its own table's CRUD, but the
// surface stays minimal since the core (agent loop, tier monitor, context assembler,
// memory pipeline) never reads these back.

// Child describes a spawned child automaton.
type Child struct {
	ID            string
	Name          string
	Address       string
	GenesisPrompt string
	CreatedAt     time.Time
}

// InsertChild records a spawned child.
func (s *Store) InsertChild(c Child) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO children (id, name, address, genesis_prompt, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Address, c.GenesisPrompt, c.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// GetChildren returns every spawned child, oldest first.
func (s *Store) GetChildren() ([]Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, name, address, genesis_prompt, created_at FROM children ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Child
	for rows.Next() {
		var c Child
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Name, &c.Address, &c.GenesisPrompt, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// RegistryEntry describes an on-chain registration (e.g. ERC-8004).
type RegistryEntry struct {
	ID           string
	Address      string
	Role         string
	RegisteredAt time.Time
}

// InsertRegistryEntry records a registration.
func (s *Store) InsertRegistryEntry(r RegistryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO registry_entries (id, address, role, registered_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.Address, r.Role, r.RegisteredAt.UTC().Format(timeLayout),
	)
	return err
}

// GetRegistryEntries returns every on-chain registration, oldest first.
func (s *Store) GetRegistryEntries() ([]RegistryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, address, role, registered_at FROM registry_entries ORDER BY registered_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RegistryEntry
	for rows.Next() {
		var r RegistryEntry
		var registeredAt string
		if err := rows.Scan(&r.ID, &r.Address, &r.Role, &registeredAt); err != nil {
			return nil, err
		}
		r.RegisteredAt, _ = time.Parse(timeLayout, registeredAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetTotalCostCents sums every recorded cost event, used by
// check_inference_spending.
func (s *Store) GetTotalCostCents() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	err := s.db.QueryRow(`SELECT COALESCE(SUM(cents), 0) FROM cost_events`).Scan(&total)
	return total, err
}

// CostEvent records a per-turn cost estimate.
type CostEvent struct {
	ID        string
	TurnID    string
	Cents     int64
	Kind      string
	CreatedAt time.Time
}

// InsertCostEvent records a cost event.
func (s *Store) InsertCostEvent(e CostEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO cost_events (id, turn_id, cents, kind, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, nullableString(e.TurnID), e.Cents, e.Kind, e.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// RevenueEvent records income (e.g. hosted-service fees, x402 payments
// received — booked by the external Chain module, stored here).
type RevenueEvent struct {
	ID        string
	Cents     int64
	Source    string
	CreatedAt time.Time
}

// InsertRevenueEvent records a revenue event.
func (s *Store) InsertRevenueEvent(e RevenueEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO revenue_events (id, cents, source, created_at) VALUES (?, ?, ?, ?)`,
		e.ID, e.Cents, e.Source, e.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// Strategy records a named strategy the automaton has adopted.
type Strategy struct {
	ID        string
	Name      string
	Detail    string
	CreatedAt time.Time
}

// InsertStrategy records a strategy.
func (s *Store) InsertStrategy(st Strategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO strategies (id, name, detail, created_at) VALUES (?, ?, ?, ?)`,
		st.ID, st.Name, st.Detail, st.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// Benchmark records a scored benchmark run.
type Benchmark struct {
	ID        string
	Name      string
	Score     float64
	CreatedAt time.Time
}

// InsertBenchmark records a benchmark result.
func (s *Store) InsertBenchmark(b Benchmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO benchmarks (id, name, score, created_at) VALUES (?, ?, ?, ?)`,
		b.ID, b.Name, b.Score, b.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// HostedService records a service the automaton exposed via the sandbox's
// port-exposure capability.
type HostedService struct {
	ID        string
	Name      string
	Port      int
	CreatedAt time.Time
}

// InsertHostedService records a hosted service.
func (s *Store) InsertHostedService(h HostedService) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO hosted_services (id, name, port, created_at) VALUES (?, ?, ?, ?)`,
		h.ID, h.Name, h.Port, h.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// Evaluation records a judged outcome (e.g. a self- or peer-review verdict).
type Evaluation struct {
	ID        string
	Subject   string
	Verdict   string
	CreatedAt time.Time
}

// InsertEvaluation records an evaluation.
func (s *Store) InsertEvaluation(e Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO evaluations (id, subject, verdict, created_at) VALUES (?, ?, ?, ?)`,
		e.ID, e.Subject, e.Verdict, e.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// FitnessScore records a point-in-time fitness measurement.
type FitnessScore struct {
	ID        string
	Score     float64
	CreatedAt time.Time
}

// InsertFitnessScore records a fitness score.
func (s *Store) InsertFitnessScore(f FitnessScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO fitness_scores (id, score, created_at) VALUES (?, ?, ?)`,
		f.ID, f.Score, f.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}
