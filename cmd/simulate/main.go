package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/citizen-appointments/internal/api"
	"github.com/hackgods/citizen-appointments/internal/appointment"
	"github.com/hackgods/citizen-appointments/internal/auth"
	"github.com/hackgods/citizen-appointments/internal/db"
	"github.com/hackgods/citizen-appointments/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	JWTSecret    string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ConfirmRatio float64
	CancelRatio  float64
	ReadRatio    float64
	CitizenLimit int
	Days         int
	HotSlot      bool // all bookers race for the first free slot
	CheckQueue   bool // verify contiguous queue numbers after the run
	PostgresDSN  string
}

// DataPool holds the actors and targets workers draw from.
type DataPool struct {
	Citizens []appointment.Actor
	Officer  appointment.Actor
	Services []uuid.UUID
	Dates    []string

	mu           sync.RWMutex
	appointments []booked
}

type booked struct {
	ID      uuid.UUID
	Citizen appointment.Actor
	Service uuid.UUID
	Date    string
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Slots    OperationMetrics
	Booking  OperationMetrics
	Confirm  OperationMetrics
	Cancel   OperationMetrics
	ReadByID OperationMetrics
	ListOwn  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger

	tokenMu sync.Mutex
	tokens  map[uuid.UUID]string
}

func main() {
	logger := logging.Init("simulate", getEnv("APP_ENV", "dev"), getEnv("LOG_LEVEL", "info"))

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("confirm", cfg.ConfirmRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("read", cfg.ReadRatio).
		Bool("hot_slot", cfg.HotSlot).
		Msg("simulator starting")

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
		tokens: make(map[uuid.UUID]string),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dataPool, err := sim.loadDataPool(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	sim.pool = dataPool

	logger.Info().
		Int("citizens", len(dataPool.Citizens)).
		Int("services", len(dataPool.Services)).
		Strs("dates", dataPool.Dates).
		Msg("data pool loaded")

	sim.Run()
	sim.PrintReport()

	if cfg.CheckQueue {
		if violations := sim.CheckQueues(context.Background()); violations > 0 {
			logger.Error().Int("violations", violations).Msg("queue numbering check failed")
			os.Exit(1)
		}
		logger.Info().Msg("queue numbering check passed")
	}
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.2),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.05),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.25),
		CitizenLimit: getInt("SIM_CITIZEN_LIMIT", 2000),
		Days:         getInt("SIM_DAYS", 5),
		HotSlot:      getEnv("SIM_HOT_SLOT", "false") == "true",
		CheckQueue:   getEnv("SIM_CHECK_QUEUE", "true") == "true",
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required to mint actor tokens")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

// loadDataPool takes citizens from Postgres when a DSN is set, so the
// citizen foreign key holds; otherwise it invents them.
func (s *Simulator) loadDataPool(ctx context.Context) (*DataPool, error) {
	dp := &DataPool{Officer: appointment.Actor{ID: uuid.New(), Role: appointment.RoleOfficer}}

	if s.config.PostgresDSN != "" {
		pgPool, err := db.ConnectPostgres(ctx, s.config.PostgresDSN, s.logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		defer pgPool.Close()
		if dp.Citizens, err = loadCitizens(ctx, pgPool, s.config.CitizenLimit); err != nil {
			return nil, err
		}
	} else {
		for i := 0; i < s.config.CitizenLimit; i++ {
			dp.Citizens = append(dp.Citizens, appointment.Actor{ID: uuid.New(), Role: appointment.RoleCitizen})
		}
	}
	if len(dp.Citizens) == 0 {
		return nil, fmt.Errorf("no citizens loaded")
	}

	var services []api.ServiceResponse
	status, err := s.call(ctx, dp.Officer, http.MethodGet, "/services", nil, &services)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list services: status %d", status)
	}
	for _, svc := range services {
		dp.Services = append(dp.Services, svc.ID)
	}
	if len(dp.Services) == 0 {
		return nil, fmt.Errorf("no services in catalog")
	}

	day := time.Now().UTC().AddDate(0, 0, 1)
	for len(dp.Dates) < s.config.Days {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			dp.Dates = append(dp.Dates, appointment.FormatDate(day))
		}
		day = day.AddDate(0, 0, 1)
	}
	return dp, nil
}

func loadCitizens(ctx context.Context, pool *pgxpool.Pool, limit int) ([]appointment.Actor, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM citizens LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("load citizens: %w", err)
	}
	defer rows.Close()

	var out []appointment.Actor
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, appointment.Actor{ID: id, Role: appointment.RoleCitizen})
	}
	return out, rows.Err()
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < c.BookingRatio:
			s.doBooking(ctx, rng)
		case r < c.BookingRatio+c.ConfirmRatio:
			s.doConfirm(ctx, rng)
		case r < c.BookingRatio+c.ConfirmRatio+c.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			if rng.Intn(2) == 0 {
				s.doReadByID(ctx, rng)
			} else {
				s.doListOwn(ctx, rng)
			}
		}
	}
}

// doBooking lists the free slots of a random service day, then reserves
// one. A 409 means another worker won the slot.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	serviceID := s.pool.Services[rng.Intn(len(s.pool.Services))]
	date := s.pool.Dates[rng.Intn(len(s.pool.Dates))]
	citizen := s.pool.Citizens[rng.Intn(len(s.pool.Citizens))]

	var slots api.SlotsResponse
	start := time.Now()
	status, err := s.call(ctx, citizen, http.MethodGet,
		fmt.Sprintf("/services/%s/slots?date=%s", serviceID, date), nil, &slots)
	s.metrics.Slots.Record(time.Since(start), status, err)
	if err != nil || status != http.StatusOK || len(slots.Slots) == 0 {
		return
	}

	slot := slots.Slots[0]
	if !s.config.HotSlot {
		slot = slots.Slots[rng.Intn(len(slots.Slots))]
	}

	var appt api.AppointmentResponse
	start = time.Now()
	status, err = s.call(ctx, citizen, http.MethodPost, "/appointments", api.ReserveRequest{
		ServiceID: serviceID.String(),
		Date:      date,
		TimeSlot:  slot,
		Notes:     gofakeit.Sentence(6),
	}, &appt)
	s.metrics.Booking.Record(time.Since(start), status, err)

	if err == nil && status == http.StatusCreated && appt.ID != uuid.Nil {
		s.pool.AddAppointment(booked{ID: appt.ID, Citizen: citizen, Service: serviceID, Date: date})
	}
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.call(ctx, s.pool.Officer, http.MethodPost,
		fmt.Sprintf("/appointments/%s/confirm", b.ID), nil, nil)
	s.metrics.Confirm.Record(time.Since(start), status, err)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.call(ctx, b.Citizen, http.MethodPost,
		fmt.Sprintf("/appointments/%s/cancel", b.ID), api.CancelRequest{Reason: gofakeit.Sentence(4)}, nil)
	s.metrics.Cancel.Record(time.Since(start), status, err)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.call(ctx, b.Citizen, http.MethodGet, "/appointments/"+b.ID.String(), nil, nil)
	s.metrics.ReadByID.Record(time.Since(start), status, err)
}

func (s *Simulator) doListOwn(ctx context.Context, rng *rand.Rand) {
	citizen := s.pool.Citizens[rng.Intn(len(s.pool.Citizens))]

	start := time.Now()
	status, err := s.call(ctx, citizen, http.MethodGet, "/appointments?limit=20&offset=0", nil, nil)
	s.metrics.ListOwn.Record(time.Since(start), status, err)
}

// CheckQueues fetches every touched service day and counts days whose
// queue numbers are not exactly 1..n.
func (s *Simulator) CheckQueues(ctx context.Context) int {
	seen := make(map[string]bool)
	violations := 0

	s.pool.mu.RLock()
	touched := append([]booked(nil), s.pool.appointments...)
	s.pool.mu.RUnlock()

	for _, b := range touched {
		key := b.Service.String() + "|" + b.Date
		if seen[key] {
			continue
		}
		seen[key] = true

		var resp api.AppointmentListResponse
		status, err := s.call(ctx, s.pool.Officer, http.MethodGet,
			fmt.Sprintf("/services/%s/queue?date=%s", b.Service, b.Date), nil, &resp)
		if err != nil || status != http.StatusOK {
			s.logger.Error().Err(err).Int("status", status).Str("day", key).Msg("queue fetch failed")
			violations++
			continue
		}

		want := 1
		for _, a := range resp.Appointments {
			if a.QueueNumber == nil {
				continue
			}
			if *a.QueueNumber != want {
				s.logger.Error().
					Str("day", key).
					Int("want", want).
					Int("got", *a.QueueNumber).
					Str("appointment_id", a.ID.String()).
					Msg("queue gap or duplicate")
				violations++
				break
			}
			want++
		}
	}
	return violations
}

// call sends an authenticated JSON request as actor and decodes a 2xx body
// into out when given.
func (s *Simulator) call(ctx context.Context, actor appointment.Actor, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := s.token(actor)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (s *Simulator) token(actor appointment.Actor) (string, error) {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	if t, ok := s.tokens[actor.ID]; ok {
		return t, nil
	}
	t, err := auth.IssueToken(actor, s.config.JWTSecret, s.config.Duration+time.Hour)
	if err != nil {
		return "", err
	}
	s.tokens[actor.ID] = t
	return t, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Hot slot: %t\n", s.config.HotSlot)
	fmt.Println()

	printOperationReport("List slots", &s.metrics.Slots)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List own", &s.metrics.ListOwn)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
