package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-agenda/internal/api"
	"github.com/hackgods/clinic-agenda/internal/logger"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ConfirmRatio float64
	CancelRatio  float64
	ReadRatio    float64
	Days         int
	SlotGranules []int
	StartDate    time.Time
}

type DataPool struct {
	Professionals []api.ProfessionalResponse
	Patients      []string
	Dates         []string

	mu           sync.RWMutex
	appointments []string
}

func (dp *DataPool) AddAppointment(id string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return "", false
	}
	return dp.appointments[rng.IntN(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := slices.Clone(om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	slices.Sort(latencies)

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	lo = latencies[0]
	hi = latencies[len(latencies)-1]
	p50 = latencies[min(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	return avg, lo, hi, p50, p95
}

type Metrics struct {
	Booking   OperationMetrics
	Confirm   OperationMetrics
	Cancel    OperationMetrics
	FreeSlots OperationMetrics
	ReadByID  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

func main() {
	_ = godotenv.Load()
	log := logger.New(getEnv("APP_ENV", "dev"), getEnv("LOG_LEVEL", "info"), os.Stdout)

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("confirm", cfg.ConfirmRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := sim.loadDataPool(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}
	sim.pool = pool
	log.Info().Int("professionals", len(pool.Professionals)).Strs("dates", pool.Dates).Msg("data pool loaded")

	sim.Run()
	sim.PrintReport()

	overlaps, err := sim.Verify(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("verify schedules")
	}
	if overlaps > 0 {
		log.Error().Int("overlaps", overlaps).Msg("overlapping appointments found")
		os.Exit(1)
	}
	log.Info().Msg("no overlapping appointments")
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.15),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.05),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		Days:         getInt("SIM_DAYS", 5),
		SlotGranules: []int{15, 30, 30, 45, 60, 90},
		StartDate:    time.Now().AddDate(0, 0, 1),
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

func (s *Simulator) loadDataPool(ctx context.Context) (*DataPool, error) {
	var profs []api.ProfessionalResponse
	if err := s.getJSON(ctx, "/professionals", &profs); err != nil {
		return nil, fmt.Errorf("load professionals: %w", err)
	}
	if len(profs) == 0 {
		return nil, fmt.Errorf("no professionals registered, run the seeder or set ROSTER_FILE")
	}

	dp := &DataPool{Professionals: profs}
	for range 200 {
		dp.Patients = append(dp.Patients, fmt.Sprintf("%s <%s>", gofakeit.Name(), gofakeit.Email()))
	}
	for i := range s.config.Days {
		dp.Dates = append(dp.Dates, s.config.StartDate.AddDate(0, 0, i).Format(time.DateOnly))
	}
	return dp, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := range s.config.Workers {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.ConfirmRatio:
			s.doTransition(ctx, rng, "confirm", &s.metrics.Confirm)
		case r < s.config.BookingRatio+s.config.ConfirmRatio+s.config.CancelRatio:
			s.doTransition(ctx, rng, "cancel", &s.metrics.Cancel)
		default:
			if rng.IntN(2) == 0 {
				s.doFreeSlots(ctx, rng)
			} else {
				s.doReadByID(ctx, rng)
			}
		}
	}
}

// doBooking aims at a random 15-minute boundary so workers collide often.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	prof := s.pool.Professionals[rng.IntN(len(s.pool.Professionals))]
	date := s.pool.Dates[rng.IntN(len(s.pool.Dates))]
	minute := 7*60 + rng.IntN(13*4)*15

	body, _ := json.Marshal(api.BookAppointmentRequest{
		ProfessionalID: prof.ID,
		PatientID:      s.pool.Patients[rng.IntN(len(s.pool.Patients))],
		Date:           date,
		Start:          fmt.Sprintf("%02d:%02d", minute/60, minute%60),
		Duration:       s.config.SlotGranules[rng.IntN(len(s.config.SlotGranules))],
		Procedure:      "consulta",
	})

	start := time.Now()
	status, data, err := s.do(ctx, http.MethodPost, "/appointments", body)
	latency := time.Since(start)

	success := err == nil && status == http.StatusCreated
	if success {
		var appt api.AppointmentResponse
		if json.Unmarshal(data, &appt) == nil && appt.ID != "" {
			s.pool.AddAppointment(appt.ID)
		}
	}
	// Outside-hours rejections are expected with random slots.
	expected := err == nil && (status == http.StatusConflict || status == http.StatusUnprocessableEntity)
	s.metrics.Booking.Record(latency, success, expected)
}

func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand, op string, om *OperationMetrics) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, _, err := s.do(ctx, http.MethodPost, "/appointments/"+id+"/"+op, nil)
	om.Record(time.Since(start), err == nil && status == http.StatusOK, err == nil && status == http.StatusConflict)
}

func (s *Simulator) doFreeSlots(ctx context.Context, rng *rand.Rand) {
	prof := s.pool.Professionals[rng.IntN(len(s.pool.Professionals))]
	date := s.pool.Dates[rng.IntN(len(s.pool.Dates))]

	start := time.Now()
	status, _, err := s.do(ctx, http.MethodGet,
		fmt.Sprintf("/professionals/%s/free-slots?date=%s&min_duration=30", prof.ID, date), nil)
	s.metrics.FreeSlots.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, _, err := s.do(ctx, http.MethodGet, "/appointments/"+id, nil)
	s.metrics.ReadByID.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

// Verify walks every simulated schedule and counts overlapping pairs of
// active appointments.
func (s *Simulator) Verify(ctx context.Context) (int, error) {
	overlaps := 0
	for _, prof := range s.pool.Professionals {
		for _, date := range s.pool.Dates {
			var sched api.ScheduleResponse
			if err := s.getJSON(ctx, fmt.Sprintf("/professionals/%s/schedule?date=%s", prof.ID, date), &sched); err != nil {
				return 0, err
			}
			for i := 1; i < len(sched.Appointments); i++ {
				prev, cur := sched.Appointments[i-1], sched.Appointments[i]
				if cur.Start < prev.End {
					overlaps++
					s.log.Error().
						Str("professional_id", prof.ID).
						Str("date", date).
						Str("first", prev.ID).
						Str("second", cur.ID).
						Msg("overlap")
				}
			}
		}
	}
	return overlaps, nil
}

func (s *Simulator) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, buf.Bytes(), nil
}

func (s *Simulator) getJSON(ctx context.Context, path string, dst any) error {
	status, data, err := s.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("GET %s: status %d: %s", path, status, data)
	}
	return json.Unmarshal(data, dst)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Free slots", &s.metrics.FreeSlots)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Microsecond), lo.Round(time.Microsecond), hi.Round(time.Microsecond),
		p50.Round(time.Microsecond), p95.Round(time.Microsecond))
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
